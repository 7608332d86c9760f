// Package diff compares two decoded payloads member by member.
package diff

import (
	"encoding/json"
	"fmt"

	"github.com/odvcencio/nrbf/pkg/nrbf"
	"github.com/odvcencio/nrbf/pkg/render"
)

// ChangeType classifies what happened to an entry between two payloads.
type ChangeType int

const (
	Added    ChangeType = iota // Entry exists only in the after payload.
	Removed                    // Entry exists only in the before payload.
	Modified                   // Entry exists in both payloads but its value changed.
)

func (t ChangeType) String() string {
	switch t {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	}
	return fmt.Sprintf("ChangeType(%d)", int(t))
}

// Entry is one addressable piece of a payload: a scalar leaf, or the shape
// of a class or array. Path is rooted at "$", with ".name" for class
// members and "[i]" for array elements.
type Entry struct {
	Path  string
	Value string
}

// Change records one entry-level difference.
type Change struct {
	Type   ChangeType
	Path   string
	Before *Entry // nil for Added.
	After  *Entry // nil for Removed.
}

// Result holds the changes between two payloads in document order: removals
// and modifications in before order, then additions in after order.
type Result struct {
	Changes []Change
}

// Empty reports whether the payloads are equal.
func (r *Result) Empty() bool { return len(r.Changes) == 0 }

// Documents compares the root values of two decoded payloads.
func Documents(before, after *nrbf.Document) (*Result, error) {
	bv, err := before.Value()
	if err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	av, err := after.Value()
	if err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}
	return Values(bv, av)
}

// Values compares two value graphs as returned by nrbf.Document.Value.
func Values(before, after any) (*Result, error) {
	beforeList, err := Entries(before)
	if err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	afterList, err := Entries(after)
	if err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}

	beforeMap := make(map[string]*Entry, len(beforeList))
	for i := range beforeList {
		beforeMap[beforeList[i].Path] = &beforeList[i]
	}
	afterMap := make(map[string]*Entry, len(afterList))
	for i := range afterList {
		afterMap[afterList[i].Path] = &afterList[i]
	}

	r := &Result{}
	for i := range beforeList {
		e := &beforeList[i]
		a, ok := afterMap[e.Path]
		switch {
		case !ok:
			r.Changes = append(r.Changes, Change{Type: Removed, Path: e.Path, Before: e})
		case a.Value != e.Value:
			r.Changes = append(r.Changes, Change{Type: Modified, Path: e.Path, Before: e, After: a})
		}
	}
	for i := range afterList {
		e := &afterList[i]
		if _, ok := beforeMap[e.Path]; !ok {
			r.Changes = append(r.Changes, Change{Type: Added, Path: e.Path, After: e})
		}
	}
	return r, nil
}

// Entries flattens a value graph into entries in document order. Shared
// objects appear once, at their first path; later paths hold a reference.
func Entries(v any) ([]Entry, error) {
	t, err := render.ToTree(v)
	if err != nil {
		return nil, err
	}
	var out []Entry
	if err := flatten(&out, "$", t); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(out *[]Entry, path string, t any) error {
	switch x := t.(type) {
	case []any:
		*out = append(*out, Entry{Path: path, Value: fmt.Sprintf("[%d]", len(x))})
		return flattenList(out, path, x)
	case map[string]any:
		if class, ok := x["$class"].(string); ok {
			*out = append(*out, Entry{Path: path, Value: className(class, x)})
			members, _ := x["members"].([]any)
			for _, m := range members {
				mm, _ := m.(map[string]any)
				name, _ := mm["name"].(string)
				if err := flatten(out, path+"."+name, mm["value"]); err != nil {
					return err
				}
			}
			return nil
		}
		if values, ok := x["values"].([]any); ok {
			typ, _ := x["$type"].(string)
			*out = append(*out, Entry{Path: path, Value: fmt.Sprintf("%s[%d]", typ, len(values))})
			return flattenList(out, path, values)
		}
	}
	leaf, err := leafText(t)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*out = append(*out, Entry{Path: path, Value: leaf})
	return nil
}

func flattenList(out *[]Entry, path string, values []any) error {
	for i, e := range values {
		if err := flatten(out, fmt.Sprintf("%s[%d]", path, i), e); err != nil {
			return err
		}
	}
	return nil
}

func className(class string, m map[string]any) string {
	if lib, ok := m["$library"].(string); ok {
		return class + ", " + lib
	}
	return class
}

// leafText renders a scalar subtree as compact JSON. Map keys come out
// sorted.
func leafText(t any) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
