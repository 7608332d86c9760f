// Package render converts decoded NRBF values to and from documents that
// ordinary tools understand: JSON, YAML and CBOR.
//
// Both directions go through a tree of plain maps, slices and scalars. Values
// whose kind a document format cannot carry on its own are written as
// mappings with a "$type" key, classes carry "$class", and shared or cyclic
// objects are numbered with "$id" on first appearance and "$ref" afterwards:
//
//	{"$class": "Contoso.Point", "$library": "Contoso", "members": [
//	  {"name": "x", "value": 1},
//	  {"name": "when", "value": {"$type": "DateTime", "ticks": 0, "kind": "Utc"}}
//	]}
//
// A bare integer reads back as Int32 and a bare fraction as Double.
package render

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/containerd/errdefs"

	"github.com/odvcencio/nrbf/pkg/nrbf"
)

const maxTreeDepth = 10_000

const (
	keyType    = "$type"
	keyClass   = "$class"
	keyLibrary = "$library"
	keyID      = "$id"
	keyRef     = "$ref"

	typeObjectArray = "ObjectArray"
	typeStringArray = "StringArray"
	typeArray       = "Array"
	arraySuffix     = "Array"
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("render: "+format+": %w", append(args, errdefs.ErrInvalidArgument)...)
}

// ToTree converts a value graph, as returned by nrbf.Document.Value, into a
// document tree.
func ToTree(v any) (any, error) {
	w := &treeWriter{seen: make(map[any]int), ids: make(map[any]int64)}
	w.count(v, 0)
	return w.value(v, 0)
}

type sliceIdentity struct {
	ptr uintptr
	n   int
}

// identity returns the key under which a value can be shared in a graph.
func identity(v any) (any, bool) {
	switch x := v.(type) {
	case *nrbf.Object:
		return x, x != nil
	case *nrbf.Array:
		return x, x != nil
	case []any:
		if len(x) == 0 {
			return nil, false
		}
		return sliceIdentity{reflect.ValueOf(x).Pointer(), len(x)}, true
	}
	return nil, false
}

type treeWriter struct {
	seen map[any]int
	ids  map[any]int64
	next int64
}

func (w *treeWriter) count(v any, depth int) {
	if depth > maxTreeDepth {
		return
	}
	if key, ok := identity(v); ok {
		w.seen[key]++
		if w.seen[key] > 1 {
			return
		}
	}
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			w.count(e, depth+1)
		}
	case *nrbf.Object:
		for _, m := range x.Members {
			w.count(m.Value, depth+1)
		}
	case *nrbf.Array:
		for _, e := range x.Values {
			w.count(e, depth+1)
		}
	}
}

func (w *treeWriter) value(v any, depth int) (any, error) {
	if depth > maxTreeDepth {
		return nil, invalidf("value nesting exceeds %d", maxTreeDepth)
	}
	var id int64
	if key, ok := identity(v); ok && w.seen[key] > 1 {
		if prev, ok := w.ids[key]; ok {
			return map[string]any{keyRef: prev}, nil
		}
		w.next++
		id = w.next
		w.ids[key] = id
	}

	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int32:
		return x, nil
	case []any:
		values, err := w.list(x, depth)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			return map[string]any{keyType: typeObjectArray, keyID: id, "values": values}, nil
		}
		return values, nil
	case []string:
		values := make([]any, len(x))
		for i, s := range x {
			values[i] = s
		}
		return map[string]any{keyType: typeStringArray, "values": values}, nil
	case *nrbf.Object:
		return w.object(x, id, depth)
	case *nrbf.Array:
		return w.array(x, id, depth)
	}
	if t, ok := nrbf.PrimitiveTypeOf(v); ok {
		return typedScalar(t, v), nil
	}
	if t, ok := nrbf.PrimitiveArrayTypeOf(v); ok {
		return primitiveArray(t, v), nil
	}
	return nil, invalidf("unsupported value of type %T", v)
}

func (w *treeWriter) list(values []any, depth int) ([]any, error) {
	out := make([]any, len(values))
	for i, e := range values {
		t, err := w.value(e, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (w *treeWriter) object(o *nrbf.Object, id int64, depth int) (any, error) {
	out := map[string]any{keyClass: o.TypeName}
	if o.LibraryName != "" {
		out[keyLibrary] = o.LibraryName
	}
	if id != 0 {
		out[keyID] = id
	}
	members := make([]any, 0, len(o.Members))
	for _, m := range o.Members {
		v, err := w.value(m.Value, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", o.TypeName, m.Name, err)
		}
		entry := map[string]any{"name": m.Name, "value": v}
		if m.Declared != nil {
			entry["declared"] = typeSpecTree(*m.Declared)
		}
		members = append(members, entry)
	}
	out["members"] = members
	return out, nil
}

func (w *treeWriter) array(a *nrbf.Array, id int64, depth int) (any, error) {
	values, err := w.list(a.Values, depth)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		keyType:   typeArray,
		"shape":   a.Shape.String(),
		"lengths": int32List(a.Lengths),
		"element": typeSpecTree(a.ElementType),
		"values":  values,
	}
	if len(a.LowerBounds) > 0 {
		out["lowerBounds"] = int32List(a.LowerBounds)
	}
	if id != 0 {
		out[keyID] = id
	}
	return out, nil
}

func int32List(v []int32) []any {
	out := make([]any, len(v))
	for i, n := range v {
		out[i] = int64(n)
	}
	return out
}

func typeSpecTree(s nrbf.TypeSpec) map[string]any {
	out := map[string]any{"kind": s.BinaryType.String()}
	switch s.BinaryType {
	case nrbf.BinaryTypePrimitive, nrbf.BinaryTypePrimitiveArray:
		out["primitive"] = s.Primitive.String()
	case nrbf.BinaryTypeSystemClass:
		out["name"] = s.TypeName
	case nrbf.BinaryTypeClass:
		out["name"] = s.TypeName
		out["library"] = s.LibraryName
	}
	return out
}

func typedScalar(t nrbf.PrimitiveType, v any) any {
	if d, ok := v.(nrbf.DateTime); ok {
		return map[string]any{keyType: t.String(), "ticks": d.Ticks(), "kind": d.Kind().String()}
	}
	return map[string]any{keyType: t.String(), "value": scalar(v)}
}

// scalar renders one primitive without its type.
func scalar(v any) any {
	switch x := v.(type) {
	case bool:
		return x
	case uint8:
		return uint64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case uint64:
		return x
	case float32:
		return floatValue(float64(x))
	case float64:
		return floatValue(x)
	case nrbf.Char:
		return x.String()
	case nrbf.Decimal:
		return x.String()
	case nrbf.TimeSpan:
		return int64(x)
	case nrbf.DateTime:
		return map[string]any{"ticks": x.Ticks(), "kind": x.Kind().String()}
	}
	return nil
}

// floatValue keeps non-finite floats as text, which JSON cannot carry.
func floatValue(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func primitiveArray(t nrbf.PrimitiveType, v any) any {
	name := t.String() + arraySuffix
	if b, ok := v.([]byte); ok {
		return map[string]any{keyType: name, "base64": base64.StdEncoding.EncodeToString(b)}
	}
	rv := reflect.ValueOf(v)
	values := make([]any, rv.Len())
	for i := range values {
		values[i] = scalar(rv.Index(i).Interface())
	}
	return map[string]any{keyType: name, "values": values}
}

// FromTree is the inverse of ToTree. It also accepts the trees produced by
// decoding hand-written JSON, YAML or CBOR documents.
func FromTree(t any) (any, error) {
	r := &treeReader{ids: make(map[int64]any)}
	return r.value(t, 0)
}

type treeReader struct {
	ids map[int64]any
}

func (r *treeReader) value(t any, depth int) (any, error) {
	if depth > maxTreeDepth {
		return nil, invalidf("document nesting exceeds %d", maxTreeDepth)
	}
	switch x := t.(type) {
	case nil:
		return nil, nil
	case string, bool:
		return x, nil
	case []any:
		out := make([]any, len(x))
		return out, r.fill(out, x, depth)
	case map[string]any:
		return r.mapping(x, depth)
	}
	if s, ok := numberString(t); ok {
		return plainNumber(s)
	}
	return nil, invalidf("unexpected %T in document", t)
}

func (r *treeReader) fill(out, values []any, depth int) error {
	for i, e := range values {
		v, err := r.value(e, depth+1)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

func (r *treeReader) bind(m map[string]any, v any) error {
	raw, ok := m[keyID]
	if !ok {
		return nil
	}
	id, err := intField(keyID, raw)
	if err != nil {
		return err
	}
	if _, dup := r.ids[id]; dup {
		return invalidf("duplicate %s %d", keyID, id)
	}
	r.ids[id] = v
	return nil
}

func (r *treeReader) mapping(m map[string]any, depth int) (any, error) {
	if raw, ok := m[keyRef]; ok {
		id, err := intField(keyRef, raw)
		if err != nil {
			return nil, err
		}
		v, ok := r.ids[id]
		if !ok {
			return nil, invalidf("%s %d does not name an earlier %s", keyRef, id, keyID)
		}
		return v, nil
	}
	if _, ok := m[keyClass]; ok {
		return r.object(m, depth)
	}
	typ, ok := m[keyType].(string)
	if !ok {
		return nil, invalidf("mapping has no %s, %s or %s key", keyClass, keyType, keyRef)
	}

	switch typ {
	case typeObjectArray:
		values, err := listField(m, "values")
		if err != nil {
			return nil, err
		}
		out := make([]any, len(values))
		if err := r.bind(m, out); err != nil {
			return nil, err
		}
		return out, r.fill(out, values, depth)
	case typeStringArray:
		values, err := listField(m, "values")
		if err != nil {
			return nil, err
		}
		out := make([]string, len(values))
		for i, e := range values {
			s, ok := e.(string)
			if !ok {
				return nil, invalidf("%s element %d is %T, not a string", typeStringArray, i, e)
			}
			out[i] = s
		}
		return out, nil
	case typeArray:
		return r.array(m, depth)
	}

	if name, ok := strings.CutSuffix(typ, arraySuffix); ok {
		if t, ok := primitiveByName(name); ok {
			return parsePrimitiveArray(t, m)
		}
	}
	t, ok := primitiveByName(typ)
	if !ok {
		return nil, invalidf("unknown %s %q", keyType, typ)
	}
	if t == nrbf.PrimitiveDateTime {
		return parseScalar(t, m)
	}
	return parseScalar(t, m["value"])
}

func (r *treeReader) object(m map[string]any, depth int) (any, error) {
	name, ok := m[keyClass].(string)
	if !ok {
		return nil, invalidf("%s is not a string", keyClass)
	}
	o := &nrbf.Object{TypeName: name}
	if lib, ok := m[keyLibrary]; ok {
		if o.LibraryName, ok = lib.(string); !ok {
			return nil, invalidf("%s of %s is not a string", keyLibrary, name)
		}
	}
	if err := r.bind(m, o); err != nil {
		return nil, err
	}
	var members []any
	if _, ok := m["members"]; ok {
		var err error
		if members, err = listField(m, "members"); err != nil {
			return nil, err
		}
	}
	for i, e := range members {
		entry, ok := e.(map[string]any)
		if !ok {
			return nil, invalidf("%s member %d is not a mapping", name, i)
		}
		mname, ok := entry["name"].(string)
		if !ok {
			return nil, invalidf("%s member %d has no name", name, i)
		}
		v, err := r.value(entry["value"], depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, mname, err)
		}
		member := nrbf.Member{Name: mname, Value: v}
		if raw, ok := entry["declared"]; ok {
			spec, err := parseTypeSpec(raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, mname, err)
			}
			member.Declared = &spec
		}
		o.Members = append(o.Members, member)
	}
	return o, nil
}

func (r *treeReader) array(m map[string]any, depth int) (any, error) {
	a := &nrbf.Array{}
	shape, _ := m["shape"].(string)
	var ok bool
	if a.Shape, ok = arrayShapeByName(shape); !ok {
		return nil, invalidf("unknown array shape %q", shape)
	}
	var err error
	if a.Lengths, err = int32Field(m, "lengths"); err != nil {
		return nil, err
	}
	if _, ok := m["lowerBounds"]; ok {
		if a.LowerBounds, err = int32Field(m, "lowerBounds"); err != nil {
			return nil, err
		}
	}
	if a.ElementType, err = parseTypeSpec(m["element"]); err != nil {
		return nil, err
	}
	values, err := listField(m, "values")
	if err != nil {
		return nil, err
	}
	if err := r.bind(m, a); err != nil {
		return nil, err
	}
	a.Values = make([]any, len(values))
	return a, r.fill(a.Values, values, depth)
}

func parseTypeSpec(raw any) (nrbf.TypeSpec, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nrbf.TypeSpec{}, invalidf("type is %T, not a mapping", raw)
	}
	kind, _ := m["kind"].(string)
	bt, ok := binaryTypeByName(kind)
	if !ok {
		return nrbf.TypeSpec{}, invalidf("unknown type kind %q", kind)
	}
	s := nrbf.TypeSpec{BinaryType: bt}
	switch bt {
	case nrbf.BinaryTypePrimitive, nrbf.BinaryTypePrimitiveArray:
		name, _ := m["primitive"].(string)
		if s.Primitive, ok = primitiveByName(name); !ok {
			return s, invalidf("unknown primitive %q", name)
		}
	case nrbf.BinaryTypeSystemClass, nrbf.BinaryTypeClass:
		if s.TypeName, ok = m["name"].(string); !ok {
			return s, invalidf("%s type has no name", kind)
		}
		if bt == nrbf.BinaryTypeClass {
			if s.LibraryName, ok = m["library"].(string); !ok {
				return s, invalidf("class type %s has no library", s.TypeName)
			}
		}
	}
	return s, nil
}

func parsePrimitiveArray(t nrbf.PrimitiveType, m map[string]any) (any, error) {
	if t == nrbf.PrimitiveByte {
		if s, ok := m["base64"].(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, invalidf("Byte array: %v", err)
			}
			return b, nil
		}
	}
	values, err := listField(m, "values")
	if err != nil {
		return nil, err
	}
	out := reflect.MakeSlice(reflect.SliceOf(t.GoType()), len(values), len(values))
	for i, e := range values {
		v, err := parseScalar(t, e)
		if err != nil {
			return nil, fmt.Errorf("%s array element %d: %w", t, i, err)
		}
		out.Index(i).Set(reflect.ValueOf(v))
	}
	return out.Interface(), nil
}

// parseScalar reads one primitive of kind t from a number, string or, for
// DateTime, a ticks/kind mapping.
func parseScalar(t nrbf.PrimitiveType, raw any) (any, error) {
	switch t {
	case nrbf.PrimitiveDateTime:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, invalidf("DateTime is %T, not a ticks/kind mapping", raw)
		}
		ticks, err := intField("ticks", m["ticks"])
		if err != nil {
			return nil, err
		}
		kindName, _ := m["kind"].(string)
		kind, ok := dateTimeKindByName(kindName)
		if !ok {
			return nil, invalidf("unknown DateTime kind %q", kindName)
		}
		return nrbf.NewDateTime(ticks, kind)
	case nrbf.PrimitiveBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	}

	s, ok := numberString(raw)
	if !ok {
		if s, ok = raw.(string); !ok {
			return nil, invalidf("%s value is %T", t, raw)
		}
	}
	var (
		v   any
		err error
	)
	switch t {
	case nrbf.PrimitiveBoolean:
		v, err = strconv.ParseBool(s)
	case nrbf.PrimitiveByte:
		v, err = parseUint[uint8](s, 8)
	case nrbf.PrimitiveUInt16:
		v, err = parseUint[uint16](s, 16)
	case nrbf.PrimitiveUInt32:
		v, err = parseUint[uint32](s, 32)
	case nrbf.PrimitiveUInt64:
		v, err = parseUint[uint64](s, 64)
	case nrbf.PrimitiveSByte:
		v, err = parseInt[int8](s, 8)
	case nrbf.PrimitiveInt16:
		v, err = parseInt[int16](s, 16)
	case nrbf.PrimitiveInt32:
		v, err = parseInt[int32](s, 32)
	case nrbf.PrimitiveInt64:
		v, err = parseInt[int64](s, 64)
	case nrbf.PrimitiveTimeSpan:
		v, err = parseInt[nrbf.TimeSpan](s, 64)
	case nrbf.PrimitiveSingle:
		var f float64
		f, err = strconv.ParseFloat(s, 32)
		v = float32(f)
	case nrbf.PrimitiveDouble:
		v, err = strconv.ParseFloat(s, 64)
	case nrbf.PrimitiveDecimal:
		v, err = nrbf.ParseDecimal(s)
	case nrbf.PrimitiveChar:
		v, err = parseChar(s)
	default:
		return nil, invalidf("%s carries no value", t)
	}
	if err != nil {
		return nil, invalidf("%s value %q: %v", t, s, err)
	}
	return v, nil
}

func parseInt[T ~int8 | ~int16 | ~int32 | ~int64](s string, bits int) (T, error) {
	n, err := strconv.ParseInt(s, 10, bits)
	return T(n), err
}

func parseUint[T ~uint8 | ~uint16 | ~uint32 | ~uint64](s string, bits int) (T, error) {
	n, err := strconv.ParseUint(s, 10, bits)
	return T(n), err
}

func parseChar(s string) (nrbf.Char, error) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) || r == utf8.RuneError {
		return 0, fmt.Errorf("want exactly one character")
	}
	if r > 0xffff || utf16.IsSurrogate(r) {
		return 0, fmt.Errorf("character U+%04X is outside the basic multilingual plane", r)
	}
	return nrbf.Char(r), nil
}

// plainNumber types a number that carries no $type.
func plainNumber(s string) (any, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n), nil
		}
		return n, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalidf("number %q: %v", s, err)
	}
	return f, nil
}

// numberString formats the numeric types JSON, YAML and CBOR decoders
// produce.
func numberString(v any) (string, bool) {
	switch x := v.(type) {
	case json.Number:
		return x.String(), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	}
	return "", false
}

func intField(name string, raw any) (int64, error) {
	s, ok := numberString(raw)
	if !ok {
		if s, ok = raw.(string); !ok {
			return 0, invalidf("%s is %T, not an integer", name, raw)
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalidf("%s %q is not an integer", name, s)
	}
	return n, nil
}

func int32Field(m map[string]any, name string) ([]int32, error) {
	values, err := listField(m, name)
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(values))
	for i, e := range values {
		n, err := intField(name, e)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, invalidf("%s[%d] = %d overflows Int32", name, i, n)
		}
		out[i] = int32(n)
	}
	return out, nil
}

func listField(m map[string]any, name string) ([]any, error) {
	switch v := m[name].(type) {
	case []any:
		return v, nil
	case nil:
		return nil, invalidf("missing %q list", name)
	default:
		return nil, invalidf("%q is %T, not a list", name, v)
	}
}

func primitiveByName(name string) (nrbf.PrimitiveType, bool) {
	t, ok := nrbf.PrimitiveTypeForName("System." + name)
	if !ok || !t.IsValue() {
		return 0, false
	}
	return t, true
}

func binaryTypeByName(name string) (nrbf.BinaryType, bool) {
	for t := nrbf.BinaryTypePrimitive; t <= nrbf.BinaryTypePrimitiveArray; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func arrayShapeByName(name string) (nrbf.BinaryArrayType, bool) {
	for t := nrbf.BinaryArraySingle; t <= nrbf.BinaryArrayRectangularOffset; t++ {
		if t.String() == name {
			return t, true
		}
	}
	return 0, false
}

func dateTimeKindByName(name string) (nrbf.DateTimeKind, bool) {
	for k := nrbf.KindUnspecified; k <= nrbf.KindLocalAmbiguousDST; k++ {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}
