package render

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML documents carry "$type" as a local tag instead of a key, so a typed
// Int64 reads "!Int64 5" and a DateTime "!DateTime {kind: Utc, ticks: 0}".

func isLocalTag(tag string) bool {
	return strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!")
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func treeToNode(t any) *yaml.Node {
	switch x := t.(type) {
	case nil:
		return scalarNode("!!null", "null")
	case string:
		return scalarNode("!!str", x)
	case bool:
		return scalarNode("!!bool", strconv.FormatBool(x))
	case int32:
		return scalarNode("!!int", strconv.FormatInt(int64(x), 10))
	case int64:
		return scalarNode("!!int", strconv.FormatInt(x, 10))
	case uint64:
		return scalarNode("!!int", strconv.FormatUint(x, 10))
	case float64:
		return scalarNode("!!float", yamlFloat(x))
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range x {
			n.Content = append(n.Content, treeToNode(e))
		}
		return n
	case map[string]any:
		return mapToNode(x)
	}
	return scalarNode("!!null", "null")
}

func mapToNode(m map[string]any) *yaml.Node {
	typ, _ := m[keyType].(string)
	if typ != "" && len(m) == 2 {
		if v, ok := m["value"]; ok {
			if _, composite := v.(map[string]any); !composite {
				n := treeToNode(v)
				n.Tag = "!" + typ
				return n
			}
		}
		if v, ok := m["values"].([]any); ok {
			n := treeToNode(v)
			n.Tag = "!" + typ
			return n
		}
	}

	n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if typ != "" {
		n.Tag = "!" + typ
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		if typ != "" && k == keyType {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Content = append(n.Content, scalarNode("!!str", k), treeToNode(m[k]))
	}
	return n
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func nodeToTree(n *yaml.Node, depth int) (any, error) {
	if depth > maxTreeDepth {
		return nil, invalidf("document nesting exceeds %d", maxTreeDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeToTree(n.Content[0], depth)
	case yaml.AliasNode:
		return nodeToTree(n.Alias, depth+1)
	case yaml.ScalarNode:
		if isLocalTag(n.Tag) {
			return map[string]any{keyType: n.Tag[1:], "value": n.Value}, nil
		}
		return yamlScalar(n)
	case yaml.SequenceNode:
		values := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeToTree(c, depth+1)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		if isLocalTag(n.Tag) {
			return map[string]any{keyType: n.Tag[1:], "values": values}, nil
		}
		return values, nil
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeToTree(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		if isLocalTag(n.Tag) {
			m[keyType] = n.Tag[1:]
		}
		return m, nil
	}
	return nil, invalidf("unexpected YAML node kind %d at line %d", n.Kind, n.Line)
}

func yamlScalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, invalidf("line %d: %v", n.Line, err)
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return i, nil
		}
		var u uint64
		if err := n.Decode(&u); err != nil {
			return nil, invalidf("line %d: %v", n.Line, err)
		}
		return u, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, invalidf("line %d: %v", n.Line, err)
		}
		return f, nil
	}
	return n.Value, nil
}
