package interchange

import (
	"reflect"
	"strings"
)

// Assembly names of the libraries the well-known types live in.
const (
	MscorlibAssembly      = "mscorlib, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b77a5c561934e089"
	SystemDrawingAssembly = "System.Drawing, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a"
)

// TypeName is a CLR type as it appears in a class record: a namespace
// qualified name and the display name of its assembly. AssemblyName is empty
// for core library types.
type TypeName struct {
	FullName     string
	AssemblyName string
}

func (n TypeName) String() string {
	if n.AssemblyName == "" {
		return n.FullName
	}
	return n.FullName + ", " + n.AssemblyName
}

// Assembly returns the simple name of the assembly, without version,
// culture or key token.
func (n TypeName) Assembly() string {
	name, _, _ := strings.Cut(n.AssemblyName, ",")
	return strings.TrimSpace(name)
}

// Same reports whether n and o name the same type, ignoring assembly
// versions.
func (n TypeName) Same(o TypeName) bool {
	return n.FullName == o.FullName && n.Assembly() == o.Assembly()
}

// TypeResolver maps a decoded type name to the Go type its class records
// bind to. It is the only way the read side learns about caller types.
type TypeResolver func(TypeName) (reflect.Type, bool)

// ClassNamer is implemented by Go structs that are written as classes. The
// struct's fields become members, named by their nrbf tag.
type ClassNamer interface {
	NRBFClass() TypeName
}

// ResolverFor returns a resolver that binds the class of each example value
// to the example's Go type. Pointer examples resolve to pointer types.
func ResolverFor(examples ...ClassNamer) TypeResolver {
	types := make(map[string]reflect.Type, len(examples))
	for _, ex := range examples {
		n := ex.NRBFClass()
		types[resolverKey(n)] = reflect.TypeOf(ex)
	}
	return func(n TypeName) (reflect.Type, bool) {
		rt, ok := types[resolverKey(n)]
		return rt, ok
	}
}

func resolverKey(n TypeName) string {
	return n.FullName + "\x00" + n.Assembly()
}

// listTypeName is the name BinaryFormatter gives List<T> for a core library
// element type.
func listTypeName(element string) string {
	return "System.Collections.Generic.List`1[[" + element + ", " + MscorlibAssembly + "]]"
}

// listElementName extracts the element type of a List<T> class name.
func listElementName(typeName string) (string, bool) {
	const prefix = "System.Collections.Generic.List`1[["
	rest, ok := strings.CutPrefix(typeName, prefix)
	if !ok {
		return "", false
	}
	rest, ok = strings.CutSuffix(rest, "]]")
	if !ok {
		return "", false
	}
	element, _, _ := strings.Cut(rest, ",")
	return strings.TrimSpace(element), element != ""
}
