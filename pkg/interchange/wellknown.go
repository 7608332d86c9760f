package interchange

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/odvcencio/nrbf/pkg/nrbf"
)

// IntPtr is a System.IntPtr. Payloads always carry 64 bits.
type IntPtr int64

// UIntPtr is a System.UIntPtr.
type UIntPtr uint64

// Point is a System.Drawing.Point.
type Point struct{ X, Y int32 }

// PointF is a System.Drawing.PointF.
type PointF struct{ X, Y float32 }

// Size is a System.Drawing.Size.
type Size struct{ Width, Height int32 }

// SizeF is a System.Drawing.SizeF.
type SizeF struct{ Width, Height float32 }

// Rectangle is a System.Drawing.Rectangle.
type Rectangle struct{ X, Y, Width, Height int32 }

// RectangleF is a System.Drawing.RectangleF.
type RectangleF struct{ X, Y, Width, Height float32 }

// Color is a System.Drawing.Color in its serialized form. Name is set for
// named colors that are not known colors; KnownColor indexes the
// framework's color table; State says which of the fields are valid.
type Color struct {
	Name       string
	Value      int64
	KnownColor int16
	State      int16
}

// List is a System.Collections.Generic.List<T>. T must be a primitive value
// type of package nrbf or string.
type List[T any] []T

func (l List[T]) listItems() any { return []T(l) }

type listValue interface{ listItems() any }

// ArrayList is a System.Collections.ArrayList of primitives and strings.
type ArrayList []any

// DictionaryEntry is one key/value pair of a Hashtable.
type DictionaryEntry struct {
	Key   any
	Value any
}

// Hashtable is a System.Collections.Hashtable with the default comparer.
// Keys and values must be primitives or strings; values may be nil. Entry
// order is kept as written.
type Hashtable []DictionaryEntry

// Get returns the value stored under key.
func (h Hashtable) Get(key any) (any, bool) {
	for _, e := range h {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// NotSupportedException is a System.NotSupportedException. Only the message
// travels.
type NotSupportedException struct {
	Message string
}

func (e *NotSupportedException) Error() string { return e.Message }

const (
	hashtableType       = "System.Collections.Hashtable"
	arrayListType       = "System.Collections.ArrayList"
	notSupportedType    = "System.NotSupportedException"
	hashtableLoadFactor = float32(0.72)

	// COR_E_NOTSUPPORTED
	notSupportedHResult = int32(-2146233067)
)

func spec(bt nrbf.BinaryType) *nrbf.TypeSpec {
	return &nrbf.TypeSpec{BinaryType: bt}
}

func systemClass(name string) *nrbf.TypeSpec {
	return &nrbf.TypeSpec{BinaryType: nrbf.BinaryTypeSystemClass, TypeName: name}
}

func drawing(name string, members ...nrbf.Member) *nrbf.Object {
	return &nrbf.Object{TypeName: "System.Drawing." + name, LibraryName: SystemDrawingAssembly, Members: members}
}

// wellKnownObject returns the class layout BinaryFormatter writes for a
// well-known value, or false when v is not one.
func wellKnownObject(v any) (*nrbf.Object, bool, error) {
	switch x := v.(type) {
	case IntPtr:
		return &nrbf.Object{TypeName: "System.IntPtr", Members: []nrbf.Member{{Name: "value", Value: int64(x)}}}, true, nil
	case UIntPtr:
		return &nrbf.Object{TypeName: "System.UIntPtr", Members: []nrbf.Member{{Name: "value", Value: uint64(x)}}}, true, nil
	case Point:
		return drawing("Point", nrbf.Member{Name: "x", Value: x.X}, nrbf.Member{Name: "y", Value: x.Y}), true, nil
	case PointF:
		return drawing("PointF", nrbf.Member{Name: "x", Value: x.X}, nrbf.Member{Name: "y", Value: x.Y}), true, nil
	case Size:
		return drawing("Size", nrbf.Member{Name: "width", Value: x.Width}, nrbf.Member{Name: "height", Value: x.Height}), true, nil
	case SizeF:
		return drawing("SizeF", nrbf.Member{Name: "width", Value: x.Width}, nrbf.Member{Name: "height", Value: x.Height}), true, nil
	case Rectangle:
		return drawing("Rectangle",
			nrbf.Member{Name: "x", Value: x.X}, nrbf.Member{Name: "y", Value: x.Y},
			nrbf.Member{Name: "width", Value: x.Width}, nrbf.Member{Name: "height", Value: x.Height}), true, nil
	case RectangleF:
		return drawing("RectangleF",
			nrbf.Member{Name: "x", Value: x.X}, nrbf.Member{Name: "y", Value: x.Y},
			nrbf.Member{Name: "width", Value: x.Width}, nrbf.Member{Name: "height", Value: x.Height}), true, nil
	case Color:
		var name any
		if x.Name != "" {
			name = x.Name
		}
		return drawing("Color",
			nrbf.Member{Name: "name", Value: name, Declared: spec(nrbf.BinaryTypeString)},
			nrbf.Member{Name: "value", Value: x.Value},
			nrbf.Member{Name: "knownColor", Value: x.KnownColor},
			nrbf.Member{Name: "state", Value: x.State}), true, nil
	case ArrayList:
		o, err := arrayListObject(x)
		return o, true, err
	case Hashtable:
		o, err := hashtableObject(x)
		return o, true, err
	case *NotSupportedException:
		if x == nil {
			return nil, false, nil
		}
		return notSupportedObject(x.Message), true, nil
	case NotSupportedException:
		return notSupportedObject(x.Message), true, nil
	case listValue:
		o, err := listObject(x.listItems())
		return o, true, err
	}
	return nil, false, nil
}

func listObject(items any) (*nrbf.Object, error) {
	var element string
	var size int
	switch s := items.(type) {
	case []string:
		element, size = "System.String", len(s)
	default:
		t, ok := nrbf.PrimitiveArrayTypeOf(items)
		if !ok {
			return nil, unsupportedValuef("list of %T has no payload form", items)
		}
		element, size = t.SystemTypeName(), sliceLen(items)
	}
	return &nrbf.Object{
		TypeName: listTypeName(element),
		Members: []nrbf.Member{
			{Name: "_items", Value: items},
			{Name: "_size", Value: int32(size)},
			{Name: "_version", Value: int32(0)},
		},
	}, nil
}

// listElement reports whether v can be an ArrayList or Hashtable element.
func listElement(v any) bool {
	if v == nil {
		return true
	}
	if _, ok := v.(string); ok {
		return true
	}
	_, ok := nrbf.PrimitiveTypeOf(v)
	return ok
}

func arrayListObject(l ArrayList) (*nrbf.Object, error) {
	for i, v := range l {
		if !listElement(v) {
			return nil, unsupportedValuef("ArrayList element %d of type %T is not a primitive", i, v)
		}
	}
	items := slices.Clone([]any(l))
	if items == nil {
		items = []any{}
	}
	return &nrbf.Object{
		TypeName: arrayListType,
		Members: []nrbf.Member{
			{Name: "_items", Value: items, Declared: spec(nrbf.BinaryTypeObjectArray)},
			{Name: "_size", Value: int32(len(l))},
			{Name: "_version", Value: int32(0)},
		},
	}, nil
}

func hashtableObject(h Hashtable) (*nrbf.Object, error) {
	keys := make([]any, len(h))
	values := make([]any, len(h))
	for i, e := range h {
		if e.Key == nil || !listElement(e.Key) {
			return nil, unsupportedValuef("Hashtable key %d of type %T is not a primitive", i, e.Key)
		}
		if !listElement(e.Value) {
			return nil, unsupportedValuef("Hashtable value %d of type %T is not a primitive", i, e.Value)
		}
		keys[i], values[i] = e.Key, e.Value
	}
	return &nrbf.Object{
		TypeName: hashtableType,
		Members: []nrbf.Member{
			{Name: "LoadFactor", Value: hashtableLoadFactor},
			{Name: "Version", Value: int32(len(h))},
			{Name: "Comparer", Declared: systemClass("System.Collections.IComparer")},
			{Name: "HashCodeProvider", Declared: systemClass("System.Collections.IHashCodeProvider")},
			{Name: "HashSize", Value: hashSize(len(h))},
			{Name: "Keys", Value: keys, Declared: spec(nrbf.BinaryTypeObjectArray)},
			{Name: "Values", Value: values, Declared: spec(nrbf.BinaryTypeObjectArray)},
		},
	}, nil
}

// hashSize is the bucket count a Hashtable holding n entries would have:
// the smallest prime that keeps the load under the load factor.
func hashSize(n int) int32 {
	lo := max(3, int(float64(n)/float64(hashtableLoadFactor))+1)
	for c := lo | 1; ; c += 2 {
		if isPrime(c) {
			return int32(c)
		}
	}
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

func notSupportedObject(message string) *nrbf.Object {
	str := spec(nrbf.BinaryTypeString)
	return &nrbf.Object{
		TypeName: notSupportedType,
		Members: []nrbf.Member{
			{Name: "ClassName", Value: notSupportedType},
			{Name: "Message", Value: message},
			{Name: "Data", Declared: systemClass("System.Collections.IDictionary")},
			{Name: "InnerException", Declared: systemClass("System.Exception")},
			{Name: "HelpURL", Declared: str},
			{Name: "StackTraceString", Declared: str},
			{Name: "RemoteStackTraceString", Declared: str},
			{Name: "RemoteStackIndex", Value: int32(0)},
			{Name: "ExceptionMethod", Declared: str},
			{Name: "HResult", Value: notSupportedHResult},
			{Name: "Source", Declared: str},
			{Name: "WatsonBuckets", Declared: &nrbf.TypeSpec{BinaryType: nrbf.BinaryTypePrimitiveArray, Primitive: nrbf.PrimitiveByte}},
		},
	}
}

// fromWellKnown converts a decoded class record of a well-known type. It
// reports false for classes it does not know.
func fromWellKnown(o *nrbf.Object) (any, bool, error) {
	if o.LibraryName != "" {
		if (TypeName{AssemblyName: o.LibraryName}).Assembly() != "System.Drawing" {
			return nil, false, nil
		}
		v, err := fromDrawing(o)
		return v, v != nil || err != nil, err
	}
	switch o.TypeName {
	case "System.IntPtr":
		v, err := member[int64](o, "value")
		return IntPtr(v), true, exact(o, err, 1)
	case "System.UIntPtr":
		v, err := member[uint64](o, "value")
		return UIntPtr(v), true, exact(o, err, 1)
	case arrayListType:
		v, err := fromArrayList(o)
		return v, true, err
	case hashtableType:
		v, err := fromHashtable(o)
		return v, true, err
	case notSupportedType:
		msg, err := member[string](o, "Message")
		if err != nil {
			return nil, true, err
		}
		return &NotSupportedException{Message: msg}, true, nil
	}
	if element, ok := listElementName(o.TypeName); ok {
		v, err := fromList(o, element)
		return v, true, err
	}
	return nil, false, nil
}

func fromDrawing(o *nrbf.Object) (any, error) {
	i32 := func(name string) int32 {
		v, _ := member[int32](o, name)
		return v
	}
	f32 := func(name string) float32 {
		v, _ := member[float32](o, name)
		return v
	}
	var v any
	var names []string
	switch o.TypeName {
	case "System.Drawing.Point":
		v, names = Point{i32("x"), i32("y")}, []string{"x", "y"}
	case "System.Drawing.PointF":
		v, names = PointF{f32("x"), f32("y")}, []string{"x", "y"}
	case "System.Drawing.Size":
		v, names = Size{i32("width"), i32("height")}, []string{"width", "height"}
	case "System.Drawing.SizeF":
		v, names = SizeF{f32("width"), f32("height")}, []string{"width", "height"}
	case "System.Drawing.Rectangle":
		v, names = Rectangle{i32("x"), i32("y"), i32("width"), i32("height")}, []string{"x", "y", "width", "height"}
	case "System.Drawing.RectangleF":
		v, names = RectangleF{f32("x"), f32("y"), f32("width"), f32("height")}, []string{"x", "y", "width", "height"}
	case "System.Drawing.Color":
		return fromColor(o)
	default:
		return nil, nil
	}
	if len(o.Members) != len(names) {
		return nil, layoutError(o.TypeName)
	}
	floats := strings.HasSuffix(o.TypeName, "F")
	for _, name := range names {
		mv, ok := o.Get(name)
		if !ok {
			return nil, layoutError(o.TypeName)
		}
		_, isFloat := mv.(float32)
		_, isInt := mv.(int32)
		if floats && !isFloat || !floats && !isInt {
			return nil, layoutError(o.TypeName)
		}
	}
	return v, nil
}

func fromColor(o *nrbf.Object) (any, error) {
	if len(o.Members) != 4 {
		return nil, layoutError(o.TypeName)
	}
	var c Color
	name, ok := o.Get("name")
	if !ok {
		return nil, layoutError(o.TypeName)
	}
	if name != nil {
		s, ok := name.(string)
		if !ok {
			return nil, layoutError(o.TypeName)
		}
		c.Name = s
	}
	var err1, err2, err3 error
	c.Value, err1 = member[int64](o, "value")
	c.KnownColor, err2 = member[int16](o, "knownColor")
	c.State, err3 = member[int16](o, "state")
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, layoutError(o.TypeName)
	}
	return c, nil
}

// member returns the named member of o as a T.
func member[T any](o *nrbf.Object, name string) (T, error) {
	var zero T
	v, ok := o.Get(name)
	if !ok {
		return zero, layoutError(o.TypeName)
	}
	t, ok := v.(T)
	if !ok {
		return zero, layoutError(o.TypeName)
	}
	return t, nil
}

// exact turns err into a layout error and checks the member count.
func exact(o *nrbf.Object, err error, members int) error {
	if err != nil {
		return err
	}
	if len(o.Members) != members {
		return layoutError(o.TypeName)
	}
	return nil
}

// listItems returns the first _size entries of a list's backing array.
func listItems(o *nrbf.Object) (any, int, error) {
	items, ok := o.Get("_items")
	if !ok {
		return nil, 0, layoutError(o.TypeName)
	}
	size, err := member[int32](o, "_size")
	if err != nil {
		return nil, 0, err
	}
	if size < 0 || int(size) > sliceLen(items) {
		return nil, 0, layoutError(o.TypeName)
	}
	return items, int(size), nil
}

func fromArrayList(o *nrbf.Object) (ArrayList, error) {
	items, size, err := listItems(o)
	if err != nil {
		return nil, err
	}
	values, ok := items.([]any)
	if !ok {
		return nil, layoutError(o.TypeName)
	}
	out := make(ArrayList, size)
	for i, v := range values[:size] {
		if !listElement(v) {
			return nil, fmt.Errorf("%w: ArrayList element %d is a %T", nrbf.ErrUnsupportedType, i, v)
		}
		out[i] = v
	}
	return out, nil
}

func fromHashtable(o *nrbf.Object) (Hashtable, error) {
	for _, name := range []string{"Comparer", "HashCodeProvider"} {
		if v, ok := o.Get(name); !ok || v != nil {
			return nil, fmt.Errorf("%w: Hashtable with a custom %s", nrbf.ErrUnsupportedType, name)
		}
	}
	keys, err := member[[]any](o, "Keys")
	if err != nil {
		return nil, err
	}
	values, err := member[[]any](o, "Values")
	if err != nil {
		return nil, err
	}
	if len(keys) != len(values) {
		return nil, layoutError(o.TypeName)
	}
	h := make(Hashtable, len(keys))
	for i := range keys {
		if keys[i] == nil || !listElement(keys[i]) || !listElement(values[i]) {
			return nil, fmt.Errorf("%w: Hashtable entry %d is not primitive", nrbf.ErrUnsupportedType, i)
		}
		h[i] = DictionaryEntry{Key: keys[i], Value: values[i]}
	}
	return h, nil
}

var listReaders = map[nrbf.PrimitiveType]func(items any, size int) (any, bool){
	nrbf.PrimitiveBoolean:  listOf[bool],
	nrbf.PrimitiveByte:     listOf[uint8],
	nrbf.PrimitiveChar:     listOf[nrbf.Char],
	nrbf.PrimitiveDecimal:  listOf[nrbf.Decimal],
	nrbf.PrimitiveDouble:   listOf[float64],
	nrbf.PrimitiveInt16:    listOf[int16],
	nrbf.PrimitiveInt32:    listOf[int32],
	nrbf.PrimitiveInt64:    listOf[int64],
	nrbf.PrimitiveSByte:    listOf[int8],
	nrbf.PrimitiveSingle:   listOf[float32],
	nrbf.PrimitiveTimeSpan: listOf[nrbf.TimeSpan],
	nrbf.PrimitiveDateTime: listOf[nrbf.DateTime],
	nrbf.PrimitiveUInt16:   listOf[uint16],
	nrbf.PrimitiveUInt32:   listOf[uint32],
	nrbf.PrimitiveUInt64:   listOf[uint64],
}

func listOf[T any](items any, size int) (any, bool) {
	s, ok := items.([]T)
	if !ok {
		return nil, false
	}
	return append(List[T]{}, s[:size]...), true
}

func fromList(o *nrbf.Object, element string) (any, error) {
	items, size, err := listItems(o)
	if err != nil {
		return nil, err
	}
	if element == "System.String" {
		switch s := items.(type) {
		case []string:
			return append(List[string]{}, s[:size]...), nil
		case []any:
			out := make(List[string], size)
			for i, v := range s[:size] {
				str, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("%w: List<string> element %d is null", nrbf.ErrUnsupportedType, i)
				}
				out[i] = str
			}
			return out, nil
		}
		return nil, layoutError(o.TypeName)
	}
	t, ok := nrbf.PrimitiveTypeForName(element)
	if !ok {
		return nil, &nrbf.UnsupportedTypeError{TypeName: o.TypeName}
	}
	read, ok := listReaders[t]
	if !ok {
		return nil, &nrbf.UnsupportedTypeError{TypeName: o.TypeName}
	}
	v, ok := read(items, size)
	if !ok {
		return nil, layoutError(o.TypeName)
	}
	return v, nil
}

func sliceLen(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return -1
	}
	return rv.Len()
}
