package interchange

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/odvcencio/nrbf/pkg/nrbf"
)

// maxDepth bounds nesting of Go values on both sides.
const maxDepth = nrbf.DefaultMaxDepth

var (
	classNamerType = reflect.TypeFor[ClassNamer]()
	anyType        = reflect.TypeFor[any]()
)

// kindTypes maps the kinds of named scalar types, such as a float64 based
// unit type, to the Go type that carries them. int and uint have no fixed
// width and are missing.
var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.Bool:    reflect.TypeFor[bool](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
	reflect.String:  reflect.TypeFor[string](),
}

// field is a struct field bound to a member name.
type field struct {
	name  string
	index []int
}

var fieldCache sync.Map // reflect.Type -> []field

// fieldsOf lists the members of struct type rt. Fields tagged `nrbf:"-"`
// and unexported fields are skipped; untagged fields use their Go name.
func fieldsOf(rt reflect.Type) []field {
	if cached, ok := fieldCache.Load(rt); ok {
		return cached.([]field)
	}
	var fields []field
	for _, sf := range reflect.VisibleFields(rt) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("nrbf"); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		fields = append(fields, field{name: name, index: sf.Index})
	}
	cached, _ := fieldCache.LoadOrStore(rt, fields)
	return cached.([]field)
}

// writeState converts Go values into the value tree package nrbf encodes.
// Struct pointers seen before map to the same *nrbf.Object so shared and
// cyclic pointers survive.
type writeState struct {
	objects map[uintptr]*nrbf.Object
}

func newWriteState() *writeState {
	return &writeState{objects: make(map[uintptr]*nrbf.Object)}
}

func (w *writeState) value(rv reflect.Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, unsupportedValuef("value nested deeper than %d", maxDepth)
	}
	if rv.IsValid() && rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, nil
	}
	v := rv.Interface()
	if o, ok, err := wellKnownObject(v); ok || err != nil {
		return o, err
	}
	if namer, ok := v.(ClassNamer); ok {
		return w.object(rv, namer, depth)
	}
	switch v.(type) {
	case *nrbf.Object, *nrbf.Array, string, []string:
		return v, nil
	}
	if _, ok := nrbf.PrimitiveTypeOf(v); ok {
		return v, nil
	}
	if _, ok := nrbf.PrimitiveArrayTypeOf(v); ok {
		return v, nil
	}
	if t, ok := kindTypes[rv.Kind()]; ok {
		return rv.Convert(t).Interface(), nil
	}
	if rv.Kind() == reflect.Slice {
		if rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			ev, err := w.value(rv.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}
	return nil, unsupportedValuef("value of type %T has no payload form", v)
}

func (w *writeState) object(rv reflect.Value, namer ClassNamer, depth int) (*nrbf.Object, error) {
	var key uintptr
	if rv.Kind() == reflect.Pointer {
		key = rv.Pointer()
		if o, ok := w.objects[key]; ok {
			return o, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, unsupportedValuef("class value of type %s is not a struct", rv.Type())
	}
	n := namer.NRBFClass()
	o := &nrbf.Object{TypeName: n.FullName, LibraryName: n.AssemblyName}
	if key != 0 {
		w.objects[key] = o
	}
	for _, f := range fieldsOf(rv.Type()) {
		fv := rv.FieldByIndex(f.index)
		mv, err := w.value(fv, depth+1)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", n.FullName, f.name, err)
		}
		m := nrbf.Member{Name: f.name, Value: mv}
		if mv == nil {
			m.Declared = declaredFor(fv.Type())
		}
		o.Members = append(o.Members, m)
	}
	return o, nil
}

// declaredFor picks the member type of a nil field from its Go type so the
// class metadata is the same whether or not the field is set.
func declaredFor(rt reflect.Type) *nrbf.TypeSpec {
	switch {
	case rt == reflect.TypeFor[[]string]():
		return spec(nrbf.BinaryTypeStringArray)
	case rt == reflect.TypeFor[[]any]() || rt == reflect.TypeFor[ArrayList]():
		return spec(nrbf.BinaryTypeObjectArray)
	case rt.Kind() == reflect.Slice:
		if t, ok := nrbf.PrimitiveArrayTypeOf(reflect.Zero(rt).Interface()); ok {
			return &nrbf.TypeSpec{BinaryType: nrbf.BinaryTypePrimitiveArray, Primitive: t}
		}
		return spec(nrbf.BinaryTypeObjectArray)
	case rt.Kind() == reflect.Pointer && rt.Implements(classNamerType):
		n := reflect.New(rt.Elem()).Interface().(ClassNamer).NRBFClass()
		if n.AssemblyName == "" {
			return systemClass(n.FullName)
		}
		return &nrbf.TypeSpec{BinaryType: nrbf.BinaryTypeClass, TypeName: n.FullName, LibraryName: n.AssemblyName}
	}
	return nil
}

// readState converts a materialized value tree into Go values.
type readState struct {
	resolver TypeResolver
	bound    map[*nrbf.Object]reflect.Value
}

func newReadState(resolver TypeResolver) *readState {
	return &readState{resolver: resolver, bound: make(map[*nrbf.Object]reflect.Value)}
}

// root converts the root value. When want is a struct or pointer to struct
// a root class is bound to it directly.
func (r *readState) root(v any, want reflect.Type) (any, error) {
	if o, ok := v.(*nrbf.Object); ok && want != nil && isStructType(want) {
		if _, known, err := fromWellKnown(o); known || err != nil {
			return r.value(v, 0)
		}
		rv, err := r.bind(o, want, 0)
		if err != nil {
			return nil, err
		}
		return rv.Interface(), nil
	}
	return r.value(v, 0)
}

func isStructType(rt reflect.Type) bool {
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.Kind() == reflect.Struct
}

func (r *readState) value(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: value nested deeper than %d", nrbf.ErrUnsupportedType, maxDepth)
	}
	switch x := v.(type) {
	case *nrbf.Object:
		if out, known, err := fromWellKnown(x); known || err != nil {
			return out, err
		}
		return r.class(x, depth)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ev, err := r.value(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	}
	return v, nil
}

// class binds a class the well-known set does not cover through the
// resolver.
func (r *readState) class(o *nrbf.Object, depth int) (any, error) {
	if rv, ok := r.bound[o]; ok {
		return rv.Interface(), nil
	}
	n := TypeName{FullName: o.TypeName, AssemblyName: o.LibraryName}
	if r.resolver == nil {
		return nil, &nrbf.UnsupportedTypeError{TypeName: o.TypeName, LibraryName: o.LibraryName}
	}
	rt, ok := r.resolver(n)
	if !ok || rt == nil || !isStructType(rt) {
		return nil, &nrbf.UnsupportedTypeError{TypeName: o.TypeName, LibraryName: o.LibraryName}
	}
	rv, err := r.bind(o, rt, depth)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// bind fills a new value of struct type rt, or of the struct rt points to,
// from the members of o. Every member must have a field.
func (r *readState) bind(o *nrbf.Object, rt reflect.Type, depth int) (reflect.Value, error) {
	if depth > maxDepth {
		return reflect.Value{}, fmt.Errorf("%w: value nested deeper than %d", nrbf.ErrUnsupportedType, maxDepth)
	}
	if rv, ok := r.bound[o]; ok && rv.Type() == rt {
		return rv, nil
	}
	st := rt
	if rt.Kind() == reflect.Pointer {
		st = rt.Elem()
	}
	ptr := reflect.New(st)
	if rt.Kind() == reflect.Pointer {
		r.bound[o] = ptr
	}
	byName := make(map[string][]int)
	for _, f := range fieldsOf(st) {
		byName[f.name] = f.index
	}
	for _, m := range o.Members {
		index, ok := byName[m.Name]
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: %s has no field for member %q", nrbf.ErrUnsupportedType, st, m.Name)
		}
		if err := r.assign(ptr.Elem().FieldByIndex(index), m.Value, depth+1); err != nil {
			return reflect.Value{}, fmt.Errorf("%s.%s: %w", o.TypeName, m.Name, err)
		}
	}
	if rt.Kind() == reflect.Pointer {
		return ptr, nil
	}
	return ptr.Elem(), nil
}

func (r *readState) assign(dst reflect.Value, v any, depth int) error {
	if v == nil {
		return nil
	}
	if elems, ok := v.([]any); ok && dst.Kind() == reflect.Slice && dst.Type().Elem() != anyType {
		out := reflect.MakeSlice(dst.Type(), len(elems), len(elems))
		for i, e := range elems {
			if err := r.assign(out.Index(i), e, depth+1); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		dst.Set(out)
		return nil
	}
	if o, ok := v.(*nrbf.Object); ok && isStructType(dst.Type()) {
		if _, known, err := fromWellKnown(o); !known && err == nil {
			rv, err := r.bind(o, dst.Type(), depth)
			if err != nil {
				return err
			}
			dst.Set(rv)
			return nil
		}
	}
	gv, err := r.value(v, depth)
	if err != nil {
		return err
	}
	src := reflect.ValueOf(gv)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.Kind() == dst.Kind() && src.Type().ConvertibleTo(dst.Type()) && src.Kind() != reflect.Struct:
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("%w: cannot store %T in a field of type %s", nrbf.ErrUnsupportedType, gv, dst.Type())
	}
	return nil
}
