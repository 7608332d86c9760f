package nrbf

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
)

// Marshal encodes v as a complete stream.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes v to w as a complete stream. The root receives id 1 and
// every other object the next free id in depth-first order of first
// encounter. Repeated strings, repeated *Object and *Array pointers and
// repeated slices become references; classes with identical metadata after
// the first are written as ClassWithId.
//
// Encode writes as it goes, so on error w may hold a partial stream. Use
// Marshal to get all or nothing.
func Encode(w io.Writer, v any) (err error) {
	e := newEncoder()
	root, err := e.root(v)
	if err != nil {
		return err
	}
	rw, err := NewRecordWriter(w, DefaultHeader)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rw.Close(); err == nil {
			err = cerr
		}
	}()
	for _, lib := range e.libraries {
		if err := rw.DeclareLibrary(lib.ID, lib.Name); err != nil {
			return err
		}
	}
	return rw.WriteRecord(root)
}

type sliceKey struct {
	typ     reflect.Type
	ptr     uintptr
	len     int
	strings bool // []any written as a string array
}

type encoder struct {
	records   *RecordMap
	nextID    int32
	libraries []*BinaryLibrary
	arrays    map[*Array]int32
	slices    map[sliceKey]int32
}

func newEncoder() *encoder {
	return &encoder{
		records: NewRecordMap(),
		nextID:  1,
		arrays:  make(map[*Array]int32),
		slices:  make(map[sliceKey]int32),
	}
}

// bind records r under id. A failure means ids were allocated twice.
func (e *encoder) bind(id int32, r ObjectRecord) error {
	if err := e.records.Bind(id, r); err != nil {
		return fmt.Errorf("encode %s record: %w", r.RecordType(), err)
	}
	return nil
}

func (e *encoder) alloc() int32 {
	id := e.nextID
	e.nextID++
	return id
}

// library returns the id of the named library, allocating one on first use.
func (e *encoder) library(name string) (int32, error) {
	if id, ok := e.records.LibraryID(name); ok {
		return id, nil
	}
	lib := &BinaryLibrary{ID: e.alloc(), Name: name}
	if err := e.bind(lib.ID, lib); err != nil {
		return 0, err
	}
	e.libraries = append(e.libraries, lib)
	return lib.ID, nil
}

func (e *encoder) reference(id int32) *MemberReference {
	target, _ := e.records.Lookup(id)
	return &MemberReference{IDRef: id, target: target}
}

// root encodes the top-level value. Primitives are boxed the way
// BinaryFormatter boxes them.
func (e *encoder) root(v any) (Record, error) {
	if v == nil {
		return nil, invalidArgumentf("cannot encode a nil root")
	}
	if boxed, ok := Box(v); ok {
		v = boxed
	}
	rec, err := e.value(v, ObjectMember, 1)
	if err != nil {
		return nil, err
	}
	r, ok := rec.(ObjectRecord)
	if !ok {
		return nil, invalidArgumentf("root value of type %T is not an object", v)
	}
	return r, nil
}

// value encodes v for a slot declared as mt. Primitive slots yield the raw
// value; every other slot yields a record.
func (e *encoder) value(v any, mt MemberType, depth int) (any, error) {
	if mt.BinaryType == BinaryTypePrimitive {
		if t, ok := PrimitiveTypeOf(v); !ok || t != mt.Primitive {
			return nil, invalidArgumentf("value of type %T is not a %s", v, mt.Primitive)
		}
		return v, nil
	}
	if depth > DefaultMaxDepth {
		return nil, invalidArgumentf("value nested deeper than %d", DefaultMaxDepth)
	}
	if v == nil {
		return &ObjectNull{}, nil
	}
	if t, ok := PrimitiveTypeOf(v); ok {
		return &MemberPrimitiveTyped{Type: t, Value: v}, nil
	}
	if t, ok := PrimitiveArrayTypeOf(v); ok {
		return e.slice(v, false, func(id int32) (ObjectRecord, error) {
			return &ArraySinglePrimitive{ID: id, Type: t, Values: v}, nil
		})
	}
	switch x := v.(type) {
	case string:
		if id, ok := e.records.StringID(x); ok {
			return e.reference(id), nil
		}
		rec := &BinaryObjectString{ID: e.alloc(), Value: x}
		if err := e.bind(rec.ID, rec); err != nil {
			return nil, err
		}
		return rec, nil
	case *Object:
		if x == nil {
			return &ObjectNull{}, nil
		}
		if id, ok := e.records.ObjectID(x); ok {
			return e.reference(id), nil
		}
		return e.object(x, depth)
	case *Array:
		if x == nil {
			return &ObjectNull{}, nil
		}
		if id, ok := e.arrays[x]; ok {
			return e.reference(id), nil
		}
		return e.array(x, depth)
	case []string:
		return e.slice(v, false, func(id int32) (ObjectRecord, error) {
			rec := &ArraySingleString{ID: id}
			if err := e.bind(id, rec); err != nil {
				return nil, err
			}
			values := make([]any, len(x))
			for i, s := range x {
				ev, err := e.value(s, StringMember, depth+1)
				if err != nil {
					return nil, err
				}
				values[i] = ev
			}
			rec.Values = values
			return rec, nil
		})
	case []any:
		elem := ObjectMember
		if mt.BinaryType == BinaryTypeStringArray {
			elem = StringMember
		}
		return e.slice(v, elem == StringMember, func(id int32) (ObjectRecord, error) {
			var rec ObjectRecord
			if elem == StringMember {
				rec = &ArraySingleString{ID: id}
			} else {
				rec = &ArraySingleObject{ID: id}
			}
			if err := e.bind(id, rec); err != nil {
				return nil, err
			}
			values, err := e.elements(x, elem, depth)
			if err != nil {
				return nil, err
			}
			switch rec := rec.(type) {
			case *ArraySingleString:
				rec.Values = values
			case *ArraySingleObject:
				rec.Values = values
			}
			return rec, nil
		})
	}
	return nil, invalidArgumentf("unsupported value of type %T", v)
}

// slice encodes a slice value once per backing array, length and type.
func (e *encoder) slice(v any, strings bool, build func(id int32) (ObjectRecord, error)) (any, error) {
	rv := reflect.ValueOf(v)
	var key sliceKey
	if rv.Len() > 0 {
		key = sliceKey{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len(), strings: strings}
		if id, ok := e.slices[key]; ok {
			return e.reference(id), nil
		}
	}
	id := e.alloc()
	if rv.Len() > 0 {
		e.slices[key] = id
	}
	rec, err := build(id)
	if err != nil {
		return nil, err
	}
	if _, ok := e.records.Lookup(id); !ok {
		if err := e.bind(id, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// elements encodes array elements, collapsing runs of nils into null
// records.
func (e *encoder) elements(values []any, mt MemberType, depth int) ([]any, error) {
	out := make([]any, 0, len(values))
	for i := 0; i < len(values); {
		if values[i] == nil {
			j := i + 1
			for j < len(values) && values[j] == nil {
				j++
			}
			out = append(out, nullRun(j-i))
			i = j
			continue
		}
		if !mt.Matches(values[i]) {
			return nil, invalidArgumentf("element %d of type %T does not match element type %s", i, values[i], mt)
		}
		ev, err := e.value(values[i], mt, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
		i++
	}
	return out, nil
}

// memberType resolves the library of a Class type spec to an id.
func (e *encoder) memberType(s TypeSpec) (MemberType, error) {
	mt := MemberType{BinaryType: s.BinaryType}
	switch s.BinaryType {
	case BinaryTypePrimitive, BinaryTypePrimitiveArray:
		if !s.Primitive.IsValue() {
			return MemberType{}, invalidArgumentf("invalid primitive type %s", s.Primitive)
		}
		mt.Primitive = s.Primitive
	case BinaryTypeSystemClass:
		mt.TypeName = s.TypeName
	case BinaryTypeClass:
		if s.LibraryName == "" {
			return MemberType{}, invalidArgumentf("class type %q has no library", s.TypeName)
		}
		libID, err := e.library(s.LibraryName)
		if err != nil {
			return MemberType{}, err
		}
		mt.Class = ClassTypeInfo{TypeName: s.TypeName, LibraryID: libID}
	case BinaryTypeString, BinaryTypeObject, BinaryTypeObjectArray, BinaryTypeStringArray:
	default:
		return MemberType{}, invalidArgumentf("invalid binary type %d", uint8(s.BinaryType))
	}
	return mt, nil
}

func (e *encoder) object(o *Object, depth int) (Record, error) {
	id := e.alloc()
	e.records.BindObject(o, id)

	var libID int32
	if o.LibraryName != "" {
		var err error
		if libID, err = e.library(o.LibraryName); err != nil {
			return nil, err
		}
	}
	names := make([]string, len(o.Members))
	types := make(MemberTypeInfo, len(o.Members))
	for i, m := range o.Members {
		spec := InferType(m.Value)
		if m.Declared != nil {
			spec = *m.Declared
		}
		mt, err := e.memberType(spec)
		if err != nil {
			return nil, err
		}
		if !mt.Matches(m.Value) {
			return nil, invalidArgumentf("member %q of %s: value of type %T does not match declared type %s",
				m.Name, o.TypeName, m.Value, spec)
		}
		names[i] = m.Name
		types[i] = mt
	}

	info := ClassInfo{ID: id, Name: o.TypeName, MemberNames: names}
	var meta ClassRecord
	if o.LibraryName == "" {
		meta = &SystemClassWithMembersAndTypes{ClassInfo: info, Types: types}
	} else {
		meta = &ClassWithMembersAndTypes{ClassInfo: info, Types: types, LibraryID: libID}
	}
	rec := meta
	if metaID, ok := e.records.ClassID(meta); ok {
		defined, _ := e.records.Lookup(metaID)
		rec = NewClassWithID(id, defined.(ClassRecord), nil)
	}
	if err := e.bind(id, rec); err != nil {
		return nil, err
	}

	values := make([]any, len(o.Members))
	for i, m := range o.Members {
		v, err := e.value(m.Value, types[i], depth+1)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	switch rec := rec.(type) {
	case *ClassWithID:
		rec.MemberValues = values
	case *SystemClassWithMembersAndTypes:
		rec.MemberValues = values
	case *ClassWithMembersAndTypes:
		rec.MemberValues = values
	}
	return rec, nil
}

func (e *encoder) array(a *Array, depth int) (Record, error) {
	rank := len(a.Lengths)
	if rank < 1 || rank > maxArrayRank {
		return nil, invalidArgumentf("invalid array rank %d", rank)
	}
	if !a.Shape.valid() {
		return nil, invalidArgumentf("invalid array type %d", uint8(a.Shape))
	}
	switch a.Shape {
	case BinaryArraySingle, BinaryArrayJagged, BinaryArraySingleOffset, BinaryArrayJaggedOffset:
		if rank != 1 {
			return nil, invalidArgumentf("%s array with rank %d", a.Shape, rank)
		}
	}
	if a.Shape.HasLowerBounds() != (len(a.LowerBounds) > 0) || len(a.LowerBounds) > 0 && len(a.LowerBounds) != rank {
		return nil, invalidArgumentf("%s array with %d lower bounds", a.Shape, len(a.LowerBounds))
	}
	total := 1
	for _, l := range a.Lengths {
		if l < 0 {
			return nil, invalidArgumentf("negative array length %d", l)
		}
		total *= int(l)
	}
	if total != len(a.Values) {
		return nil, invalidArgumentf("array of shape %v holds %d values", a.Lengths, len(a.Values))
	}
	id := e.alloc()
	elem, err := e.memberType(a.ElementType)
	if err != nil {
		return nil, err
	}

	rec := &BinaryArray{
		ID:          id,
		ArrayType:   a.Shape,
		Lengths:     append([]int32(nil), a.Lengths...),
		ElementType: elem,
	}
	if a.Shape.HasLowerBounds() {
		rec.LowerBounds = append([]int32(nil), a.LowerBounds...)
	}
	e.arrays[a] = rec.ID
	if err := e.bind(rec.ID, rec); err != nil {
		return nil, err
	}

	if elem.BinaryType == BinaryTypePrimitive {
		rec.Values = make([]any, len(a.Values))
		for i, v := range a.Values {
			if !elem.Matches(v) {
				return nil, invalidArgumentf("element %d of type %T does not match element type %s", i, v, elem)
			}
			rec.Values[i] = v
		}
		return rec, nil
	}
	rec.Values, err = e.elements(a.Values, elem, depth)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
