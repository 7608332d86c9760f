package nrbf

import (
	"fmt"
	"reflect"
)

// Object is a class instance in a value tree.
type Object struct {
	TypeName string
	// LibraryName is the assembly that defines the class. It is empty for
	// classes of the core library, which are written as system classes.
	LibraryName string
	Members     []Member
}

// Member is one named member value of an Object.
type Member struct {
	Name  string
	Value any
	// Declared overrides the member type inferred from Value. Decoding sets
	// it only where the stream declared something other than InferType
	// would, so a decoded value re-encodes with the same member types.
	Declared *TypeSpec
}

// Get returns the value of the first member named name.
func (o *Object) Get(name string) (any, bool) {
	for _, m := range o.Members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return nil, false
}

func (o *Object) String() string {
	if o.LibraryName == "" {
		return o.TypeName
	}
	return o.TypeName + ", " + o.LibraryName
}

// TypeSpec is a member or element type with its library named rather than
// numbered.
type TypeSpec struct {
	BinaryType  BinaryType
	Primitive   PrimitiveType // Primitive and PrimitiveArray
	TypeName    string        // SystemClass and Class
	LibraryName string        // Class
}

func (s TypeSpec) String() string {
	switch s.BinaryType {
	case BinaryTypePrimitive:
		return s.Primitive.String()
	case BinaryTypePrimitiveArray:
		return s.Primitive.String() + "[]"
	case BinaryTypeSystemClass, BinaryTypeClass:
		return s.TypeName
	}
	return s.BinaryType.String()
}

// Array is a BinaryArray that has no plain Go slice form: multi-dimensional,
// jagged or non-zero-based arrays, and arrays of class or array elements.
// Values holds the elements in row-major order.
type Array struct {
	Shape       BinaryArrayType
	Lengths     []int32
	LowerBounds []int32
	ElementType TypeSpec
	Values      []any
}

// InferType returns the member type the encoder declares for v when the
// member carries no Declared type.
func InferType(v any) TypeSpec {
	if t, ok := PrimitiveTypeOf(v); ok {
		return TypeSpec{BinaryType: BinaryTypePrimitive, Primitive: t}
	}
	if t, ok := PrimitiveArrayTypeOf(v); ok {
		return TypeSpec{BinaryType: BinaryTypePrimitiveArray, Primitive: t}
	}
	switch v := v.(type) {
	case string:
		return TypeSpec{BinaryType: BinaryTypeString}
	case []string:
		return TypeSpec{BinaryType: BinaryTypeStringArray}
	case []any:
		return TypeSpec{BinaryType: BinaryTypeObjectArray}
	case *Object:
		if v.LibraryName == "" {
			return TypeSpec{BinaryType: BinaryTypeSystemClass, TypeName: v.TypeName}
		}
		return TypeSpec{BinaryType: BinaryTypeClass, TypeName: v.TypeName, LibraryName: v.LibraryName}
	case *Array:
		switch v.ElementType.BinaryType {
		case BinaryTypePrimitive:
			return TypeSpec{BinaryType: BinaryTypePrimitiveArray, Primitive: v.ElementType.Primitive}
		case BinaryTypeString:
			return TypeSpec{BinaryType: BinaryTypeStringArray}
		case BinaryTypeObject:
			return TypeSpec{BinaryType: BinaryTypeObjectArray}
		}
	}
	return TypeSpec{BinaryType: BinaryTypeObject}
}

// Box returns the system class BinaryFormatter writes for a boxed primitive.
func Box(v any) (*Object, bool) {
	t, ok := PrimitiveTypeOf(v)
	if !ok {
		return nil, false
	}
	o := &Object{TypeName: t.SystemTypeName()}
	switch x := v.(type) {
	case DateTime:
		o.Members = []Member{{Name: "ticks", Value: x.Ticks()}, {Name: "dateData", Value: x.Bits()}}
	case TimeSpan:
		o.Members = []Member{{Name: "_ticks", Value: int64(x)}}
	case Decimal:
		flags, hi, lo, mid := x.Bits()
		o.Members = []Member{
			{Name: "flags", Value: int32(flags)},
			{Name: "hi", Value: int32(hi)},
			{Name: "lo", Value: int32(lo)},
			{Name: "mid", Value: int32(mid)},
		}
	default:
		o.Members = []Member{{Name: "m_value", Value: v}}
	}
	return o, true
}

// Unbox reverses Box. It only accepts the exact member layout Box produces.
func Unbox(o *Object) (any, bool) {
	if o == nil || o.LibraryName != "" {
		return nil, false
	}
	t, ok := PrimitiveTypeForName(o.TypeName)
	if !ok || t == PrimitiveString {
		return nil, false
	}
	switch t {
	case PrimitiveDateTime:
		if !hasMembers(o, "ticks", "dateData") {
			return nil, false
		}
		_, ok := o.Members[0].Value.(int64)
		bits, ok2 := o.Members[1].Value.(uint64)
		if !ok || !ok2 {
			return nil, false
		}
		d, err := DateTimeFromBits(bits)
		return d, err == nil
	case PrimitiveTimeSpan:
		if !hasMembers(o, "_ticks") {
			return nil, false
		}
		ticks, ok := o.Members[0].Value.(int64)
		return TimeSpan(ticks), ok
	case PrimitiveDecimal:
		if !hasMembers(o, "flags", "hi", "lo", "mid") {
			return nil, false
		}
		var f [4]uint32
		for i, m := range o.Members {
			x, ok := m.Value.(int32)
			if !ok {
				return nil, false
			}
			f[i] = uint32(x)
		}
		d, err := DecimalFromBits(f[0], f[1], f[2], f[3])
		return d, err == nil
	}
	if !hasMembers(o, "m_value") {
		return nil, false
	}
	if vt, ok := PrimitiveTypeOf(o.Members[0].Value); !ok || vt != t {
		return nil, false
	}
	return o.Members[0].Value, true
}

// hasMembers reports whether o has exactly the named members, in order, with
// no declared type overrides.
func hasMembers(o *Object, names ...string) bool {
	if len(o.Members) != len(names) {
		return false
	}
	for i, name := range names {
		if o.Members[i].Name != name || o.Members[i].Declared != nil {
			return false
		}
	}
	return true
}

// maxValueDepth bounds recursion through references when materializing.
const maxValueDepth = 100_000

// materializer turns a decoded record graph into a value tree. Each object
// record becomes one Go value, so shared references stay shared and cycles
// become cyclic values.
type materializer struct {
	records *RecordMap
	done    map[int32]any
	depth   int
}

func newMaterializer(records *RecordMap) *materializer {
	return &materializer{records: records, done: make(map[int32]any)}
}

// value materializes a member or element slot: a raw primitive or a record.
func (m *materializer) value(v any) (any, error) {
	switch r := v.(type) {
	case *ObjectNull:
		return nil, nil
	case *MemberPrimitiveTyped:
		return r.Value, nil
	case *MemberReference:
		if r.target == nil {
			return nil, fmt.Errorf("%w: unresolved reference %d", ErrFormat, r.IDRef)
		}
		return m.object(r.target)
	case ObjectRecord:
		return m.object(r)
	case Record:
		return nil, fmt.Errorf("%w: unexpected %s record in a value position", ErrFormat, r.RecordType())
	}
	return v, nil
}

func (m *materializer) object(r ObjectRecord) (any, error) {
	if v, ok := m.done[r.ObjectID()]; ok {
		return v, nil
	}
	m.depth++
	defer func() { m.depth-- }()
	if m.depth > maxValueDepth {
		return nil, fmt.Errorf("%w: object graph deeper than %d", ErrFormat, maxValueDepth)
	}

	switch r := r.(type) {
	case *BinaryObjectString:
		m.done[r.ID] = r.Value
		return r.Value, nil
	case ClassRecord:
		return m.class(r)
	case *ArraySinglePrimitive:
		rv := reflect.ValueOf(r.Values)
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		v := out.Interface()
		m.done[r.ID] = v
		return v, nil
	case *ArraySingleString:
		return m.stringArray(r.ID, r.Values, r.Len())
	case *ArraySingleObject:
		out := make([]any, r.Len())
		m.done[r.ID] = out
		return out, m.fill(out, r.Values)
	case *BinaryArray:
		return m.binaryArray(r)
	}
	return nil, fmt.Errorf("%w: %s record %d is not a value", ErrFormat, r.RecordType(), r.ObjectID())
}

func (m *materializer) class(r ClassRecord) (any, error) {
	info := r.Info()
	o := &Object{TypeName: info.Name, LibraryName: m.libraryName(r.Library())}
	m.done[r.ObjectID()] = o
	types := r.MemberTypes()
	values := r.Values()
	o.Members = make([]Member, len(values))
	for i, raw := range values {
		v, err := m.value(raw)
		if err != nil {
			return nil, err
		}
		o.Members[i] = Member{Name: info.MemberNames[i], Value: v}
		if declared := m.typeSpec(types[i]); declared != InferType(v) {
			o.Members[i].Declared = &declared
		}
	}
	if isSystemClass(r) {
		if v, ok := Unbox(o); ok {
			m.done[r.ObjectID()] = v
			return v, nil
		}
	}
	return o, nil
}

// fill materializes element records into out, expanding null runs.
func (m *materializer) fill(out []any, records []any) error {
	i := 0
	for _, raw := range records {
		if n := nullCount(raw); n > 0 {
			i += n
			continue
		}
		v, err := m.value(raw)
		if err != nil {
			return err
		}
		out[i] = v
		i++
	}
	return nil
}

// stringArray returns []string, or []any when some element is null.
func (m *materializer) stringArray(id int32, records []any, n int) (any, error) {
	out := make([]any, n)
	if err := m.fill(out, records); err != nil {
		return nil, err
	}
	strs := make([]string, n)
	for i, v := range out {
		s, ok := v.(string)
		if !ok {
			m.done[id] = out
			return out, nil
		}
		strs[i] = s
	}
	m.done[id] = strs
	return strs, nil
}

func (m *materializer) binaryArray(r *BinaryArray) (any, error) {
	elem := r.ElementType
	if r.ArrayType == BinaryArraySingle {
		switch elem.BinaryType {
		case BinaryTypePrimitive:
			s := reflect.MakeSlice(reflect.SliceOf(elem.Primitive.GoType()), len(r.Values), len(r.Values))
			for i, v := range r.Values {
				s.Index(i).Set(reflect.ValueOf(v))
			}
			m.done[r.ID] = s.Interface()
			return s.Interface(), nil
		case BinaryTypeString:
			return m.stringArray(r.ID, r.Values, r.Len())
		case BinaryTypeObject:
			out := make([]any, r.Len())
			m.done[r.ID] = out
			return out, m.fill(out, r.Values)
		}
	}
	a := &Array{
		Shape:       r.ArrayType,
		Lengths:     append([]int32(nil), r.Lengths...),
		LowerBounds: append([]int32(nil), r.LowerBounds...),
		ElementType: m.typeSpec(elem),
		Values:      make([]any, r.Len()),
	}
	if len(a.LowerBounds) == 0 {
		a.LowerBounds = nil
	}
	m.done[r.ID] = a
	if elem.BinaryType == BinaryTypePrimitive {
		copy(a.Values, r.Values)
		return a, nil
	}
	return a, m.fill(a.Values, r.Values)
}

func (m *materializer) libraryName(id int32) string {
	if id == 0 {
		return ""
	}
	if lib, ok := m.records.records[id].(*BinaryLibrary); ok {
		return lib.Name
	}
	return ""
}

func (m *materializer) typeSpec(mt MemberType) TypeSpec {
	s := TypeSpec{BinaryType: mt.BinaryType}
	switch mt.BinaryType {
	case BinaryTypePrimitive, BinaryTypePrimitiveArray:
		s.Primitive = mt.Primitive
	case BinaryTypeSystemClass:
		s.TypeName = mt.TypeName
	case BinaryTypeClass:
		s.TypeName = mt.Class.TypeName
		s.LibraryName = m.libraryName(mt.Class.LibraryID)
	}
	return s
}
