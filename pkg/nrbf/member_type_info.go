package nrbf

import (
	"math/bits"
	"reflect"
	"strings"
)

// ClassTypeInfo names a user class and the library that defines it.
type ClassTypeInfo struct {
	TypeName  string
	LibraryID int32
}

// MemberType is one entry of a member type list: a BinaryType plus the
// additional information that kind carries.
type MemberType struct {
	BinaryType BinaryType
	Primitive  PrimitiveType // Primitive and PrimitiveArray
	TypeName   string        // SystemClass
	Class      ClassTypeInfo // Class
}

// Constructors for the common member kinds.
func PrimitiveMember(t PrimitiveType) MemberType {
	return MemberType{BinaryType: BinaryTypePrimitive, Primitive: t}
}

func PrimitiveArrayMember(t PrimitiveType) MemberType {
	return MemberType{BinaryType: BinaryTypePrimitiveArray, Primitive: t}
}

func SystemClassMember(typeName string) MemberType {
	return MemberType{BinaryType: BinaryTypeSystemClass, TypeName: typeName}
}

func ClassMember(typeName string, libraryID int32) MemberType {
	return MemberType{BinaryType: BinaryTypeClass, Class: ClassTypeInfo{TypeName: typeName, LibraryID: libraryID}}
}

var (
	StringMember      = MemberType{BinaryType: BinaryTypeString}
	ObjectMember      = MemberType{BinaryType: BinaryTypeObject}
	ObjectArrayMember = MemberType{BinaryType: BinaryTypeObjectArray}
	StringArrayMember = MemberType{BinaryType: BinaryTypeStringArray}
)

func (m MemberType) String() string {
	switch m.BinaryType {
	case BinaryTypePrimitive:
		return m.Primitive.String()
	case BinaryTypePrimitiveArray:
		return m.Primitive.String() + "[]"
	case BinaryTypeSystemClass:
		return m.TypeName
	case BinaryTypeClass:
		return m.Class.TypeName
	}
	return m.BinaryType.String()
}

// AllowedRecords is a set of record types, one bit per RecordType.
type AllowedRecords uint32

func allow(types ...RecordType) AllowedRecords {
	var a AllowedRecords
	for _, t := range types {
		a |= 1 << t
	}
	return a
}

// Has reports whether t is in the set.
func (a AllowedRecords) Has(t RecordType) bool {
	return t < 32 && a&(1<<t) != 0
}

func (a AllowedRecords) String() string {
	if a == 0 {
		return "none"
	}
	names := make([]string, 0, bits.OnesCount32(uint32(a)))
	for t := RecordType(0); t < 32; t++ {
		if a.Has(t) {
			names = append(names, t.String())
		}
	}
	return strings.Join(names, "|")
}

var (
	allowedClasses = allow(RecordClassWithID, RecordSystemClassWithMembers, RecordClassWithMembers,
		RecordSystemClassWithMembersAndTypes, RecordClassWithMembersAndTypes)
	allowedArrays   = allow(RecordBinaryArray, RecordArraySinglePrimitive, RecordArraySingleObject, RecordArraySingleString)
	allowedObjects  = allowedClasses | allowedArrays | allow(RecordBinaryObjectString)
	allowedNullRef  = allow(RecordObjectNull, RecordMemberReference)
	allowedLibrary  = allow(RecordBinaryLibrary)
	allowedNullRuns = allow(RecordObjectNullMultiple256, RecordObjectNullMultiple)

	// allowedTopLevel is what may follow the header or a completed
	// top-level record, besides MessageEnd.
	allowedTopLevel = allowedObjects | allowedLibrary

	// allowedAfterLibrary is what may follow a BinaryLibrary record.
	allowedAfterLibrary = allowedClasses | allowedArrays | allowedLibrary
)

// Allowed returns the records that may carry a value declared as m. It is
// empty for Primitive members, whose raw bytes follow inline.
func (m MemberType) Allowed() AllowedRecords {
	switch m.BinaryType {
	case BinaryTypeString:
		return allow(RecordBinaryObjectString) | allowedNullRef
	case BinaryTypeObject:
		return allowedObjects | allow(RecordMemberPrimitiveTyped) | allowedNullRef | allowedLibrary
	case BinaryTypeSystemClass:
		return allowedClasses | allow(RecordMemberPrimitiveTyped) | allowedNullRef | allowedLibrary
	case BinaryTypeClass:
		return allowedClasses | allowedNullRef | allowedLibrary
	case BinaryTypeObjectArray:
		return allow(RecordArraySingleObject, RecordBinaryArray) | allowedNullRef | allowedLibrary
	case BinaryTypeStringArray:
		return allow(RecordArraySingleString, RecordBinaryArray) | allowedNullRef | allowedLibrary
	case BinaryTypePrimitiveArray:
		return allow(RecordArraySinglePrimitive, RecordBinaryArray) | allowedNullRef | allowedLibrary
	}
	return 0
}

// ShouldBeRepresentedAsArrayOfClassRecords reports whether an array with
// elements of type m holds class records rather than primitives, strings or
// loosely typed objects.
func (m MemberType) ShouldBeRepresentedAsArrayOfClassRecords() bool {
	switch m.BinaryType {
	case BinaryTypeClass:
		return true
	case BinaryTypeSystemClass:
		_, boxed := PrimitiveTypeForName(m.TypeName)
		return !boxed
	}
	return false
}

var (
	anyType    = reflect.TypeFor[any]()
	stringType = reflect.TypeFor[string]()
	objectType = reflect.TypeFor[*Object]()
	arrayType  = reflect.TypeFor[*Array]()
)

// IsElementType reports whether Go values of type rt can be elements of an
// array whose element type is m.
func (m MemberType) IsElementType(rt reflect.Type) bool {
	switch m.BinaryType {
	case BinaryTypePrimitive:
		return rt == m.Primitive.GoType()
	case BinaryTypeString:
		return rt == stringType
	case BinaryTypeObject:
		return rt == anyType
	case BinaryTypeSystemClass, BinaryTypeClass:
		return rt == objectType
	case BinaryTypeObjectArray:
		return rt == reflect.TypeFor[[]any]() || rt == arrayType
	case BinaryTypeStringArray:
		return rt == reflect.TypeFor[[]string]() || rt == arrayType
	case BinaryTypePrimitiveArray:
		pt := m.Primitive.GoType()
		return pt != nil && rt == reflect.SliceOf(pt) || rt == arrayType
	}
	return false
}

// Matches reports whether v may be written in a slot declared as m. Class
// names are compared but library identity is left to the encoder.
func (m MemberType) Matches(v any) bool {
	if v == nil {
		return m.BinaryType != BinaryTypePrimitive
	}
	switch m.BinaryType {
	case BinaryTypePrimitive:
		t, ok := PrimitiveTypeOf(v)
		return ok && t == m.Primitive
	case BinaryTypeString:
		_, ok := v.(string)
		return ok
	case BinaryTypeObject:
		return true
	case BinaryTypeSystemClass:
		if t, ok := PrimitiveTypeOf(v); ok {
			return t.SystemTypeName() == m.TypeName
		}
		o, ok := v.(*Object)
		return ok && o.TypeName == m.TypeName
	case BinaryTypeClass:
		o, ok := v.(*Object)
		return ok && o.TypeName == m.Class.TypeName
	case BinaryTypeObjectArray:
		switch a := v.(type) {
		case []any:
			return true
		case *Array:
			return a.ElementType.BinaryType != BinaryTypePrimitive && a.ElementType.BinaryType != BinaryTypeString
		}
	case BinaryTypeStringArray:
		switch a := v.(type) {
		case []string:
			return true
		case []any:
			for _, e := range a {
				if _, ok := e.(string); !ok && e != nil {
					return false
				}
			}
			return true
		case *Array:
			return a.ElementType.BinaryType == BinaryTypeString
		}
	case BinaryTypePrimitiveArray:
		if a, ok := v.(*Array); ok {
			return a.ElementType.BinaryType == BinaryTypePrimitive && a.ElementType.Primitive == m.Primitive
		}
		t, ok := PrimitiveArrayTypeOf(v)
		return ok && t == m.Primitive
	}
	return false
}

// MemberTypeInfo is the ordered member type list of a typed class record.
type MemberTypeInfo []MemberType

// NextAllowed returns the records allowed for member i and, for Primitive
// members, the primitive kind whose raw bytes follow instead.
func (mi MemberTypeInfo) NextAllowed(i int) (AllowedRecords, PrimitiveType) {
	m := mi[i]
	if m.BinaryType == BinaryTypePrimitive {
		return 0, m.Primitive
	}
	return m.Allowed(), 0
}

// MarshalBinary encodes the list without its count: every BinaryType tag,
// then the additional information of each entry in order.
func (mi MemberTypeInfo) MarshalBinary() ([]byte, error) {
	var e encbuf
	e.memberTypeInfo(mi)
	if e.err != nil {
		return nil, e.err
	}
	return e.b, nil
}

// UnmarshalMemberTypeInfo decodes count entries from data and returns the
// list with the number of bytes consumed.
func UnmarshalMemberTypeInfo(data []byte, count int) (MemberTypeInfo, int, error) {
	c := newCursor(data, 0)
	mi := c.memberTypeInfo(count)
	if c.err != nil {
		return nil, 0, c.err
	}
	return mi, c.off, nil
}

func (c *cursor) memberTypeInfo(n int) MemberTypeInfo {
	if !c.need(n, 1) {
		return nil
	}
	mi := make(MemberTypeInfo, n)
	for i := range mi {
		start := c.off
		mi[i].BinaryType = BinaryType(c.uint8())
		if c.err == nil && !mi[i].BinaryType.valid() {
			c.failAt(start, "invalid binary type %d", uint8(mi[i].BinaryType))
		}
	}
	for i := range mi {
		if c.err != nil {
			return nil
		}
		switch mi[i].BinaryType {
		case BinaryTypePrimitive, BinaryTypePrimitiveArray:
			start := c.off
			mi[i].Primitive = PrimitiveType(c.uint8())
			if c.err == nil && !mi[i].Primitive.IsValue() {
				c.failAt(start, "invalid primitive type %d in member type info", uint8(mi[i].Primitive))
			}
		case BinaryTypeSystemClass:
			mi[i].TypeName = c.string()
		case BinaryTypeClass:
			mi[i].Class.TypeName = c.string()
			mi[i].Class.LibraryID = c.int32()
		}
	}
	if c.err != nil {
		return nil
	}
	return mi
}

func (e *encbuf) memberTypeInfo(mi MemberTypeInfo) {
	for _, m := range mi {
		if !m.BinaryType.valid() {
			e.fail(invalidArgumentf("invalid binary type %d", uint8(m.BinaryType)))
			return
		}
		e.uint8(uint8(m.BinaryType))
	}
	for _, m := range mi {
		switch m.BinaryType {
		case BinaryTypePrimitive, BinaryTypePrimitiveArray:
			if !m.Primitive.IsValue() {
				e.fail(invalidArgumentf("invalid primitive type %s in member type info", m.Primitive))
				return
			}
			e.uint8(uint8(m.Primitive))
		case BinaryTypeSystemClass:
			e.string(m.TypeName)
		case BinaryTypeClass:
			e.string(m.Class.TypeName)
			e.int32(m.Class.LibraryID)
		}
	}
}

// memberType reads a single BinaryType and its additional information, as
// BinaryArray records carry for their element type.
func (c *cursor) memberType() MemberType {
	mi := c.memberTypeInfo(1)
	if c.err != nil {
		return MemberType{}
	}
	return mi[0]
}
