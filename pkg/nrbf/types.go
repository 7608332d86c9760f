package nrbf

import "fmt"

// RecordType is the tag byte that starts every record on the wire.
type RecordType uint8

const (
	RecordSerializedStreamHeader         RecordType = 0
	RecordClassWithID                    RecordType = 1
	RecordSystemClassWithMembers         RecordType = 2
	RecordClassWithMembers               RecordType = 3
	RecordSystemClassWithMembersAndTypes RecordType = 4
	RecordClassWithMembersAndTypes       RecordType = 5
	RecordBinaryObjectString             RecordType = 6
	RecordBinaryArray                    RecordType = 7
	RecordMemberPrimitiveTyped           RecordType = 8
	RecordMemberReference                RecordType = 9
	RecordObjectNull                     RecordType = 10
	RecordMessageEnd                     RecordType = 11
	RecordBinaryLibrary                  RecordType = 12
	RecordObjectNullMultiple256          RecordType = 13
	RecordObjectNullMultiple             RecordType = 14
	RecordArraySinglePrimitive           RecordType = 15
	RecordArraySingleObject              RecordType = 16
	RecordArraySingleString              RecordType = 17
	RecordMethodCall                     RecordType = 21
	RecordMethodReturn                   RecordType = 22
)

var recordTypeNames = map[RecordType]string{
	RecordSerializedStreamHeader:         "SerializedStreamHeader",
	RecordClassWithID:                    "ClassWithId",
	RecordSystemClassWithMembers:         "SystemClassWithMembers",
	RecordClassWithMembers:               "ClassWithMembers",
	RecordSystemClassWithMembersAndTypes: "SystemClassWithMembersAndTypes",
	RecordClassWithMembersAndTypes:       "ClassWithMembersAndTypes",
	RecordBinaryObjectString:             "BinaryObjectString",
	RecordBinaryArray:                    "BinaryArray",
	RecordMemberPrimitiveTyped:           "MemberPrimitiveTyped",
	RecordMemberReference:                "MemberReference",
	RecordObjectNull:                     "ObjectNull",
	RecordMessageEnd:                     "MessageEnd",
	RecordBinaryLibrary:                  "BinaryLibrary",
	RecordObjectNullMultiple256:          "ObjectNullMultiple256",
	RecordObjectNullMultiple:             "ObjectNullMultiple",
	RecordArraySinglePrimitive:           "ArraySinglePrimitive",
	RecordArraySingleObject:              "ArraySingleObject",
	RecordArraySingleString:              "ArraySingleString",
	RecordMethodCall:                     "MethodCall",
	RecordMethodReturn:                   "MethodReturn",
}

func (t RecordType) String() string {
	if name, ok := recordTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RecordType(%d)", uint8(t))
}

// BinaryType describes how a member or array element is declared and decides
// which additional type information follows it in a member type list.
type BinaryType uint8

const (
	BinaryTypePrimitive      BinaryType = 0
	BinaryTypeString         BinaryType = 1
	BinaryTypeObject         BinaryType = 2
	BinaryTypeSystemClass    BinaryType = 3
	BinaryTypeClass          BinaryType = 4
	BinaryTypeObjectArray    BinaryType = 5
	BinaryTypeStringArray    BinaryType = 6
	BinaryTypePrimitiveArray BinaryType = 7
)

var binaryTypeNames = [...]string{
	"Primitive", "String", "Object", "SystemClass", "Class", "ObjectArray", "StringArray", "PrimitiveArray",
}

func (t BinaryType) valid() bool { return int(t) < len(binaryTypeNames) }

func (t BinaryType) String() string {
	if t.valid() {
		return binaryTypeNames[t]
	}
	return fmt.Sprintf("BinaryType(%d)", uint8(t))
}

// PrimitiveType identifies a primitive value kind.
type PrimitiveType uint8

const (
	PrimitiveBoolean  PrimitiveType = 1
	PrimitiveByte     PrimitiveType = 2
	PrimitiveChar     PrimitiveType = 3
	PrimitiveDecimal  PrimitiveType = 5 // 4 is unused by the format
	PrimitiveDouble   PrimitiveType = 6
	PrimitiveInt16    PrimitiveType = 7
	PrimitiveInt32    PrimitiveType = 8
	PrimitiveInt64    PrimitiveType = 9
	PrimitiveSByte    PrimitiveType = 10
	PrimitiveSingle   PrimitiveType = 11
	PrimitiveTimeSpan PrimitiveType = 12
	PrimitiveDateTime PrimitiveType = 13
	PrimitiveUInt16   PrimitiveType = 14
	PrimitiveUInt32   PrimitiveType = 15
	PrimitiveUInt64   PrimitiveType = 16
	PrimitiveNull     PrimitiveType = 17
	PrimitiveString   PrimitiveType = 18
)

type primitiveInfo struct {
	name string // CLR type name without the System. prefix
	size int    // fixed wire width, 0 when variable
}

var primitiveInfos = map[PrimitiveType]primitiveInfo{
	PrimitiveBoolean:  {"Boolean", 1},
	PrimitiveByte:     {"Byte", 1},
	PrimitiveChar:     {"Char", 0},
	PrimitiveDecimal:  {"Decimal", 0},
	PrimitiveDouble:   {"Double", 8},
	PrimitiveInt16:    {"Int16", 2},
	PrimitiveInt32:    {"Int32", 4},
	PrimitiveInt64:    {"Int64", 8},
	PrimitiveSByte:    {"SByte", 1},
	PrimitiveSingle:   {"Single", 4},
	PrimitiveTimeSpan: {"TimeSpan", 8},
	PrimitiveDateTime: {"DateTime", 8},
	PrimitiveUInt16:   {"UInt16", 2},
	PrimitiveUInt32:   {"UInt32", 4},
	PrimitiveUInt64:   {"UInt64", 8},
	PrimitiveNull:     {"Null", 0},
	PrimitiveString:   {"String", 0},
}

func (t PrimitiveType) String() string {
	if info, ok := primitiveInfos[t]; ok {
		return info.name
	}
	return fmt.Sprintf("PrimitiveType(%d)", uint8(t))
}

// IsValue reports whether t names a primitive that carries a value, which
// excludes Null and String.
func (t PrimitiveType) IsValue() bool {
	_, ok := primitiveInfos[t]
	return ok && t != PrimitiveNull && t != PrimitiveString
}

// Size returns the fixed wire width of t in bytes, or 0 for variable-width
// kinds (Char, Decimal, String) and invalid tags.
func (t PrimitiveType) Size() int {
	return primitiveInfos[t].size
}

// SystemTypeName returns the CLR type name BinaryFormatter uses for boxed
// values of t, such as "System.Int32".
func (t PrimitiveType) SystemTypeName() string {
	if info, ok := primitiveInfos[t]; ok && t != PrimitiveNull {
		return "System." + info.name
	}
	return ""
}

// PrimitiveTypeForName maps a CLR type name back to its primitive type.
func PrimitiveTypeForName(name string) (PrimitiveType, bool) {
	for t, info := range primitiveInfos {
		if t != PrimitiveNull && "System."+info.name == name {
			return t, true
		}
	}
	return 0, false
}

// BinaryArrayType is the shape of a BinaryArray record.
type BinaryArrayType uint8

const (
	BinaryArraySingle            BinaryArrayType = 0
	BinaryArrayJagged            BinaryArrayType = 1
	BinaryArrayRectangular       BinaryArrayType = 2
	BinaryArraySingleOffset      BinaryArrayType = 3
	BinaryArrayJaggedOffset      BinaryArrayType = 4
	BinaryArrayRectangularOffset BinaryArrayType = 5
)

var arrayTypeNames = [...]string{
	"Single", "Jagged", "Rectangular", "SingleOffset", "JaggedOffset", "RectangularOffset",
}

func (t BinaryArrayType) valid() bool { return int(t) < len(arrayTypeNames) }

// HasLowerBounds reports whether records of this shape carry lower bounds.
func (t BinaryArrayType) HasLowerBounds() bool {
	return t == BinaryArraySingleOffset || t == BinaryArrayJaggedOffset || t == BinaryArrayRectangularOffset
}

func (t BinaryArrayType) String() string {
	if t.valid() {
		return arrayTypeNames[t]
	}
	return fmt.Sprintf("BinaryArrayType(%d)", uint8(t))
}
