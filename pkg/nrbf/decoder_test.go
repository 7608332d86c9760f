package nrbf

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// streamBuilder assembles hand-written streams, including malformed ones the
// encoder would never produce.
type streamBuilder struct{ encbuf }

func newStream(root int32) *streamBuilder {
	b := &streamBuilder{}
	b.tag(RecordSerializedStreamHeader)
	b.int32(root)
	b.int32(-1)
	b.int32(1)
	b.int32(0)
	return b
}

func (b *streamBuilder) end() []byte {
	b.tag(RecordMessageEnd)
	return b.b
}

func (b *streamBuilder) str(id int32, s string) {
	b.tag(RecordBinaryObjectString)
	b.int32(id)
	b.string(s)
}

func (b *streamBuilder) ref(id int32) {
	b.tag(RecordMemberReference)
	b.int32(id)
}

func (b *streamBuilder) library(id int32, name string) {
	b.tag(RecordBinaryLibrary)
	b.int32(id)
	b.string(name)
}

func (b *streamBuilder) objectArray(id, n int32) {
	b.tag(RecordArraySingleObject)
	b.int32(id)
	b.int32(n)
}

func (b *streamBuilder) systemClass(id int32, name string, types MemberTypeInfo, names ...string) {
	b.tag(RecordSystemClassWithMembersAndTypes)
	b.classInfo(&ClassInfo{ID: id, Name: name, MemberNames: names})
	b.memberTypeInfo(types)
}

func (b *streamBuilder) class(id int32, name string, lib int32, types MemberTypeInfo, names ...string) {
	b.tag(RecordClassWithMembersAndTypes)
	b.classInfo(&ClassInfo{ID: id, Name: name, MemberNames: names})
	b.memberTypeInfo(types)
	b.int32(lib)
}

func expectFormatError(t *testing.T, data []byte, opts *DecodeOptions, msg string) *FormatError {
	t.Helper()
	doc, err := Decode(data, opts)
	if err == nil {
		t.Fatalf("Decode succeeded with root %v, want error containing %q", doc.Root, msg)
	}
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %T %v, want *FormatError", err, err)
	}
	if !IsFormat(err) {
		t.Fatalf("IsFormat(%v) = false", err)
	}
	if !strings.Contains(err.Error(), msg) {
		t.Fatalf("err = %v, want it to contain %q", err, msg)
	}
	return fe
}

func TestDecodeUnknownReference(t *testing.T) {
	b := newStream(1)
	b.objectArray(1, 1)
	b.ref(99)
	fe := expectFormatError(t, b.end(), nil, "unknown reference 99")
	if fe.Offset != 26 {
		t.Fatalf("Offset = %d, want 26", fe.Offset)
	}
}

func TestDecodeMissingMessageEnd(t *testing.T) {
	data, err := Marshal("hello")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	_, err = Decode(data[:len(data)-1], nil)
	if !IsFormat(err) {
		t.Fatalf("err = %v, want format error", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecodeEveryTruncation(t *testing.T) {
	d, _ := NewDateTime(5, KindLocal)
	dec, _ := ParseDecimal("-3.25")
	shared := &Object{TypeName: "Lib.Leaf", LibraryName: "Lib", Members: []Member{{Name: "v", Value: 'x'}}}
	root := &Object{TypeName: "Lib.Root", LibraryName: "Lib", Members: []Member{
		{Name: "when", Value: d},
		{Name: "amount", Value: dec},
		{Name: "names", Value: []string{"a", "b", "a"}},
		{Name: "items", Value: []any{shared, nil, nil, shared, int16(3), Char('é')}},
		{Name: "grid", Value: &Array{
			Shape:       BinaryArrayRectangular,
			Lengths:     []int32{2, 2},
			ElementType: TypeSpec{BinaryType: BinaryTypeString},
			Values:      []any{"p", nil, "q", "p"},
		}},
	}}
	data, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := Decode(data, nil); err != nil {
		t.Fatalf("Decode full stream: %v", err)
	}
	for i := 0; i < len(data); i++ {
		_, err := Decode(data[:i], nil)
		if !IsFormat(err) {
			t.Fatalf("Decode(data[:%d]) err = %v, want format error", i, err)
		}
	}
}

func TestDecodeTrailingData(t *testing.T) {
	data, err := Marshal([]int32{1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	expectFormatError(t, append(data, 0), nil, "trailing data")
}

func TestDecodeHeader(t *testing.T) {
	expectFormatError(t, []byte{byte(RecordBinaryObjectString)}, nil, "instead of a header")

	b := &streamBuilder{}
	b.tag(RecordSerializedStreamHeader)
	b.int32(1)
	b.int32(-1)
	b.int32(2)
	b.int32(0)
	expectFormatError(t, b.end(), nil, "unsupported format version 2.0")

	b = newStream(5)
	b.str(1, "a")
	expectFormatError(t, b.end(), nil, "root id 5 does not name an object")
}

func TestDecodeUnknownRecordTypes(t *testing.T) {
	for _, tag := range []uint8{18, 19, 20, 23, 0xff} {
		b := newStream(1)
		b.uint8(tag)
		expectFormatError(t, b.b, nil, "unknown record type")
	}
	for _, tag := range []RecordType{RecordMethodCall, RecordMethodReturn} {
		b := newStream(1)
		b.tag(tag)
		expectFormatError(t, b.b, nil, "unsupported "+tag.String())
	}

	b := newStream(1)
	b.tag(RecordSerializedStreamHeader)
	expectFormatError(t, b.b, nil, "unexpected SerializedStreamHeader")
}

func TestDecodeObjectIDs(t *testing.T) {
	b := newStream(1)
	b.objectArray(1, 2)
	b.str(2, "a")
	b.str(2, "b")
	_, err := Decode(b.end(), nil)
	if !IsFormat(err) || !errors.Is(err, ErrDuplicateObjectID) {
		t.Fatalf("err = %v, want duplicate id format error", err)
	}

	b = newStream(1)
	b.str(0, "a")
	expectFormatError(t, b.end(), nil, "invalid object id 0")

	b = newStream(1)
	b.tag(RecordClassWithID)
	b.int32(1)
	b.int32(5)
	expectFormatError(t, b.end(), nil, "does not name a class record")
}

func TestDecodeStrictIDOrder(t *testing.T) {
	b := newStream(2)
	b.objectArray(2, 1)
	b.str(1, "a")
	data := b.end()

	doc, err := Decode(data, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ids := doc.IDs(); len(ids) != 2 || ids[0] != 2 || ids[1] != 1 {
		t.Fatalf("IDs = %v, want [2 1]", ids)
	}
	expectFormatError(t, data, &DecodeOptions{StrictIDOrder: true}, "object id 1 appears after id 2")

	b = newStream(2)
	b.objectArray(1, 1)
	b.str(2, "a")
	data = b.end()
	if _, err := Decode(data, nil); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	expectFormatError(t, data, &DecodeOptions{StrictIDOrder: true}, "first object id 1 is not the root id 2")
}

func TestDecodeLibraries(t *testing.T) {
	b := newStream(1)
	b.class(1, "C", 7, nil)
	expectFormatError(t, b.end(), nil, "undefined library 7")

	b = newStream(1)
	b.systemClass(1, "S", MemberTypeInfo{ClassMember("T", 9)}, "c")
	b.tag(RecordObjectNull)
	expectFormatError(t, b.end(), nil, "undefined library 9")

	// A member type may name a library defined later in the stream.
	b = newStream(1)
	b.systemClass(1, "S", MemberTypeInfo{ClassMember("T", 9)}, "c")
	b.library(9, "L")
	b.class(3, "T", 9, nil)
	doc, err := Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, err := doc.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	c, _ := v.(*Object).Get("c")
	if o, ok := c.(*Object); !ok || o.LibraryName != "L" {
		t.Fatalf("c = %#v, want an object from library L", c)
	}

	b = newStream(1)
	b.library(2, "L")
	b.str(1, "a")
	expectFormatError(t, b.end(), nil, "unexpected BinaryObjectString")

	b = newStream(1)
	b.str(1, "a")
	b.library(2, "L")
	expectFormatError(t, b.end(), nil, "library record is not followed")

	b = newStream(1)
	b.library(2, "L")
	b.objectArray(1, 1)
	b.ref(2)
	expectFormatError(t, b.end(), nil, "reference 2 to a BinaryLibrary record")
}

func TestDecodeLibraryRuns(t *testing.T) {
	b := newStream(1)
	b.objectArray(1, 1)
	b.library(2, "A")
	b.library(3, "B")
	b.class(4, "C", 3, nil)
	doc, err := Decode(b.end(), &DecodeOptions{StrictIDOrder: true})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ids := doc.IDs(); len(ids) != 2 || ids[0] != 1 || ids[1] != 4 {
		t.Fatalf("IDs = %v, want [1 4]", ids)
	}
	v, err := doc.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	o := v.([]any)[0].(*Object)
	if o.TypeName != "C" || o.LibraryName != "B" {
		t.Fatalf("element = %v, want C, B", o)
	}
	if _, ok := doc.Records().LibraryID("A"); !ok {
		t.Fatalf("library A not indexed")
	}
}

func TestDecodeSlotGrammar(t *testing.T) {
	b := newStream(1)
	b.tag(RecordMemberPrimitiveTyped)
	b.uint8(uint8(PrimitiveInt32))
	b.int32(7)
	expectFormatError(t, b.end(), nil, "unexpected MemberPrimitiveTyped")

	b = newStream(1)
	b.systemClass(1, "S", MemberTypeInfo{StringMember}, "s")
	b.tag(RecordMemberPrimitiveTyped)
	b.uint8(uint8(PrimitiveInt32))
	b.int32(7)
	expectFormatError(t, b.end(), nil, "unexpected MemberPrimitiveTyped")

	b = newStream(1)
	b.systemClass(1, "S", MemberTypeInfo{StringMember}, "s")
	b.ref(1)
	expectFormatError(t, b.end(), nil, "reference 1 to a SystemClassWithMembersAndTypes record")

	b = newStream(1)
	b.systemClass(1, "S", MemberTypeInfo{ObjectMember}, "o")
	b.tag(RecordObjectNullMultiple256)
	b.uint8(1)
	expectFormatError(t, b.end(), nil, "unexpected ObjectNullMultiple256")

	b = newStream(1)
	b.tag(RecordMemberPrimitiveTyped)
	b.uint8(4)
	expectFormatError(t, b.end(), nil, "unexpected MemberPrimitiveTyped")

	b = newStream(1)
	b.objectArray(1, 1)
	b.tag(RecordMemberPrimitiveTyped)
	b.uint8(4)
	expectFormatError(t, b.end(), nil, "invalid primitive type 4")
}

func TestDecodeNullRuns(t *testing.T) {
	b := newStream(1)
	b.objectArray(1, 2)
	b.tag(RecordObjectNullMultiple256)
	b.uint8(3)
	expectFormatError(t, b.end(), nil, "overflows array")

	b = newStream(1)
	b.objectArray(1, 2)
	b.tag(RecordObjectNullMultiple256)
	b.uint8(0)
	expectFormatError(t, b.end(), nil, "empty null run")

	b = newStream(1)
	b.objectArray(1, 2)
	b.tag(RecordObjectNullMultiple)
	b.int32(-1)
	expectFormatError(t, b.end(), nil, "invalid null run length -1")

	b = newStream(1)
	b.tag(RecordArraySingleString)
	b.int32(1)
	b.int32(4)
	b.str(2, "s")
	b.tag(RecordObjectNullMultiple256)
	b.uint8(3)
	doc, err := Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, err := doc.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	got, ok := v.([]any)
	if !ok || len(got) != 4 || got[0] != "s" || got[3] != nil {
		t.Fatalf("Value = %#v, want [s <nil> <nil> <nil>]", v)
	}
}

func TestDecodeLimits(t *testing.T) {
	nest := func(levels int) []byte {
		b := newStream(1)
		for i := 1; i <= levels; i++ {
			b.objectArray(int32(i), 1)
		}
		b.tag(RecordObjectNull)
		return b.end()
	}
	expectFormatError(t, nest(5), &DecodeOptions{MaxDepth: 5}, "nested deeper than 5")
	if _, err := Decode(nest(5), &DecodeOptions{MaxDepth: 6}); err != nil {
		t.Fatalf("Decode with MaxDepth 6: %v", err)
	}

	b := newStream(1)
	b.tag(RecordArraySinglePrimitive)
	b.int32(1)
	b.int32(10)
	b.uint8(uint8(PrimitiveInt32))
	expectFormatError(t, b.b, &DecodeOptions{MaxLength: 4}, "array length 10 exceeds limit 4")

	b = newStream(1)
	b.str(1, "hello")
	expectFormatError(t, b.end(), &DecodeOptions{MaxLength: 3}, "string length 5 exceeds limit 3")

	// A huge declared length must fail on the missing bytes, not allocate.
	b = newStream(1)
	b.tag(RecordArraySinglePrimitive)
	b.int32(1)
	b.int32(1 << 30)
	b.uint8(uint8(PrimitiveInt64))
	_, err := Decode(b.end(), nil)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestDecodeBinaryArrays(t *testing.T) {
	binaryArray := func(b *streamBuilder, id int32, shape BinaryArrayType, lengths, lower []int32, elem MemberType) {
		b.tag(RecordBinaryArray)
		b.int32(id)
		b.uint8(uint8(shape))
		b.int32(int32(len(lengths)))
		for _, l := range lengths {
			b.int32(l)
		}
		for _, l := range lower {
			b.int32(l)
		}
		b.memberTypeInfo(MemberTypeInfo{elem})
	}

	b := newStream(1)
	binaryArray(b, 1, BinaryArrayRectangular, nil, nil, ObjectMember)
	expectFormatError(t, b.end(), nil, "invalid array rank 0")

	b = newStream(1)
	binaryArray(b, 1, BinaryArraySingle, []int32{1, 1}, nil, ObjectMember)
	expectFormatError(t, b.end(), nil, "with rank 2")

	b = newStream(1)
	binaryArray(b, 1, BinaryArrayRectangularOffset, []int32{2}, []int32{0x7fffffff}, ObjectMember)
	expectFormatError(t, b.end(), nil, "array bounds overflow")

	b = newStream(1)
	binaryArray(b, 1, BinaryArrayRectangular, []int32{2, 3}, nil, PrimitiveMember(PrimitiveInt32))
	for i := int32(0); i < 6; i++ {
		b.int32(i)
	}
	doc, err := Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode rectangular: %v", err)
	}
	v, err := doc.Value()
	if err != nil {
		t.Fatalf("Value rectangular: %v", err)
	}
	a := v.(*Array)
	if len(a.Lengths) != 2 || a.Lengths[1] != 3 || len(a.Values) != 6 || a.Values[5] != int32(5) {
		t.Fatalf("rectangular = %+v", a)
	}

	b = newStream(1)
	binaryArray(b, 1, BinaryArrayJagged, []int32{2}, nil, PrimitiveArrayMember(PrimitiveInt32))
	b.tag(RecordArraySinglePrimitive)
	b.int32(2)
	b.int32(2)
	b.uint8(uint8(PrimitiveInt32))
	b.int32(1)
	b.int32(2)
	b.tag(RecordObjectNull)
	doc, err = Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode jagged: %v", err)
	}
	v, err = doc.Value()
	if err != nil {
		t.Fatalf("Value jagged: %v", err)
	}
	j := v.(*Array)
	if j.Shape != BinaryArrayJagged || j.ElementType.BinaryType != BinaryTypePrimitiveArray {
		t.Fatalf("jagged = %+v", j)
	}
	if row, ok := j.Values[0].([]int32); !ok || len(row) != 2 || row[1] != 2 || j.Values[1] != nil {
		t.Fatalf("jagged values = %#v", j.Values)
	}
}

func TestDecodeUntypedClass(t *testing.T) {
	b := newStream(1)
	b.library(2, "L")
	b.tag(RecordClassWithMembers)
	b.classInfo(&ClassInfo{ID: 1, Name: "C", MemberNames: []string{"a", "b"}})
	b.int32(2)
	b.str(3, "x")
	b.tag(RecordMemberPrimitiveTyped)
	b.uint8(uint8(PrimitiveInt32))
	b.int32(7)
	doc, err := Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, err := doc.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	o := v.(*Object)
	if o.LibraryName != "L" || len(o.Members) != 2 {
		t.Fatalf("object = %+v", o)
	}
	for _, m := range o.Members {
		if m.Declared == nil || m.Declared.BinaryType != BinaryTypeObject {
			t.Fatalf("member %s Declared = %v, want Object", m.Name, m.Declared)
		}
	}
	if a, _ := o.Get("a"); a != "x" {
		t.Fatalf("a = %v, want x", a)
	}
	if bv, _ := o.Get("b"); bv != int32(7) {
		t.Fatalf("b = %v, want 7", bv)
	}

	var out bytes.Buffer
	if _, err := doc.WriteTo(&out); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !bytes.Equal(out.Bytes(), b.b) {
		t.Fatalf("WriteTo =\n%x\nwant\n%x", out.Bytes(), b.b)
	}
}

func TestDecodeBooleanAndUnboxing(t *testing.T) {
	b := newStream(1)
	b.tag(RecordArraySinglePrimitive)
	b.int32(1)
	b.int32(2)
	b.uint8(uint8(PrimitiveBoolean))
	b.uint8(0)
	b.uint8(2)
	doc, err := Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	v, _ := doc.Value()
	if got := v.([]bool); got[0] || !got[1] {
		t.Fatalf("Value = %v, want [false true]", got)
	}

	d, err := NewDateTime(100, KindLocal)
	if err != nil {
		t.Fatalf("NewDateTime: %v", err)
	}
	b = newStream(1)
	b.systemClass(1, "System.DateTime",
		MemberTypeInfo{PrimitiveMember(PrimitiveInt64), PrimitiveMember(PrimitiveUInt64)}, "ticks", "dateData")
	b.uint64(100)
	b.uint64(d.Bits())
	doc, err = Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode DateTime: %v", err)
	}
	if v, _ := doc.Value(); v != d {
		t.Fatalf("Value = %#v, want %v", v, d)
	}

	// A layout Box would not produce stays an object.
	b = newStream(1)
	b.systemClass(1, "System.Int32", MemberTypeInfo{PrimitiveMember(PrimitiveInt32)}, "value")
	b.int32(3)
	doc, err = Decode(b.end(), nil)
	if err != nil {
		t.Fatalf("Decode Int32: %v", err)
	}
	if v, _ := doc.Value(); v.(*Object).TypeName != "System.Int32" {
		t.Fatalf("Value = %#v, want *Object", v)
	}
}

func TestDecodeOnRecord(t *testing.T) {
	data := mustHex(t, testHeaderHex+
		"10 01000000 02000000"+
		"06 02000000 01 41"+
		"09 02000000"+
		"0b")
	var events []RecordEvent
	_, err := Decode(data, &DecodeOptions{OnRecord: func(ev RecordEvent) { events = append(events, ev) }})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []struct {
		typ    RecordType
		offset int64
		depth  int
	}{
		{RecordSerializedStreamHeader, 0, 0},
		{RecordBinaryObjectString, 26, 2},
		{RecordMemberReference, 33, 2},
		{RecordArraySingleObject, 17, 1},
		{RecordMessageEnd, 38, 1},
	}
	if len(events) != len(want) {
		t.Fatalf("len(events) = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		ev := events[i]
		if ev.Record.RecordType() != w.typ || ev.Offset != w.offset || ev.Depth != w.depth {
			t.Fatalf("event %d = {%s %d %d}, want {%s %d %d}",
				i, ev.Record.RecordType(), ev.Offset, ev.Depth, w.typ, w.offset, w.depth)
		}
	}
}

func TestStartsWithPayloadHeader(t *testing.T) {
	data, err := Marshal("x")
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !StartsWithPayloadHeader(data) {
		t.Fatalf("StartsWithPayloadHeader(Marshal) = false")
	}
	if StartsWithPayloadHeader(data[:headerSize-1]) {
		t.Fatalf("StartsWithPayloadHeader(short) = true")
	}
	bad := append([]byte(nil), data...)
	bad[9] = 2
	if StartsWithPayloadHeader(bad) {
		t.Fatalf("StartsWithPayloadHeader(version 2) = true")
	}
}

func TestDocumentResolve(t *testing.T) {
	data, err := Marshal([]any{"a", "b"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	doc, err := DecodeReader(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("DecodeReader: %v", err)
	}
	rec, err := doc.Resolve(3)
	if err != nil {
		t.Fatalf("Resolve(3): %v", err)
	}
	if s, ok := rec.(*BinaryObjectString); !ok || s.Value != "b" {
		t.Fatalf("Resolve(3) = %#v, want string b", rec)
	}
	if _, err := doc.Resolve(99); !IsFormat(err) {
		t.Fatalf("Resolve(99) err = %v, want format error", err)
	}
	if n := len(doc.TopLevel()); n != 1 {
		t.Fatalf("len(TopLevel) = %d, want 1", n)
	}
}
