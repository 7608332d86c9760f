package nrbf

import (
	"bytes"
	"fmt"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"pgregory.net/rapid"
)

var valueCmpOpts = []cmp.Option{
	cmp.AllowUnexported(Decimal{}, DateTime{}),
	cmpopts.EquateNaNs(),
	cmpopts.EquateEmpty(),
}

func anyOf[T any](g *rapid.Generator[T]) *rapid.Generator[any] {
	return rapid.Map(g, func(v T) any { return v })
}

// A small alphabet makes repeated strings, and so references, likely.
var genString = rapid.StringOfN(rapid.RuneFrom([]rune{'a', 'b', 'é', '€', '😀'}), 0, 4, -1)

var genDecimal = rapid.Custom(func(t *rapid.T) Decimal {
	d, err := NewDecimal(big.NewInt(rapid.Int64().Draw(t, "mantissa")), rapid.IntRange(0, 28).Draw(t, "scale"))
	if err != nil {
		t.Fatalf("NewDecimal: %v", err)
	}
	return d
})

var genDateTime = rapid.Custom(func(t *rapid.T) DateTime {
	kind := DateTimeKind(rapid.IntRange(0, 3).Draw(t, "kind"))
	d, err := NewDateTime(rapid.Int64Range(0, MaxDateTimeTicks).Draw(t, "ticks"), kind)
	if err != nil {
		t.Fatalf("NewDateTime: %v", err)
	}
	return d
})

var genPrimitive = rapid.OneOf(
	anyOf(rapid.Bool()),
	anyOf(rapid.Byte()),
	anyOf(rapid.Int8()),
	anyOf(rapid.Int16()),
	anyOf(rapid.Int32()),
	anyOf(rapid.Int64()),
	anyOf(rapid.Uint16()),
	anyOf(rapid.Uint32()),
	anyOf(rapid.Uint64()),
	anyOf(rapid.Float32()),
	anyOf(rapid.Float64()),
	anyOf(rapid.Map(rapid.Uint16Range(0, 0xd7ff), func(v uint16) Char { return Char(v) })),
	anyOf(rapid.Map(rapid.Int64(), func(v int64) TimeSpan { return TimeSpan(v) })),
	anyOf(genDateTime),
	anyOf(genDecimal),
)

var genPrimitiveSlice = rapid.OneOf(
	anyOf(rapid.SliceOfN(rapid.Bool(), 0, 4)),
	anyOf(rapid.SliceOfN(rapid.Byte(), 0, 4)),
	anyOf(rapid.SliceOfN(rapid.Int32(), 0, 4)),
	anyOf(rapid.SliceOfN(rapid.Float64(), 0, 4)),
	anyOf(rapid.SliceOfN(genDecimal, 0, 2)),
	anyOf(rapid.SliceOfN(genDateTime, 0, 2)),
	anyOf(rapid.SliceOfN(genString, 0, 4)),
)

var genGrid = rapid.Custom(func(t *rapid.T) any {
	values := make([]any, 4)
	for i := range values {
		values[i] = rapid.Int32().Draw(t, "cell")
	}
	return &Array{
		Shape:       BinaryArrayRectangular,
		Lengths:     []int32{2, 2},
		ElementType: TypeSpec{BinaryType: BinaryTypePrimitive, Primitive: PrimitiveInt32},
		Values:      values,
	}
})

func genValue(depth int) *rapid.Generator[any] {
	gens := []*rapid.Generator[any]{
		rapid.Just[any](nil),
		genPrimitive,
		anyOf(genString),
		genPrimitiveSlice,
		genGrid,
	}
	if depth > 0 {
		gens = append(gens, genObject(depth-1), genObjects(depth-1))
	}
	return rapid.OneOf(gens...)
}

func genObjects(depth int) *rapid.Generator[any] {
	return anyOf(rapid.SliceOfN(genValue(depth), 0, 4))
}

func genObject(depth int) *rapid.Generator[any] {
	return rapid.Custom(func(t *rapid.T) any {
		o := &Object{
			TypeName:    fmt.Sprintf("Gen.Type%d", rapid.IntRange(0, 2).Draw(t, "type")),
			LibraryName: rapid.SampledFrom([]string{"", "Gen, Version=1.0.0.0"}).Draw(t, "library"),
		}
		n := rapid.IntRange(0, 3).Draw(t, "members")
		for i := 0; i < n; i++ {
			o.Members = append(o.Members, Member{
				Name:  fmt.Sprintf("m%d", i),
				Value: genValue(depth).Draw(t, "member"),
			})
		}
		return o
	})
}

var genRoot = rapid.OneOf(genPrimitive, anyOf(genString), genPrimitiveSlice, genObject(2), genObjects(2))

func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := genRoot.Draw(t, "root")
		data, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		doc, err := Decode(data, &DecodeOptions{StrictIDOrder: true})
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got, err := doc.Value()
		if err != nil {
			t.Fatalf("Value: %v", err)
		}
		if diff := cmp.Diff(v, got, valueCmpOpts...); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}

		var rewritten bytes.Buffer
		if _, err := doc.WriteTo(&rewritten); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		if !bytes.Equal(rewritten.Bytes(), data) {
			t.Fatalf("WriteTo =\n%x\nwant\n%x", rewritten.Bytes(), data)
		}
	})
}

func TestMemberTypeInfoProperty(t *testing.T) {
	genMemberType := rapid.Custom(func(t *rapid.T) MemberType {
		switch BinaryType(rapid.IntRange(0, 7).Draw(t, "binaryType")) {
		case BinaryTypePrimitive:
			return PrimitiveMember(PrimitiveInt64)
		case BinaryTypePrimitiveArray:
			return PrimitiveArrayMember(PrimitiveChar)
		case BinaryTypeSystemClass:
			return SystemClassMember(genString.Draw(t, "systemClass"))
		case BinaryTypeClass:
			return ClassMember(genString.Draw(t, "class"), rapid.Int32().Draw(t, "library"))
		case BinaryTypeString:
			return StringMember
		case BinaryTypeObject:
			return ObjectMember
		case BinaryTypeObjectArray:
			return ObjectArrayMember
		}
		return StringArrayMember
	})
	rapid.Check(t, func(t *rapid.T) {
		mi := MemberTypeInfo(rapid.SliceOfN(genMemberType, 0, 8).Draw(t, "types"))
		data, err := mi.MarshalBinary()
		if err != nil {
			t.Fatalf("MarshalBinary: %v", err)
		}
		got, n, err := UnmarshalMemberTypeInfo(data, len(mi))
		if err != nil {
			t.Fatalf("UnmarshalMemberTypeInfo: %v", err)
		}
		if n != len(data) {
			t.Fatalf("consumed %d of %d bytes", n, len(data))
		}
		if diff := cmp.Diff(mi, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})
}

func FuzzDecode(f *testing.F) {
	seeds := []any{
		int32(42),
		"hello",
		[]any{"A", "A", nil, nil, int16(3)},
		[]string{"x", "y", "x"},
		&Object{TypeName: "Lib.Point", LibraryName: "Lib", Members: []Member{
			{Name: "x", Value: int32(1)},
			{Name: "tags", Value: []string{"a"}},
			{Name: "next", Value: &Object{TypeName: "Lib.Point", LibraryName: "Lib", Members: []Member{
				{Name: "x", Value: int32(2)},
				{Name: "tags", Value: []string{}},
				{Name: "next", Value: nil},
			}}},
		}},
		&Array{
			Shape:       BinaryArrayJaggedOffset,
			Lengths:     []int32{1},
			LowerBounds: []int32{3},
			ElementType: TypeSpec{BinaryType: BinaryTypeObjectArray},
			Values:      []any{[]any{"j"}},
		},
	}
	for _, v := range seeds {
		data, err := Marshal(v)
		if err != nil {
			f.Fatalf("Marshal(%v): %v", v, err)
		}
		f.Add(data)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		doc, err := Decode(data, &DecodeOptions{MaxLength: 1 << 16})
		if err != nil {
			if !IsFormat(err) {
				t.Fatalf("Decode err = %v, want a format error", err)
			}
			return
		}
		if _, err := doc.Value(); err != nil {
			t.Fatalf("Value: %v", err)
		}
		var out bytes.Buffer
		if _, err := doc.WriteTo(&out); err != nil {
			t.Fatalf("WriteTo: %v", err)
		}
		if _, err := Decode(out.Bytes(), nil); err != nil {
			t.Fatalf("Decode(WriteTo): %v", err)
		}
	})
}
