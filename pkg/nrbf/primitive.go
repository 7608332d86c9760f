package nrbf

import (
	"math"
	"reflect"
)

// Char is a System.Char: one UTF-16 code unit. Surrogate halves cannot be
// carried on the wire.
type Char uint16

func (c Char) String() string { return string(rune(c)) }

var primitiveGoTypes = map[PrimitiveType]reflect.Type{
	PrimitiveBoolean:  reflect.TypeFor[bool](),
	PrimitiveByte:     reflect.TypeFor[uint8](),
	PrimitiveChar:     reflect.TypeFor[Char](),
	PrimitiveDecimal:  reflect.TypeFor[Decimal](),
	PrimitiveDouble:   reflect.TypeFor[float64](),
	PrimitiveInt16:    reflect.TypeFor[int16](),
	PrimitiveInt32:    reflect.TypeFor[int32](),
	PrimitiveInt64:    reflect.TypeFor[int64](),
	PrimitiveSByte:    reflect.TypeFor[int8](),
	PrimitiveSingle:   reflect.TypeFor[float32](),
	PrimitiveTimeSpan: reflect.TypeFor[TimeSpan](),
	PrimitiveDateTime: reflect.TypeFor[DateTime](),
	PrimitiveUInt16:   reflect.TypeFor[uint16](),
	PrimitiveUInt32:   reflect.TypeFor[uint32](),
	PrimitiveUInt64:   reflect.TypeFor[uint64](),
}

var primitiveByGoType = func() map[reflect.Type]PrimitiveType {
	m := make(map[reflect.Type]PrimitiveType, len(primitiveGoTypes))
	for t, rt := range primitiveGoTypes {
		m[rt] = t
	}
	return m
}()

// GoType returns the Go type that carries values of t, or nil when t does not
// carry a value.
func (t PrimitiveType) GoType() reflect.Type { return primitiveGoTypes[t] }

// PrimitiveTypeOf reports the primitive kind of a Go value. Only the exact
// types listed on PrimitiveType.GoType qualify; int and uint have no fixed
// width and are rejected.
func PrimitiveTypeOf(v any) (PrimitiveType, bool) {
	if v == nil {
		return 0, false
	}
	t, ok := primitiveByGoType[reflect.TypeOf(v)]
	return t, ok
}

// PrimitiveArrayTypeOf reports the element kind of a typed primitive slice
// such as []int32.
func PrimitiveArrayTypeOf(v any) (PrimitiveType, bool) {
	if v == nil {
		return 0, false
	}
	rt := reflect.TypeOf(v)
	if rt.Kind() != reflect.Slice || rt.Name() != "" {
		return 0, false
	}
	t, ok := primitiveByGoType[rt.Elem()]
	return t, ok
}

func checkPrimitiveKind(t PrimitiveType) error {
	if !t.IsValue() {
		return invalidArgumentf("unsupported primitive kind %s", t)
	}
	return nil
}

// DecodePrimitive decodes one value of kind t from the start of b and returns
// it with the number of bytes consumed.
func DecodePrimitive(b []byte, t PrimitiveType) (any, int, error) {
	if err := checkPrimitiveKind(t); err != nil {
		return nil, 0, err
	}
	c := newCursor(b, 0)
	v := c.primitive(t)
	if c.err != nil {
		return nil, 0, c.err
	}
	return v, c.off, nil
}

// DecodePrimitiveArray decodes count values of kind t into a typed slice.
func DecodePrimitiveArray(b []byte, t PrimitiveType, count int) (any, int, error) {
	if err := checkPrimitiveKind(t); err != nil {
		return nil, 0, err
	}
	c := newCursor(b, 0)
	v := c.primitiveArray(t, count)
	if c.err != nil {
		return nil, 0, c.err
	}
	return v, c.off, nil
}

// AppendPrimitive appends the wire form of v, which must be of t's Go type.
func AppendPrimitive(dst []byte, t PrimitiveType, v any) ([]byte, error) {
	if err := checkPrimitiveKind(t); err != nil {
		return dst, err
	}
	e := encbuf{b: dst}
	e.primitive(t, v)
	if e.err != nil {
		return dst, e.err
	}
	return e.b, nil
}

// AppendPrimitiveArray appends the elements of a typed slice of t's Go type.
// The length is not written.
func AppendPrimitiveArray(dst []byte, t PrimitiveType, slice any) ([]byte, error) {
	if err := checkPrimitiveKind(t); err != nil {
		return dst, err
	}
	e := encbuf{b: dst}
	e.primitiveArray(t, slice)
	if e.err != nil {
		return dst, e.err
	}
	return e.b, nil
}

func (c *cursor) dateTime() DateTime {
	start := c.off
	d, err := DateTimeFromBits(c.uint64())
	if err != nil && c.err == nil {
		c.failAt(start, "datetime ticks out of range")
	}
	return d
}

func (c *cursor) decimal() Decimal {
	start := c.off
	s := c.string()
	if c.err != nil {
		return Decimal{}
	}
	d, err := ParseDecimal(s)
	if err != nil {
		c.failAt(start, "invalid decimal %q", s)
	}
	return d
}

// primitive reads one value. The caller has validated t.
func (c *cursor) primitive(t PrimitiveType) any {
	switch t {
	case PrimitiveBoolean:
		return c.uint8() != 0
	case PrimitiveByte:
		return c.uint8()
	case PrimitiveSByte:
		return int8(c.uint8())
	case PrimitiveChar:
		return c.char()
	case PrimitiveDecimal:
		return c.decimal()
	case PrimitiveDouble:
		return math.Float64frombits(c.uint64())
	case PrimitiveSingle:
		return math.Float32frombits(c.uint32())
	case PrimitiveInt16:
		return int16(c.uint16())
	case PrimitiveInt32:
		return c.int32()
	case PrimitiveInt64:
		return int64(c.uint64())
	case PrimitiveUInt16:
		return c.uint16()
	case PrimitiveUInt32:
		return c.uint32()
	case PrimitiveUInt64:
		return c.uint64()
	case PrimitiveTimeSpan:
		return TimeSpan(c.uint64())
	case PrimitiveDateTime:
		return c.dateTime()
	}
	c.failAt(c.off, "invalid primitive type %d", uint8(t))
	return nil
}

func readSlice[T any](c *cursor, n int, read func(*cursor) T) []T {
	s := make([]T, n)
	for i := range s {
		s[i] = read(c)
		if c.err != nil {
			return nil
		}
	}
	return s
}

// primitiveArray reads n values into a typed slice. Fixed-width kinds are
// bounds-checked up front; variable-width kinds need at least one byte per
// element, which bounds the allocation by the remaining input.
func (c *cursor) primitiveArray(t PrimitiveType, n int) any {
	size := t.Size()
	if size == 0 {
		size = 1
	}
	if !c.need(n, size) {
		return nil
	}
	switch t {
	case PrimitiveBoolean:
		return readSlice(c, n, func(c *cursor) bool { return c.uint8() != 0 })
	case PrimitiveByte:
		return append([]byte(nil), c.take(n)...)
	case PrimitiveSByte:
		return readSlice(c, n, func(c *cursor) int8 { return int8(c.uint8()) })
	case PrimitiveChar:
		return readSlice(c, n, (*cursor).char)
	case PrimitiveDecimal:
		return readSlice(c, n, (*cursor).decimal)
	case PrimitiveDouble:
		return readSlice(c, n, func(c *cursor) float64 { return math.Float64frombits(c.uint64()) })
	case PrimitiveSingle:
		return readSlice(c, n, func(c *cursor) float32 { return math.Float32frombits(c.uint32()) })
	case PrimitiveInt16:
		return readSlice(c, n, func(c *cursor) int16 { return int16(c.uint16()) })
	case PrimitiveInt32:
		return readSlice(c, n, (*cursor).int32)
	case PrimitiveInt64:
		return readSlice(c, n, func(c *cursor) int64 { return int64(c.uint64()) })
	case PrimitiveUInt16:
		return readSlice(c, n, (*cursor).uint16)
	case PrimitiveUInt32:
		return readSlice(c, n, (*cursor).uint32)
	case PrimitiveUInt64:
		return readSlice(c, n, (*cursor).uint64)
	case PrimitiveTimeSpan:
		return readSlice(c, n, func(c *cursor) TimeSpan { return TimeSpan(c.uint64()) })
	case PrimitiveDateTime:
		return readSlice(c, n, (*cursor).dateTime)
	}
	c.failAt(c.off, "invalid primitive type %d", uint8(t))
	return nil
}

func valueAs[T any](e *encbuf, t PrimitiveType, v any) (T, bool) {
	x, ok := v.(T)
	if !ok {
		e.fail(invalidArgumentf("value of type %T is not a %s", v, t))
	}
	return x, ok
}

// primitive appends one value of kind t.
func (e *encbuf) primitive(t PrimitiveType, v any) {
	switch t {
	case PrimitiveBoolean:
		if x, ok := valueAs[bool](e, t, v); ok {
			if x {
				e.uint8(1)
			} else {
				e.uint8(0)
			}
		}
	case PrimitiveByte:
		if x, ok := valueAs[uint8](e, t, v); ok {
			e.uint8(x)
		}
	case PrimitiveSByte:
		if x, ok := valueAs[int8](e, t, v); ok {
			e.uint8(uint8(x))
		}
	case PrimitiveChar:
		if x, ok := valueAs[Char](e, t, v); ok {
			e.char(x)
		}
	case PrimitiveDecimal:
		if x, ok := valueAs[Decimal](e, t, v); ok {
			e.string(x.String())
		}
	case PrimitiveDouble:
		if x, ok := valueAs[float64](e, t, v); ok {
			e.uint64(math.Float64bits(x))
		}
	case PrimitiveSingle:
		if x, ok := valueAs[float32](e, t, v); ok {
			e.uint32(math.Float32bits(x))
		}
	case PrimitiveInt16:
		if x, ok := valueAs[int16](e, t, v); ok {
			e.uint16(uint16(x))
		}
	case PrimitiveInt32:
		if x, ok := valueAs[int32](e, t, v); ok {
			e.int32(x)
		}
	case PrimitiveInt64:
		if x, ok := valueAs[int64](e, t, v); ok {
			e.uint64(uint64(x))
		}
	case PrimitiveUInt16:
		if x, ok := valueAs[uint16](e, t, v); ok {
			e.uint16(x)
		}
	case PrimitiveUInt32:
		if x, ok := valueAs[uint32](e, t, v); ok {
			e.uint32(x)
		}
	case PrimitiveUInt64:
		if x, ok := valueAs[uint64](e, t, v); ok {
			e.uint64(x)
		}
	case PrimitiveTimeSpan:
		if x, ok := valueAs[TimeSpan](e, t, v); ok {
			e.uint64(uint64(x))
		}
	case PrimitiveDateTime:
		if x, ok := valueAs[DateTime](e, t, v); ok {
			e.uint64(x.Bits())
		}
	default:
		e.fail(invalidArgumentf("unsupported primitive kind %s", t))
	}
}

func appendSlice[T any](e *encbuf, t PrimitiveType, v any, write func(*encbuf, T)) {
	s, ok := v.([]T)
	if !ok {
		e.fail(invalidArgumentf("value of type %T is not a %s array", v, t))
		return
	}
	for _, x := range s {
		write(e, x)
		if e.err != nil {
			return
		}
	}
}

// primitiveArray appends the elements of a typed slice of kind t.
func (e *encbuf) primitiveArray(t PrimitiveType, v any) {
	switch t {
	case PrimitiveBoolean:
		appendSlice(e, t, v, func(e *encbuf, x bool) {
			if x {
				e.uint8(1)
			} else {
				e.uint8(0)
			}
		})
	case PrimitiveByte:
		if s, ok := v.([]byte); ok {
			e.b = append(e.b, s...)
		} else {
			e.fail(invalidArgumentf("value of type %T is not a %s array", v, t))
		}
	case PrimitiveSByte:
		appendSlice(e, t, v, func(e *encbuf, x int8) { e.uint8(uint8(x)) })
	case PrimitiveChar:
		appendSlice(e, t, v, (*encbuf).char)
	case PrimitiveDecimal:
		appendSlice(e, t, v, func(e *encbuf, x Decimal) { e.string(x.String()) })
	case PrimitiveDouble:
		appendSlice(e, t, v, func(e *encbuf, x float64) { e.uint64(math.Float64bits(x)) })
	case PrimitiveSingle:
		appendSlice(e, t, v, func(e *encbuf, x float32) { e.uint32(math.Float32bits(x)) })
	case PrimitiveInt16:
		appendSlice(e, t, v, func(e *encbuf, x int16) { e.uint16(uint16(x)) })
	case PrimitiveInt32:
		appendSlice(e, t, v, (*encbuf).int32)
	case PrimitiveInt64:
		appendSlice(e, t, v, func(e *encbuf, x int64) { e.uint64(uint64(x)) })
	case PrimitiveUInt16:
		appendSlice(e, t, v, (*encbuf).uint16)
	case PrimitiveUInt32:
		appendSlice(e, t, v, (*encbuf).uint32)
	case PrimitiveUInt64:
		appendSlice(e, t, v, (*encbuf).uint64)
	case PrimitiveTimeSpan:
		appendSlice(e, t, v, func(e *encbuf, x TimeSpan) { e.uint64(uint64(x)) })
	case PrimitiveDateTime:
		appendSlice(e, t, v, func(e *encbuf, x DateTime) { e.uint64(x.Bits()) })
	default:
		e.fail(invalidArgumentf("unsupported primitive kind %s", t))
	}
}

// primitiveSliceLen returns the length of a typed primitive slice.
func primitiveSliceLen(v any) int {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0
	}
	return rv.Len()
}
