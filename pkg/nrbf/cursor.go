package nrbf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// cursor reads little-endian values from an in-memory payload. The first
// failure is sticky: every later read returns the zero value and err holds
// the failure, so callers only check it where a value steers control flow.
type cursor struct {
	data      []byte
	off       int
	maxLength int
	err       error
}

func newCursor(data []byte, maxLength int) *cursor {
	return &cursor{data: data, maxLength: maxLength}
}

func (c *cursor) remaining() int { return len(c.data) - c.off }

func (c *cursor) fail(err *FormatError) {
	if c.err == nil {
		c.err = err
	}
}

func (c *cursor) failAt(offset int, format string, args ...any) {
	c.fail(formatErrorf(offset, format, args...))
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if n < 0 || n > c.remaining() {
		c.fail(&FormatError{
			Offset: int64(c.off),
			Msg:    fmt.Sprintf("truncated data: need %d bytes, have %d", n, c.remaining()),
			Err:    io.ErrUnexpectedEOF,
		})
		return nil
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b
}

// need fails the cursor unless n elements of size bytes each remain.
func (c *cursor) need(n, size int) bool {
	if c.err != nil {
		return false
	}
	if n < 0 || size > 0 && n > c.remaining()/size {
		c.fail(&FormatError{
			Offset: int64(c.off),
			Msg:    fmt.Sprintf("truncated data: %d elements of %d bytes exceed the %d remaining", n, size, c.remaining()),
			Err:    io.ErrUnexpectedEOF,
		})
		return false
	}
	return true
}

func (c *cursor) uint8() uint8 {
	if b := c.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (c *cursor) uint16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) uint32() uint32 {
	if b := c.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) uint64() uint64 {
	if b := c.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (c *cursor) int32() int32 { return int32(c.uint32()) }

// count reads an int32 that must be a non-negative element count within the
// configured length limit.
func (c *cursor) count(what string) int {
	start := c.off
	n := c.int32()
	if c.err != nil {
		return 0
	}
	if n < 0 {
		c.failAt(start, "negative %s %d", what, n)
		return 0
	}
	if c.maxLength > 0 && int(n) > c.maxLength {
		c.failAt(start, "%s %d exceeds limit %d", what, n, c.maxLength)
		return 0
	}
	return int(n)
}

// length reads the 7-bit encoded length prefix of a string.
func (c *cursor) length() int {
	start := c.off
	var result uint32
	for shift := 0; shift < 28; shift += 7 {
		b := c.uint8()
		if c.err != nil {
			return 0
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return int(result)
		}
	}
	b := c.uint8()
	if c.err != nil {
		return 0
	}
	if b > 0x07 {
		c.failAt(start, "invalid 7-bit encoded length")
		return 0
	}
	return int(result | uint32(b)<<28)
}

// string reads a length-prefixed UTF-8 string.
func (c *cursor) string() string {
	start := c.off
	n := c.length()
	if c.err != nil {
		return ""
	}
	if c.maxLength > 0 && n > c.maxLength {
		c.failAt(start, "string length %d exceeds limit %d", n, c.maxLength)
		return ""
	}
	b := c.take(n)
	if c.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		c.failAt(start, "string is not valid UTF-8")
		return ""
	}
	return string(b)
}

// char reads one UTF-16 code unit stored as UTF-8.
func (c *cursor) char() Char {
	start := c.off
	if c.err != nil || c.remaining() == 0 {
		c.take(1)
		return 0
	}
	r, size := utf8.DecodeRune(c.data[c.off:])
	if r == utf8.RuneError && size <= 1 {
		c.failAt(start, "invalid UTF-8 encoded char")
		return 0
	}
	if r > 0xffff {
		c.failAt(start, "char %U is outside the basic multilingual plane", r)
		return 0
	}
	c.off += size
	return Char(r)
}

// encbuf appends little-endian values to a byte slice. Like cursor, its first
// error is sticky.
type encbuf struct {
	b   []byte
	err error
}

func (e *encbuf) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encbuf) uint8(v uint8)    { e.b = append(e.b, v) }
func (e *encbuf) uint16(v uint16)  { e.b = binary.LittleEndian.AppendUint16(e.b, v) }
func (e *encbuf) uint32(v uint32)  { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *encbuf) uint64(v uint64)  { e.b = binary.LittleEndian.AppendUint64(e.b, v) }
func (e *encbuf) int32(v int32)    { e.uint32(uint32(v)) }
func (e *encbuf) tag(t RecordType) { e.uint8(uint8(t)) }

func (e *encbuf) length(n int) {
	v := uint32(n)
	for v >= 0x80 {
		e.b = append(e.b, byte(v)|0x80)
		v >>= 7
	}
	e.b = append(e.b, byte(v))
}

func (e *encbuf) string(s string) {
	if !utf8.ValidString(s) {
		e.fail(invalidArgumentf("string %q is not valid UTF-8", s))
		return
	}
	if len(s) > math.MaxInt32 {
		e.fail(invalidArgumentf("string of %d bytes is too long", len(s)))
		return
	}
	e.length(len(s))
	e.b = append(e.b, s...)
}

func (e *encbuf) char(ch Char) {
	if ch >= 0xd800 && ch <= 0xdfff {
		e.fail(invalidArgumentf("char %#04x is a lone surrogate", uint16(ch)))
		return
	}
	e.b = utf8.AppendRune(e.b, rune(ch))
}
