package nrbf

import (
	"math/big"
	"strings"
)

const (
	decimalMaxScale  = 28
	decimalScaleMask = 0x00ff0000
	decimalSignMask  = 0x80000000
)

var decimalMaxMantissa = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

// Decimal is a System.Decimal: a 96-bit unsigned mantissa, a sign and a
// power-of-ten scale between 0 and 28. Trailing zeros are significant, so
// 1.50 and 1.5 are distinct values, as they are in .NET.
type Decimal struct {
	lo, mid, hi uint32
	flags       uint32
}

// DecimalFromBits builds a Decimal from the four fields of a boxed
// System.Decimal, in the member order BinaryFormatter writes them.
func DecimalFromBits(flags, hi, lo, mid uint32) (Decimal, error) {
	if flags&^(decimalScaleMask|decimalSignMask) != 0 {
		return Decimal{}, invalidArgumentf("invalid decimal flags %#08x", flags)
	}
	if scale := (flags & decimalScaleMask) >> 16; scale > decimalMaxScale {
		return Decimal{}, invalidArgumentf("decimal scale %d exceeds %d", scale, decimalMaxScale)
	}
	return Decimal{lo: lo, mid: mid, hi: hi, flags: flags}, nil
}

// NewDecimal returns mantissa * 10^-scale. The mantissa magnitude must fit in
// 96 bits.
func NewDecimal(mantissa *big.Int, scale int) (Decimal, error) {
	if scale < 0 || scale > decimalMaxScale {
		return Decimal{}, invalidArgumentf("decimal scale %d out of range", scale)
	}
	abs := new(big.Int).Abs(mantissa)
	if abs.Cmp(decimalMaxMantissa) > 0 {
		return Decimal{}, invalidArgumentf("decimal mantissa %s exceeds 96 bits", mantissa)
	}
	var words [12]byte
	abs.FillBytes(words[:])
	d := Decimal{
		hi:    be32(words[0:4]),
		mid:   be32(words[4:8]),
		lo:    be32(words[8:12]),
		flags: uint32(scale) << 16,
	}
	if mantissa.Sign() < 0 {
		d.flags |= decimalSignMask
	}
	return d, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// ParseDecimal parses invariant-culture decimal text: an optional sign,
// digits and an optional fractional part. The number of fractional digits
// becomes the scale.
func ParseDecimal(s string) (Decimal, error) {
	text := s
	neg := false
	switch {
	case strings.HasPrefix(text, "-"):
		neg = true
		text = text[1:]
	case strings.HasPrefix(text, "+"):
		text = text[1:]
	}
	intPart, frac, _ := strings.Cut(text, ".")
	if intPart == "" && frac == "" {
		return Decimal{}, invalidArgumentf("invalid decimal %q", s)
	}
	digits := intPart + frac
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Decimal{}, invalidArgumentf("invalid decimal %q", s)
		}
	}
	mantissa, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Decimal{}, invalidArgumentf("invalid decimal %q", s)
	}
	d, err := NewDecimal(mantissa, len(frac))
	if err != nil {
		return Decimal{}, err
	}
	if neg {
		d.flags |= decimalSignMask
	}
	return d, nil
}

// Bits returns the fields of d in boxed System.Decimal member order.
func (d Decimal) Bits() (flags, hi, lo, mid uint32) {
	return d.flags, d.hi, d.lo, d.mid
}

// Scale returns the power-of-ten divisor of the mantissa.
func (d Decimal) Scale() int { return int(d.flags&decimalScaleMask) >> 16 }

// Negative reports whether the sign bit is set. Negative zero is preserved.
func (d Decimal) Negative() bool { return d.flags&decimalSignMask != 0 }

// Mantissa returns the signed mantissa.
func (d Decimal) Mantissa() *big.Int {
	m := new(big.Int).SetUint64(uint64(d.hi))
	m.Lsh(m, 64)
	m.Or(m, new(big.Int).SetUint64(uint64(d.mid)<<32|uint64(d.lo)))
	if d.Negative() {
		m.Neg(m)
	}
	return m
}

// String formats d as invariant-culture text, keeping trailing zeros.
func (d Decimal) String() string {
	m := new(big.Int).SetUint64(uint64(d.hi))
	m.Lsh(m, 64)
	m.Or(m, new(big.Int).SetUint64(uint64(d.mid)<<32|uint64(d.lo)))
	digits := m.String()
	scale := d.Scale()
	if scale > 0 {
		if len(digits) <= scale {
			digits = strings.Repeat("0", scale-len(digits)+1) + digits
		}
		digits = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	}
	if d.Negative() {
		return "-" + digits
	}
	return digits
}

// Rat returns d as an exact rational.
func (d Decimal) Rat() *big.Rat {
	den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale())), nil)
	return new(big.Rat).SetFrac(d.Mantissa(), den)
}
