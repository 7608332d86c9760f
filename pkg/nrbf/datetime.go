package nrbf

import (
	"fmt"
	"time"
)

// DateTimeKind is the 2-bit kind tag stored in the top bits of a serialized
// System.DateTime.
type DateTimeKind uint8

const (
	KindUnspecified DateTimeKind = 0
	KindUTC         DateTimeKind = 1
	KindLocal       DateTimeKind = 2
	// KindLocalAmbiguousDST marks a local time that falls in the repeated
	// hour of a daylight saving transition.
	KindLocalAmbiguousDST DateTimeKind = 3
)

func (k DateTimeKind) String() string {
	switch k {
	case KindUnspecified:
		return "Unspecified"
	case KindUTC:
		return "Utc"
	case KindLocal:
		return "Local"
	case KindLocalAmbiguousDST:
		return "LocalAmbiguousDst"
	}
	return fmt.Sprintf("DateTimeKind(%d)", uint8(k))
}

const (
	dateTimeTicksMask = 0x3fffffffffffffff
	dateTimeKindShift = 62

	// MaxDateTimeTicks is the tick count of 9999-12-31T23:59:59.9999999.
	MaxDateTimeTicks int64 = 3155378975999999999

	ticksPerSecond = 10_000_000
	// unixEpochTicks is the tick count of 1970-01-01T00:00:00.
	unixEpochTicks int64 = 621355968000000000
)

// DateTime is the raw 64-bit System.DateTime payload: 62 bits of 100ns ticks
// since 0001-01-01 and a 2-bit kind tag. The bits round-trip unchanged, so a
// value decoded from a stream re-encodes to the same payload.
type DateTime struct {
	bits uint64
}

// NewDateTime builds a DateTime from a tick count and kind.
func NewDateTime(ticks int64, kind DateTimeKind) (DateTime, error) {
	if ticks < 0 || ticks > MaxDateTimeTicks {
		return DateTime{}, invalidArgumentf("datetime ticks %d out of range", ticks)
	}
	if kind > KindLocalAmbiguousDST {
		return DateTime{}, invalidArgumentf("invalid datetime kind %d", kind)
	}
	return DateTime{bits: uint64(ticks) | uint64(kind)<<dateTimeKindShift}, nil
}

// DateTimeFromBits reinterprets a serialized 64-bit payload, validating that
// the tick count is in range.
func DateTimeFromBits(bits uint64) (DateTime, error) {
	ticks := int64(bits & dateTimeTicksMask)
	if ticks > MaxDateTimeTicks {
		return DateTime{}, invalidArgumentf("datetime ticks %d out of range", ticks)
	}
	return DateTime{bits: bits}, nil
}

// DateTimeFromTime converts t to a DateTime with the given kind. The wall
// clock of t in its own location becomes the tick count.
func DateTimeFromTime(t time.Time, kind DateTimeKind) (DateTime, error) {
	_, offset := t.Zone()
	sec := t.Unix() + int64(offset)
	if sec < -unixEpochTicks/ticksPerSecond || sec > (MaxDateTimeTicks-unixEpochTicks)/ticksPerSecond {
		return DateTime{}, invalidArgumentf("time %v is outside the datetime range", t)
	}
	ticks := sec*ticksPerSecond + int64(t.Nanosecond()/100) + unixEpochTicks
	return NewDateTime(ticks, kind)
}

// Bits returns the serialized 64-bit payload.
func (d DateTime) Bits() uint64 { return d.bits }

// Ticks returns the number of 100ns intervals since 0001-01-01T00:00:00.
func (d DateTime) Ticks() int64 { return int64(d.bits & dateTimeTicksMask) }

// Kind returns the kind tag.
func (d DateTime) Kind() DateTimeKind { return DateTimeKind(d.bits >> dateTimeKindShift) }

// Time returns the wall clock stored in d as a time in UTC. The kind tag is
// not applied; callers that care about Local values consult Kind.
func (d DateTime) Time() time.Time {
	rel := d.Ticks() - unixEpochTicks
	sec := rel / ticksPerSecond
	rem := rel % ticksPerSecond
	if rem < 0 {
		sec--
		rem += ticksPerSecond
	}
	return time.Unix(sec, rem*100).UTC()
}

func (d DateTime) String() string {
	return d.Time().Format("2006-01-02T15:04:05.0000000") + " (" + d.Kind().String() + ")"
}

// TimeSpan is a System.TimeSpan: a signed count of 100ns ticks.
type TimeSpan int64

// TimeSpanFromDuration converts a duration, truncating to 100ns.
func TimeSpanFromDuration(d time.Duration) TimeSpan { return TimeSpan(d / 100) }

// Duration converts ts to a time.Duration, saturating at the duration range.
func (ts TimeSpan) Duration() time.Duration {
	const limit = int64(1<<63-1) / 100
	switch {
	case int64(ts) > limit:
		return time.Duration(1<<63 - 1)
	case int64(ts) < -limit:
		return time.Duration(-1 << 63)
	}
	return time.Duration(ts) * 100
}

func (ts TimeSpan) String() string { return ts.Duration().String() }
