package nrbf

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs"
)

var (
	// ErrFormat matches every error caused by malformed, truncated or
	// out-of-grammar input. It is classified as errdefs.ErrDataLoss.
	ErrFormat = fmt.Errorf("nrbf: invalid format: %w", errdefs.ErrDataLoss)

	// ErrInvalidArgument matches errors caused by values the codec cannot
	// represent, such as an unsupported Go type handed to the encoder.
	ErrInvalidArgument = fmt.Errorf("nrbf: %w", errdefs.ErrInvalidArgument)

	// ErrUnsupportedType matches errors for decoded type names the caller's
	// resolver does not know.
	ErrUnsupportedType = fmt.Errorf("nrbf: unsupported type: %w", errdefs.ErrNotImplemented)

	// ErrDuplicateObjectID is returned by RecordMap.Bind when an id is bound
	// twice. The decoder reports it wrapped in a FormatError.
	ErrDuplicateObjectID = errors.New("nrbf: duplicate object id")
)

// FormatError describes a decoding failure at a byte offset of the input.
type FormatError struct {
	Offset int64
	Msg    string
	Err    error // optional cause
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nrbf: invalid format at offset %d: %s: %v", e.Offset, e.Msg, e.Err)
	}
	return fmt.Sprintf("nrbf: invalid format at offset %d: %s", e.Offset, e.Msg)
}

func (e *FormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFormat, e.Err}
	}
	return []error{ErrFormat}
}

func formatErrorf(offset int, format string, args ...any) *FormatError {
	return &FormatError{Offset: int64(offset), Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedTypeError reports a class whose type name could not be mapped
// to a Go type.
type UnsupportedTypeError struct {
	TypeName    string
	LibraryName string
}

func (e *UnsupportedTypeError) Error() string {
	if e.LibraryName == "" {
		return fmt.Sprintf("nrbf: unsupported type %q", e.TypeName)
	}
	return fmt.Sprintf("nrbf: unsupported type %q from %q", e.TypeName, e.LibraryName)
}

func (e *UnsupportedTypeError) Unwrap() error { return ErrUnsupportedType }

func invalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsFormat reports whether err was caused by malformed input.
func IsFormat(err error) bool { return errors.Is(err, ErrFormat) }

// IsInvalidArgument reports whether err was caused by an unsupported value or
// primitive kind.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsUnsupportedType reports whether err was caused by an unresolvable type.
func IsUnsupportedType(err error) bool { return errors.Is(err, ErrUnsupportedType) }
