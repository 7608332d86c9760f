// Package interchange moves Go values in and out of NRBF payloads the way
// clipboard and drag-drop data exchange does. It knows the handful of
// framework types such payloads carry (boxed primitives, primitive arrays,
// List<T>, ArrayList, Hashtable, the System.Drawing structs and
// NotSupportedException) and binds any other class to a Go struct through a
// caller supplied TypeResolver.
//
// The Try entry points report false for values and payloads they cannot
// represent so callers can fall back to another format. Only corrupt input
// and write failures are errors.
package interchange

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/containerd/log"

	"github.com/odvcencio/nrbf/pkg/nrbf"
)

// Options configures a Serializer.
type Options struct {
	// Resolver binds class names that are not well known to Go types. With
	// no resolver such classes are unsupported.
	Resolver TypeResolver
	// Decode limits the decoder. Nil selects the decoder defaults.
	Decode *nrbf.DecodeOptions
	// Bypass routes every call to the caller's fallback: Try methods report
	// false without touching their arguments.
	Bypass bool
}

// Serializer reads and writes interchange payloads. It holds no mutable
// state and is safe for concurrent use.
type Serializer struct {
	resolver TypeResolver
	decode   nrbf.DecodeOptions
	bypass   bool
}

// New returns a Serializer configured by opts.
func New(opts Options) *Serializer {
	s := &Serializer{resolver: opts.Resolver, bypass: opts.Bypass}
	if opts.Decode != nil {
		s.decode = *opts.Decode
		s.decode.OnRecord = nil
	}
	return s
}

// Marshal encodes v as a complete payload.
func (s *Serializer) Marshal(v any) ([]byte, error) {
	value, err := newWriteState().value(reflect.ValueOf(v), 0)
	if err != nil {
		return nil, err
	}
	return nrbf.Marshal(value)
}

// Unmarshal decodes a payload and converts its root to Go values. Classes
// that are neither well known nor resolvable fail with an error matching
// nrbf.ErrUnsupportedType.
func (s *Serializer) Unmarshal(data []byte) (any, error) {
	doc, err := nrbf.Decode(data, s.decodeOptions())
	if err != nil {
		return nil, err
	}
	return s.convert(doc, nil)
}

func (s *Serializer) decodeOptions() *nrbf.DecodeOptions {
	opts := s.decode
	return &opts
}

func (s *Serializer) convert(doc *nrbf.Document, want reflect.Type) (any, error) {
	v, err := doc.Value()
	if err != nil {
		return nil, err
	}
	return newReadState(s.resolver).root(v, want)
}

// TryWriteObject writes v to w if it can be represented. The payload is
// built in memory first, so w sees nothing unless the whole write succeeds.
func (s *Serializer) TryWriteObject(w io.Writer, v any) (bool, error) {
	if s.bypass {
		return false, nil
	}
	data, err := s.Marshal(v)
	if err != nil {
		if unsupported(err) {
			log.L.WithError(err).WithField("type", fmt.Sprintf("%T", v)).Debug("value has no payload form")
			return false, nil
		}
		return false, err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("write payload: %w", err)
	}
	return true, nil
}

// TryReadObject reads one payload from r. It reports false when the payload
// is well formed but its root cannot be turned into Go values, and an error
// when the payload itself is corrupt.
func (s *Serializer) TryReadObject(r io.Reader) (any, bool, error) {
	return s.tryRead(r, nil)
}

// ReadAs reads a payload whose root is a T. The type parameter also binds a
// root class that the resolver does not know when T is a struct or pointer
// to struct.
func ReadAs[T any](s *Serializer, r io.Reader) (T, bool, error) {
	var zero T
	v, ok, err := s.tryRead(r, reflect.TypeFor[T]())
	if !ok || err != nil {
		return zero, ok, err
	}
	t, ok := v.(T)
	if !ok {
		log.L.WithField("type", fmt.Sprintf("%T", v)).Debugf("payload root is not a %T", zero)
		return zero, false, nil
	}
	return t, true, nil
}

func (s *Serializer) tryRead(r io.Reader, want reflect.Type) (any, bool, error) {
	if s.bypass {
		return nil, false, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("read payload: %w", err)
	}
	if len(data) == 0 || nrbf.RecordType(data[0]) != nrbf.RecordSerializedStreamHeader {
		log.L.WithField("bytes", len(data)).Debug("input is not an nrbf payload")
		return nil, false, nil
	}
	doc, err := nrbf.Decode(data, s.decodeOptions())
	if err != nil {
		return nil, false, err
	}
	v, err := s.convert(doc, want)
	if err != nil {
		if unsupported(err) {
			log.L.WithError(err).Debug("payload root has no Go form")
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

func unsupported(err error) bool {
	return nrbf.IsUnsupportedType(err) || nrbf.IsInvalidArgument(err)
}

// errLayout marks a well-known class whose members do not have the layout
// its writer produces.
var errLayout = errors.New("unexpected member layout")

func layoutError(name string) error {
	return &layoutErr{name: name}
}

type layoutErr struct{ name string }

func (e *layoutErr) Error() string { return fmt.Sprintf("%s: %v", e.name, errLayout) }

func (e *layoutErr) Unwrap() []error { return []error{errLayout, nrbf.ErrUnsupportedType} }

func unsupportedValuef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", nrbf.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
