package payload

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"unicode"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
)

// Options describes how a payload was, or should be, wrapped.
type Options struct {
	// Compression is applied inside any base64 framing.
	Compression Compression
	// Base64 frames the payload as standard base64 text.
	Base64 bool
	// Hex frames the payload as hex digits. It takes precedence over Base64.
	Hex bool
	// MaxSize caps decompressed output; 0 means DefaultMaxSize.
	MaxSize int64
}

// Unwrap strips text framing and compression from raw input. With auto
// compression the payload is sniffed after the text is decoded.
func Unwrap(data []byte, opts Options) ([]byte, error) {
	switch {
	case opts.Hex:
		decoded, err := DecodeHex(data)
		if err != nil {
			return nil, err
		}
		data = decoded
	case opts.Base64:
		decoded, err := DecodeBase64(data)
		if err != nil {
			return nil, err
		}
		data = decoded
	}
	c := opts.Compression
	if c == CompressionAuto || c == "" {
		c = Detect(data)
		if c != CompressionNone {
			log.L.WithField("compression", c).Debug("detected compressed payload")
		}
	}
	return Decompress(data, c, opts.MaxSize)
}

// Wrap is the inverse of Unwrap. Auto compression is treated as none.
func Wrap(data []byte, opts Options) ([]byte, error) {
	out, err := Compress(data, opts.Compression)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.Hex:
		out = []byte(hex.EncodeToString(out))
	case opts.Base64:
		out = EncodeBase64(out)
	}
	return out, nil
}

// EncodeBase64 returns data as standard padded base64.
func EncodeBase64(data []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out
}

func stripSpace(data []byte) []byte {
	return bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)
}

// DecodeBase64 decodes standard base64, ignoring whitespace anywhere in the
// input.
func DecodeBase64(data []byte) ([]byte, error) {
	compact := stripSpace(data)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(compact)))
	n, err := base64.StdEncoding.Decode(out, compact)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	return out[:n], nil
}

// DecodeHex decodes hex digits, allowing whitespace between pairs.
func DecodeHex(data []byte) ([]byte, error) {
	compact := stripSpace(data)
	out := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(out, compact)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %v: %w", err, errdefs.ErrInvalidArgument)
	}
	return out[:n], nil
}
