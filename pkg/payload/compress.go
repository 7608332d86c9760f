// Package payload handles the envelopes NRBF payloads travel in outside a
// clipboard: compression, base64 text framing and content digests.
package payload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names a compression envelope.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionAuto Compression = "auto"
	CompressionZstd Compression = "zstd"
	CompressionGzip Compression = "gzip"
	CompressionLZ4  Compression = "lz4"
)

// DefaultMaxSize bounds decompressed output when no limit is given.
const DefaultMaxSize = 256 << 20

// ErrTooLarge is returned when decompressed output exceeds the size limit.
var ErrTooLarge = fmt.Errorf("payload: decompressed size exceeds limit: %w", errdefs.ErrResourceExhausted)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ParseCompression maps a config or flag value to a Compression. The empty
// string means auto.
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CompressionAuto, nil
	case CompressionNone, CompressionAuto, CompressionZstd, CompressionGzip, CompressionLZ4:
		return c, nil
	}
	return "", fmt.Errorf("unknown compression %q: %w", s, errdefs.ErrInvalidArgument)
}

// Detect sniffs the compression of data from its magic bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	}
	return CompressionNone
}

// Compress wraps data in the given envelope. Auto and none return data
// unchanged.
func Compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone, CompressionAuto, "":
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("compress zstd: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressionGzip, CompressionLZ4:
		var buf bytes.Buffer
		if err := CompressStream(&buf, bytes.NewReader(data), c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("compress: unknown compression %q: %w", c, errdefs.ErrInvalidArgument)
}

// CompressStream compresses src into dst.
func CompressStream(dst io.Writer, src io.Reader, c Compression) error {
	var w io.WriteCloser
	switch c {
	case CompressionNone, CompressionAuto, "":
		_, err := io.Copy(dst, src)
		return err
	case CompressionZstd:
		enc, err := zstd.NewWriter(dst)
		if err != nil {
			return fmt.Errorf("compress zstd: %w", err)
		}
		w = enc
	case CompressionGzip:
		w = gzip.NewWriter(dst)
	case CompressionLZ4:
		w = lz4.NewWriter(dst)
	default:
		return fmt.Errorf("compress: unknown compression %q: %w", c, errdefs.ErrInvalidArgument)
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return fmt.Errorf("compress %s: %w", c, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", c, err)
	}
	return nil
}

// Decompress removes the given envelope, sniffing it first for auto. The
// output is capped at maxSize bytes; 0 means DefaultMaxSize.
func Decompress(data []byte, c Compression, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if c == CompressionAuto || c == "" {
		c = Detect(data)
	}
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxSize)))
		if err != nil {
			return nil, fmt.Errorf("decompress zstd: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
				return nil, ErrTooLarge
			}
			return nil, fmt.Errorf("decompress zstd: %w", err)
		}
		return out, nil
	case CompressionGzip, CompressionLZ4:
		r, err := NewReader(bytes.NewReader(data), c)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return readLimited(r, maxSize)
	}
	return nil, fmt.Errorf("decompress: unknown compression %q: %w", c, errdefs.ErrInvalidArgument)
}

// NewReader wraps r with decompression. Auto is not accepted here because
// sniffing would consume input.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress zstd: %w", err)
		}
		return &zstdReadCloser{dec: dec}, nil
	case CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("decompress gzip: %w", err)
		}
		return zr, nil
	case CompressionLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	}
	return nil, fmt.Errorf("decompress: unsupported compression %q: %w", c, errdefs.ErrInvalidArgument)
}

type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if int64(len(out)) > maxSize {
		return nil, ErrTooLarge
	}
	return out, nil
}
