package payload

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

var sample = bytes.Repeat([]byte("\x00\x01\x00\x00\x00\xff\xff\xff\xff nrbf payload\n"), 64)

func TestCompressRoundTrip(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionZstd, CompressionGzip, CompressionLZ4} {
		t.Run(string(c), func(t *testing.T) {
			compressed, err := Compress(sample, c)
			assert.NilError(t, err)
			if got := Detect(compressed); got != c {
				t.Fatalf("Detect = %q, want %q", got, c)
			}

			out, err := Decompress(compressed, c, 0)
			assert.NilError(t, err)
			assert.Check(t, bytes.Equal(out, sample), "explicit round trip mismatch")

			out, err = Decompress(compressed, CompressionAuto, 0)
			assert.NilError(t, err)
			assert.Check(t, bytes.Equal(out, sample), "auto round trip mismatch")
		})
	}
}

func TestCompressStream(t *testing.T) {
	for _, c := range []Compression{CompressionZstd, CompressionGzip, CompressionLZ4} {
		var buf bytes.Buffer
		assert.NilError(t, CompressStream(&buf, bytes.NewReader(sample), c))

		r, err := NewReader(&buf, c)
		assert.NilError(t, err)
		out, err := readLimited(r, DefaultMaxSize)
		assert.NilError(t, err)
		assert.NilError(t, r.Close())
		if !bytes.Equal(out, sample) {
			t.Fatalf("%s stream round trip: got %d bytes, want %d", c, len(out), len(sample))
		}
	}
}

func TestCompressEmptyInput(t *testing.T) {
	compressed, err := Compress(nil, CompressionZstd)
	assert.NilError(t, err)
	out, err := Decompress(compressed, CompressionZstd, 0)
	assert.NilError(t, err)
	assert.Check(t, is.Len(out, 0))
}

func TestDecompressLimit(t *testing.T) {
	compressed, err := Compress(sample, CompressionGzip)
	assert.NilError(t, err)

	_, err = Decompress(compressed, CompressionGzip, int64(len(sample)-1))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Check(t, errdefs.IsResourceExhausted(err))

	out, err := Decompress(compressed, CompressionGzip, int64(len(sample)))
	assert.NilError(t, err)
	assert.Check(t, is.Len(out, len(sample)))
}

func TestDecompressCorrupt(t *testing.T) {
	_, err := Decompress([]byte{0x1f, 0x8b, 0x00}, CompressionAuto, 0)
	assert.Check(t, err != nil, "truncated gzip decoded")

	_, err = Decompress([]byte{0x28, 0xb5, 0x2f, 0xfd, 0xff, 0xff}, CompressionAuto, 0)
	assert.Check(t, err != nil, "corrupt zstd decoded")
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want Compression
	}{
		{"", CompressionAuto},
		{"auto", CompressionAuto},
		{" ZSTD ", CompressionZstd},
		{"gzip", CompressionGzip},
		{"lz4", CompressionLZ4},
		{"none", CompressionNone},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		assert.NilError(t, err)
		if got != tt.want {
			t.Fatalf("ParseCompression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	_, err := ParseCompression("brotli")
	assert.Check(t, errdefs.IsInvalidArgument(err))
	_, err = Compress(sample, "brotli")
	assert.Check(t, errdefs.IsInvalidArgument(err))
	_, err = NewReader(bytes.NewReader(nil), CompressionAuto)
	assert.Check(t, errdefs.IsInvalidArgument(err))
}

func TestEnvelope(t *testing.T) {
	opts := Options{Compression: CompressionZstd, Base64: true}
	wrapped, err := Wrap(sample, opts)
	assert.NilError(t, err)

	// Line-wrapped base64 as pasted from a terminal.
	var folded strings.Builder
	for i := 0; i < len(wrapped); i += 76 {
		end := min(i+76, len(wrapped))
		folded.Write(wrapped[i:end])
		folded.WriteString("\r\n")
	}

	out, err := Unwrap([]byte(folded.String()), Options{Base64: true})
	assert.NilError(t, err)
	assert.Check(t, bytes.Equal(out, sample), "unwrap mismatch")

	_, err = Unwrap([]byte("not base64!"), Options{Base64: true})
	assert.Check(t, errdefs.IsInvalidArgument(err))

	plain, err := Unwrap(sample, Options{})
	assert.NilError(t, err)
	assert.Check(t, bytes.Equal(plain, sample))
}

func TestBase64(t *testing.T) {
	assert.Equal(t, string(EncodeBase64([]byte("AAEAAAD/"))), "QUFFQUFBRC8=")
	out, err := DecodeBase64([]byte(" QUFF\nQUFBRC8=\t"))
	assert.NilError(t, err)
	assert.Equal(t, string(out), "AAEAAAD/")
}

func TestDigest(t *testing.T) {
	empty := Sum(nil)
	assert.Equal(t, string(empty), "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8")
	assert.Equal(t, empty.Short(), "0e5751c026e5")

	d, n, err := SumReader(BLAKE2b, bytes.NewReader(sample))
	assert.NilError(t, err)
	assert.Equal(t, n, int64(len(sample)))
	assert.Equal(t, d, Sum(sample))
	if Sum([]byte("a")) == Sum([]byte("b")) {
		t.Fatalf("distinct inputs share a digest")
	}
}

func TestDigestBLAKE3(t *testing.T) {
	empty, err := SumWith(BLAKE3, nil)
	assert.NilError(t, err)
	assert.Equal(t, string(empty), "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262")

	d, _, err := SumReader(BLAKE3, bytes.NewReader(sample))
	assert.NilError(t, err)
	want, err := SumWith(BLAKE3, sample)
	assert.NilError(t, err)
	assert.Equal(t, d, want)

	a, err := ParseAlgorithm("")
	assert.NilError(t, err)
	assert.Equal(t, a, BLAKE2b)
	_, err = ParseAlgorithm("md5")
	assert.Check(t, errdefs.IsInvalidArgument(err))
	_, err = SumWith("md5", sample)
	assert.Check(t, errdefs.IsInvalidArgument(err))
}

func TestHexEnvelope(t *testing.T) {
	out, err := Unwrap([]byte("0001 0000\n00ff"), Options{Hex: true, Base64: true})
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0xff})

	wrapped, err := Wrap([]byte{0xab, 0x01}, Options{Hex: true})
	assert.NilError(t, err)
	assert.Equal(t, string(wrapped), "ab01")

	_, err = DecodeHex([]byte("abc"))
	assert.Check(t, errdefs.IsInvalidArgument(err))
}

func TestReadLimitedError(t *testing.T) {
	_, err := readLimited(errReader{}, 10)
	if !errors.Is(err, errBoom) {
		t.Fatalf("readLimited err = %v, want errBoom", err)
	}
}

var errBoom = errors.New("boom")

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errBoom }
