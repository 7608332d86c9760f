package payload

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Algorithm names a digest function.
type Algorithm string

const (
	BLAKE2b Algorithm = "blake2b"
	BLAKE3  Algorithm = "blake3"
)

// ParseAlgorithm maps a flag value to an Algorithm. The empty string means
// BLAKE2b.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return BLAKE2b, nil
	case BLAKE2b, BLAKE3:
		return a, nil
	}
	return "", fmt.Errorf("unknown digest algorithm %q: %w", s, errdefs.ErrInvalidArgument)
}

func (a Algorithm) new() (hash.Hash, error) {
	switch a {
	case BLAKE2b, "":
		return blake2b.New256(nil)
	case BLAKE3:
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("unknown digest algorithm %q: %w", string(a), errdefs.ErrInvalidArgument)
}

// Digest is a hex-encoded 256-bit sum.
type Digest string

// Short returns the first 12 hex characters.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}

// Sum returns the BLAKE2b-256 digest of data.
func Sum(data []byte) Digest {
	h := blake2b.Sum256(data)
	return Digest(hex.EncodeToString(h[:]))
}

// SumWith returns the digest of data under a.
func SumWith(a Algorithm, data []byte) (Digest, error) {
	switch a {
	case BLAKE2b, "":
		return Sum(data), nil
	case BLAKE3:
		h := blake3.Sum256(data)
		return Digest(hex.EncodeToString(h[:])), nil
	}
	return "", fmt.Errorf("unknown digest algorithm %q: %w", string(a), errdefs.ErrInvalidArgument)
}

// SumReader digests everything read from r under a.
func SumReader(a Algorithm, r io.Reader) (Digest, int64, error) {
	h, err := a.new()
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, fmt.Errorf("digest: %w", err)
	}
	return Digest(hex.EncodeToString(h.Sum(nil))), n, nil
}
