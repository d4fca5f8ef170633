package chunk

import (
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

// Supported digest algorithms. Both produce 256-bit digests.
const (
	HashSHA256 = "sha256"
	HashBLAKE3 = "blake3"
)

// Hasher computes content digests for chunks and assembled files.
type Hasher struct {
	algorithm string
}

// NewHasher returns a hasher for the named algorithm ("" means sha256).
func NewHasher(algorithm string) (*Hasher, error) {
	switch algorithm {
	case HashSHA256, "":
		return &Hasher{algorithm: HashSHA256}, nil
	case HashBLAKE3:
		return &Hasher{algorithm: HashBLAKE3}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// Algorithm returns the canonical algorithm name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// New returns a streaming hash, used for whole-file digests.
func (h *Hasher) New() hash.Hash {
	if h.algorithm == HashBLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// Sum returns the lowercase hex digest of data.
func (h *Hasher) Sum(data []byte) string {
	d := h.New()
	d.Write(data)
	return Hex(d)
}

// Hex formats the current state of d as lowercase hex.
func Hex(d hash.Hash) string {
	return hex.EncodeToString(d.Sum(nil))
}
