package testutil

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

// SHA256Hex returns the SHA-256 digest of data as a lowercase hex string.
// Matches the digest format used by the chunk store and vault.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Pattern returns n bytes where byte i is i mod 251. The prime period keeps
// chunk boundaries from lining up with repeats.
func Pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}
