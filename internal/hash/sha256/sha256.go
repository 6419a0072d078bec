// Package sha256 digests upstream bodies so snapshots and ledger rows can be
// correlated.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the digest prefix length used in object names.
const ShortLen = 16

// Hasher implements resolver.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short trims a hex digest to ShortLen characters.
func Short(digest string) string {
	if len(digest) <= ShortLen {
		return digest
	}
	return digest[:ShortLen]
}
