// Package sha256 fingerprints result snapshots so unchanged bytes are not
// mirrored twice.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest is a SHA-256 sum. The zero Digest means "nothing seen yet".
type Digest [sha256.Size]byte

// Sum fingerprints data.
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// String returns the hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}
