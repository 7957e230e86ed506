// Package hash provides the content-addressed identity used to name
// compiled query execution units.
package hash

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// QueryHash uniquely identifies a compiled query execution unit.
//
// It is a cryptographic digest rather than a structural hash of the
// logical plan: this gives uniqueness without a structural comparison,
// yields a fixed-size identity usable as a map key even for units that
// own more than one physical plan (semi-joins), and decouples identity
// from the physical-plan representation so that planner changes never
// invalidate an existing subscriber's identity.
type QueryHash struct {
	data [Size]byte
}

// None is the all-zero sentinel. It is valid for construction (tests
// and benchmarks use it), but a [Registry] must never index two
// distinct units under it; see Registry.Subscribe.
var None = QueryHash{}

// OfBytes hashes an arbitrary byte string.
func OfBytes(b []byte) QueryHash {
	return QueryHash{data: sha256.Sum256(b)}
}

// OfString hashes the UTF-8 bytes of s. Typically s is the normalized
// SQL text of the subscribed query.
func OfString(s string) QueryHash {
	return OfBytes([]byte(s))
}

// Bytes returns the raw 32-byte digest.
func (h QueryHash) Bytes() [Size]byte {
	return h.data
}

// IsNone reports whether h is the all-zero sentinel.
func (h QueryHash) IsNone() bool {
	return h == None
}

// Equal compares two hashes byte-wise. Since both operands are trusted
// (derived from normalized SQL text the database itself produced, not
// from untrusted wire input), a constant-time comparison is not
// required for secrecy, but subtle.ConstantTimeCompare is used anyway
// since it is free here and avoids any chance of a timing side channel
// being relied upon accidentally elsewhere.
func (h QueryHash) Equal(o QueryHash) bool {
	return subtle.ConstantTimeCompare(h.data[:], o.data[:]) == 1
}

// String returns the lowercase hex encoding of the digest.
func (h QueryHash) String() string {
	return hex.EncodeToString(h.data[:])
}
