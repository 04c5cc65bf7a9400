package hashtable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
)

// HashFunc hashes a key of type K to an unsigned integer wide enough to
// address the table. It must be a pure function: the same key must always
// hash to the same value for the lifetime of a table.
type HashFunc[K any] func(key K) uint64

// EqualFunc reports whether a and b are equivalent keys. It must respect the
// usual equivalence laws (reflexive, symmetric, transitive).
type EqualFunc[K any] func(a, b K) bool

// Equal returns the EqualFunc for comparable key types backed by Go's
// builtin == operator.
func Equal[K comparable]() EqualFunc[K] {
	return func(a, b K) bool { return a == b }
}

// mix64 scrambles a 64-bit integer into a well-spread hash; it backs
// HashUint64. It is an ordinary Knuth-style multiplicative mixer: no essential
// design decision lives here, it merely has to scatter bits well.
func mix64(h uint64) uint64 {
	const knuth64 = 0x9E3779B97F4A7C15 // 2^64 / golden ratio, Knuth multiplicative hash constant
	h ^= h >> 33
	h *= knuth64
	h ^= h >> 29
	return h
}

// HashBytes hashes an arbitrary byte string with xxhash, the default hasher
// this module recommends for byte-slice and string keys (grounded on
// zeebo/gofaster's htable, which imports the same xxhash family as its
// record hasher).
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// HashString hashes a string with xxhash without a copy to []byte.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// MurmurHashBytes hashes an arbitrary byte string with murmur3, provided as
// an alternative default hasher for callers who want a hash family
// independent of xxhash (e.g. to cross-check two tables keyed by the same
// data but built with different hashers).
func MurmurHashBytes(b []byte) uint64 {
	return murmur3.Sum64(b)
}

// HashUint64 scrambles a uint64 key directly, for callers keying tables by
// small integers where hashing through a byte buffer would be wasteful.
func HashUint64(k uint64) uint64 {
	return mix64(k)
}

// mix2 derives robin32's tag byte from a hash by multiplying with a 64-bit
// Knuth-style constant. Unlike mix64, no extra xor-shift folding is applied.
// The tag keeps only the low 8 bits of the product, and those depend only on
// the low 8 bits of h, so the tag is a fixed permutation of h's low byte:
// keys in one group that differ in their low 5 bits always get different
// tags, while higher hash bits do not reach the tag at all.
func mix2(h uint64) uint64 {
	const knuth2 = 14695981039346656037
	return h * knuth2
}
