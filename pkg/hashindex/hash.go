package hashindex

import (
	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// Hasher reduces an encoded key to the 32-bit hash the header and
// directory pages use to route lookups. A table only ever needs the
// low/high bits of this value, so 32 bits (rather than a wider digest)
// is deliberate: it matches the width the on-page directory/bucket
// index arithmetic is built around.
type Hasher func(data []byte) uint32

// XXHash is the default Hasher, truncating xxhash's 64-bit digest.
func XXHash(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

// Murmur3Hash is an alternate Hasher for callers who want a
// non-default distribution (e.g. to compare bucket fill patterns).
func Murmur3Hash(data []byte) uint32 {
	return murmur3.Sum32(data)
}
