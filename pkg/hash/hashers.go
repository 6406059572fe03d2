// Package hash provides the two independent hash families used to place tuples:
// xxHash for partitioning and MurmurHash3 for in-memory hash table slots.
package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// sum varint-encodes the key and returns the given hasher's digest of it.
func sum(hasher func(b []byte) uint64, key int64) uint64 {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutVarint(buf, key)
	return hasher(buf[:n])
}

// XxSum returns the 64-bit xxHash digest of the given key.
func XxSum(key int64) uint64 {
	return sum(xxhash.Sum64, key)
}

// MurmurSum returns the 64-bit MurmurHash3 digest of the given key.
func MurmurSum(key int64) uint64 {
	return sum(murmur3.Sum64, key)
}
