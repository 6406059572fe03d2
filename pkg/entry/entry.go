package entry

import (
	"encoding/binary"
	"fmt"
	"io"

	"dinojoin/pkg/hash"
)

// Size is the number of bytes a marshalled entry occupies on a page.
const Size int64 = binary.MaxVarintLen64 * 2 // int64 key, int64 value

// Entry is a fixed-size tuple: a join key and an opaque payload.
type Entry struct {
	Key   int64
	Value int64
}

// New constructs and returns a new Entry with the specified key and value.
func New(key int64, value int64) Entry {
	return Entry{key, value}
}

// PartitionHash is the hash used to assign the entry to a bucket.
func (entry Entry) PartitionHash() uint64 {
	return hash.XxSum(entry.Key)
}

// ProbeHash is the hash used to assign the entry to a hash table slot inside a bucket.
// It is independent of PartitionHash.
func (entry Entry) ProbeHash() uint64 {
	return hash.MurmurSum(entry.Key)
}

// EqualsByKey reports whether both entries carry the same join key.
func (entry Entry) EqualsByKey(other Entry) bool {
	return entry.Key == other.Key
}

// Marshal serializes a given entry into a byte array of length Size.
func (entry Entry) Marshal() []byte {
	data := make([]byte, Size)
	binary.PutVarint(data[:binary.MaxVarintLen64], entry.Key)
	binary.PutVarint(data[binary.MaxVarintLen64:], entry.Value)
	return data
}

// UnmarshalEntry deserializes a byte array into an entry.
func UnmarshalEntry(data []byte) Entry {
	k, _ := binary.Varint(data[:len(data)/2])
	v, _ := binary.Varint(data[len(data)/2:])
	return Entry{Key: k, Value: v}
}

// Print writes the entry to the specified writer in the following format: (<key>, <value>)
func (entry Entry) Print(w io.Writer) {
	fmt.Fprintf(w, "(%d, %d), ", entry.Key, entry.Value)
}

// String returns the entry in the same format Print uses, without the trailing separator.
func (entry Entry) String() string {
	return fmt.Sprintf("(%d, %d)", entry.Key, entry.Value)
}
