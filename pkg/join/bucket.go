// Package join implements grace hash join: both relations are hash-partitioned
// into co-located buckets on disk, then each bucket is joined in memory by
// building a hash table over its smaller side and probing it with the larger.
// At no point does the join hold more pages in memory than the pager has frames.
package join

import (
	"fmt"
	"io"

	"dinojoin/pkg/disk"
)

// Side names one of the two relations being joined.
type Side int

const (
	Left Side = iota
	Right
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// ParseSide is the inverse of Side.String.
func ParseSide(s string) (Side, error) {
	switch s {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return Left, fmt.Errorf("unknown side %q", s)
}

// Bucket is one partition: the disk pages holding each side's tuples that
// hashed to it, and how many tuples each side contributed.
type Bucket struct {
	index  int              // Position of the bucket in the partition output
	pages  [2][]disk.PageID // Page ids per side, in flush order
	counts [2]int64         // Tuples routed to the bucket per side
}

// NewBucket returns an empty bucket with the given index.
func NewBucket(index int) *Bucket {
	return &Bucket{index: index}
}

// RestoreBucket rebuilds a bucket from recorded page ids and counts.
func RestoreBucket(index int, leftPages, rightPages []disk.PageID, numLeft, numRight int64) *Bucket {
	b := NewBucket(index)
	b.pages[Left] = append([]disk.PageID(nil), leftPages...)
	b.pages[Right] = append([]disk.PageID(nil), rightPages...)
	b.counts[Left] = numLeft
	b.counts[Right] = numRight
	return b
}

// Index returns the bucket's position among all buckets.
func (b *Bucket) Index() int {
	return b.index
}

// Pages returns the page ids holding the given side's tuples.
func (b *Bucket) Pages(side Side) []disk.PageID {
	return b.pages[side]
}

// Count returns the number of tuples the given side routed to this bucket.
func (b *Bucket) Count(side Side) int64 {
	return b.counts[side]
}

// BuildSide returns the side with fewer tuples; ties go to the left.
func (b *Bucket) BuildSide() Side {
	if b.counts[Left] <= b.counts[Right] {
		return Left
	}
	return Right
}

// IsJoinable reports whether both sides hold tuples.
func (b *Bucket) IsJoinable() bool {
	return b.counts[Left] > 0 && b.counts[Right] > 0
}

func (b *Bucket) addPage(side Side, id disk.PageID) {
	b.pages[side] = append(b.pages[side], id)
}

func (b *Bucket) addTuple(side Side) {
	b.counts[side]++
}

// Print writes a one-line description of the bucket to w.
func (b *Bucket) Print(w io.Writer) {
	fmt.Fprintf(w, "bucket %d: left %d tuples %v, right %d tuples %v\n",
		b.index, b.counts[Left], b.pages[Left], b.counts[Right], b.pages[Right])
}
