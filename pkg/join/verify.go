package join

import (
	"fmt"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/pager"

	mapset "github.com/deckarep/golang-set/v2"
)

// VerifyBuckets checks the partition output against the disk: bucket indices
// are positional, no page is claimed twice, every page holds only tuples
// that hash to its bucket, and each bucket's counts match its pages.
// Pages are decoded straight from disk, bypassing the pager.
func VerifyBuckets(d disk.Store, buckets []*Bucket, opts ...Option) error {
	o := newOptions(opts)
	seen := mapset.NewThreadUnsafeSet[disk.PageID]()
	numBuckets := uint64(len(buckets))
	for i, b := range buckets {
		if b.Index() != i {
			return fmt.Errorf("bucket at position %d has index %d", i, b.Index())
		}
		for _, side := range []Side{Left, Right} {
			var count int64
			for _, id := range b.Pages(side) {
				if !seen.Add(id) {
					return fmt.Errorf("page %d appears in more than one bucket", id)
				}
				data, err := d.ReadPage(id)
				if err != nil {
					return fmt.Errorf("bucket %d: %w", i, err)
				}
				tuples, width, err := pager.Decode(data)
				if err != nil {
					return fmt.Errorf("bucket %d page %d: %w", i, id, err)
				}
				if width != pager.TupleWidth {
					return fmt.Errorf("bucket %d page %d holds records of width %d", i, id, width)
				}
				if len(tuples) == 0 {
					return fmt.Errorf("bucket %d page %d is empty", i, id)
				}
				for _, t := range tuples {
					if got := o.partitionHash(t) % numBuckets; got != uint64(i) {
						return fmt.Errorf("tuple %v in bucket %d hashes to bucket %d", t, i, got)
					}
				}
				count += int64(len(tuples))
			}
			if count != b.Count(side) {
				return fmt.Errorf("bucket %d %s count is %d but its pages hold %d tuples", i, side, b.Count(side), count)
			}
		}
	}
	return nil
}
