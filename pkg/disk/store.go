// Package disk implements the block-addressed store that relations, partitions
// and join results live on. Pages are immutable once written: every write
// allocates a fresh page id.
package disk

import (
	"errors"
	"fmt"

	"github.com/ncw/directio"
)

// Pagesize is the size of a disk page in bytes - defaults to 4kb.
const Pagesize int64 = directio.BlockSize

// PageID identifies a page on disk.
type PageID int64

// NoPage is the PageID used when there is no page.
const NoPage PageID = -1

// ErrInvalidPageID is returned when reading a page that was never written.
var ErrInvalidPageID = errors.New("invalid page id")

// ErrPageTooLarge is returned when writing more than Pagesize bytes.
var ErrPageTooLarge = errors.New("page data exceeds page size")

// PageRange is the half-open range [Start, End) of contiguous page ids holding a relation.
type PageRange struct {
	Start PageID
	End   PageID
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int {
	if r.End < r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Validate checks that the range is well formed.
func (r PageRange) Validate() error {
	if r.Start < 0 || r.End < r.Start {
		return fmt.Errorf("%w: range [%d, %d)", ErrInvalidPageID, r.Start, r.End)
	}
	return nil
}

// IDs lists every page id in the range.
func (r PageRange) IDs() []PageID {
	ids := make([]PageID, 0, r.Len())
	for id := r.Start; id < r.End; id++ {
		ids = append(ids, id)
	}
	return ids
}

func (r PageRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Stats counts the page I/O a store has served.
type Stats struct {
	Reads  int64
	Writes int64
}

// Sub returns the I/O performed between an earlier snapshot and s.
func (s Stats) Sub(earlier Stats) Stats {
	return Stats{Reads: s.Reads - earlier.Reads, Writes: s.Writes - earlier.Writes}
}

// Store is an append-only block store.
type Store interface {
	// ReadPage returns a copy of a previously written page.
	ReadPage(id PageID) ([]byte, error)
	// WritePage stores data as a new page and returns its id.
	WritePage(data []byte) (PageID, error)
	// NumPages returns the number of pages written so far; ids are [0, NumPages).
	NumPages() int64
	// Stats returns the read and write counters.
	Stats() Stats
	Close() error
}
