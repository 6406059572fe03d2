// Package pager implements the buffer pool: a fixed number of page-sized
// frames that the join phases load disk pages into and flush new pages from.
package pager

import (
	"errors"
	"fmt"

	"dinojoin/pkg/disk"

	"github.com/bits-and-blooms/bitset"
	"github.com/ncw/directio"
)

// Error for a frame index outside [0, NumFrames())
var ErrInvalidFrameIndex = errors.New("invalid frame index")

// Error for a disk page whose header does not describe a valid page
var ErrCorruptPage = errors.New("corrupt page")

// Error for a page that holds more records than the pager's page capacity
var ErrPageOverflow = errors.New("page holds more entries than the page capacity")

// Pager is a buffer pool of a fixed number of frames. Frames are addressed by
// index only; the caller decides what each index is used for.
type Pager struct {
	frames   []*Page        // One page per frame
	capacity int64          // Number of records each page holds
	occupied *bitset.BitSet // Frames that currently hold at least one entry
}

// New constructs a pager with numFrames frames whose pages hold up to
// recordsPerPage records each.
func New(numFrames int, recordsPerPage int64) (*Pager, error) {
	if numFrames <= 0 {
		return nil, fmt.Errorf("pager needs at least one frame, got %d", numFrames)
	}
	if recordsPerPage <= 0 || recordsPerPage > MaxRecordsPerPage {
		return nil, fmt.Errorf("records per page must be in [1, %d], got %d", MaxRecordsPerPage, recordsPerPage)
	}
	pager := &Pager{
		frames:   make([]*Page, numFrames),
		capacity: recordsPerPage,
		occupied: bitset.New(uint(numFrames)),
	}
	block := directio.AlignedBlock(int(disk.Pagesize) * numFrames)
	for i := range pager.frames {
		pager.frames[i] = &Page{
			pager:    pager,
			index:    i,
			capacity: recordsPerPage,
			data:     block[int64(i)*disk.Pagesize : int64(i+1)*disk.Pagesize],
		}
	}
	return pager, nil
}

// NumFrames returns the number of frames in the pool.
func (pager *Pager) NumFrames() int {
	return len(pager.frames)
}

// Capacity returns the number of records a page holds.
func (pager *Pager) Capacity() int64 {
	return pager.capacity
}

// NumOccupied returns the number of frames currently holding entries.
func (pager *Pager) NumOccupied() int {
	return int(pager.occupied.Count())
}

// IsOccupied reports whether the frame holds at least one entry.
func (pager *Pager) IsOccupied(frameIdx int) bool {
	return frameIdx >= 0 && frameIdx < len(pager.frames) && pager.occupied.Test(uint(frameIdx))
}

// Frame returns the page held by the given frame.
func (pager *Pager) Frame(frameIdx int) (*Page, error) {
	if frameIdx < 0 || frameIdx >= len(pager.frames) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameIndex, frameIdx)
	}
	return pager.frames[frameIdx], nil
}

// Load copies the disk page with the given id into the frame, replacing its contents.
func (pager *Pager) Load(d disk.Store, id disk.PageID, frameIdx int) error {
	page, err := pager.Frame(frameIdx)
	if err != nil {
		return err
	}
	data, err := d.ReadPage(id)
	if err != nil {
		return fmt.Errorf("load page %d: %w", id, err)
	}
	n, width, err := readHeader(data)
	if err != nil {
		return fmt.Errorf("load page %d: %w", id, err)
	}
	if n > pager.capacity {
		return fmt.Errorf("load page %d: %w (%d > %d)", id, ErrPageOverflow, n, pager.capacity)
	}
	copy(page.data, data)
	page.updateNumRecords(n, width)
	return nil
}

// Flush writes the frame's current contents to disk as a new page and returns its id.
// The frame keeps its contents; callers clear it before reuse.
func (pager *Pager) Flush(d disk.Store, frameIdx int) (disk.PageID, error) {
	page, err := pager.Frame(frameIdx)
	if err != nil {
		return disk.NoPage, err
	}
	id, err := d.WritePage(page.data[:page.usedBytes()])
	if err != nil {
		return disk.NoPage, fmt.Errorf("flush frame %d: %w", frameIdx, err)
	}
	return id, nil
}

// Reset clears every frame.
func (pager *Pager) Reset() {
	for i, ok := pager.occupied.NextSet(0); ok; i, ok = pager.occupied.NextSet(i + 1) {
		pager.frames[i].Clear()
	}
}

// markOccupied records whether a frame holds entries.
func (pager *Pager) markOccupied(frameIdx int, occupied bool) {
	if occupied {
		pager.occupied.Set(uint(frameIdx))
	} else {
		pager.occupied.Clear(uint(frameIdx))
	}
}
