package pager

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
)

/////////////////////////////////////////////////////////////////////////////
////////////////////////// Page layout constants ////////////////////////////
/////////////////////////////////////////////////////////////////////////////

const NUM_RECORDS_OFFSET int64 = 0
const NUM_RECORDS_SIZE int64 = binary.MaxVarintLen64
const WIDTH_OFFSET int64 = NUM_RECORDS_OFFSET + NUM_RECORDS_SIZE
const WIDTH_SIZE int64 = 1
const PAGE_HEADER_SIZE int64 = NUM_RECORDS_SIZE + WIDTH_SIZE

// A record is either a single entry or a joined pair of entries. All records
// on a page share one width.
const (
	TupleWidth int64 = 1
	PairWidth  int64 = 2
)

// MaxRecordsPerPage is the most records of either width that fit on one disk page.
const MaxRecordsPerPage int64 = (disk.Pagesize - PAGE_HEADER_SIZE) / (PairWidth * entry.Size)

// Error for appending to a page that has no room left
var ErrPageFull = errors.New("page is full")

// Error for mixing single entries and pairs on one page
var ErrWidthMismatch = errors.New("page holds records of a different width")

// Page is a fixed-capacity, ordered container of records laid out over the
// bytes of one pager frame.
type Page struct {
	pager      *Pager // Pointer to the pager that owns this frame
	index      int    // Frame index of this page within the pager
	capacity   int64  // Maximum number of records the page may hold
	numRecords int64  // Number of records currently held
	width      int64  // Entries per record; 0 while the page is empty
	data       []byte // The frame's bytes (header followed by entries)
}

// Index returns the frame index that holds this page.
func (page *Page) Index() int {
	return page.index
}

// Capacity returns the maximum number of records on the page.
func (page *Page) Capacity() int64 {
	return page.capacity
}

// Size returns the number of records on the page.
func (page *Page) Size() int64 {
	return page.numRecords
}

// Width returns the number of entries per record, or 0 for an empty page.
func (page *Page) Width() int64 {
	return page.width
}

// Remaining returns how many more records fit on the page.
func (page *Page) Remaining() int64 {
	return page.capacity - page.numRecords
}

// IsFull reports whether no further record fits.
func (page *Page) IsFull() bool {
	return page.numRecords >= page.capacity
}

// IsEmpty reports whether the page holds no records.
func (page *Page) IsEmpty() bool {
	return page.numRecords == 0
}

// GetData returns the raw bytes of the frame.
func (page *Page) GetData() []byte {
	return page.data
}

// Get returns the entry at index i of a tuple page; i must lie in [0, Size()).
func (page *Page) Get(i int64) entry.Entry {
	if i < 0 || i >= page.numRecords || page.width != TupleWidth {
		panic(fmt.Sprintf("pager: entry %d out of range [0, %d) on width %d page", i, page.numRecords, page.width))
	}
	return page.getEntry(i)
}

// GetPair returns the pair at index i of a pair page; i must lie in [0, Size()).
func (page *Page) GetPair(i int64) (entry.Entry, entry.Entry) {
	if i < 0 || i >= page.numRecords || page.width != PairWidth {
		panic(fmt.Sprintf("pager: pair %d out of range [0, %d) on width %d page", i, page.numRecords, page.width))
	}
	return page.getEntry(2 * i), page.getEntry(2*i + 1)
}

// Entries returns a copy of every entry on the page, in order. Pairs are flattened.
func (page *Page) Entries() []entry.Entry {
	n := page.numRecords * page.width
	ret := make([]entry.Entry, 0, n)
	for i := int64(0); i < n; i++ {
		ret = append(ret, page.getEntry(i))
	}
	return ret
}

// Append adds the entry to the end of a tuple page.
func (page *Page) Append(e entry.Entry) error {
	if err := page.reserve(TupleWidth); err != nil {
		return err
	}
	page.modifyEntry(page.numRecords, e)
	page.updateNumRecords(page.numRecords+1, TupleWidth)
	return nil
}

// AppendPair adds a joined pair to the end of a pair page.
func (page *Page) AppendPair(first, second entry.Entry) error {
	if err := page.reserve(PairWidth); err != nil {
		return err
	}
	page.modifyEntry(2*page.numRecords, first)
	page.modifyEntry(2*page.numRecords+1, second)
	page.updateNumRecords(page.numRecords+1, PairWidth)
	return nil
}

// Clear empties the page.
func (page *Page) Clear() {
	page.updateNumRecords(0, 0)
}

// Print writes the page's records to the specified writer.
func (page *Page) Print(w io.Writer) {
	fmt.Fprintf(w, "frame %d (%d/%d): ", page.index, page.numRecords, page.capacity)
	for _, e := range page.Entries() {
		e.Print(w)
	}
	io.WriteString(w, "\n")
}

/////////////////////////////////////////////////////////////////////////////
/////////////////////////// Page Helper Functions ///////////////////////////
/////////////////////////////////////////////////////////////////////////////

// entryPos gets the byte-position of the entry with the given index.
func entryPos(index int64) int64 {
	return PAGE_HEADER_SIZE + index*entry.Size
}

// reserve checks that one more record of the given width fits.
func (page *Page) reserve(width int64) error {
	if page.width != 0 && page.width != width {
		return ErrWidthMismatch
	}
	if page.IsFull() {
		return ErrPageFull
	}
	return nil
}

// getEntry returns the entry at the given entry (not record) index.
func (page *Page) getEntry(index int64) entry.Entry {
	pos := entryPos(index)
	return entry.UnmarshalEntry(page.data[pos : pos+entry.Size])
}

// modifyEntry writes the given entry at the given entry (not record) index.
func (page *Page) modifyEntry(index int64, e entry.Entry) {
	pos := entryPos(index)
	copy(page.data[pos:pos+entry.Size], e.Marshal())
}

// usedBytes returns the length of the header plus the records held.
func (page *Page) usedBytes() int64 {
	return entryPos(page.numRecords * page.width)
}

// updateNumRecords updates the record count and width, writing them to the
// page header and keeping the pager's occupancy set in sync.
func (page *Page) updateNumRecords(n int64, width int64) {
	if n == 0 {
		width = 0
	}
	page.numRecords = n
	page.width = width
	header := make([]byte, NUM_RECORDS_SIZE)
	binary.PutVarint(header, n)
	copy(page.data[NUM_RECORDS_OFFSET:NUM_RECORDS_OFFSET+NUM_RECORDS_SIZE], header)
	page.data[WIDTH_OFFSET] = byte(width)
	if page.pager != nil {
		page.pager.markOccupied(page.index, n > 0)
	}
}

// readHeader decodes the record count and width from a page header.
func readHeader(data []byte) (n int64, width int64, err error) {
	if int64(len(data)) < PAGE_HEADER_SIZE {
		return 0, 0, ErrCorruptPage
	}
	n, _ = binary.Varint(data[NUM_RECORDS_OFFSET : NUM_RECORDS_OFFSET+NUM_RECORDS_SIZE])
	width = int64(data[WIDTH_OFFSET])
	switch {
	case n < 0 || n > MaxRecordsPerPage:
		return 0, 0, ErrCorruptPage
	case n == 0 && width != 0:
		return 0, 0, ErrCorruptPage
	case n > 0 && width != TupleWidth && width != PairWidth:
		return 0, 0, ErrCorruptPage
	case entryPos(n*width) > int64(len(data)):
		return 0, 0, ErrCorruptPage
	}
	return n, width, nil
}

// Encode lays single entries out in page format, ready to be written to disk.
func Encode(entries []entry.Entry) ([]byte, error) {
	if int64(len(entries)) > MaxRecordsPerPage {
		return nil, ErrPageFull
	}
	page := &Page{
		index:    -1,
		capacity: MaxRecordsPerPage,
		data:     make([]byte, entryPos(int64(len(entries)))),
	}
	for i, e := range entries {
		page.modifyEntry(int64(i), e)
	}
	page.updateNumRecords(int64(len(entries)), TupleWidth)
	return page.data, nil
}

// Decode reads every entry from page-formatted bytes, flattening pairs, and
// reports the record width.
func Decode(data []byte) (entries []entry.Entry, width int64, err error) {
	n, width, err := readHeader(data)
	if err != nil {
		return nil, 0, err
	}
	page := &Page{index: -1, capacity: n, numRecords: n, width: width, data: data}
	return page.Entries(), width, nil
}
