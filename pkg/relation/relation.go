// Package relation stores relations as contiguous runs of disk pages and
// reads relations and join results back.
package relation

import (
	"errors"
	"fmt"
	"math/rand"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/pager"

	pair "github.com/notEpsilon/go-pair"
)

// Pair is one joined result: the build-side tuple and the probe-side tuple.
type Pair = pair.Pair[entry.Entry, entry.Entry]

// Error for a relation whose pages were interleaved with another writer's
var ErrNotContiguous = errors.New("relation pages are not contiguous")

// Error for reading a page of single entries as join results
var ErrNotResultPage = errors.New("page does not hold joined pairs")

// Write stores entries as consecutive pages of at most recordsPerPage entries
// each and returns the range they occupy. An empty relation occupies an empty range.
func Write(d disk.Store, recordsPerPage int64, entries []entry.Entry) (disk.PageRange, error) {
	if recordsPerPage <= 0 || recordsPerPage > pager.MaxRecordsPerPage {
		return disk.PageRange{}, fmt.Errorf("records per page must be in [1, %d], got %d", pager.MaxRecordsPerPage, recordsPerPage)
	}
	start := disk.PageID(d.NumPages())
	rng := disk.PageRange{Start: start, End: start}
	for lo := 0; lo < len(entries); lo += int(recordsPerPage) {
		hi := min(lo+int(recordsPerPage), len(entries))
		data, err := pager.Encode(entries[lo:hi])
		if err != nil {
			return disk.PageRange{}, err
		}
		id, err := d.WritePage(data)
		if err != nil {
			return disk.PageRange{}, err
		}
		if id != rng.End {
			return disk.PageRange{}, fmt.Errorf("%w: expected page %d, got %d", ErrNotContiguous, rng.End, id)
		}
		rng.End++
	}
	return rng, nil
}

// Read returns every entry on the given pages, in order.
func Read(d disk.Store, ids []disk.PageID) ([]entry.Entry, error) {
	ret := make([]entry.Entry, 0)
	for _, id := range ids {
		entries, _, err := readPage(d, id)
		if err != nil {
			return nil, err
		}
		ret = append(ret, entries...)
	}
	return ret, nil
}

func readPage(d disk.Store, id disk.PageID) ([]entry.Entry, int64, error) {
	data, err := d.ReadPage(id)
	if err != nil {
		return nil, 0, err
	}
	entries, width, err := pager.Decode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("page %d: %w", id, err)
	}
	return entries, width, nil
}

// ReadRange returns every entry of a relation.
func ReadRange(d disk.Store, rng disk.PageRange) ([]entry.Entry, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return Read(d, rng.IDs())
}

// ReadPairs decodes join result pages into pairs.
func ReadPairs(d disk.Store, ids []disk.PageID) ([]Pair, error) {
	pairs := make([]Pair, 0)
	for _, id := range ids {
		entries, width, err := readPage(d, id)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 && width != pager.PairWidth {
			return nil, fmt.Errorf("page %d: %w", id, ErrNotResultPage)
		}
		for i := 0; i < len(entries); i += 2 {
			pairs = append(pairs, Pair{First: entries[i], Second: entries[i+1]})
		}
	}
	return pairs, nil
}

// Generate returns n entries with keys drawn uniformly from [0, keySpace).
// Values are base, base+1, ... so every generated entry is distinguishable.
func Generate(rng *rand.Rand, n int, keySpace int64, base int64) []entry.Entry {
	entries := make([]entry.Entry, n)
	for i := range entries {
		entries[i] = entry.New(rng.Int63n(keySpace), base+int64(i))
	}
	return entries
}

// NestedLoopJoin computes the expected join of two in-memory relations,
// keyed by (left value, right value).
func NestedLoopJoin(left, right []entry.Entry) map[[2]int64]int {
	expected := make(map[[2]int64]int)
	for _, l := range left {
		for _, r := range right {
			if l.EqualsByKey(r) {
				expected[[2]int64{l.Value, r.Value}]++
			}
		}
	}
	return expected
}
