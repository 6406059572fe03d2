package join_test

import (
	"errors"
	"math/rand"
	"testing"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/join"
	"dinojoin/pkg/logging"
	"dinojoin/pkg/pager"
	"dinojoin/pkg/relation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Right-side values start here so a pair can be oriented by value alone.
const rightBase = 1_000_000

func identityHash(e entry.Entry) uint64 {
	return uint64(e.Key)
}

// setupJoin writes both relations to a fresh in-memory disk and returns a
// pager with the given frame count and page capacity.
func setupJoin(t *testing.T, numFrames int, capacity int64, left, right []entry.Entry) (disk.Store, *pager.Pager, disk.PageRange, disk.PageRange) {
	t.Helper()
	d := disk.NewMem()
	t.Cleanup(func() { d.Close() })
	leftRange, err := relation.Write(d, capacity, left)
	require.NoError(t, err)
	rightRange, err := relation.Write(d, capacity, right)
	require.NoError(t, err)
	p, err := pager.New(numFrames, capacity)
	require.NoError(t, err)
	return d, p, leftRange, rightRange
}

// collect reads the result pages and counts each (left value, right value)
// match, whichever side was built.
func collect(t *testing.T, d disk.Store, pages []disk.PageID) map[[2]int64]int {
	t.Helper()
	pairs, err := relation.ReadPairs(d, pages)
	require.NoError(t, err)
	got := make(map[[2]int64]int)
	for _, p := range pairs {
		require.Equal(t, p.First.Key, p.Second.Key)
		l, r := p.First, p.Second
		if l.Value >= rightBase {
			l, r = r, l
		}
		got[[2]int64{l.Value, r.Value}]++
	}
	return got
}

func quiet() join.Option {
	return join.WithLogger(logging.Discard())
}

func TestJoin(t *testing.T) {
	t.Run("TwoBucketParity", testTwoBucketParity)
	t.Run("BuildSideSelection", testBuildSideSelection)
	t.Run("MatchesNestedLoop", testMatchesNestedLoop)
	t.Run("MatchesNestedLoopBadger", testMatchesNestedLoopBadger)
	t.Run("ResultIndependentOfFrames", testResultIndependentOfFrames)
	t.Run("EmptyRelation", testEmptyRelation)
	t.Run("Reprobe", testReprobe)
	t.Run("SkipWithoutIO", testSkipWithoutIO)
	t.Run("CapacityExceeded", testCapacityExceeded)
	t.Run("SlotOverflow", testSlotOverflow)
	t.Run("TooFewFrames", testTooFewFrames)
	t.Run("InvalidRange", testInvalidRange)
}

// Four left tuples over two pages, two right tuples, three frames and a
// parity partition hash: bucket 0 joins both right tuples, bucket 1 is skipped.
func testTwoBucketParity(t *testing.T) {
	t.Parallel()
	left := []entry.Entry{entry.New(1, 10), entry.New(2, 20), entry.New(3, 30), entry.New(4, 40)}
	right := []entry.Entry{entry.New(2, 200), entry.New(4, 400)}
	d, p, l, r := setupJoin(t, 3, 2, left, right)
	require.Equal(t, 2, l.Len())
	require.Equal(t, 1, r.Len())

	res, err := join.Run(d, p, l, r, join.WithHashes(identityHash, entry.Entry.ProbeHash), quiet())
	require.NoError(t, err)

	require.Len(t, res.Buckets, 2)
	b0, b1 := res.Buckets[0], res.Buckets[1]
	assert.Equal(t, int64(2), b0.Count(join.Left))
	assert.Equal(t, int64(2), b0.Count(join.Right))
	assert.Equal(t, int64(2), b1.Count(join.Left))
	assert.Equal(t, int64(0), b1.Count(join.Right))
	assert.False(t, b1.IsJoinable())

	left0, err := relation.Read(d, b0.Pages(join.Left))
	require.NoError(t, err)
	assert.ElementsMatch(t, []entry.Entry{entry.New(2, 20), entry.New(4, 40)}, left0)
	left1, err := relation.Read(d, b1.Pages(join.Left))
	require.NoError(t, err)
	assert.ElementsMatch(t, []entry.Entry{entry.New(1, 10), entry.New(3, 30)}, left1)

	// Both pairs fit on a single result page, build tuple first.
	require.Len(t, res.Pages, 1)
	pairs, err := relation.ReadPairs(d, res.Pages)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, entry.New(2, 20), pairs[0].First)
	assert.Equal(t, entry.New(2, 200), pairs[0].Second)
	assert.Equal(t, entry.New(4, 40), pairs[1].First)
	assert.Equal(t, entry.New(4, 400), pairs[1].Second)

	assert.Equal(t, 2, res.Stats.Buckets)
	assert.Equal(t, 1, res.Stats.SkippedBuckets)
	assert.Equal(t, []join.Side{join.Left}, res.Stats.BuildSides)
	assert.Equal(t, int64(2), res.Stats.Pairs)
	assert.Equal(t, 1, res.Stats.TablePages)
	assert.Equal(t, 1, res.Stats.ResultPages)
	// Three relation pages and two bucket pages read; three bucket pages,
	// one table page and one result page written.
	assert.Equal(t, disk.Stats{Reads: 5, Writes: 5}, res.Stats.IO)
	assert.Equal(t, 0, p.NumOccupied())
}

// Ties build the left side; otherwise the smaller side is built and appears
// first in each pair.
func testBuildSideSelection(t *testing.T) {
	t.Parallel()
	left := []entry.Entry{entry.New(1, 10), entry.New(2, 20), entry.New(3, 30), entry.New(4, 40)}
	right := []entry.Entry{entry.New(2, 200), entry.New(4, 400)}
	d, p, l, r := setupJoin(t, 4, 2, left, right)

	// Keys mod 3: bucket 0 = {3}/{}, bucket 1 = {1,4}/{4}, bucket 2 = {2}/{2}.
	res, err := join.Run(d, p, l, r, join.WithHashes(identityHash, entry.Entry.ProbeHash), quiet())
	require.NoError(t, err)
	assert.Equal(t, []join.Side{join.Right, join.Left}, res.Stats.BuildSides)
	assert.Equal(t, join.Right, res.Buckets[1].BuildSide())
	assert.Equal(t, join.Left, res.Buckets[2].BuildSide())

	require.Len(t, res.Pages, 2)
	pairs, err := relation.ReadPairs(d, res.Pages)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, entry.New(4, 400), pairs[0].First)
	assert.Equal(t, entry.New(4, 40), pairs[0].Second)
	assert.Equal(t, entry.New(2, 20), pairs[1].First)
	assert.Equal(t, entry.New(2, 200), pairs[1].Second)
}

func testMatchesNestedLoop(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	left := relation.Generate(rng, 200, 50, 0)
	right := relation.Generate(rng, 100, 50, rightBase)
	d, p, l, r := setupJoin(t, 8, 32, left, right)

	res, err := join.Run(d, p, l, r, quiet())
	require.NoError(t, err)
	require.NoError(t, join.VerifyBuckets(d, res.Buckets))
	assert.Equal(t, relation.NestedLoopJoin(left, right), collect(t, d, res.Pages))
	assert.Equal(t, 7, res.Stats.Buckets)
	assert.Equal(t, 0, p.NumOccupied())
}

func testMatchesNestedLoopBadger(t *testing.T) {
	t.Parallel()
	d, err := disk.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	rng := rand.New(rand.NewSource(11))
	left := relation.Generate(rng, 60, 20, 0)
	right := relation.Generate(rng, 60, 20, rightBase)
	l, err := relation.Write(d, 32, left)
	require.NoError(t, err)
	r, err := relation.Write(d, 32, right)
	require.NoError(t, err)
	p, err := pager.New(5, 32)
	require.NoError(t, err)

	res, err := join.Run(d, p, l, r, quiet())
	require.NoError(t, err)
	assert.Equal(t, relation.NestedLoopJoin(left, right), collect(t, d, res.Pages))
}

// The frame count changes the number of buckets but never the join output.
func testResultIndependentOfFrames(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(3))
	left := relation.Generate(rng, 40, 30, 0)
	right := relation.Generate(rng, 40, 30, rightBase)
	expected := relation.NestedLoopJoin(left, right)
	for _, frames := range []int{4, 5, 9} {
		d, p, l, r := setupJoin(t, frames, 32, left, right)
		res, err := join.Run(d, p, l, r, quiet())
		require.NoError(t, err, "frames=%d", frames)
		assert.Equal(t, frames-1, len(res.Buckets))
		assert.Equal(t, expected, collect(t, d, res.Pages), "frames=%d", frames)
	}
}

func testEmptyRelation(t *testing.T) {
	t.Parallel()
	left := []entry.Entry{entry.New(1, 1), entry.New(2, 2)}
	d, p, l, r := setupJoin(t, 4, 2, left, nil)
	res, err := join.Run(d, p, l, r, quiet())
	require.NoError(t, err)
	assert.Empty(t, res.Pages)
	assert.Equal(t, 3, res.Stats.SkippedBuckets)
	assert.Equal(t, int64(0), res.Stats.Pairs)

	// Only the left relation is read; no bucket page is read back.
	var bucketPages int64
	for _, b := range res.Buckets {
		assert.Empty(t, b.Pages(join.Right))
		bucketPages += int64(len(b.Pages(join.Left)))
	}
	assert.Equal(t, disk.Stats{Reads: int64(l.Len()), Writes: bucketPages}, res.Stats.IO)
}

// Probing the same buckets again reads only bucket pages and yields the same pairs.
func testReprobe(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(5))
	left := relation.Generate(rng, 50, 25, 0)
	right := relation.Generate(rng, 30, 25, rightBase)
	d, p, l, r := setupJoin(t, 5, 32, left, right)
	first, err := join.Run(d, p, l, r, quiet())
	require.NoError(t, err)

	second, err := join.Reprobe(d, p, first.Buckets, quiet())
	require.NoError(t, err)
	assert.Equal(t, collect(t, d, first.Pages), collect(t, d, second.Pages))
	assert.NotEqual(t, first.Pages, second.Pages)
	assert.Equal(t, first.Stats.Pairs, second.Stats.Pairs)
	assert.Less(t, second.Stats.IO.Reads, first.Stats.IO.Reads)
}

// A bucket with an empty side is skipped before any of its pages is read.
func testSkipWithoutIO(t *testing.T) {
	t.Parallel()
	d := disk.NewMem()
	p, err := pager.New(3, 2)
	require.NoError(t, err)
	buckets := []*join.Bucket{
		join.RestoreBucket(0, []disk.PageID{99}, nil, 5, 0),
		join.RestoreBucket(1, nil, []disk.PageID{98}, 0, 3),
	}
	before := d.Stats()
	pages, err := join.Probe(d, p, buckets, quiet())
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Equal(t, disk.Stats{}, d.Stats().Sub(before))
}

func testCapacityExceeded(t *testing.T) {
	t.Parallel()
	same := func(base int64) []entry.Entry {
		return []entry.Entry{entry.New(0, base), entry.New(0, base+1), entry.New(0, base+2)}
	}
	// One table frame of two records cannot hold three build tuples.
	d, p, l, r := setupJoin(t, 3, 2, same(0), same(rightBase))
	res, err := join.Run(d, p, l, r, quiet())
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, join.ErrCapacityExceeded))
	assert.Equal(t, 0, p.NumOccupied())
}

// Duplicate keys land in one slot, which overflows before the table is full.
func testSlotOverflow(t *testing.T) {
	t.Parallel()
	left := []entry.Entry{entry.New(7, 1), entry.New(7, 2), entry.New(7, 3)}
	right := []entry.Entry{entry.New(7, rightBase), entry.New(7, rightBase+1), entry.New(7, rightBase+2)}
	d, p, l, r := setupJoin(t, 4, 2, left, right)
	_, err := join.Run(d, p, l, r, quiet())
	assert.True(t, errors.Is(err, join.ErrCapacityExceeded))
	assert.Contains(t, err.Error(), "overflowed")
	assert.Equal(t, 0, p.NumOccupied())
}

func testTooFewFrames(t *testing.T) {
	t.Parallel()
	d := disk.NewMem()
	one, err := pager.New(1, 2)
	require.NoError(t, err)
	_, err = join.Partition(d, one, disk.PageRange{}, disk.PageRange{}, quiet())
	assert.True(t, errors.Is(err, join.ErrTooFewFrames))

	two, err := pager.New(2, 2)
	require.NoError(t, err)
	_, err = join.Probe(d, two, nil, quiet())
	assert.True(t, errors.Is(err, join.ErrTooFewFrames))

	// Run rejects the pool before reading or writing a single page.
	l, err := relation.Write(d, 2, []entry.Entry{entry.New(1, 1), entry.New(2, 2)})
	require.NoError(t, err)
	before := d.Stats()
	_, err = join.Run(d, two, l, l, quiet())
	assert.True(t, errors.Is(err, join.ErrTooFewFrames))
	assert.Equal(t, before, d.Stats())
}

func testInvalidRange(t *testing.T) {
	t.Parallel()
	d, p, l, _ := setupJoin(t, 3, 2, []entry.Entry{entry.New(1, 1)}, nil)
	_, err := join.Partition(d, p, l, disk.PageRange{Start: 0, End: 5}, quiet())
	assert.True(t, errors.Is(err, disk.ErrInvalidPageID))
}
