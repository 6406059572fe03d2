package join

import (
	"fmt"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/pager"

	"github.com/bits-and-blooms/bitset"
)

// prober holds the frames of the probe phase. Its state is rebuilt for every
// bucket; only the result page list and the stats carry over.
type prober struct {
	d      disk.Store
	p      *pager.Pager
	layout probeLayout
	opts   *options
	table  []*pager.Page
	input  *pager.Page
	output *pager.Page
	used   *bitset.BitSet // Table slots holding tuples of the current bucket
	result []disk.PageID
	stats  *Stats
}

// Probe joins each bucket in order: the side with fewer tuples is loaded into
// NumFrames()-2 hash table frames and the other side is streamed against it.
// Each match is written as the pair (build tuple, probe tuple) to the output
// frame. Returns the ids of the result pages, in bucket order.
func Probe(d disk.Store, p *pager.Pager, buckets []*Bucket, opts ...Option) ([]disk.PageID, error) {
	pr, err := newProber(d, p, newOptions(opts), &Stats{})
	if err != nil {
		return nil, err
	}
	if err := pr.run(buckets); err != nil {
		return nil, err
	}
	return pr.result, nil
}

func newProber(d disk.Store, p *pager.Pager, opts *options, stats *Stats) (*prober, error) {
	layout, err := newProbeLayout(p.NumFrames())
	if err != nil {
		return nil, err
	}
	pr := &prober{
		d:      d,
		p:      p,
		layout: layout,
		opts:   opts,
		table:  make([]*pager.Page, layout.slots),
		used:   bitset.New(uint(layout.slots)),
		result: make([]disk.PageID, 0),
		stats:  stats,
	}
	for i := range pr.table {
		if pr.table[i], err = p.Frame(layout.slot(i)); err != nil {
			return nil, err
		}
	}
	if pr.input, err = p.Frame(layout.input); err != nil {
		return nil, err
	}
	if pr.output, err = p.Frame(layout.output); err != nil {
		return nil, err
	}
	return pr, nil
}

func (pr *prober) run(buckets []*Bucket) error {
	pr.p.Reset()
	for _, b := range buckets {
		if err := pr.probeBucket(b); err != nil {
			pr.opts.logger.Error("bucket failed", "bucket", b.Index(), "err", err)
			return fmt.Errorf("bucket %d: %w", b.Index(), err)
		}
	}
	return nil
}

// probeBucket joins one bucket. The pager is reset afterwards, on success or failure.
func (pr *prober) probeBucket(b *Bucket) error {
	defer pr.p.Reset()
	defer pr.used.ClearAll()

	pr.stats.Buckets++
	if !b.IsJoinable() {
		pr.stats.SkippedBuckets++
		pr.opts.logger.Debug("skipped bucket", "bucket", b.Index(), "left", b.Count(Left), "right", b.Count(Right))
		return nil
	}
	build := b.BuildSide()
	capacity := int64(pr.layout.slots) * pr.p.Capacity()
	if b.Count(build) > capacity {
		return fmt.Errorf("%w: %d %s tuples, room for %d", ErrCapacityExceeded, b.Count(build), build, capacity)
	}

	if err := pr.build(b.Pages(build)); err != nil {
		return err
	}
	if err := pr.materialize(); err != nil {
		return err
	}
	emitted, err := pr.probe(b.Pages(build.Other()))
	if err != nil {
		return err
	}
	if !pr.output.IsEmpty() {
		if err := pr.flushOutput(); err != nil {
			return err
		}
	}
	pr.stats.BuildSides = append(pr.stats.BuildSides, build)
	pr.stats.Pairs += emitted
	pr.opts.logger.Debug("probed bucket", "bucket", b.Index(), "build", build, "pairs", emitted)
	return nil
}

// build hashes every build-side tuple into its table slot.
func (pr *prober) build(pages []disk.PageID) error {
	slots := uint64(pr.layout.slots)
	for _, id := range pages {
		if err := pr.p.Load(pr.d, id, pr.layout.input); err != nil {
			return err
		}
		for i := int64(0); i < pr.input.Size(); i++ {
			tuple := pr.input.Get(i)
			slot := pr.opts.probeHash(tuple) % slots
			frame := pr.table[slot]
			if frame.IsFull() {
				return fmt.Errorf("%w: hash table slot %d overflowed", ErrCapacityExceeded, slot)
			}
			if err := frame.Append(tuple); err != nil {
				return err
			}
			pr.used.Set(uint(slot))
		}
	}
	return nil
}

// materialize writes every non-empty table slot to disk once. The slots stay
// resident and are probed from memory.
func (pr *prober) materialize() error {
	for i, ok := pr.used.NextSet(0); ok; i, ok = pr.used.NextSet(i + 1) {
		if _, err := pr.p.Flush(pr.d, pr.layout.slot(int(i))); err != nil {
			return err
		}
		pr.stats.TablePages++
	}
	return nil
}

// probe streams the probe side against the table and emits every match.
func (pr *prober) probe(pages []disk.PageID) (int64, error) {
	slots := uint64(pr.layout.slots)
	var emitted int64
	for _, id := range pages {
		if err := pr.p.Load(pr.d, id, pr.layout.input); err != nil {
			return emitted, err
		}
		for i := int64(0); i < pr.input.Size(); i++ {
			tuple := pr.input.Get(i)
			slot := pr.opts.probeHash(tuple) % slots
			if !pr.used.Test(uint(slot)) {
				continue
			}
			frame := pr.table[slot]
			for j := int64(0); j < frame.Size(); j++ {
				candidate := frame.Get(j)
				if !candidate.EqualsByKey(tuple) {
					continue
				}
				if pr.output.IsFull() {
					if err := pr.flushOutput(); err != nil {
						return emitted, err
					}
				}
				if err := pr.output.AppendPair(candidate, tuple); err != nil {
					return emitted, err
				}
				emitted++
			}
		}
	}
	return emitted, nil
}

// flushOutput writes the output frame to disk as a result page and clears it.
func (pr *prober) flushOutput() error {
	id, err := pr.p.Flush(pr.d, pr.layout.output)
	if err != nil {
		return err
	}
	pr.result = append(pr.result, id)
	pr.output.Clear()
	return nil
}
