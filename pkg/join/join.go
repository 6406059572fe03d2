package join

import (
	"fmt"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/pager"
)

// Stats summarizes a join run.
type Stats struct {
	Buckets        int        // Buckets visited
	SkippedBuckets int        // Buckets with an empty side, skipped without I/O
	BuildSides     []Side     // Build side of every joined bucket, in order
	Pairs          int64      // Matched pairs emitted
	TablePages     int        // Hash table pages materialized to disk
	ResultPages    int        // Result pages written
	IO             disk.Stats // Page reads and writes for the whole run
}

// Result is the output of Run.
type Result struct {
	Pages   []disk.PageID // Result page ids, in bucket order
	Buckets []*Bucket     // Buckets produced by the partition phase
	Stats   Stats
}

// Run partitions both relations and then probes every bucket, the way a
// query executor drives the join.
func Run(d disk.Store, p *pager.Pager, left, right disk.PageRange, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	before := d.Stats()

	// Reject a pool too small to probe before any partition I/O.
	if _, err := newProbeLayout(p.NumFrames()); err != nil {
		return nil, err
	}
	pt, err := newPartitioner(d, p, o)
	if err != nil {
		return nil, err
	}
	buckets, err := pt.run(left, right)
	if err != nil {
		return nil, err
	}

	return probeAll(d, p, buckets, o, before)
}

// Reprobe joins buckets that were partitioned earlier, for instance ones
// recovered from a bucket log, without reading the relations again.
func Reprobe(d disk.Store, p *pager.Pager, buckets []*Bucket, opts ...Option) (*Result, error) {
	return probeAll(d, p, buckets, newOptions(opts), d.Stats())
}

func probeAll(d disk.Store, p *pager.Pager, buckets []*Bucket, o *options, before disk.Stats) (*Result, error) {
	res := &Result{Buckets: buckets}
	pr, err := newProber(d, p, o, &res.Stats)
	if err != nil {
		return nil, err
	}
	if err := pr.run(buckets); err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	res.Pages = pr.result
	res.Stats.ResultPages = len(pr.result)
	res.Stats.IO = d.Stats().Sub(before)
	o.logger.Info("join finished",
		"buckets", len(buckets),
		"pairs", res.Stats.Pairs,
		"result_pages", res.Stats.ResultPages,
		"reads", res.Stats.IO.Reads,
		"writes", res.Stats.IO.Writes)
	return res, nil
}
