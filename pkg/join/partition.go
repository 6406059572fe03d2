package join

import (
	"fmt"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/pager"
)

// partitioner holds the frames and buckets of one partition phase.
type partitioner struct {
	d       disk.Store
	p       *pager.Pager
	layout  partitionLayout
	opts    *options
	buckets []*Bucket
	input   *pager.Page
	outputs []*pager.Page
}

// Partition hash-distributes every tuple of the left and then the right
// relation into NumFrames()-1 buckets, spilling each bucket's output frame to
// disk whenever it fills up. The pager is reset between the two relations and
// before returning.
func Partition(d disk.Store, p *pager.Pager, left, right disk.PageRange, opts ...Option) ([]*Bucket, error) {
	pt, err := newPartitioner(d, p, newOptions(opts))
	if err != nil {
		return nil, err
	}
	return pt.run(left, right)
}

func newPartitioner(d disk.Store, p *pager.Pager, opts *options) (*partitioner, error) {
	layout, err := newPartitionLayout(p.NumFrames())
	if err != nil {
		return nil, err
	}
	pt := &partitioner{
		d:       d,
		p:       p,
		layout:  layout,
		opts:    opts,
		buckets: make([]*Bucket, layout.buckets),
		outputs: make([]*pager.Page, layout.buckets),
	}
	if pt.input, err = p.Frame(layout.input); err != nil {
		return nil, err
	}
	for i := range pt.buckets {
		pt.buckets[i] = NewBucket(i)
		if pt.outputs[i], err = p.Frame(layout.output(i)); err != nil {
			return nil, err
		}
	}
	return pt, nil
}

func (pt *partitioner) run(left, right disk.PageRange) ([]*Bucket, error) {
	if err := left.Validate(); err != nil {
		return nil, fmt.Errorf("left relation: %w", err)
	}
	if err := right.Validate(); err != nil {
		return nil, fmt.Errorf("right relation: %w", err)
	}
	if rec := pt.opts.recorder; rec != nil {
		if err := rec.PartitionStarted(len(pt.buckets)); err != nil {
			return nil, err
		}
	}

	pt.p.Reset()
	for _, rel := range []struct {
		side  Side
		pages disk.PageRange
	}{{Left, left}, {Right, right}} {
		err := pt.partitionRelation(rel.side, rel.pages)
		pt.p.Reset()
		if err != nil {
			return nil, fmt.Errorf("partition %s relation: %w", rel.side, err)
		}
		pt.opts.logger.Debug("partitioned relation", "side", rel.side, "pages", rel.pages.Len())
	}

	if rec := pt.opts.recorder; rec != nil {
		if err := rec.PartitionDone(pt.buckets); err != nil {
			return nil, err
		}
	}
	return pt.buckets, nil
}

// partitionRelation routes every tuple of one relation into its bucket's
// output frame, then flushes whatever partial pages remain.
func (pt *partitioner) partitionRelation(side Side, pages disk.PageRange) error {
	numBuckets := uint64(len(pt.buckets))
	for id := pages.Start; id < pages.End; id++ {
		if err := pt.p.Load(pt.d, id, pt.layout.input); err != nil {
			return err
		}
		for i := int64(0); i < pt.input.Size(); i++ {
			tuple := pt.input.Get(i)
			b := int(pt.opts.partitionHash(tuple) % numBuckets)
			out := pt.outputs[b]
			if out.IsFull() {
				if err := pt.flush(b, side); err != nil {
					return err
				}
			}
			if err := out.Append(tuple); err != nil {
				return err
			}
			pt.buckets[b].addTuple(side)
		}
	}
	for b, out := range pt.outputs {
		if out.IsEmpty() {
			continue
		}
		if err := pt.flush(b, side); err != nil {
			return err
		}
	}
	return nil
}

// flush writes a bucket's output frame to disk, records the page under the
// bucket and clears the frame.
func (pt *partitioner) flush(b int, side Side) error {
	id, err := pt.p.Flush(pt.d, pt.layout.output(b))
	if err != nil {
		return err
	}
	pt.buckets[b].addPage(side, id)
	pt.outputs[b].Clear()
	if rec := pt.opts.recorder; rec != nil {
		return rec.PageFlushed(b, side, id)
	}
	return nil
}
