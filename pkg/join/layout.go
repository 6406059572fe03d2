package join

import "fmt"

// partitionLayout assigns frame roles for the partition phase:
// frames [0, buckets) buffer one bucket each and the last frame is the input.
type partitionLayout struct {
	buckets int
	input   int
}

func newPartitionLayout(numFrames int) (partitionLayout, error) {
	if numFrames < 2 {
		return partitionLayout{}, fmt.Errorf("%w: partitioning needs 2 frames, pager has %d", ErrTooFewFrames, numFrames)
	}
	return partitionLayout{buckets: numFrames - 1, input: numFrames - 1}, nil
}

// output returns the frame buffering the given bucket.
func (l partitionLayout) output(bucket int) int {
	return bucket
}

// probeLayout assigns frame roles for the probe phase:
// frames [0, slots) are hash table slots, then one input and one output frame.
type probeLayout struct {
	slots  int
	input  int
	output int
}

func newProbeLayout(numFrames int) (probeLayout, error) {
	if numFrames < 3 {
		return probeLayout{}, fmt.Errorf("%w: probing needs 3 frames, pager has %d", ErrTooFewFrames, numFrames)
	}
	return probeLayout{slots: numFrames - 2, input: numFrames - 2, output: numFrames - 1}, nil
}

// slot returns the frame holding the given hash table slot.
func (l probeLayout) slot(i int) int {
	return i
}
