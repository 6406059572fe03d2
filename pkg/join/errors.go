package join

import "errors"

// ErrCapacityExceeded is returned when a bucket's build side cannot be held in
// the hash table frames. There is no recursive partitioning to fall back on.
var ErrCapacityExceeded = errors.New("build side exceeds hash table capacity")

// ErrTooFewFrames is returned when the pager cannot host a phase's frame layout.
var ErrTooFewFrames = errors.New("not enough frames")
