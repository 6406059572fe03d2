package join

import (
	"log/slog"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/logging"
)

// HashFunc maps an entry to a 64-bit hash of its join key.
type HashFunc func(entry.Entry) uint64

// Recorder observes the partition phase, e.g. to persist bucket descriptors.
type Recorder interface {
	// PartitionStarted is called before any page is flushed.
	PartitionStarted(numBuckets int) error
	// PageFlushed is called after a bucket's output frame is written to disk.
	PageFlushed(bucket int, side Side, id disk.PageID) error
	// PartitionDone is called once both relations are partitioned.
	PartitionDone(buckets []*Bucket) error
}

type options struct {
	partitionHash HashFunc
	probeHash     HashFunc
	recorder      Recorder
	logger        *slog.Logger
}

// Option configures Partition, Probe and Run.
type Option func(*options)

// WithHashes replaces the partition and probe hash functions. The two must be
// independent and must hash equal keys equally.
func WithHashes(partition, probe HashFunc) Option {
	return func(o *options) {
		o.partitionHash = partition
		o.probeHash = probe
	}
}

// WithRecorder reports partition progress to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithLogger logs through l instead of the global logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		partitionHash: entry.Entry.PartitionHash,
		probeHash:     entry.Entry.ProbeHash,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.GetLogger()
	}
	return o
}
