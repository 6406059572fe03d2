// Package catalog persists what a data folder holds across sessions: the
// page ranges of stored relations and the bucket descriptors of partition
// runs, so a committed partition can be probed again without repartitioning.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/join"

	"github.com/google/uuid"
	"github.com/icza/backscanner"
	"github.com/otiai10/copy"
)

// Error for a committed run whose log lines do not describe its buckets
var ErrIncompleteRun = errors.New("committed partition run is incomplete")

// BucketLog is an append-only text log of relations and partition runs.
// It implements join.Recorder.
type BucketLog struct {
	logFile *os.File   // The log file, opened for appending
	runID   uuid.UUID  // The partition run in progress, if any
	mtx     sync.Mutex // Guards logFile and runID
}

var _ join.Recorder = (*BucketLog)(nil)

// Open opens the log at path, creating it if needed.
func Open(path string) (*BucketLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return nil, err
	}
	return &BucketLog{logFile: logFile, runID: uuid.Nil}, nil
}

// Close closes the log file.
func (bl *BucketLog) Close() error {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()
	return bl.logFile.Close()
}

// flushLog serializes the log and appends it to the log file on disk.
// Expects bl.mtx to be locked.
func (bl *BucketLog) flushLog(l log) error {
	if _, err := bl.logFile.WriteString(l.toString()); err != nil {
		return err
	}
	return bl.logFile.Sync()
}

// Relation describes a stored relation.
type Relation struct {
	Pages          disk.PageRange // The pages it occupies
	RecordsPerPage int64          // The page capacity its pages were written with
}

// Relation records that a relation is stored on the given pages, each
// written with a capacity of recordsPerPage records.
func (bl *BucketLog) Relation(name string, pages disk.PageRange, recordsPerPage int64) error {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()
	if err := bl.flushLog(relationLog{name: name, pages: pages, records: recordsPerPage}); err != nil {
		return fmt.Errorf("error writing a Relation log: %w", err)
	}
	return nil
}

// PartitionStarted begins a new run.
func (bl *BucketLog) PartitionStarted(numBuckets int) error {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()
	bl.runID = uuid.New()
	if err := bl.flushLog(startLog{id: bl.runID, numBuckets: numBuckets}); err != nil {
		return fmt.Errorf("error writing a Start log: %w", err)
	}
	return nil
}

// PageFlushed records a bucket page of the current run.
func (bl *BucketLog) PageFlushed(bucket int, side join.Side, id disk.PageID) error {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()
	return bl.flushLog(pageLog{id: bl.runID, bucket: bucket, side: side, page: id})
}

// PartitionDone records every bucket's counts and commits the run.
func (bl *BucketLog) PartitionDone(buckets []*join.Bucket) error {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()
	for _, b := range buckets {
		cl := countsLog{id: bl.runID, bucket: b.Index(), left: b.Count(join.Left), right: b.Count(join.Right)}
		if err := bl.flushLog(cl); err != nil {
			return err
		}
	}
	if err := bl.flushLog(commitLog{id: bl.runID}); err != nil {
		return fmt.Errorf("error writing a Commit log: %w", err)
	}
	bl.runID = uuid.Nil
	return nil
}

// scan feeds every log line to fn, newest first, until fn returns false.
func (bl *BucketLog) scan(fn func(l log) (bool, error)) error {
	bl.mtx.Lock()
	defer bl.mtx.Unlock()
	fstats, err := bl.logFile.Stat()
	if err != nil {
		return err
	}
	scanner := backscanner.New(bl.logFile, int(fstats.Size()))
	for {
		line, _, err := scanner.Line()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		l, err := logFromString(line)
		if err != nil {
			return err
		}
		more, err := fn(l)
		if err != nil || !more {
			return err
		}
	}
}

// Relations returns the latest record of every relation.
func (bl *BucketLog) Relations() (map[string]Relation, error) {
	relations := make(map[string]Relation)
	err := bl.scan(func(l log) (bool, error) {
		if rl, ok := l.(relationLog); ok {
			if _, seen := relations[rl.name]; !seen {
				relations[rl.name] = Relation{Pages: rl.pages, RecordsPerPage: rl.records}
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return relations, nil
}

// Recover rebuilds the buckets of the most recent committed partition run.
// Runs that never committed are ignored. Returns nil if no run committed.
func (bl *BucketLog) Recover() ([]*join.Bucket, error) {
	var (
		runID      = uuid.Nil
		numBuckets = -1
		pages      = make(map[int][2][]disk.PageID)
		counts     = make(map[int][2]int64)
	)
	err := bl.scan(func(l log) (bool, error) {
		switch l := l.(type) {
		case commitLog:
			if runID == uuid.Nil {
				runID = l.id
			}
		case countsLog:
			if l.id == runID {
				counts[l.bucket] = [2]int64{l.left, l.right}
			}
		case pageLog:
			if l.id == runID {
				// Lines arrive newest first.
				p := pages[l.bucket]
				p[l.side] = append([]disk.PageID{l.page}, p[l.side]...)
				pages[l.bucket] = p
			}
		case startLog:
			if l.id == runID {
				numBuckets = l.numBuckets
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if runID == uuid.Nil {
		return nil, nil
	}
	if numBuckets < 0 || len(counts) != numBuckets {
		return nil, fmt.Errorf("%w: run %s", ErrIncompleteRun, runID)
	}
	buckets := make([]*join.Bucket, numBuckets)
	for i := range buckets {
		c, ok := counts[i]
		if !ok {
			return nil, fmt.Errorf("%w: run %s has no counts for bucket %d", ErrIncompleteRun, runID, i)
		}
		p := pages[i]
		buckets[i] = join.RestoreBucket(i, p[join.Left], p[join.Right], c[0], c[1])
	}
	return buckets, nil
}

// Snapshot replaces dst with a copy of the data folder src.
func Snapshot(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return fmt.Errorf("snapshot destination %s is the data folder", dst)
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return copy.Copy(src, dst)
}
