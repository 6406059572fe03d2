package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// numPagesKey holds the page counter; page keys are 8 bytes so they never collide with it.
var numPagesKey = []byte("meta/numpages")

// BadgerDisk is a Store that keeps each page as a value in a BadgerDB keyed by page id.
type BadgerDisk struct {
	db       *badger.DB
	numPages int64
	stats    Stats
	mtx      sync.Mutex
}

// OpenBadger opens (or creates) a BadgerDB-backed disk at path.
// An empty path opens an in-memory database.
func OpenBadger(path string) (*BadgerDisk, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	d := &BadgerDisk{db: db}
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(numPagesKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			d.numPages = int64(binary.BigEndian.Uint64(val))
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func pageKey(id PageID) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

// NumPages returns the number of pages written so far.
func (d *BadgerDisk) NumPages() int64 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.numPages
}

// Stats returns the read and write counters.
func (d *BadgerDisk) Stats() Stats {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.stats
}

// ReadPage returns a page-sized copy of the page with the given id.
func (d *BadgerDisk) ReadPage(id PageID) ([]byte, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if id < 0 || int64(id) >= d.numPages {
		return nil, ErrInvalidPageID
	}
	buf := make([]byte, Pagesize)
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pageKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(buf, val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrInvalidPageID
	}
	if err != nil {
		return nil, err
	}
	d.stats.Reads++
	return buf, nil
}

// WritePage stores data under the next page id, bumping the counter in the same transaction.
func (d *BadgerDisk) WritePage(data []byte) (PageID, error) {
	if int64(len(data)) > Pagesize {
		return NoPage, ErrPageTooLarge
	}
	d.mtx.Lock()
	defer d.mtx.Unlock()
	id := PageID(d.numPages)
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, uint64(d.numPages+1))
	value := make([]byte, len(data))
	copy(value, data)
	err := d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(pageKey(id), value); err != nil {
			return err
		}
		return txn.Set(numPagesKey, counter)
	})
	if err != nil {
		return NoPage, err
	}
	d.numPages++
	d.stats.Writes++
	return id, nil
}

// Close closes the underlying database.
func (d *BadgerDisk) Close() error {
	return d.db.Close()
}
