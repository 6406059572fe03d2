package disk

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dsnet/golib/memfile"
	"github.com/ncw/directio"
)

// pageFile is the byte-addressed backing for a Disk.
type pageFile interface {
	io.ReaderAt
	io.WriterAt
}

// Disk is a Store backed by a single page file, either on the filesystem
// (opened with O_DIRECT) or held in memory.
type Disk struct {
	file     pageFile
	closer   io.Closer  // nil for in-memory disks
	name     string     // path of the backing file, or "" for in-memory disks
	numPages int64      // number of pages written
	stats    Stats      // I/O counters
	mtx      sync.Mutex // guards numPages, stats and the file offset space
}

// Open backs a Disk with the file at path, creating it if needed.
// Pages already in the file remain readable.
func Open(path string) (*Disk, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0775); err != nil {
			return nil, err
		}
	}
	file, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%Pagesize != 0 {
		file.Close()
		return nil, errors.New("disk file has been corrupted")
	}
	return &Disk{
		file:     file,
		closer:   file,
		name:     path,
		numPages: info.Size() / Pagesize,
	}, nil
}

// NewMem returns an empty Disk that lives entirely in memory.
func NewMem() *Disk {
	return &Disk{file: memfile.New(make([]byte, 0))}
}

// GetFileName returns the backing file path, or "" for in-memory disks.
func (d *Disk) GetFileName() string {
	return d.name
}

// NumPages returns the number of pages written so far.
func (d *Disk) NumPages() int64 {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.numPages
}

// Stats returns the read and write counters.
func (d *Disk) Stats() Stats {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.stats
}

// ReadPage returns a fresh, page-sized copy of the page with the given id.
func (d *Disk) ReadPage(id PageID) ([]byte, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if id < 0 || int64(id) >= d.numPages {
		return nil, ErrInvalidPageID
	}
	buf := directio.AlignedBlock(int(Pagesize))
	if _, err := d.file.ReadAt(buf, int64(id)*Pagesize); err != nil && err != io.EOF {
		return nil, err
	}
	d.stats.Reads++
	return buf, nil
}

// WritePage appends data as a new page and returns its id.
func (d *Disk) WritePage(data []byte) (PageID, error) {
	if int64(len(data)) > Pagesize {
		return NoPage, ErrPageTooLarge
	}
	buf := directio.AlignedBlock(int(Pagesize))
	copy(buf, data)

	d.mtx.Lock()
	defer d.mtx.Unlock()
	id := PageID(d.numPages)
	if _, err := d.file.WriteAt(buf, int64(id)*Pagesize); err != nil {
		return NoPage, err
	}
	d.numPages++
	d.stats.Writes++
	return id, nil
}

// Close closes the backing file, if any.
func (d *Disk) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
