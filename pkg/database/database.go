// Package database ties a data folder together: the page store, the buffer
// pool, the relations stored on it and the bucket log of past joins.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"dinojoin/pkg/catalog"
	"dinojoin/pkg/config"
	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/join"
	"dinojoin/pkg/logging"
	"dinojoin/pkg/pager"
	"dinojoin/pkg/relation"
)

var (
	ErrRelationExists   = errors.New("relation already exists")
	ErrRelationNotFound = errors.New("relation not found")
	ErrNoPartition      = errors.New("no partitioned buckets to probe")
	ErrInMemory         = errors.New("database has no data folder")
	ErrConfigMismatch   = errors.New("data folder was written with a different page capacity")
)

var alphanumeric = regexp.MustCompile(`\W`)

// Database holds named relations on one page store and joins them
// through a single buffer pool.
type Database struct {
	basepath  string // Data folder, "" for in-memory databases
	cfg       config.Config
	disk      disk.Store
	pager     *pager.Pager
	log       *catalog.BucketLog // nil for in-memory databases
	relations map[string]disk.PageRange
	buckets   []*join.Bucket // Buckets of the latest partition run
	result    *join.Result   // Result of the latest join or reprobe
	logger    *slog.Logger
}

// Open opens a database in the given data folder, backed by a page file.
// Relations and the latest committed partition are restored from the bucket log.
func Open(folder string, cfg config.Config) (*Database, error) {
	return openFolder(folder, cfg, func(folder string) (disk.Store, error) {
		return disk.Open(filepath.Join(folder, config.DiskFileName))
	})
}

// OpenBadger opens a database in the given data folder, backed by badger.
func OpenBadger(folder string, cfg config.Config) (*Database, error) {
	return openFolder(folder, cfg, func(folder string) (disk.Store, error) {
		return disk.OpenBadger(filepath.Join(folder, config.BadgerDirName))
	})
}

// OpenMem returns an empty database that lives in memory.
func OpenMem(cfg config.Config) (*Database, error) {
	return newDatabase("", cfg, disk.NewMem(), nil)
}

func openFolder(folder string, cfg config.Config, openDisk func(string) (disk.Store, error)) (*Database, error) {
	// Ensure folder is of the form */
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	if err := os.MkdirAll(folder, 0775); err != nil {
		return nil, err
	}
	d, err := openDisk(folder)
	if err != nil {
		return nil, err
	}
	log, err := catalog.Open(filepath.Join(folder, config.BucketLogFileName))
	if err != nil {
		d.Close()
		return nil, err
	}
	db, err := newDatabase(folder, cfg, d, log)
	if err != nil {
		log.Close()
		d.Close()
		return nil, err
	}
	if err := db.restore(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newDatabase(folder string, cfg config.Config, d disk.Store, log *catalog.BucketLog) (*Database, error) {
	p, err := cfg.NewPager()
	if err != nil {
		return nil, err
	}
	return &Database{
		basepath:  folder,
		cfg:       cfg,
		disk:      d,
		pager:     p,
		log:       log,
		relations: make(map[string]disk.PageRange),
		logger:    logging.GetLogger(),
	}, nil
}

// restore reloads relations and buckets recorded in the bucket log.
func (db *Database) restore() error {
	relations, err := db.log.Relations()
	if err != nil {
		return fmt.Errorf("reading relations: %w", err)
	}
	for name, rel := range relations {
		if rel.RecordsPerPage != db.cfg.RecordsPerPage {
			return fmt.Errorf("relation %s: %w: %d records per page, opened with %d",
				name, ErrConfigMismatch, rel.RecordsPerPage, db.cfg.RecordsPerPage)
		}
		if rel.Pages.End > disk.PageID(db.disk.NumPages()) {
			return fmt.Errorf("relation %s: %w: range %s beyond %d pages", name, disk.ErrInvalidPageID, rel.Pages, db.disk.NumPages())
		}
		db.relations[name] = rel.Pages
	}
	if db.buckets, err = db.log.Recover(); err != nil {
		return fmt.Errorf("recovering buckets: %w", err)
	}
	db.logger.Info("opened database", "path", db.basepath, "relations", len(db.relations), "buckets", len(db.buckets))
	return nil
}

// Close closes the bucket log and the page store.
func (db *Database) Close() (err error) {
	if db.log != nil {
		err = db.log.Close()
	}
	if curErr := db.disk.Close(); err == nil {
		err = curErr
	}
	return err
}

// GetBasePath returns the data folder, or "" for in-memory databases.
func (db *Database) GetBasePath() string {
	return db.basepath
}

func (db *Database) GetDisk() disk.Store {
	return db.disk
}

func (db *Database) GetPager() *pager.Pager {
	return db.pager
}

func (db *Database) GetConfig() config.Config {
	return db.cfg
}

// GetRelations returns every relation by name.
func (db *Database) GetRelations() map[string]disk.PageRange {
	return db.relations
}

// CreateRelation stores entries as a new relation.
func (db *Database) CreateRelation(name string, entries []entry.Entry) (disk.PageRange, error) {
	if name == "" || alphanumeric.MatchString(name) {
		return disk.PageRange{}, errors.New("relation name must be alphanumeric")
	}
	if _, ok := db.relations[name]; ok {
		return disk.PageRange{}, fmt.Errorf("%w: %s", ErrRelationExists, name)
	}
	pages, err := relation.Write(db.disk, db.cfg.RecordsPerPage, entries)
	if err != nil {
		return disk.PageRange{}, err
	}
	if db.log != nil {
		if err := db.log.Relation(name, pages, db.cfg.RecordsPerPage); err != nil {
			return disk.PageRange{}, err
		}
	}
	db.relations[name] = pages
	return pages, nil
}

// GetRelation returns the pages of the named relation.
func (db *Database) GetRelation(name string) (disk.PageRange, error) {
	pages, ok := db.relations[name]
	if !ok {
		return disk.PageRange{}, fmt.Errorf("%w: %s", ErrRelationNotFound, name)
	}
	return pages, nil
}

// Select returns every entry of the named relation.
func (db *Database) Select(name string) ([]entry.Entry, error) {
	pages, err := db.GetRelation(name)
	if err != nil {
		return nil, err
	}
	return relation.ReadRange(db.disk, pages)
}

func (db *Database) joinOptions() []join.Option {
	opts := []join.Option{join.WithLogger(db.logger)}
	if db.log != nil {
		opts = append(opts, join.WithRecorder(db.log))
	}
	return opts
}

// Join partitions and probes two relations. The buckets are kept for Reprobe
// as soon as the partition commits, even if probing them fails, so they match
// what the bucket log recovers on the next Open.
func (db *Database) Join(left, right string) (*join.Result, error) {
	l, err := db.GetRelation(left)
	if err != nil {
		return nil, err
	}
	r, err := db.GetRelation(right)
	if err != nil {
		return nil, err
	}
	before := db.disk.Stats()
	buckets, err := join.Partition(db.disk, db.pager, l, r, db.joinOptions()...)
	if err != nil {
		return nil, err
	}
	db.buckets = buckets
	res, err := join.Reprobe(db.disk, db.pager, buckets, join.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	res.Stats.IO = db.disk.Stats().Sub(before)
	db.result = res
	return res, nil
}

// Reprobe joins the buckets of the latest partition run again.
func (db *Database) Reprobe() (*join.Result, error) {
	if len(db.buckets) == 0 {
		return nil, ErrNoPartition
	}
	res, err := join.Reprobe(db.disk, db.pager, db.buckets, join.WithLogger(db.logger))
	if err != nil {
		return nil, err
	}
	db.result = res
	return res, nil
}

// GetBuckets returns the buckets of the latest partition run, if any.
func (db *Database) GetBuckets() []*join.Bucket {
	return db.buckets
}

// GetResult returns the result of the latest join, if any.
func (db *Database) GetResult() *join.Result {
	return db.result
}

// ResultPairs reads the pairs of the latest join back from disk.
func (db *Database) ResultPairs() ([]relation.Pair, error) {
	if db.result == nil {
		return nil, errors.New("no join has been run")
	}
	return relation.ReadPairs(db.disk, db.result.Pages)
}

// Snapshot copies the data folder to dst.
func (db *Database) Snapshot(dst string) error {
	if db.basepath == "" {
		return ErrInMemory
	}
	return catalog.Snapshot(db.basepath, dst)
}
