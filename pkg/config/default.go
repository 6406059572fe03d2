// Global database config.
package config

import (
	"fmt"

	"dinojoin/pkg/pager"
)

// Name of the database.
const DBName = "dinojoin"

// Prompt printed by REPL.
const Prompt = DBName + "> "

// The default number of frames in the buffer pool (F).
const MemSizeInPages = 8

// The default number of records that fit on a page (C).
const RecordsPerPage = 4

// Name of the page file inside a data folder.
const DiskFileName = "pages.db"

// Name of the badger directory inside a data folder.
const BadgerDirName = "pages.badger"

// Name of the bucket log inside a data folder.
const BucketLogFileName = "buckets.log"

// Config sizes the buffer pool used by a join.
type Config struct {
	MemSizeInPages int   // F, the number of frames
	RecordsPerPage int64 // C, the number of records per page
}

// Default returns the default configuration.
func Default() Config {
	return Config{MemSizeInPages: MemSizeInPages, RecordsPerPage: RecordsPerPage}
}

// Validate checks the configuration can run a join: the probe phase needs an
// input frame, an output frame and at least one hash table frame.
func (c Config) Validate() error {
	if c.MemSizeInPages < 3 {
		return fmt.Errorf("memory must hold at least 3 pages, got %d", c.MemSizeInPages)
	}
	if c.RecordsPerPage < 1 || c.RecordsPerPage > pager.MaxRecordsPerPage {
		return fmt.Errorf("records per page must be in [1, %d], got %d", pager.MaxRecordsPerPage, c.RecordsPerPage)
	}
	return nil
}

// NewPager builds a buffer pool sized by the configuration.
func (c Config) NewPager() (*pager.Pager, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return pager.New(c.MemSizeInPages, c.RecordsPerPage)
}

// Return prompt if requested, else "".
func GetPrompt(flag bool) string {
	if flag {
		return Prompt
	}
	return ""
}
