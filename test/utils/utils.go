// Package utils holds helpers shared by tests across packages.
package utils

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"dinojoin/pkg/entry"
)

// Mod vals by this value to prevent hardcoding tests
// + 1 is necessary because rand.Int63n(_) can return 0
var Salt int64 = rand.Int63n(1000) + 1

// EnsureCleanup registers fn to run once the test and its subtests finish.
func EnsureCleanup(t *testing.T, fn func()) {
	t.Helper()
	t.Cleanup(fn)
}

// GetTempDbFile returns the path of a not yet existing file in a fresh
// directory. Once the test is done running, the directory is deleted.
func GetTempDbFile(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dinojoin-*")
	if err != nil {
		t.Fatal(err)
	}
	EnsureCleanup(t, func() {
		_ = os.RemoveAll(dir)
	})
	return filepath.Join(dir, "pages.db")
}

// SaltedEntries returns n entries whose keys cycle through keySpace and whose
// values are distinct and salted.
func SaltedEntries(n int, keySpace int64) []entry.Entry {
	entries := make([]entry.Entry, n)
	for i := range entries {
		entries[i] = entry.New(int64(i)%keySpace, int64(i)*Salt)
	}
	return entries
}
