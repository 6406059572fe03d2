package database

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/join"
	"dinojoin/pkg/relation"
	"dinojoin/pkg/repl"
)

// Creates a DB Repl for the given database.
func DatabaseRepl(db *Database) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("create", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleCreate(db, payload)
	}, "Create a relation from the listed entries. usage: create <relation> [<key>:<value> ...]")

	r.AddCommand("generate", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleGenerate(db, payload)
	}, "Create a relation of random keys. usage: generate <relation> <n> <key_space> [seed]")

	r.AddCommand("relations", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleRelations(db, payload)
	}, "List the stored relations. usage: relations")

	r.AddCommand("select", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleSelect(db, payload)
	}, "Select every entry of a relation. usage: select from <relation>")

	r.AddCommand("join", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleJoin(db, payload)
	}, "Grace hash join two relations on their keys. usage: join <left> <right>")

	r.AddCommand("reprobe", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleReprobe(db, payload)
	}, "Probe the buckets of the latest partition again. usage: reprobe")

	r.AddCommand("buckets", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleBuckets(db, payload)
	}, "Print the buckets of the latest partition. usage: buckets")

	r.AddCommand("result", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleResult(db, payload)
	}, "Print the pairs of the latest join. usage: result")

	r.AddCommand("stats", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleStats(db, payload)
	}, "Print statistics of the latest join. usage: stats")

	r.AddCommand("snapshot", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleSnapshot(db, payload)
	}, "Copy the data folder. usage: snapshot <folder>")

	return r
}

// Handle create.
func HandleCreate(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: create <relation> [<key>:<value> ...]
	if len(fields) < 2 {
		return "", errors.New("usage: create <relation> [<key>:<value> ...]")
	}
	entries := make([]entry.Entry, 0, len(fields)-2)
	for _, field := range fields[2:] {
		e, err := parseEntry(field)
		if err != nil {
			return "", fmt.Errorf("create error: %v", err)
		}
		entries = append(entries, e)
	}
	pages, err := db.CreateRelation(fields[1], entries)
	if err != nil {
		return "", fmt.Errorf("create error: %w", err)
	}
	return fmt.Sprintf("relation %s created on pages %s.\n", fields[1], pages), nil
}

// parseEntry reads an entry written as key:value.
func parseEntry(field string) (entry.Entry, error) {
	k, v, ok := strings.Cut(field, ":")
	if !ok {
		return entry.Entry{}, fmt.Errorf("entry %q is not of the form key:value", field)
	}
	key, err := strconv.ParseInt(k, 10, 64)
	if err != nil {
		return entry.Entry{}, err
	}
	value, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return entry.Entry{}, err
	}
	return entry.New(key, value), nil
}

// Handle generate.
func HandleGenerate(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: generate <relation> <n> <key_space> [seed]
	if len(fields) != 4 && len(fields) != 5 {
		return "", errors.New("usage: generate <relation> <n> <key_space> [seed]")
	}
	n, err := strconv.Atoi(fields[2])
	if err != nil || n < 0 {
		return "", fmt.Errorf("generate error: bad count %q", fields[2])
	}
	keySpace, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil || keySpace <= 0 {
		return "", fmt.Errorf("generate error: bad key space %q", fields[3])
	}
	var seed int64
	if len(fields) == 5 {
		if seed, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
			return "", fmt.Errorf("generate error: %v", err)
		}
	}
	entries := relation.Generate(rand.New(rand.NewSource(seed)), n, keySpace, 0)
	pages, err := db.CreateRelation(fields[1], entries)
	if err != nil {
		return "", fmt.Errorf("generate error: %w", err)
	}
	return fmt.Sprintf("relation %s generated on pages %s.\n", fields[1], pages), nil
}

// Handle relations.
func HandleRelations(db *Database, payload string) (output string, err error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errors.New("usage: relations")
	}
	names := make([]string, 0, len(db.GetRelations()))
	for name := range db.GetRelations() {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		pages := db.GetRelations()[name]
		rows = append(rows, []string{name, pages.String(), strconv.Itoa(pages.Len())})
	}
	return formatTable([]string{"relation", "pages", "num_pages"}, rows), nil
}

// Handle select.
func HandleSelect(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: select from <relation>
	if len(fields) != 3 || fields[1] != "from" {
		return "", errors.New("usage: select from <relation>")
	}
	entries, err := db.Select(fields[2])
	if err != nil {
		return "", fmt.Errorf("select error: %w", err)
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{fmtInt(e.Key), fmtInt(e.Value)})
	}
	return formatTable([]string{"key", "value"}, rows), nil
}

// Handle join.
func HandleJoin(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: join <left> <right>
	if len(fields) != 3 {
		return "", errors.New("usage: join <left> <right>")
	}
	res, err := db.Join(fields[1], fields[2])
	if err != nil {
		return "", fmt.Errorf("join error: %w", err)
	}
	return summarize(res), nil
}

// Handle reprobe.
func HandleReprobe(db *Database, payload string) (output string, err error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errors.New("usage: reprobe")
	}
	res, err := db.Reprobe()
	if err != nil {
		return "", fmt.Errorf("reprobe error: %w", err)
	}
	return summarize(res), nil
}

func summarize(res *join.Result) string {
	return fmt.Sprintf("%d pairs on %d result pages (%d reads, %d writes).\n",
		res.Stats.Pairs, res.Stats.ResultPages, res.Stats.IO.Reads, res.Stats.IO.Writes)
}

// Handle buckets.
func HandleBuckets(db *Database, payload string) (output string, err error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errors.New("usage: buckets")
	}
	rows := make([][]string, 0, len(db.GetBuckets()))
	for _, b := range db.GetBuckets() {
		build := "-"
		if b.IsJoinable() {
			build = b.BuildSide().String()
		}
		rows = append(rows, []string{
			strconv.Itoa(b.Index()),
			fmtInt(b.Count(join.Left)), fmtPages(b.Pages(join.Left)),
			fmtInt(b.Count(join.Right)), fmtPages(b.Pages(join.Right)),
			build,
		})
	}
	return formatTable([]string{"bucket", "left", "left_pages", "right", "right_pages", "build"}, rows), nil
}

// Handle result.
func HandleResult(db *Database, payload string) (output string, err error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errors.New("usage: result")
	}
	pairs, err := db.ResultPairs()
	if err != nil {
		return "", fmt.Errorf("result error: %w", err)
	}
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{fmtInt(p.First.Key), fmtInt(p.First.Value), fmtInt(p.Second.Value)})
	}
	return formatTable([]string{"key", "build_value", "probe_value"}, rows), nil
}

// Handle stats.
func HandleStats(db *Database, payload string) (output string, err error) {
	if len(strings.Fields(payload)) != 1 {
		return "", errors.New("usage: stats")
	}
	res := db.GetResult()
	if res == nil {
		return "", errors.New("stats error: no join has been run")
	}
	s := res.Stats
	rows := [][]string{
		{"buckets", strconv.Itoa(s.Buckets)},
		{"skipped_buckets", strconv.Itoa(s.SkippedBuckets)},
		{"pairs", fmtInt(s.Pairs)},
		{"table_pages", strconv.Itoa(s.TablePages)},
		{"result_pages", strconv.Itoa(s.ResultPages)},
		{"reads", fmtInt(s.IO.Reads)},
		{"writes", fmtInt(s.IO.Writes)},
	}
	return formatTable([]string{"stat", "value"}, rows), nil
}

// Handle snapshot.
func HandleSnapshot(db *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return "", errors.New("usage: snapshot <folder>")
	}
	if err := db.Snapshot(fields[1]); err != nil {
		return "", fmt.Errorf("snapshot error: %w", err)
	}
	return fmt.Sprintf("copied %s to %s.\n", db.GetBasePath(), fields[1]), nil
}

func fmtInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func fmtPages(ids []disk.PageID) string {
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = fmtInt(int64(id))
	}
	return strings.Join(strs, " ")
}
