package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/join"

	"github.com/google/uuid"
)

/*
   Logs come in the following forms:

   RELATION log -- a relation was stored on disk, recordsPerPage to a page:
   < relation name start end recordsPerPage >

   START log -- start of a partition run over numBuckets buckets:
   < Run partition start numBuckets >

   PAGE log -- a bucket page was flushed to disk:
   < Run, bucket, left|right, pageid >

   COUNTS log -- tuples routed to a bucket per side:
   < Run, bucket, counts, left, right >

   COMMIT log -- end of a partition run:
   < Run partition commit >
*/

// Interface that all log structs share.
type log interface {
	toString() string // Serializes the log to a string
}

// Log for storing a relation.
type relationLog struct {
	name    string         // The name of the relation
	pages   disk.PageRange // The pages it occupies
	records int64          // The page capacity it was written with
}

func (rl relationLog) toString() string {
	return fmt.Sprintf("< relation %s %d %d %d >\n", rl.name, rl.pages.Start, rl.pages.End, rl.records)
}

// Log for starting a partition run.
type startLog struct {
	id         uuid.UUID // The id of the run
	numBuckets int       // The number of buckets the run partitions into
}

func (sl startLog) toString() string {
	return fmt.Sprintf("< %s partition start %d >\n", sl.id.String(), sl.numBuckets)
}

// Log for a flushed bucket page.
type pageLog struct {
	id     uuid.UUID
	bucket int
	side   join.Side
	page   disk.PageID
}

func (pl pageLog) toString() string {
	return fmt.Sprintf("< %s, %d, %s, %d >\n", pl.id.String(), pl.bucket, pl.side, pl.page)
}

// Log for a bucket's final tuple counts.
type countsLog struct {
	id     uuid.UUID
	bucket int
	left   int64
	right  int64
}

func (cl countsLog) toString() string {
	return fmt.Sprintf("< %s, %d, counts, %d, %d >\n", cl.id.String(), cl.bucket, cl.left, cl.right)
}

// Log for committing a partition run.
type commitLog struct {
	id uuid.UUID
}

func (cl commitLog) toString() string {
	return fmt.Sprintf("< %s partition commit >\n", cl.id.String())
}

// Regex pattern for a uuid
const uuidPattern = "[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}"

var relationExp = regexp.MustCompile(`^< relation (?P<name>\w+) (?P<start>\d+) (?P<end>\d+) (?P<records>\d+) >$`)
var startExp = regexp.MustCompile(fmt.Sprintf(`^< (%s) partition start (\d+) >$`, uuidPattern))
var pageExp = regexp.MustCompile(fmt.Sprintf(`^< (%s), (\d+), (left|right), (\d+) >$`, uuidPattern))
var countsExp = regexp.MustCompile(fmt.Sprintf(`^< (%s), (\d+), counts, (\d+), (\d+) >$`, uuidPattern))
var commitExp = regexp.MustCompile(fmt.Sprintf(`^< (%s) partition commit >$`, uuidPattern))

// Error for a line that matches no log form
var ErrBadLog = errors.New("could not parse log")

// Convert the textual representation of a log to its respective struct.
func logFromString(s string) (log, error) {
	switch {
	case relationExp.MatchString(s):
		m := relationExp.FindStringSubmatch(s)
		start, _ := strconv.ParseInt(m[2], 10, 64)
		end, _ := strconv.ParseInt(m[3], 10, 64)
		records, _ := strconv.ParseInt(m[4], 10, 64)
		pages := disk.PageRange{Start: disk.PageID(start), End: disk.PageID(end)}
		return relationLog{name: m[1], pages: pages, records: records}, nil
	case startExp.MatchString(s):
		m := startExp.FindStringSubmatch(s)
		n, _ := strconv.Atoi(m[2])
		return startLog{id: uuid.MustParse(m[1]), numBuckets: n}, nil
	case pageExp.MatchString(s):
		m := pageExp.FindStringSubmatch(s)
		bucket, _ := strconv.Atoi(m[2])
		side, err := join.ParseSide(m[3])
		if err != nil {
			return nil, err
		}
		page, _ := strconv.ParseInt(m[4], 10, 64)
		return pageLog{id: uuid.MustParse(m[1]), bucket: bucket, side: side, page: disk.PageID(page)}, nil
	case countsExp.MatchString(s):
		m := countsExp.FindStringSubmatch(s)
		bucket, _ := strconv.Atoi(m[2])
		left, _ := strconv.ParseInt(m[3], 10, 64)
		right, _ := strconv.ParseInt(m[4], 10, 64)
		return countsLog{id: uuid.MustParse(m[1]), bucket: bucket, left: left, right: right}, nil
	case commitExp.MatchString(s):
		m := commitExp.FindStringSubmatch(s)
		return commitLog{id: uuid.MustParse(m[1])}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadLog, s)
	}
}
