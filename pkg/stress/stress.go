// Package stress runs randomized joins and checks them against a nested-loop join.
package stress

import (
	"errors"
	"fmt"
	"math/rand"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/join"
	"dinojoin/pkg/logging"
	"dinojoin/pkg/pager"
	"dinojoin/pkg/relation"
)

// Outcome classifies a finished trial.
type Outcome int

const (
	Passed Outcome = iota
	// Overflowed trials hit join.ErrCapacityExceeded, which is expected for
	// skewed buckets since there is no recursive partitioning.
	Overflowed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Passed:
		return "passed"
	case Overflowed:
		return "overflowed"
	default:
		return "failed"
	}
}

// Params describes one randomized join.
type Params struct {
	Seed      int64
	Frames    int
	Records   int64
	NumLeft   int
	NumRight  int
	KeySpace  int64
	UseBadger bool
}

func (p Params) String() string {
	return fmt.Sprintf("seed=%d F=%d C=%d left=%d right=%d keys=%d badger=%t",
		p.Seed, p.Frames, p.Records, p.NumLeft, p.NumRight, p.KeySpace, p.UseBadger)
}

// Limits bounds the parameters RandomParams draws.
type Limits struct {
	MaxFrames  int
	MaxRecords int64
	MaxTuples  int
	MaxKeys    int64
}

// RandomParams draws trial parameters from rng within the limits.
func RandomParams(rng *rand.Rand, l Limits) Params {
	return Params{
		Seed:     rng.Int63(),
		Frames:   3 + rng.Intn(max(l.MaxFrames-2, 1)),
		Records:  1 + rng.Int63n(max(l.MaxRecords, 1)),
		NumLeft:  rng.Intn(l.MaxTuples + 1),
		NumRight: rng.Intn(l.MaxTuples + 1),
		KeySpace: 1 + rng.Int63n(max(l.MaxKeys, 1)),
	}
}

// Report is the result of one trial.
type Report struct {
	Params  Params
	Outcome Outcome
	Stats   join.Stats
	Err     error
}

// Run executes one trial. A returned error means the trial could not be set
// up; join mistakes are reported as Failed.
func Run(p Params) (*Report, error) {
	d, err := openStore(p.UseBadger)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	rng := rand.New(rand.NewSource(p.Seed))
	left := relation.Generate(rng, p.NumLeft, p.KeySpace, 0)
	right := relation.Generate(rng, p.NumRight, p.KeySpace, int64(p.NumLeft))
	l, err := relation.Write(d, p.Records, left)
	if err != nil {
		return nil, err
	}
	r, err := relation.Write(d, p.Records, right)
	if err != nil {
		return nil, err
	}
	pg, err := pager.New(p.Frames, p.Records)
	if err != nil {
		return nil, err
	}

	report := &Report{Params: p}
	res, err := join.Run(d, pg, l, r, join.WithLogger(logging.Discard()))
	switch {
	case errors.Is(err, join.ErrCapacityExceeded):
		report.Outcome = Overflowed
		report.Err = err
		return report, nil
	case err != nil:
		report.Outcome = Failed
		report.Err = err
		return report, nil
	}
	report.Stats = res.Stats
	if err := check(d, pg, res, left, right); err != nil {
		report.Outcome = Failed
		report.Err = err
	}
	return report, nil
}

func openStore(useBadger bool) (disk.Store, error) {
	if useBadger {
		return disk.OpenBadger("")
	}
	return disk.NewMem(), nil
}

// check compares the join output with a nested-loop join of the same relations.
func check(d disk.Store, pg *pager.Pager, res *join.Result, left, right []entry.Entry) error {
	if pg.NumOccupied() != 0 {
		return fmt.Errorf("%d frames still occupied after the join", pg.NumOccupied())
	}
	if err := join.VerifyBuckets(d, res.Buckets); err != nil {
		return err
	}
	pairs, err := relation.ReadPairs(d, res.Pages)
	if err != nil {
		return err
	}
	numLeft := int64(len(left))
	got := make(map[[2]int64]int, len(pairs))
	for _, p := range pairs {
		if !p.First.EqualsByKey(p.Second) {
			return fmt.Errorf("pair %v, %v joins different keys", p.First, p.Second)
		}
		l, r := p.First, p.Second
		if l.Value >= numLeft {
			l, r = r, l
		}
		got[[2]int64{l.Value, r.Value}]++
	}
	want := relation.NestedLoopJoin(left, right)
	if len(got) != len(want) {
		return fmt.Errorf("join produced %d distinct pairs, expected %d", len(got), len(want))
	}
	for k, n := range want {
		if got[k] != n {
			return fmt.Errorf("pair (left %d, right %d) appeared %d times, expected %d", k[0], k[1], got[k], n)
		}
	}
	if int64(len(pairs)) != res.Stats.Pairs {
		return fmt.Errorf("stats report %d pairs, result pages hold %d", res.Stats.Pairs, len(pairs))
	}
	return nil
}
