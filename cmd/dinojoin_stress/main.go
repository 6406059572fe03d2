package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"dinojoin/pkg/stress"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
)

// Runs randomized grace hash joins in parallel and checks every result
// against a nested-loop join.
func main() {
	var trialsFlag = flag.Int("trials", 100, "number of joins to run")
	var nFlag = flag.Int("n", 4, "number of trials to run at once")
	var seedFlag = flag.Int64("seed", 1, "seed for drawing trial parameters")
	var badgerFlag = flag.Bool("badger", false, "store pages in an in-memory badger instead of a memfile")
	var framesFlag = flag.Int("maxframes", 10, "most buffer pool frames per trial")
	var recordsFlag = flag.Int64("maxrecords", 16, "most records per page per trial")
	var tuplesFlag = flag.Int("maxtuples", 500, "most tuples per relation per trial")
	var keysFlag = flag.Int64("maxkeys", 200, "largest key space per trial")
	var verboseFlag = flag.Bool("v", false, "print every trial")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(*seedFlag))
	limits := stress.Limits{MaxFrames: *framesFlag, MaxRecords: *recordsFlag, MaxTuples: *tuplesFlag, MaxKeys: *keysFlag}

	var mtx sync.Mutex
	counts := make(map[stress.Outcome]int)
	failures := make([]*stress.Report, 0)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*nFlag)
	for i := 0; i < *trialsFlag; i++ {
		params := stress.RandomParams(rng, limits)
		params.UseBadger = *badgerFlag
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			report, err := stress.Run(params)
			if err != nil {
				return fmt.Errorf("trial %s: %w", params, err)
			}
			mtx.Lock()
			defer mtx.Unlock()
			counts[report.Outcome]++
			if report.Outcome == stress.Failed {
				failures = append(failures, report)
			}
			if *verboseFlag {
				fmt.Printf("%-10s %s\n", report.Outcome, params)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		color.Red("error: %v", err)
		os.Exit(2)
	}

	for _, f := range failures {
		fmt.Printf("%s %s: %v\n", color.RedString("FAIL"), f.Params, f.Err)
	}
	fmt.Printf("%s passed, %s overflowed, %s failed\n",
		color.GreenString("%d", counts[stress.Passed]),
		color.YellowString("%d", counts[stress.Overflowed]),
		countColor(counts[stress.Failed]))
	if len(failures) > 0 {
		os.Exit(1)
	}
}

func countColor(n int) string {
	if n == 0 {
		return color.GreenString("%d", n)
	}
	return color.RedString("%d", n)
}
