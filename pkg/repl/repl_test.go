package repl_test

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"dinojoin/pkg/repl"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f1(s string, _ *repl.REPLConfig) (string, error) { return "", nil }
func f2(s string, _ *repl.REPLConfig) (string, error) { return "", nil }

func echo(s string, _ *repl.REPLConfig) (output string, err error) {
	return s, nil
}

func fail(s string, _ *repl.REPLConfig) (output string, err error) {
	return "", errors.New("boom")
}

// runLines feeds the lines to a REPL with an empty prompt and returns what
// it printed after the welcome line.
func runLines(t *testing.T, r *repl.REPL, prompt string, lines ...string) string {
	t.Helper()
	out := new(strings.Builder)
	r.Run(uuid.New(), prompt, strings.NewReader(strings.Join(lines, "\n")+"\n"), out)
	welcome, rest, ok := strings.Cut(out.String(), "\n")
	require.True(t, ok)
	require.Contains(t, welcome, "Welcome")
	return rest
}

func TestRepl(t *testing.T) {
	t.Run("NewRepl", testNewRepl)
	t.Run("Add", testAdd)
	t.Run("HelpString", testHelpString)
	t.Run("ReservedTrigger", testReservedTrigger)
	t.Run("CombineZeroRepl", testCombineZeroRepl)
	t.Run("Combine", testCombine)
	t.Run("CombineOverlap", testCombineOverlap)
	t.Run("Synchronized", testSynchronized)
}

func testNewRepl(t *testing.T) {
	r := repl.NewRepl()
	assert.Empty(t, r.GetCommands())
	assert.Empty(t, r.GetHelp())
}

func testAdd(t *testing.T) {
	r := repl.NewRepl()
	for i := 1; i <= 5; i++ {
		require.NoError(t, r.AddCommand(fmt.Sprint(i), f1, fmt.Sprintf("%d help", i)))
	}
	for i := 1; i <= 5; i++ {
		assert.Contains(t, r.GetCommands(), fmt.Sprint(i))
		assert.Equal(t, fmt.Sprintf("%d help", i), r.GetHelp()[fmt.Sprint(i)])
	}
}

func testHelpString(t *testing.T) {
	r := repl.NewRepl()
	require.NoError(t, r.AddCommand("b", f1, "b help"))
	require.NoError(t, r.AddCommand("a", f2, "a help"))
	assert.Equal(t, "a: a help\nb: b help\n", r.HelpString())
}

func testReservedTrigger(t *testing.T) {
	r := repl.NewRepl()
	assert.True(t, errors.Is(r.AddCommand(repl.TriggerHelpMetacommand, f1, "fake help"), repl.ErrReservedTrigger))
	assert.Empty(t, r.GetCommands())
}

func testCombineZeroRepl(t *testing.T) {
	r, err := repl.CombineRepls([]*repl.REPL{})
	require.NoError(t, err)
	assert.Empty(t, r.GetCommands())
	assert.Empty(t, r.GetHelp())
}

func testCombine(t *testing.T) {
	r1, r2 := repl.NewRepl(), repl.NewRepl()
	require.NoError(t, r1.AddCommand("1", f1, "1 help"))
	require.NoError(t, r2.AddCommand("2", f2, "2 help"))
	r, err := repl.CombineRepls([]*repl.REPL{r1, r2})
	require.NoError(t, err)
	assert.Len(t, r.GetCommands(), 2)
	assert.Equal(t, "1: 1 help\n2: 2 help\n", r.HelpString())
}

func testCombineOverlap(t *testing.T) {
	r1, r2 := repl.NewRepl(), repl.NewRepl()
	require.NoError(t, r1.AddCommand("1", f1, "1 help"))
	require.NoError(t, r2.AddCommand("1", f2, "other help"))
	_, err := repl.CombineRepls([]*repl.REPL{r1, r2})
	assert.True(t, errors.Is(err, repl.ErrOverlappingCommands))
}

func TestReplRun(t *testing.T) {
	t.Run("EmptyHelp", testRunEmptyHelp)
	t.Run("InvalidCommand", testRunInvalidCommand)
	t.Run("SingleCommand", testRunSingleCommand)
	t.Run("CommandError", testRunCommandError)
	t.Run("BlankLines", testRunBlankLines)
	t.Run("Prompt", testRunPrompt)
}

func testRunEmptyHelp(t *testing.T) {
	assert.Equal(t, "\n", runLines(t, repl.NewRepl(), "", ".help"))
}

func testRunInvalidCommand(t *testing.T) {
	out := runLines(t, repl.NewRepl(), "", "invalid")
	assert.Equal(t, fmt.Sprintf("%s%s\n\n", repl.ErrorPrependStr, repl.ErrCommandNotFound), out)
}

func testRunSingleCommand(t *testing.T) {
	r := repl.NewRepl()
	require.NoError(t, r.AddCommand("echo", echo, "prints back everything"))
	assert.Equal(t, "echo hey\n\n", runLines(t, r, "", "echo hey"))
}

func testRunCommandError(t *testing.T) {
	r := repl.NewRepl()
	require.NoError(t, r.AddCommand("fail", fail, "always fails"))
	assert.Equal(t, repl.ErrorPrependStr+"boom\n\n", runLines(t, r, "", "fail"))
}

func testRunBlankLines(t *testing.T) {
	r := repl.NewRepl()
	require.NoError(t, r.AddCommand("echo", echo, "prints back everything"))
	assert.Equal(t, "echo a\necho b\n\n", runLines(t, r, "", "", "echo a", "   ", "echo b"))
}

func testRunPrompt(t *testing.T) {
	r := repl.NewRepl()
	require.NoError(t, r.AddCommand("echo", echo, "prints back everything"))
	assert.Equal(t, "> echo 1\n> \n", runLines(t, r, "> ", "echo 1"))
}

// Concurrent sessions of a synchronized REPL never run two commands at once.
func testSynchronized(t *testing.T) {
	var mtx sync.Mutex
	active, maxActive := 0, 0
	track := func(s string, _ *repl.REPLConfig) (string, error) {
		active++
		if active > maxActive {
			maxActive = active
		}
		time.Sleep(time.Millisecond)
		active--
		return "", nil
	}
	r := repl.NewRepl()
	require.NoError(t, r.AddCommand("track", track, "counts overlapping calls"))
	locked := r.Synchronized(&mtx)
	assert.Equal(t, r.HelpString(), locked.HelpString())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locked.Run(uuid.New(), "", strings.NewReader("track\ntrack\ntrack\n"), io.Discard)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}
