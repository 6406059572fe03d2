// Package repl implements a small line-oriented command loop that the
// database and pager expose their operations through.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ReplCommand handles one input line. The whole line, trigger included, is passed as payload.
type ReplCommand func(payload string, replConfig *REPLConfig) (output string, err error)

const (
	// Trigger for the help meta-command that prints out all help strings
	TriggerHelpMetacommand = ".help"

	// String that should be prepended to any error before being sent to the output writer
	ErrorPrependStr = "ERROR: "
)

var (
	// Error for combining REPLs that register the same trigger
	ErrOverlappingCommands = errors.New("found overlapping commands")

	// Error for when a sent trigger is not associated with any known commands
	ErrCommandNotFound = errors.New("command not found")

	// Error for registering a command under a reserved trigger
	ErrReservedTrigger = errors.New("trigger is reserved")
)

// REPL maps triggers to commands and their help strings.
type REPL struct {
	commands map[string]ReplCommand
	help     map[string]string
}

// REPLConfig carries per-session state handed to every command.
type REPLConfig struct {
	clientId uuid.UUID
}

// GetAddr returns the id of the client driving the session.
func (replConfig *REPLConfig) GetAddr() uuid.UUID {
	return replConfig.clientId
}

// NewRepl constructs an empty REPL.
func NewRepl() *REPL {
	return &REPL{
		commands: make(map[string]ReplCommand),
		help:     make(map[string]string),
	}
}

// CombineRepls merges the commands of several REPLs into a new one.
// Returns ErrOverlappingCommands if two of them share a trigger.
func CombineRepls(repls []*REPL) (*REPL, error) {
	combined := NewRepl()
	for _, r := range repls {
		for trigger, command := range r.commands {
			if _, exists := combined.commands[trigger]; exists {
				return nil, fmt.Errorf("%w: %s", ErrOverlappingCommands, trigger)
			}
			combined.commands[trigger] = command
			combined.help[trigger] = r.help[trigger]
		}
	}
	return combined, nil
}

// Synchronized returns a copy of the REPL whose commands hold mtx while
// they run, so concurrent sessions can share state that is not thread safe.
func (r *REPL) Synchronized(mtx sync.Locker) *REPL {
	locked := NewRepl()
	for trigger, command := range r.commands {
		command := command
		locked.commands[trigger] = func(payload string, replConfig *REPLConfig) (string, error) {
			mtx.Lock()
			defer mtx.Unlock()
			return command(payload, replConfig)
		}
		locked.help[trigger] = r.help[trigger]
	}
	return locked
}

// GetCommands returns the registered commands by trigger.
func (r *REPL) GetCommands() map[string]ReplCommand {
	return r.commands
}

// GetHelp returns the registered help strings by trigger.
func (r *REPL) GetHelp() map[string]string {
	return r.help
}

// AddCommand registers a command and its help string, replacing any command
// already registered under the same trigger.
func (r *REPL) AddCommand(trigger string, action ReplCommand, help string) error {
	if trigger == TriggerHelpMetacommand {
		return ErrReservedTrigger
	}
	r.commands[trigger] = action
	r.help[trigger] = help
	return nil
}

// HelpString returns every help string, one per line, sorted by trigger.
func (r *REPL) HelpString() string {
	triggers := make([]string, 0, len(r.help))
	for trigger := range r.help {
		triggers = append(triggers, trigger)
	}
	sort.Strings(triggers)
	var sb strings.Builder
	for _, trigger := range triggers {
		fmt.Fprintf(&sb, "%s: %s\n", trigger, r.help[trigger])
	}
	return sb.String()
}

// execute runs a single non-empty input line and returns what should be printed.
func (r *REPL) execute(payload string, trigger string, replConfig *REPLConfig) string {
	if trigger == TriggerHelpMetacommand {
		return r.HelpString()
	}
	command, exists := r.commands[trigger]
	if !exists {
		return fmt.Sprintf("%s%s\n", ErrorPrependStr, ErrCommandNotFound)
	}
	result, err := command(payload, replConfig)
	if err != nil {
		return fmt.Sprintf("%s%s\n", ErrorPrependStr, err)
	}
	if len(result) != 0 && !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result
}

// Run prints a welcome line and then reads commands from input until EOF,
// writing each command's output (or error) followed by the prompt.
// input and output default to stdin and stdout when nil.
func (r *REPL) Run(clientId uuid.UUID, prompt string, input io.Reader, output io.Writer) {
	if input == nil {
		input = os.Stdin
	}
	if output == nil {
		output = os.Stdout
	}

	scanner := bufio.NewScanner(input)
	replConfig := &REPLConfig{clientId: clientId}
	fmt.Fprintln(output, "Welcome to the dinojoin REPL! Please type '.help' to see the list of available commands.")
	io.WriteString(output, prompt)

	for scanner.Scan() {
		payload := scanner.Text()
		if fields := strings.Fields(payload); len(fields) > 0 {
			io.WriteString(output, r.execute(payload, fields[0], replConfig))
		}
		io.WriteString(output, prompt)
	}
	// Print an additional line if we encountered an EOF character.
	io.WriteString(output, "\n")
}
