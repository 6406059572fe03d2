package pager

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"dinojoin/pkg/disk"
	"dinojoin/pkg/entry"
	"dinojoin/pkg/repl"
)

// PagerRepl creates a REPL for poking at a pager and the disk behind it.
func PagerRepl(d disk.Store, p *Pager) *repl.REPL {
	r := repl.NewRepl()

	r.AddCommand("pager_print", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandlePagerPrint(p, payload)
	}, "Print out the state of every frame. usage: pager_print")

	r.AddCommand("pager_load", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandlePagerLoad(d, p, payload)
	}, "Load a disk page into a frame. usage: pager_load <page_num> <frame>")

	r.AddCommand("pager_append", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandlePagerAppend(p, payload)
	}, "Append an entry to a frame. usage: pager_append <frame> <key> <value>")

	r.AddCommand("pager_flush", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandlePagerFlush(d, p, payload)
	}, "Write a frame to a new disk page. usage: pager_flush <frame>")

	r.AddCommand("pager_read", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandlePagerRead(p, payload)
	}, "Print the entries in a frame. usage: pager_read <frame>")

	r.AddCommand("pager_clear", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandlePagerClear(p, payload)
	}, "Clear a frame. usage: pager_clear <frame>")

	r.AddCommand("pager_reset", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return "", HandlePagerReset(p, payload)
	}, "Clear every frame. usage: pager_reset")

	return r
}

// parseFrame reads a frame index argument.
func parseFrame(p *Pager, field string) (*Page, error) {
	idx, err := strconv.Atoi(field)
	if err != nil {
		return nil, err
	}
	return p.Frame(idx)
}

// Function to print out state of the pager.
func HandlePagerPrint(p *Pager, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: pager_print
	if len(fields) != 1 {
		return "", errors.New("usage: pager_print")
	}
	w := new(strings.Builder)
	fmt.Fprintf(w, "frames: %d, records per page: %d, occupied: %d\n", p.NumFrames(), p.Capacity(), p.NumOccupied())
	for _, page := range p.frames {
		page.Print(w)
	}
	return w.String(), nil
}

// Function to load a disk page into a frame.
func HandlePagerLoad(d disk.Store, p *Pager, payload string) (err error) {
	fields := strings.Fields(payload)
	// Usage: pager_load <page_num> <frame>
	if len(fields) != 3 {
		return errors.New("usage: pager_load <page_num> <frame>")
	}
	pNum, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return err
	}
	frameIdx, err := strconv.Atoi(fields[2])
	if err != nil {
		return err
	}
	return p.Load(d, disk.PageID(pNum), frameIdx)
}

// Function to append an entry to a frame.
func HandlePagerAppend(p *Pager, payload string) (err error) {
	fields := strings.Fields(payload)
	// Usage: pager_append <frame> <key> <value>
	if len(fields) != 4 {
		return errors.New("usage: pager_append <frame> <key> <value>")
	}
	page, err := parseFrame(p, fields[1])
	if err != nil {
		return err
	}
	key, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return err
	}
	value, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return err
	}
	return page.Append(entry.New(key, value))
}

// Function to flush a frame to disk.
func HandlePagerFlush(d disk.Store, p *Pager, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: pager_flush <frame>
	if len(fields) != 2 {
		return "", errors.New("usage: pager_flush <frame>")
	}
	frameIdx, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", err
	}
	id, err := p.Flush(d, frameIdx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("flushed frame %d to page %d", frameIdx, id), nil
}

// Function to print out the contents of a frame.
func HandlePagerRead(p *Pager, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: pager_read <frame>
	if len(fields) != 2 {
		return "", errors.New("usage: pager_read <frame>")
	}
	page, err := parseFrame(p, fields[1])
	if err != nil {
		return "", err
	}
	w := new(strings.Builder)
	page.Print(w)
	return w.String(), nil
}

// Function to clear a frame.
func HandlePagerClear(p *Pager, payload string) (err error) {
	fields := strings.Fields(payload)
	// Usage: pager_clear <frame>
	if len(fields) != 2 {
		return errors.New("usage: pager_clear <frame>")
	}
	page, err := parseFrame(p, fields[1])
	if err != nil {
		return err
	}
	page.Clear()
	return nil
}

// Function to clear every frame.
func HandlePagerReset(p *Pager, payload string) (err error) {
	// Usage: pager_reset
	if len(strings.Fields(payload)) != 1 {
		return errors.New("usage: pager_reset")
	}
	p.Reset()
	return nil
}
