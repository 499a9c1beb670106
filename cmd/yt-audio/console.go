package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ytget/yt-audio/internal/control"
)

const consoleHelp = "Commands: p=pause  r=resume  c=cancel  a=cancel after current item  s=status  h=help"

// console reads single-letter commands from stdin while a job runs. It also
// answers the keep-or-discard question of a cancel-after-current request, so
// the same line reader serves both.
type console struct {
	out   io.Writer
	lines chan string

	mu     sync.Mutex
	answer chan string
	closed bool
}

func newConsole(in io.Reader, out io.Writer) *console {
	c := &console{out: out, lines: make(chan string)}
	go c.scan(in)
	return c
}

func (c *console) scan(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	c.mu.Lock()
	c.closed = true
	pending := c.answer
	c.answer = nil
	c.mu.Unlock()
	if pending != nil {
		pending <- ""
	}
	close(c.lines)
}

// run dispatches commands until ctx ends or input is exhausted
func (c *console) run(ctx context.Context, ctl control.Controls) {
	fmt.Fprintln(c.out, consoleHelp)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			c.mu.Lock()
			pending := c.answer
			c.answer = nil
			c.mu.Unlock()
			if pending != nil {
				pending <- line
				continue
			}
			c.dispatch(line, ctl)
		}
	}
}

func (c *console) dispatch(line string, ctl control.Controls) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "p", "pause":
		if !ctl.Pause() {
			fmt.Fprintln(c.out, "Cannot pause now")
		}
	case "r", "resume":
		if !ctl.Resume() {
			fmt.Fprintln(c.out, "Nothing to resume")
		}
	case "c", "cancel":
		ctl.Cancel()
	case "a", "after":
		ctl.CancelAfterCurrentItem()
		fmt.Fprintln(c.out, "Stopping after the current item")
	case "s", "status":
		fmt.Fprintf(c.out, "Phase: %s\n", ctl.Phase())
	case "h", "help", "?":
		fmt.Fprintln(c.out, consoleHelp)
	default:
		fmt.Fprintf(c.out, "Unknown command %q\n", line)
	}
}

// ConfirmKeep prompts for the item finished under cancel-after-current. An
// empty answer, closed input or an ended context keeps the file.
func (c *console) ConfirmKeep(ctx context.Context, path string) bool {
	ch := make(chan string, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return true
	}
	c.answer = ch
	c.mu.Unlock()

	fmt.Fprintf(c.out, "Keep %s? [Y/n] ", filepath.Base(path))
	select {
	case line := <-ch:
		return parseYes(line, true)
	case <-ctx.Done():
		c.mu.Lock()
		if c.answer == ch {
			c.answer = nil
		}
		c.mu.Unlock()
		return true
	}
}

func parseYes(line string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
