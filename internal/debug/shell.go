// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package debug

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// ThreadLister provides stack snapshots for the shell. Manager implements it.
type ThreadLister interface {
	Threads() []ThreadSnapshot
}

// Shell provides an interactive debugging interface on top of an Adapter.
type Shell struct {
	adapter *Adapter
	threads ThreadLister
	input   io.Reader
	output  io.Writer
	scanner *bufio.Scanner
	eof     bool
}

// NewShell creates a new debug shell connected to the given adapter.
// threads may be nil, in which case "stack" is unavailable.
func NewShell(adapter *Adapter, threads ThreadLister) *Shell {
	return &Shell{
		adapter: adapter,
		threads: threads,
		input:   os.Stdin,
		output:  os.Stdout,
	}
}

// WithIO replaces stdin and stdout.
func (s *Shell) WithIO(in io.Reader, out io.Writer) *Shell {
	s.input = in
	s.output = out
	s.scanner = nil
	return s
}

// Run listens for debug events and provides a command prompt when a
// worker is paused. It returns when ctx is done or the adapter is closed.
func (s *Shell) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.adapter.Done():
			return nil

		case <-sigCh:
			fmt.Fprintln(s.output, "\nInterrupt received. Closing debugger.")
			s.adapter.Close()
			return nil

		case event := <-s.adapter.EventChan():
			if err := s.handleEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

// handleEvent processes a debug event and takes appropriate action.
func (s *Shell) handleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventStopped, EventBreak:
		return s.promptForCommand(ctx, event)

	case EventResumed:
		fmt.Fprintln(s.output, mutedStyle.Render("Resuming execution..."))

	case EventThreadStarted, EventThreadRetired, EventPrimed:
		fmt.Fprintln(s.output, mutedStyle.Render("• "+event.Message))
	}
	return nil
}

// promptForCommand displays a prompt and waits for user input.
func (s *Shell) promptForCommand(ctx context.Context, event *Event) error {
	s.displayStopInfo(event)

	if s.scanner == nil {
		s.scanner = bufio.NewScanner(s.input)
	}

	for {
		if s.eof {
			return s.send(ctx, &Command{Type: CommandContinue})
		}

		fmt.Fprint(s.output, "debug> ")
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return fmt.Errorf("input error: %w", err)
			}
			// EOF - run to completion
			s.eof = true
			continue
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}

		cmd, err := s.parseCommand(line)
		if err != nil {
			fmt.Fprintln(s.output, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		if cmd == nil {
			continue
		}

		switch cmd.Type {
		case CommandContinue, CommandNext:
			return s.send(ctx, cmd)
		case CommandStack:
			s.handleStack()
		case CommandLocals:
			s.handleLocals(event)
		case CommandInspect:
			s.handleInspect(ctx, event, cmd.Args)
		case CommandGoroutine:
			fmt.Fprintf(s.output, "%s\n", event.Stack)
		case CommandBreak:
			s.handleBreak(cmd.Args)
		}
	}
}

func (s *Shell) send(ctx context.Context, cmd *Command) error {
	select {
	case s.adapter.CommandChan() <- cmd:
		return nil
	case <-s.adapter.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseCommand parses a command line. Help prints and returns a nil command.
func (s *Shell) parseCommand(line string) (*Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmdStr := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmdStr {
	case "c", "continue":
		return &Command{Type: CommandContinue}, nil

	case "n", "next":
		return &Command{Type: CommandNext}, nil

	case "bt", "stack":
		return &Command{Type: CommandStack}, nil

	case "l", "locals":
		return &Command{Type: CommandLocals}, nil

	case "i", "inspect":
		if len(args) == 0 {
			return nil, fmt.Errorf("inspect requires a jq query")
		}
		return &Command{Type: CommandInspect, Args: []string{strings.Join(args, " ")}}, nil

	case "g", "goroutine":
		return &Command{Type: CommandGoroutine}, nil

	case "b", "break":
		if len(args) == 0 {
			return nil, fmt.Errorf("break requires a state glob or file:line")
		}
		return &Command{Type: CommandBreak, Args: []string{strings.Join(args, " ")}}, nil

	case "h", "help", "?":
		s.showHelp()
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown command: %s (type 'help' for commands)", cmdStr)
	}
}

// displayStopInfo shows where the worker is paused.
func (s *Shell) displayStopInfo(event *Event) {
	fmt.Fprintln(s.output)
	fmt.Fprintln(s.output, headerStyle.Render(fmt.Sprintf("Paused at %s (thread %d, depth %d)", event.State, event.ThreadID, event.Depth)))
	if event.Location != "" {
		fmt.Fprintln(s.output, mutedStyle.Render(event.Location))
	}
	inspector := NewInspector(event.Locals)
	if keys := inspector.Keys(); len(keys) > 0 {
		fmt.Fprintln(s.output, "Locals:")
		fmt.Fprint(s.output, inspector.Summary())
	} else {
		fmt.Fprintln(s.output, "Locals: (none)")
	}
	fmt.Fprintln(s.output, mutedStyle.Render("Commands: continue, next, stack, locals, inspect <jq>, goroutine, break <bp>, help"))
}

func (s *Shell) handleStack() {
	if s.threads == nil {
		fmt.Fprintln(s.output, "No thread information available")
		return
	}
	for _, t := range s.threads.Threads() {
		fmt.Fprintln(s.output, headerStyle.Render(fmt.Sprintf("Thread %d %s", t.ID, t.Name)))
		for i, f := range t.Frames {
			line := fmt.Sprintf("  #%d %s", i, f.State)
			if f.Location != "" {
				line += " " + mutedStyle.Render(f.Location)
			}
			fmt.Fprintln(s.output, line)
		}
	}
}

func (s *Shell) handleLocals(event *Event) {
	if len(event.Locals) == 0 {
		fmt.Fprintln(s.output, "No locals")
		return
	}
	out, err := NewInspector(event.Locals).FormatLocals()
	if err != nil {
		fmt.Fprintf(s.output, "Error formatting locals: %v\n", err)
		return
	}
	fmt.Fprintln(s.output, out)
}

// handleInspect runs a jq query against the paused frame's locals.
func (s *Shell) handleInspect(ctx context.Context, event *Event, args []string) {
	inspector := NewInspector(event.Locals)
	results, err := inspector.Query(ctx, args[0])
	if err != nil {
		fmt.Fprintln(s.output, errorStyle.Render("Error: "+err.Error()))
		return
	}
	for _, v := range results {
		out, err := inspector.Format(v)
		if err != nil {
			fmt.Fprintf(s.output, "Error formatting value: %v\n", err)
			continue
		}
		fmt.Fprintln(s.output, out)
	}
}

func (s *Shell) handleBreak(args []string) {
	bp, err := ParseBreakpoint(args[0])
	if err == nil {
		err = s.adapter.Config().Add(bp)
	}
	if err != nil {
		fmt.Fprintln(s.output, errorStyle.Render("Error: "+err.Error()))
		return
	}
	fmt.Fprintf(s.output, "Breakpoint set: %s\n", bp)
}

// showHelp displays available commands.
func (s *Shell) showHelp() {
	help := `
Debug Commands:
  continue, c        Resume until the next breakpoint
  next, n            Resume and pause at the next stop on this thread
  stack, bt          Show the logical stack of every thread
  locals, l          Dump the paused frame's locals as JSON
  inspect <jq>, i    Run a jq query over the locals
  goroutine, g       Show the worker's native stack
  break <bp>, b      Add a breakpoint (state glob, file:line, state@file:line, "... if <expr>")
  help, h, ?         Show this help message

Press Ctrl+C to close the debugger and run to completion
`
	fmt.Fprintln(s.output, help)
}
