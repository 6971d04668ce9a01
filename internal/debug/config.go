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
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/vstack/pkg/errors"
)

// Breakpoint selects the stops a trap should pause at. A breakpoint matches
// a state when every field that is set matches.
type Breakpoint struct {
	// State is a glob over state names (e.g. "Assign_*").
	State string `yaml:"state,omitempty"`

	// File is a glob over source file paths. A pattern without a slash is
	// also tried against the base name.
	File string `yaml:"file,omitempty"`

	// Line must fall inside the state's source span.
	Line int `yaml:"line,omitempty"`

	// Condition is an expr expression over the frame's locals.
	Condition string `yaml:"condition,omitempty"`

	program *vm.Program
}

// ParseBreakpoint parses the command-line form of a breakpoint:
//
//	Assign_*              state name glob
//	flow.xml:12           file and line
//	Log@flow.xml:12       state glob within a file
//	@flow.xml             any state in a file
//	Log if count > 2      any of the above plus a condition
func ParseBreakpoint(s string) (Breakpoint, error) {
	var bp Breakpoint
	target, cond, _ := strings.Cut(strings.TrimSpace(s), " if ")
	target = strings.TrimSpace(target)
	bp.Condition = strings.TrimSpace(cond)
	if target == "" {
		return bp, &errors.ValidationError{
			Field:      "breakpoint",
			Message:    "breakpoint target is empty",
			Suggestion: "use a state name glob or file:line",
		}
	}

	if state, file, ok := strings.Cut(target, "@"); ok {
		if file == "" {
			return bp, &errors.ValidationError{
				Field:      "breakpoint",
				Message:    fmt.Sprintf("missing file after @ in %q", s),
				Suggestion: "use state@file or state@file:line",
			}
		}
		bp.State = state
		if err := bp.parseFile(file, s, true); err != nil {
			return bp, err
		}
		err := bp.compile()
		return bp, err
	}

	if err := bp.parseFile(target, s, false); err != nil {
		return bp, err
	}
	if bp.File == "" {
		bp.State = target
	}
	err := bp.compile()
	return bp, err
}

// parseFile sets File and Line from "file:line". A target without a line
// only names a file when explicit is set.
func (bp *Breakpoint) parseFile(target, raw string, explicit bool) error {
	if i := strings.LastIndexByte(target, ':'); i > 0 {
		if line, err := strconv.Atoi(target[i+1:]); err == nil {
			if line < 1 {
				return &errors.ValidationError{Field: "breakpoint", Message: fmt.Sprintf("line must be positive in %q", raw)}
			}
			bp.File = target[:i]
			bp.Line = line
			return nil
		}
	}
	if explicit {
		bp.File = target
	}
	return nil
}

func (bp *Breakpoint) compile() error {
	if bp.Condition == "" {
		bp.program = nil
		return nil
	}
	prog, err := CompileLocals(bp.Condition, nil, expr.AsBool())
	if err != nil {
		return &errors.ValidationError{
			Field:      "breakpoint.condition",
			Message:    fmt.Sprintf("failed to compile %q: %s", bp.Condition, err),
			Suggestion: "conditions are boolean expressions over the frame's locals",
		}
	}
	bp.program = prog
	return nil
}

// Matches reports whether the breakpoint selects s with the given locals.
func (bp *Breakpoint) Matches(s *State, locals map[string]any) bool {
	if s == nil {
		return false
	}
	if bp.State != "" && !globMatch(bp.State, s.Name()) {
		return false
	}
	loc := s.Location()
	if bp.File != "" && !fileMatch(bp.File, loc.File()) {
		return false
	}
	if bp.Line > 0 && (bp.Line < loc.StartLine() || bp.Line > loc.EndLine()) {
		return false
	}
	if bp.program != nil {
		env := locals
		if env == nil {
			env = map[string]any{}
		}
		out, err := expr.Run(bp.program, env)
		if err != nil {
			return false
		}
		ok, _ := out.(bool)
		return ok
	}
	return true
}

// String returns the command-line form. ParseBreakpoint accepts it back.
func (bp Breakpoint) String() string {
	target := bp.State
	if bp.File != "" {
		file := bp.File
		if bp.Line > 0 {
			file += ":" + strconv.Itoa(bp.Line)
		}
		if bp.State != "" || bp.Line == 0 {
			target += "@" + file
		} else {
			target = file
		}
	}
	if bp.Condition != "" {
		return target + " if " + bp.Condition
	}
	return target
}

func globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

func fileMatch(pattern, file string) bool {
	file = filepath.ToSlash(file)
	if globMatch(pattern, file) {
		return true
	}
	return !strings.Contains(pattern, "/") && globMatch(pattern, path.Base(file))
}

// Config holds the breakpoints of a debug session. It is safe for
// concurrent use; traps read it from worker goroutines while the shell
// edits it.
type Config struct {
	mu          sync.RWMutex
	breakpoints []Breakpoint
}

// New creates a configuration from breakpoints, compiling their conditions.
func New(breakpoints ...Breakpoint) (*Config, error) {
	c := &Config{}
	for _, bp := range breakpoints {
		if err := c.Add(bp); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Enabled reports whether any breakpoint is set.
func (c *Config) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.breakpoints) > 0
}

// Breakpoints returns a copy of the configured breakpoints.
func (c *Config) Breakpoints() []Breakpoint {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.breakpoints)
}

// ShouldPauseAt returns true if any breakpoint matches s.
func (c *Config) ShouldPauseAt(s *State, locals map[string]any) bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.breakpoints {
		if c.breakpoints[i].Matches(s, locals) {
			return true
		}
	}
	return false
}

// Add compiles and adds a breakpoint. Adding an identical breakpoint again
// has no effect.
func (c *Config) Add(bp Breakpoint) error {
	if err := bp.compile(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.ContainsFunc(c.breakpoints, func(b Breakpoint) bool { return b.String() == bp.String() }) {
		return nil
	}
	c.breakpoints = append(c.breakpoints, bp)
	return nil
}

// Remove deletes breakpoints whose command-line form equals raw and
// reports whether any was removed.
func (c *Config) Remove(raw string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.breakpoints)
	c.breakpoints = slices.DeleteFunc(c.breakpoints, func(b Breakpoint) bool {
		return b.String() == raw
	})
	return len(c.breakpoints) != n
}

// Clear removes all breakpoints.
func (c *Config) Clear() {
	c.mu.Lock()
	c.breakpoints = nil
	c.mu.Unlock()
}

// Validate checks that every state or file breakpoint can match at least
// one of states.
func (c *Config) Validate(states []*State) error {
	if !c.Enabled() {
		return nil
	}

	var unmatched []string
	for _, bp := range c.Breakpoints() {
		found := slices.ContainsFunc(states, func(s *State) bool {
			probe := bp
			probe.program = nil
			return probe.Matches(s, nil)
		})
		if !found {
			unmatched = append(unmatched, bp.String())
		}
	}

	if len(unmatched) > 0 {
		return &errors.ValidationError{
			Field:      "breakpoints",
			Message:    fmt.Sprintf("no state matches %s", strings.Join(unmatched, ", ")),
			Suggestion: "run 'vstack symbols' to list state names and spans",
		}
	}
	return nil
}
