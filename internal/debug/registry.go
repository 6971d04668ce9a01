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
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/pkg/errors"
	"github.com/tombee/vstack/pkg/source"
)

// DefaultMaxCoordinate is the largest line or column a debug symbol can carry.
const DefaultMaxCoordinate = 32767

const (
	defaultStateName     = "State"
	defaultContainerName = "States"
)

// Registry owns the States of one debug session. It hands out exactly one
// State per distinct SourceLocation, so parsing the same document twice (or
// instantiating the same component twice) reuses states and their entry
// points.
//
// Define, Bake and Lookup serialize on one lock. Entry points are immutable
// once baked and are read without it.
type Registry struct {
	mu         sync.Mutex
	byKey      map[string]*State
	names      map[string]struct{}
	containers map[string]struct{}
	states     []*State
	pending    []*State

	maxCoordinate int
	logger        *slog.Logger
	metrics       *Metrics
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxCoordinate overrides DefaultMaxCoordinate.
func WithMaxCoordinate(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxCoordinate = n
		}
	}
}

// WithRegistryLogger sets the logger used for diagnostics.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithRegistryMetrics records definitions and bakes.
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byKey:         make(map[string]*State),
		names:         make(map[string]struct{}),
		containers:    make(map[string]struct{}),
		maxCoordinate: DefaultMaxCoordinate,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = vslog.WithComponent(vslog.OrDiscard(r.logger), "registry")
	return r
}

// Define returns the State for loc, creating it on first use. A location that
// cannot be expressed as a debug symbol still yields a State, but a disabled
// one carrying a *errors.SymbolError diagnostic.
func (r *Registry) Define(loc source.SourceLocation, name string, locals []LocalSymbol) *State {
	key := loc.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byKey[key]; ok {
		return s
	}

	s := &State{
		id:       len(r.states),
		location: loc,
		name:     uniqueName(sanitizeName(name, defaultStateName), r.names),
		locals:   append([]LocalSymbol(nil), locals...),
		enabled:  true,
	}
	if err := r.validate(loc); err != nil {
		s.enabled = false
		s.diagnostic = err
		r.metrics.stateDisabled()
		r.logger.Warn("state disabled: invalid symbol data",
			slog.String(vslog.StateKey, s.name),
			slog.String(vslog.FileKey, loc.File()),
			vslog.Error(err),
		)
	}

	r.names[s.name] = struct{}{}
	r.byKey[key] = s
	r.states = append(r.states, s)
	r.pending = append(r.pending, s)
	r.metrics.stateDefined()

	r.logger.Debug("state defined",
		slog.String(vslog.StateKey, s.name),
		slog.String("location", loc.String()),
		slog.Bool("enabled", s.enabled),
	)
	return s
}

// validate checks that loc fits what a debugger symbol can describe.
func (r *Registry) validate(loc source.SourceLocation) error {
	file := loc.File()
	if strings.TrimSpace(file) == "" {
		return &errors.SymbolError{File: file, Field: "file", Reason: "file name is required"}
	}
	if !utf8.ValidString(file) || strings.ContainsFunc(file, invalidPathRune) {
		return &errors.SymbolError{File: file, Field: "file", Reason: "contains characters not allowed in a file name"}
	}

	coords := []struct {
		field string
		value int
	}{
		{"start_line", loc.StartLine()},
		{"start_column", loc.StartColumn()},
		{"end_line", loc.EndLine()},
		{"end_column", loc.EndColumn()},
	}
	for _, c := range coords {
		if c.field == "end_column" && loc.ToEndOfLine() {
			continue
		}
		if c.value < 1 || c.value > r.maxCoordinate {
			return &errors.SymbolError{
				File:   file,
				Field:  c.field,
				Value:  c.value,
				Reason: fmt.Sprintf("must be between 1 and %d", r.maxCoordinate),
			}
		}
	}
	return nil
}

func invalidPathRune(r rune) bool {
	return unicode.IsControl(r) || strings.ContainsRune(`<>"|?*`, r)
}

// Lookup returns the State already defined for loc.
func (r *Registry) Lookup(loc source.SourceLocation) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byKey[loc.Key()]
	return s, ok
}

// States returns every defined state in definition order.
func (r *Registry) States() []*State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*State(nil), r.states...)
}

// Pending returns how many states are waiting to be baked.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Bake binds entry points for every state defined since the previous bake and
// groups them under one container named after hint. It returns the container
// name actually used, or "" when nothing was pending. Baking a state twice has
// no effect.
func (r *Registry) Bake(hint string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bakeLocked(hint)
}

func (r *Registry) bakeLocked(hint string) string {
	if len(r.pending) == 0 {
		return ""
	}

	container := uniqueName(sanitizeName(hint, defaultContainerName), r.containers)
	r.containers[container] = struct{}{}

	baked, disabled := 0, 0
	for _, s := range r.pending {
		if s.Baked() {
			continue
		}
		s.entry.Store(bindEntryPoints(s, container))
		baked++
		if !s.enabled {
			disabled++
		}
	}
	r.pending = nil
	r.metrics.bake()

	r.logger.Info("states baked",
		slog.String(vslog.ContainerKey, container),
		slog.Int("states", baked),
		slog.Int("disabled", disabled),
	)
	return container
}

// EntryPoint returns the entry point for s, baking pending states first if s
// has not been baked yet. The priming variant never stops. s must belong to
// this registry.
func (r *Registry) EntryPoint(s *State, priming bool) EntryPoint {
	e := s.entry.Load()
	if e == nil {
		r.mu.Lock()
		if r.byKey[s.location.Key()] != s {
			r.mu.Unlock()
			panic(errors.Invariantf("registry", "state %s was not defined by this registry", s))
		}
		r.bakeLocked("")
		r.mu.Unlock()
		e = s.entry.Load()
	}
	if priming {
		return e.prime
	}
	return e.run
}
