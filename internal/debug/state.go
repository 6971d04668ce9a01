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
	"slices"
	"sync/atomic"

	"github.com/tombee/vstack/pkg/source"
)

// LocalSymbol describes one variable visible while a state is active.
type LocalSymbol struct {
	Name string
	Type string
}

// State is one debuggable point: a source location with a unique display
// name, a locals schema, and an entry point bound when the state is baked.
//
// States are created only by a Registry and compared by identity. Fields
// other than the entry point are fixed at creation; the entry point is set
// once at bake time and read without locking afterwards.
type State struct {
	id         int
	location   source.SourceLocation
	name       string
	locals     []LocalSymbol
	enabled    bool
	diagnostic error

	entry atomic.Pointer[entryPoints]
}

// ID returns the registry-assigned index of the state.
func (s *State) ID() int { return s.id }

// Location returns the source span the state is bound to.
func (s *State) Location() source.SourceLocation { return s.location }

// Name returns the sanitized, registry-unique display name.
func (s *State) Name() string { return s.name }

// Locals returns a copy of the locals schema.
func (s *State) Locals() []LocalSymbol { return slices.Clone(s.locals) }

// Enabled reports whether a debugger may stop at this state. Disabled states
// keep their place on the stack but never expose a stop.
func (s *State) Enabled() bool { return s.enabled }

// Diagnostic returns the reason the state was disabled, or nil.
func (s *State) Diagnostic() error { return s.diagnostic }

// Baked reports whether entry points have been bound.
func (s *State) Baked() bool { return s.entry.Load() != nil }

// Container returns the name of the bake batch the state belongs to, or ""
// before it is baked.
func (s *State) Container() string {
	if e := s.entry.Load(); e != nil {
		return e.container
	}
	return ""
}

// String returns the display name.
func (s *State) String() string {
	if s == nil {
		return "<uninstrumented>"
	}
	return s.name
}
