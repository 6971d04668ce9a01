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

package workflow

import (
	"context"

	"github.com/tombee/vstack/internal/debug"
)

// Symbols maps the activities of one document to their debug states.
type Symbols struct {
	// Container is the bake container the states were placed in. It is
	// empty when every state already existed or nothing was instrumented.
	Container string

	states map[*Activity]*debug.State
}

// State returns the state for a, following instances back to the parsed
// element. It returns nil for uninstrumented activities.
func (s *Symbols) State(a *Activity) *debug.State {
	if s == nil {
		return nil
	}
	return s.states[a.Origin()]
}

// Len returns the number of instrumented activities.
func (s *Symbols) Len() int {
	if s == nil {
		return 0
	}
	return len(s.states)
}

// DefineSymbols defines one state per activity of doc and bakes them under
// the document name. When include is non-nil and rejects doc.Path, nothing
// is defined and every activity runs uninstrumented.
//
// Defining the same document again returns the existing states.
func DefineSymbols(ctx context.Context, m *debug.Manager, doc *Document, include func(path string) bool) *Symbols {
	syms := &Symbols{states: make(map[*Activity]*debug.State)}
	if include != nil && !include(doc.Path) {
		return syms
	}

	locals := make([]debug.LocalSymbol, 0, len(doc.Variables))
	for _, v := range doc.Variables {
		locals = append(locals, debug.LocalSymbol{Name: v, Type: "any"})
	}

	for _, a := range doc.Activities() {
		syms.states[a] = m.DefineState(a.Location, StateName(a), locals)
	}
	syms.Container = m.Bake(ctx, doc.Name)
	return syms
}

// StateName is the debugger-visible name of a: its name attribute, or a name
// derived from its kind and target.
func StateName(a *Activity) string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Kind == KindAssign:
		return string(a.Kind) + "_" + a.Attrs["to"]
	case a.Kind == KindInvoke:
		return string(a.Kind) + "_" + a.Attrs["ref"]
	}
	return string(a.Kind)
}
