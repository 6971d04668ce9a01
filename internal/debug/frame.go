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
	"maps"
)

// Frame is one entry of a logical thread's virtual stack: the state being
// executed and a snapshot of the locals in scope when it was entered.
//
// A nil *Frame stands for an uninstrumented node. It keeps enter and leave
// balanced on the logical stack but never reaches the worker.
type Frame struct {
	State  *State
	Locals map[string]any
}

// NewFrame snapshots locals for state. It returns nil when state is nil.
func NewFrame(state *State, locals map[string]any) *Frame {
	if state == nil {
		return nil
	}
	return &Frame{State: state, Locals: maps.Clone(locals)}
}

// Local returns one local value.
func (f *Frame) Local(name string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.Locals[name]
	return v, ok
}

func (f *Frame) state() *State {
	if f == nil {
		return nil
	}
	return f.State
}

// FrameSnapshot is a read-only view of a frame for inspection.
type FrameSnapshot struct {
	State    string         `json:"state"`
	Location string         `json:"location,omitempty"`
	Enabled  bool           `json:"enabled"`
	Locals   map[string]any `json:"locals,omitempty"`
}

// ThreadSnapshot is a read-only view of a logical thread. Frames are listed
// top of stack first.
type ThreadSnapshot struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Frames        []FrameSnapshot `json:"frames"`
	PhysicalDepth int             `json:"physical_depth"`
}

func snapshotFrame(f *Frame) FrameSnapshot {
	if f == nil {
		return FrameSnapshot{State: (*State)(nil).String()}
	}
	return FrameSnapshot{
		State:    f.State.Name(),
		Location: f.State.Location().String(),
		Enabled:  f.State.Enabled(),
		Locals:   maps.Clone(f.Locals),
	}
}
