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
	"runtime"

	"github.com/tombee/vstack/pkg/errors"
)

// EntryPoint is the invocable unit bound to one State. It runs on the worker
// goroutine as a nested call below the parent frame's entry point and
// returns only when the matching Leave (or an Exit) arrives.
type EntryPoint func(c *Call)

// entryPoints is the immutable pair bound to a State at bake time.
type entryPoints struct {
	run       EntryPoint
	prime     EntryPoint
	container string
}

// Call carries one Enter command across to the worker. Every field is written
// by the controller before the command is sent and read only by the worker
// until the command is handled.
type Call struct {
	// State is the state being entered. It is nil for the synthetic call
	// handed to Trap.Break while the worker is idle.
	State *State

	// Frame holds the locals snapshot.
	Frame *Frame

	// ThreadID is the logical thread the call belongs to.
	ThreadID int

	// Priming is set while ancestor frames are replayed onto a new worker.
	Priming bool

	// Depth is the physical nesting depth of this invocation, starting at 1.
	Depth int

	worker *worker
	exit   bool
}

// Locals returns the frame's locals snapshot, or nil.
func (c *Call) Locals() map[string]any {
	if c == nil || c.Frame == nil {
		return nil
	}
	return c.Frame.Locals
}

// Stack returns the native stack of the calling goroutine. Traps call it on
// the worker to capture the physical nesting.
func (c *Call) Stack() []byte {
	buf := make([]byte, 64<<10)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

// stop is the one place per state where a debugger can halt. To break on a
// specific state under Delve:
//
//	break debug.(*Call).stop
//	condition 1 c.State.name == "Assign_2"
//
//go:noinline
func (c *Call) stop() {
	c.worker.metrics.stop()
	c.worker.trap.Stop(c)
}

// park keeps this invocation's frame alive until the matching Leave.
func (c *Call) park() {
	c.exit = c.worker.park(c)
}

func (c *Call) expect(s *State) {
	if c.State != s {
		panic(errors.Invariantf("entry point", "entry point for %s invoked with %s", s, c.State))
	}
}

// bindEntryPoints builds the entry pair for s. Disabled states share a
// park-only entry so they still occupy one physical frame.
func bindEntryPoints(s *State, container string) *entryPoints {
	if !s.enabled {
		return &entryPoints{run: parkOnly, prime: parkOnly, container: container}
	}
	return &entryPoints{
		run: func(c *Call) {
			c.expect(s)
			c.stop()
			c.park()
		},
		prime: func(c *Call) {
			c.expect(s)
			c.park()
		},
		container: container,
	}
}

func parkOnly(c *Call) {
	c.park()
}
