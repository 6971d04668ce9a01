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
)

// Trap receives control on the worker goroutine whenever an instrumented
// state becomes visible. The worker's native stack holds one nested entry
// point per instrumented frame while either method runs, so a debugger
// inspecting the goroutine sees the virtual stack.
//
// Both methods block the interpreter until they return.
type Trap interface {
	// Stop is called from an enabled state's entry point, after the frame is
	// pushed and before the interpreter resumes. Priming never stops.
	Stop(c *Call)

	// Break is called for an explicit break request. c.State is nil when
	// the thread has no instrumented frame.
	Break(c *Call)
}

// Observer is implemented by traps that also want thread lifecycle events.
type Observer interface {
	ThreadStarted(threadID int, name string)
	ThreadRetired(threadID int)
	Primed(threadID int, frames int)
}

// NopTrap ignores every stop. It is used when no debugger is attached; the
// worker still mirrors the stack.
type NopTrap struct{}

func (NopTrap) Stop(*Call)  {}
func (NopTrap) Break(*Call) {}

// NativeTrap hands control to a native debugger with runtime.Breakpoint.
// Without an attached debugger the process receives SIGTRAP and dies, so
// it is only selected on request.
type NativeTrap struct {
	// Breakpoints selects which stops raise a breakpoint. A nil config
	// never stops; Break always does.
	Breakpoints *Config
}

// Stop raises a breakpoint when a configured breakpoint matches.
func (t NativeTrap) Stop(c *Call) {
	if t.Breakpoints.ShouldPauseAt(c.State, c.Locals()) {
		runtime.Breakpoint()
	}
}

// Break always raises a breakpoint.
func (t NativeTrap) Break(*Call) {
	runtime.Breakpoint()
}
