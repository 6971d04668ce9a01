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

// Package debug mirrors the logical call stacks of a scheduler-driven
// interpreter onto real goroutine stacks so a native debugger can show and
// step through them.
//
// # States
//
// A Registry hands out one State per distinct source.SourceLocation. States
// are baked in batches; baking binds each State to an EntryPoint. Invalid
// symbol data disables a State instead of failing.
//
// # Logical threads and workers
//
// Each LogicalThread owns a worker goroutine. Entering a frame makes the
// worker call the State's entry point nested inside the parent's, so the
// worker's stack always has one entry point per instrumented frame. The
// thread and its worker alternate strictly: every command is acknowledged
// before the next is issued.
//
// # Stops
//
// An enabled entry point calls (*Call).stop before parking, and the
// configured Trap decides what a stop means: nothing (NopTrap), a native
// breakpoint (NativeTrap), or an interactive pause (Adapter with Shell).
// Under Delve:
//
//	break debug.(*Call).stop
//	condition 1 c.State.name == "Assign_2"
//	goroutines -label vstack.thread=1
package debug
