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
	"time"
)

// EventType represents the type of debug event.
type EventType string

const (
	// EventStopped indicates a worker is paused at a state's stop.
	EventStopped EventType = "stopped"

	// EventBreak indicates a worker is paused by an explicit break request.
	EventBreak EventType = "break"

	// EventResumed indicates a paused worker was released.
	EventResumed EventType = "resumed"

	// EventThreadStarted indicates a logical thread was created.
	EventThreadStarted EventType = "thread_started"

	// EventThreadRetired indicates a logical thread was retired.
	EventThreadRetired EventType = "thread_retired"

	// EventPrimed indicates a thread finished replaying its ancestors.
	EventPrimed EventType = "primed"
)

// Event represents a debug event emitted by the Adapter.
type Event struct {
	// Type is the type of event.
	Type EventType

	// ThreadID is the logical thread the event belongs to.
	ThreadID int

	// State is the display name of the state, if any.
	State string

	// Location is the state's source span, if any.
	Location string

	// Depth is the physical nesting depth on the worker.
	Depth int

	// Locals is a copy of the frame's locals.
	Locals map[string]any

	// Stack is the worker goroutine's native stack, captured for pauses.
	Stack []byte

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Message is an optional human-readable message.
	Message string
}

// Paused reports whether the event leaves a worker waiting for a command.
func (e *Event) Paused() bool {
	return e.Type == EventStopped || e.Type == EventBreak
}

// CommandType represents the type of debug command.
type CommandType string

const (
	// CommandContinue resumes until the next breakpoint.
	CommandContinue CommandType = "continue"

	// CommandNext resumes and pauses at the next stop on the same thread.
	CommandNext CommandType = "next"

	// CommandStack prints the logical stacks of all threads.
	CommandStack CommandType = "stack"

	// CommandLocals dumps the paused frame's locals.
	CommandLocals CommandType = "locals"

	// CommandInspect runs a jq query over the paused frame's locals.
	CommandInspect CommandType = "inspect"

	// CommandGoroutine prints the paused worker's native stack.
	CommandGoroutine CommandType = "goroutine"

	// CommandBreak adds a breakpoint.
	CommandBreak CommandType = "break"
)

// Command represents a debug command issued by the user.
type Command struct {
	// Type is the type of command.
	Type CommandType

	// Args are optional arguments for the command.
	Args []string
}
