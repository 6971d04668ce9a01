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
	"maps"
	"sync"
	"time"

	vslog "github.com/tombee/vstack/internal/log"
)

// Adapter is a Trap that turns stops into events for an interactive shell.
// A worker that reaches a matching breakpoint, or the next stop after a
// "next" command, stays parked inside its entry point until the shell
// answers, so its goroutine stack shows the full virtual stack meanwhile.
//
// Only one worker is paused at a time; others reaching a breakpoint wait
// their turn.
type Adapter struct {
	config *Config
	logger *slog.Logger

	// eventChan sends debug events to the debugger shell.
	eventChan chan *Event

	// cmdChan receives debug commands from the shell.
	cmdChan chan *Command

	pauseMu sync.Mutex

	mu       sync.Mutex
	stepping map[int]bool

	closed    chan struct{}
	closeOnce sync.Once
}

// NewAdapter creates a new debug adapter with the given configuration.
func NewAdapter(config *Config, logger *slog.Logger) *Adapter {
	if config == nil {
		config = &Config{}
	}
	return &Adapter{
		config:    config,
		logger:    vslog.WithComponent(vslog.OrDiscard(logger), "adapter"),
		eventChan: make(chan *Event, 10),
		cmdChan:   make(chan *Command, 1),
		stepping:  make(map[int]bool),
		closed:    make(chan struct{}),
	}
}

// Config returns the breakpoint configuration.
func (a *Adapter) Config() *Config { return a.config }

// EventChan returns the channel for debug events.
func (a *Adapter) EventChan() <-chan *Event {
	return a.eventChan
}

// CommandChan returns the channel for debug commands.
func (a *Adapter) CommandChan() chan<- *Command {
	return a.cmdChan
}

// Done is closed when the adapter is closed.
func (a *Adapter) Done() <-chan struct{} {
	return a.closed
}

// Stop pauses when a breakpoint matches or the thread is single-stepping.
func (a *Adapter) Stop(c *Call) {
	if !a.takeStep(c.ThreadID) && !a.config.ShouldPauseAt(c.State, c.Locals()) {
		return
	}
	a.pause(EventStopped, c)
}

// Break always pauses.
func (a *Adapter) Break(c *Call) {
	a.pause(EventBreak, c)
}

// ThreadStarted implements Observer.
func (a *Adapter) ThreadStarted(threadID int, name string) {
	a.sendEvent(&Event{
		Type:      EventThreadStarted,
		ThreadID:  threadID,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("Thread %d started: %s", threadID, name),
	})
}

// ThreadRetired implements Observer.
func (a *Adapter) ThreadRetired(threadID int) {
	a.mu.Lock()
	delete(a.stepping, threadID)
	a.mu.Unlock()
	a.sendEvent(&Event{
		Type:      EventThreadRetired,
		ThreadID:  threadID,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("Thread %d retired", threadID),
	})
}

// Primed implements Observer.
func (a *Adapter) Primed(threadID int, frames int) {
	a.sendEvent(&Event{
		Type:      EventPrimed,
		ThreadID:  threadID,
		Depth:     frames,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("Thread %d primed with %d frames", threadID, frames),
	})
}

func (a *Adapter) takeStep(threadID int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stepping[threadID] {
		delete(a.stepping, threadID)
		return true
	}
	return false
}

// pause blocks the calling worker until the shell resumes it or the
// adapter is closed.
func (a *Adapter) pause(typ EventType, c *Call) {
	a.pauseMu.Lock()
	defer a.pauseMu.Unlock()

	select {
	case <-a.closed:
		return
	default:
	}

	event := &Event{
		Type:      typ,
		ThreadID:  c.ThreadID,
		State:     c.State.String(),
		Depth:     c.Depth,
		Locals:    maps.Clone(c.Locals()),
		Stack:     c.Stack(),
		Timestamp: time.Now(),
	}
	if c.State != nil {
		event.Location = c.State.Location().String()
	}
	event.Message = fmt.Sprintf("Paused at %s on thread %d", event.State, c.ThreadID)

	a.logger.Info("Paused",
		slog.Int(vslog.ThreadIDKey, c.ThreadID),
		slog.String(vslog.StateKey, event.State),
		slog.Int(vslog.DepthKey, c.Depth),
	)

	// A paused event is never dropped: the worker would wait forever.
	select {
	case a.eventChan <- event:
	case <-a.closed:
		return
	}

	for {
		select {
		case <-a.closed:
			return
		case cmd := <-a.cmdChan:
			if a.handleCommand(c, cmd) {
				return
			}
		}
	}
}

// handleCommand processes a debug command and reports whether the paused
// worker should resume.
func (a *Adapter) handleCommand(c *Call, cmd *Command) bool {
	switch cmd.Type {
	case CommandContinue:
		a.logger.Debug("Resuming execution")
		a.sendEvent(&Event{
			Type:      EventResumed,
			ThreadID:  c.ThreadID,
			State:     c.State.String(),
			Timestamp: time.Now(),
			Message:   "Resuming execution",
		})
		return true

	case CommandNext:
		a.logger.Debug("Stepping to next stop", slog.Int(vslog.ThreadIDKey, c.ThreadID))
		a.mu.Lock()
		a.stepping[c.ThreadID] = true
		a.mu.Unlock()
		a.sendEvent(&Event{
			Type:      EventResumed,
			ThreadID:  c.ThreadID,
			State:     c.State.String(),
			Timestamp: time.Now(),
			Message:   "Stepping to next stop",
		})
		return true

	default:
		// Inspection commands are handled by the shell.
		a.logger.Debug("Ignoring command while paused", slog.String("command", string(cmd.Type)))
		return false
	}
}

// sendEvent sends a debug event to the event channel.
func (a *Adapter) sendEvent(event *Event) {
	select {
	case a.eventChan <- event:
	default:
		a.logger.Warn("Debug event channel full, dropping event", slog.String("event_type", string(event.Type)))
	}
}

// Close releases any paused worker and makes later stops return at once.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() {
		close(a.closed)
	})
}
