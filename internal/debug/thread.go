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
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/pkg/errors"
)

// LogicalThread is the virtual call stack of one independent path through
// the interpreter. Its frames are mirrored onto a dedicated worker by a
// WorkerController.
//
// Enter, Leave and Unwind must be called by one goroutine at a time, in
// strict LIFO order. Snapshot may be called from anywhere.
type LogicalThread struct {
	id         int
	name       string
	controller *WorkerController
	logger     *slog.Logger
	metrics    *Metrics
	span       trace.Span

	// priming is set while ancestor frames are being replayed.
	priming bool

	mu     sync.Mutex
	frames []*Frame
}

// ID returns the thread id. Ids of retired threads are reused.
func (t *LogicalThread) ID() int { return t.id }

// Name returns the label the thread was created with.
func (t *LogicalThread) Name() string { return t.name }

// Depth returns the number of frames on the logical stack, including
// uninstrumented ones.
func (t *LogicalThread) Depth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.frames)
}

// PhysicalDepth returns how many entry points are nested on the worker.
func (t *LogicalThread) PhysicalDepth() int {
	return t.controller.PhysicalDepth()
}

// Top returns the innermost frame and whether the stack is non-empty. The
// frame is nil for an uninstrumented node.
func (t *LogicalThread) Top() (*Frame, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.frames) == 0 {
		return nil, false
	}
	return t.frames[len(t.frames)-1], true
}

// Enter pushes f and, unless f is nil, materializes it on the worker.
// Enter returns once the worker is parked inside the new frame, which
// includes any time a debugger holds it at the frame's stop.
func (t *LogicalThread) Enter(f *Frame) {
	t.mu.Lock()
	t.frames = append(t.frames, f)
	depth := len(t.frames)
	t.mu.Unlock()

	vslog.Trace(t.logger, "enter",
		slog.String(vslog.StateKey, f.state().String()),
		slog.Int(vslog.DepthKey, depth),
	)
	if f == nil {
		t.metrics.frameEntered("uninstrumented")
		return
	}
	if f.State.Enabled() {
		t.metrics.frameEntered("instrumented")
	} else {
		t.metrics.frameEntered("disabled")
	}
	t.controller.Enter(f, t.priming)
}

// Leave pops the top frame, which must belong to expected (nil for an
// uninstrumented node). A mismatch means the interpreter broke LIFO order
// and panics with *errors.InvariantError.
func (t *LogicalThread) Leave(expected *State) {
	t.mu.Lock()
	n := len(t.frames)
	if n == 0 {
		t.mu.Unlock()
		panic(errors.Invariantf("logical thread", "thread %d: leave %s on empty stack", t.id, expected))
	}
	top := t.frames[n-1]
	if top.state() != expected {
		t.mu.Unlock()
		panic(errors.Invariantf("logical thread", "thread %d: leave %s does not match top %s", t.id, expected, top.state()))
	}
	t.frames[n-1] = nil
	t.frames = t.frames[:n-1]
	t.mu.Unlock()

	vslog.Trace(t.logger, "leave",
		slog.String(vslog.StateKey, expected.String()),
		slog.Int(vslog.DepthKey, n-1),
	)
	if top != nil {
		t.controller.Leave()
	}
}

// Unwind leaves every frame, innermost first.
func (t *LogicalThread) Unwind() {
	for {
		top, ok := t.Top()
		if !ok {
			return
		}
		t.Leave(top.state())
	}
}

// Break asks the worker to trap into the debugger without changing the stack.
func (t *LogicalThread) Break() {
	t.controller.Break()
}

// Snapshot returns a copy of the stack, top first.
func (t *LogicalThread) Snapshot() ThreadSnapshot {
	t.mu.Lock()
	frames := make([]FrameSnapshot, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		frames = append(frames, snapshotFrame(t.frames[i]))
	}
	t.mu.Unlock()

	return ThreadSnapshot{
		ID:            t.id,
		Name:          t.name,
		Frames:        frames,
		PhysicalDepth: t.controller.PhysicalDepth(),
	}
}
