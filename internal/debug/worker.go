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
	"context"
	"log/slog"
	"runtime"
	"runtime/pprof"
	"strconv"
	"sync/atomic"

	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/pkg/errors"
)

type commandKind int

const (
	cmdEnter commandKind = iota
	cmdLeave
	cmdBreak
	cmdExit
)

func (k commandKind) String() string {
	switch k {
	case cmdEnter:
		return "enter"
	case cmdLeave:
		return "leave"
	case cmdBreak:
		return "break"
	case cmdExit:
		return "exit"
	default:
		return "unknown"
	}
}

type command struct {
	kind  commandKind
	call  *Call
	entry EntryPoint
}

// worker is the goroutine that holds one logical thread's physical stack.
// Each entered state is a nested entry point call; each call blocks in park
// until its Leave arrives.
type worker struct {
	threadID     int
	ready        chan command
	handled      chan struct{}
	done         chan struct{}
	trap         Trap
	metrics      *Metrics
	lockOSThread bool
	depth        atomic.Int32
}

func (w *worker) run() {
	defer close(w.done)
	if w.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	labels := pprof.Labels("vstack.thread", strconv.Itoa(w.threadID))
	pprof.Do(context.Background(), labels, func(context.Context) {
		w.park(nil)
	})
}

// park signals that the last command was handled and then serves commands
// until the frame owning it must unwind. It returns true when the worker is
// exiting. c is the innermost call, nil at the root.
func (w *worker) park(c *Call) bool {
	w.handled <- struct{}{}
	for {
		cmd := <-w.ready
		switch cmd.kind {
		case cmdEnter:
			call := cmd.call
			call.worker = w
			call.Depth = int(w.depth.Add(1))
			cmd.entry(call)
			w.depth.Add(-1)
			if call.exit {
				return true
			}
			w.handled <- struct{}{}
		case cmdLeave:
			return false
		case cmdBreak:
			w.breakCall(c)
			w.handled <- struct{}{}
		case cmdExit:
			return true
		}
	}
}

func (w *worker) breakCall(c *Call) {
	w.metrics.breakHit()
	if c == nil {
		c = &Call{ThreadID: w.threadID, worker: w}
	}
	w.trap.Break(c)
}

type workerOptions struct {
	trap         Trap
	metrics      *Metrics
	logger       *slog.Logger
	lockOSThread bool
}

// WorkerController drives one worker through a strict request/response
// handshake. Every command is sent on one channel and acknowledged on
// another, so the interpreter never runs ahead of the mirrored stack.
//
// A controller is used by one logical thread at a time. Issuing a command
// while another is in flight is a fault and panics.
type WorkerController struct {
	threadID int
	registry *Registry
	worker   *worker
	logger   *slog.Logger

	inFlight atomic.Bool
	exited   atomic.Bool
}

// newWorkerController starts a worker and waits until it is parked at the
// root, ready for its first command.
func newWorkerController(registry *Registry, threadID int, opts workerOptions) *WorkerController {
	trap := opts.trap
	if trap == nil {
		trap = NopTrap{}
	}
	w := &worker{
		threadID:     threadID,
		ready:        make(chan command),
		handled:      make(chan struct{}),
		done:         make(chan struct{}),
		trap:         trap,
		metrics:      opts.metrics,
		lockOSThread: opts.lockOSThread,
	}
	go w.run()
	<-w.handled

	return &WorkerController{
		threadID: threadID,
		registry: registry,
		worker:   w,
		logger:   vslog.OrDiscard(opts.logger),
	}
}

// Enter invokes the entry point of f's state as a nested call on the worker
// and returns when the worker is parked inside it. Priming selects the entry
// point that never stops.
func (wc *WorkerController) Enter(f *Frame, priming bool) {
	if f == nil || f.State == nil {
		panic(errors.Invariantf("worker controller", "thread %d: enter without a state", wc.threadID))
	}
	entry := wc.registry.EntryPoint(f.State, priming)
	wc.send(command{
		kind:  cmdEnter,
		entry: entry,
		call: &Call{
			State:    f.State,
			Frame:    f,
			ThreadID: wc.threadID,
			Priming:  priming,
		},
	})
}

// Leave returns from the innermost entry point.
func (wc *WorkerController) Leave() {
	if wc.worker.depth.Load() == 0 {
		panic(errors.Invariantf("worker controller", "thread %d: leave with no entered frame", wc.threadID))
	}
	wc.send(command{kind: cmdLeave})
}

// Break asks the worker to call the trap from its current frame.
func (wc *WorkerController) Break() {
	wc.send(command{kind: cmdBreak})
}

// Exit unwinds every entry point on the worker and waits for it to
// terminate. Calling Exit again has no effect.
func (wc *WorkerController) Exit() {
	if !wc.inFlight.CompareAndSwap(false, true) {
		panic(errors.Invariantf("worker controller", "thread %d: exit while a command is in flight", wc.threadID))
	}
	defer wc.inFlight.Store(false)
	if !wc.exited.CompareAndSwap(false, true) {
		return
	}
	vslog.Trace(wc.logger, "worker exit", slog.Int(vslog.DepthKey, wc.PhysicalDepth()))
	wc.worker.ready <- command{kind: cmdExit}
	<-wc.worker.done
}

// Exited reports whether Exit has been called.
func (wc *WorkerController) Exited() bool { return wc.exited.Load() }

// PhysicalDepth returns the number of nested entry points on the worker.
func (wc *WorkerController) PhysicalDepth() int {
	return int(wc.worker.depth.Load())
}

func (wc *WorkerController) send(cmd command) {
	if !wc.inFlight.CompareAndSwap(false, true) {
		panic(errors.Invariantf("worker controller", "thread %d: %s issued while another command is in flight", wc.threadID, cmd.kind))
	}
	defer wc.inFlight.Store(false)
	if wc.exited.Load() {
		panic(errors.Invariantf("worker controller", "thread %d: %s issued after exit", wc.threadID, cmd.kind))
	}
	vslog.Trace(wc.logger, "worker command", slog.String("command", cmd.kind.String()))
	wc.worker.ready <- cmd
	<-wc.worker.handled
}
