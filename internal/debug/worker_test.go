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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, r *Registry, trap Trap) *WorkerController {
	t.Helper()
	wc := newWorkerController(r, 1, workerOptions{trap: trap})
	t.Cleanup(wc.Exit)
	return wc
}

func TestWorkerController_DepthFollowsEnterAndLeave(t *testing.T) {
	r := NewRegistry()
	a := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	b := r.Define(loc(t, "a.xml", 2, 2), "B", nil)
	trap := &recordingTrap{}
	wc := newTestController(t, r, trap)

	var depths []int
	wc.Enter(NewFrame(a, nil), false)
	depths = append(depths, wc.PhysicalDepth())
	wc.Enter(NewFrame(b, nil), false)
	depths = append(depths, wc.PhysicalDepth())
	wc.Leave()
	depths = append(depths, wc.PhysicalDepth())
	wc.Leave()
	depths = append(depths, wc.PhysicalDepth())

	assert.Equal(t, []int{1, 2, 1, 0}, depths)
	assert.Equal(t, []string{"A", "B"}, trap.Stops())
	assert.Equal(t, []int{1, 2}, trap.depths)
}

func TestWorkerController_NestedEntryPointsAreOnTheWorkerStack(t *testing.T) {
	r := NewRegistry()
	trap := &recordingTrap{}
	wc := newTestController(t, r, trap)

	wc.Break()
	const n = 5
	for i := 1; i <= n; i++ {
		s := r.Define(loc(t, "a.xml", i, i), "S", nil)
		wc.Enter(NewFrame(s, nil), false)
	}
	wc.Break()

	breaks := trap.Breaks()
	require.Len(t, breaks, 2)
	assert.Equal(t, breakRecord{state: "<uninstrumented>", depth: 0, parks: 1}, breaks[0])
	assert.Equal(t, "S_5", breaks[1].state)
	assert.Equal(t, n, breaks[1].depth)
	assert.Equal(t, n+1, breaks[1].parks, "one park per entry point plus the root")
}

func TestWorkerController_DisabledStateKeepsDepthWithoutStopping(t *testing.T) {
	r := NewRegistry()
	disabled := r.Define(loc(t, "", 1, 1), "Bad", nil)
	require.False(t, disabled.Enabled())
	trap := &recordingTrap{}
	wc := newTestController(t, r, trap)

	wc.Enter(NewFrame(disabled, nil), false)
	assert.Equal(t, 1, wc.PhysicalDepth())
	wc.Break()
	wc.Leave()
	assert.Equal(t, 0, wc.PhysicalDepth())

	assert.Empty(t, trap.Stops())
	require.Len(t, trap.Breaks(), 1)
	assert.Equal(t, 2, trap.Breaks()[0].parks)
}

func TestWorkerController_PrimingEntryNeverStops(t *testing.T) {
	r := NewRegistry()
	s := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	trap := &recordingTrap{}
	wc := newTestController(t, r, trap)

	wc.Enter(NewFrame(s, nil), true)
	assert.Equal(t, 1, wc.PhysicalDepth())
	assert.Empty(t, trap.Stops())
}

func TestWorkerController_ExitUnwindsAndJoins(t *testing.T) {
	r := NewRegistry()
	s := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	wc := newWorkerController(r, 1, workerOptions{lockOSThread: true})

	wc.Enter(NewFrame(s, nil), false)
	wc.Enter(NewFrame(s, nil), false)
	wc.Exit()

	assert.True(t, wc.Exited())
	assert.Equal(t, 0, wc.PhysicalDepth())
	select {
	case <-wc.worker.done:
	default:
		t.Fatal("worker still running after Exit")
	}

	wc.Exit()
	err := mustInvariant(t, wc.Break)
	assert.Contains(t, err.Message, "after exit")
}

func TestWorkerController_Preconditions(t *testing.T) {
	r := NewRegistry()
	wc := newTestController(t, r, nil)

	err := mustInvariant(t, wc.Leave)
	assert.Equal(t, "worker controller", err.Component)
	assert.Contains(t, err.Message, "no entered frame")

	mustInvariant(t, func() { wc.Enter(nil, false) })

	wc.inFlight.Store(true)
	err = mustInvariant(t, wc.Break)
	assert.Contains(t, err.Message, "in flight")
	wc.inFlight.Store(false)
}
