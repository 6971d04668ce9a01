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

	vslog "github.com/tombee/vstack/internal/log"
)

func newTestThread(t *testing.T, r *Registry, trap Trap) *LogicalThread {
	t.Helper()
	th := &LogicalThread{
		id:         1,
		name:       "test",
		logger:     vslog.Discard(),
		controller: newWorkerController(r, 1, workerOptions{trap: trap}),
	}
	t.Cleanup(th.controller.Exit)
	return th
}

func TestLogicalThread_BalancedEnterLeave(t *testing.T) {
	r := NewRegistry()
	a := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	b := r.Define(loc(t, "a.xml", 2, 2), "B", nil)
	th := newTestThread(t, r, nil)

	var physical []int
	th.Enter(NewFrame(a, map[string]any{"x": 1}))
	physical = append(physical, th.PhysicalDepth())
	th.Enter(NewFrame(b, nil))
	physical = append(physical, th.PhysicalDepth())

	top, ok := th.Top()
	require.True(t, ok)
	assert.Same(t, b, top.State)

	th.Leave(b)
	physical = append(physical, th.PhysicalDepth())
	top, _ = th.Top()
	assert.Same(t, a, top.State)
	th.Leave(a)
	physical = append(physical, th.PhysicalDepth())

	assert.Equal(t, []int{1, 2, 1, 0}, physical)
	assert.Equal(t, 0, th.Depth())
	_, ok = th.Top()
	assert.False(t, ok)
}

func TestLogicalThread_UninstrumentedFramesSkipTheWorker(t *testing.T) {
	r := NewRegistry()
	a := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	trap := &recordingTrap{}
	th := newTestThread(t, r, trap)

	th.Enter(nil)
	th.Enter(NewFrame(a, nil))
	th.Enter(NewFrame(nil, map[string]any{"ignored": true}))

	assert.Equal(t, 3, th.Depth())
	assert.Equal(t, 1, th.PhysicalDepth())

	th.Leave(nil)
	th.Leave(a)
	th.Leave(nil)
	assert.Equal(t, 0, th.Depth())
	assert.Equal(t, []string{"A"}, trap.Stops())
}

func TestLogicalThread_LeaveMismatchIsFatal(t *testing.T) {
	r := NewRegistry()
	a := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	b := r.Define(loc(t, "a.xml", 2, 2), "B", nil)
	th := newTestThread(t, r, nil)

	err := mustInvariant(t, func() { th.Leave(a) })
	assert.Contains(t, err.Message, "empty stack")

	th.Enter(NewFrame(a, nil))
	err = mustInvariant(t, func() { th.Leave(b) })
	assert.Equal(t, "logical thread", err.Component)
	assert.Contains(t, err.Message, "does not match top A")

	mustInvariant(t, func() { th.Leave(nil) })
	assert.Equal(t, 1, th.Depth(), "a rejected leave does not pop")
}

func TestLogicalThread_Unwind(t *testing.T) {
	r := NewRegistry()
	a := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	b := r.Define(loc(t, "a.xml", 2, 2), "B", nil)
	th := newTestThread(t, r, nil)

	th.Enter(NewFrame(a, nil))
	th.Enter(nil)
	th.Enter(NewFrame(b, nil))
	th.Unwind()

	assert.Equal(t, 0, th.Depth())
	assert.Equal(t, 0, th.PhysicalDepth())
	th.Unwind()
}

func TestLogicalThread_Snapshot(t *testing.T) {
	r := NewRegistry()
	a := r.Define(loc(t, "a.xml", 1, 1), "A", nil)
	b := r.Define(loc(t, "a.xml", 2, 2), "B", nil)
	th := newTestThread(t, r, nil)

	locals := map[string]any{"x": 1}
	th.Enter(NewFrame(a, locals))
	th.Enter(nil)
	th.Enter(NewFrame(b, map[string]any{"y": "two"}))
	locals["x"] = 99

	snap := th.Snapshot()
	assert.Equal(t, 1, snap.ID)
	assert.Equal(t, "test", snap.Name)
	assert.Equal(t, 2, snap.PhysicalDepth)
	require.Len(t, snap.Frames, 3)
	assert.Equal(t, "B", snap.Frames[0].State)
	assert.Equal(t, "<uninstrumented>", snap.Frames[1].State)
	assert.Equal(t, "A", snap.Frames[2].State)
	assert.Equal(t, 1, snap.Frames[2].Locals["x"], "frames hold a snapshot of locals")
	assert.Equal(t, "a.xml:1:1-1:10", snap.Frames[2].Location)

	th.Unwind()
}

func TestFrame(t *testing.T) {
	assert.Nil(t, NewFrame(nil, map[string]any{"a": 1}))

	var nilFrame *Frame
	_, ok := nilFrame.Local("a")
	assert.False(t, ok)

	r := NewRegistry()
	f := NewFrame(r.Define(loc(t, "a.xml", 1, 1), "A", nil), map[string]any{"a": 1})
	v, ok := f.Local("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
