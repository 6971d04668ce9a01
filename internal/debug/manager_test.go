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
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/vstack/pkg/errors"
)

type observingTrap struct {
	recordingTrap
	mu      sync.Mutex
	started []int
	retired []int
	primed  map[int]int
}

func (o *observingTrap) ThreadStarted(id int, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *observingTrap) ThreadRetired(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retired = append(o.retired, id)
}

func (o *observingTrap) Primed(id int, frames int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.primed == nil {
		o.primed = make(map[int]int)
	}
	o.primed[id] = frames
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(append([]Option{WithLockOSThread(false)}, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_EnterLeaveRetiresEmptyThread(t *testing.T) {
	trap := &observingTrap{}
	m := newTestManager(t, WithTrap(trap))
	ctx := context.Background()

	a := m.DefineState(loc(t, "a.xml", 1, 3), "A", nil)
	b := m.DefineState(loc(t, "a.xml", 2, 2), "B", nil)
	assert.Equal(t, "Flow", m.Bake(ctx, "Flow"))

	th, err := m.CreateThread(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1, th.ID())

	m.Enter(th, a, map[string]any{"n": 1})
	m.Enter(th, b, nil)
	m.Break(th)
	m.Leave(th, b)
	assert.Len(t, m.Threads(), 1)
	m.Leave(th, a)

	assert.Empty(t, m.Threads(), "thread retired when its stack empties")
	_, err = m.Thread(1)
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))

	assert.Equal(t, []string{"A", "B"}, trap.Stops())
	require.Len(t, trap.Breaks(), 1)
	assert.Equal(t, 3, trap.Breaks()[0].parks)
	assert.Equal(t, []int{1}, trap.started)
	assert.Equal(t, []int{1}, trap.retired)
}

func TestManager_IsEnabled(t *testing.T) {
	m := newTestManager(t)
	assert.False(t, m.IsEnabled(nil))
	assert.True(t, m.IsEnabled(m.DefineState(loc(t, "a.xml", 1, 1), "A", nil)))
	assert.False(t, m.IsEnabled(m.DefineState(loc(t, "", 1, 1), "B", nil)))
}

func TestManager_RecyclesSmallestFreeID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var threads []*LogicalThread
	for range 3 {
		th, err := m.CreateThread(ctx, "t")
		require.NoError(t, err)
		threads = append(threads, th)
	}
	assert.Equal(t, []int{1, 2, 3}, []int{threads[0].ID(), threads[1].ID(), threads[2].ID()})

	m.RetireThread(threads[1])
	m.RetireThread(threads[1])

	th, err := m.CreateThread(ctx, "again")
	require.NoError(t, err)
	assert.Equal(t, 2, th.ID())

	got, err := m.Thread(2)
	require.NoError(t, err)
	assert.Same(t, th, got)
}

func TestManager_MaxThreads(t *testing.T) {
	m := newTestManager(t, WithMaxThreads(1))
	ctx := context.Background()

	th, err := m.CreateThread(ctx, "one")
	require.NoError(t, err)

	_, err = m.CreateThread(ctx, "two")
	var re *errors.ResourceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 1, re.Limit)

	m.RetireThread(th)
	_, err = m.CreateThread(ctx, "three")
	assert.NoError(t, err)
}

func TestManager_RetireUnwindsRemainingFrames(t *testing.T) {
	m := newTestManager(t)
	a := m.DefineState(loc(t, "a.xml", 1, 1), "A", nil)
	th, err := m.CreateThread(context.Background(), "t")
	require.NoError(t, err)

	m.Enter(th, a, nil)
	m.Enter(th, nil, nil)
	m.RetireThread(th)

	assert.Equal(t, 0, th.Depth())
	assert.True(t, th.controller.Exited())
}

func TestManager_PrimeThread(t *testing.T) {
	trap := &observingTrap{}
	m := newTestManager(t, WithTrap(trap))
	ctx := context.Background()

	var ancestors []*Frame
	for i := 1; i <= 3; i++ {
		s := m.DefineState(loc(t, "a.xml", i, i), fmt.Sprintf("Level%d", i), nil)
		ancestors = append(ancestors, NewFrame(s, map[string]any{"level": i}))
	}
	ancestors = append(ancestors, nil)
	current := m.DefineState(loc(t, "a.xml", 9, 9), "Current", nil)

	th, err := m.PrimeThread(ctx, "attached", ancestors)
	require.NoError(t, err)
	assert.False(t, th.priming, "later entries use the ordinary entry points")

	assert.Empty(t, trap.Stops(), "priming never stops")
	assert.Equal(t, 4, th.Depth())
	assert.Equal(t, 3, th.PhysicalDepth())
	assert.Equal(t, 4, trap.primed[th.ID()])

	m.Enter(th, current, nil)
	assert.Equal(t, []string{"Current"}, trap.Stops(), "exactly one stop after priming")

	m.Leave(th, current)
	m.Leave(th, nil)
	m.Leave(th, ancestors[2].State)
	assert.Equal(t, 2, th.PhysicalDepth())
}

func TestManager_ConcurrentThreadsAreIndependent(t *testing.T) {
	trap := &recordingTrap{}
	m := newTestManager(t, WithTrap(trap))
	ctx := context.Background()

	states := make([]*State, 4)
	for i := range states {
		states[i] = m.DefineState(loc(t, "a.xml", i+1, i+1), "S", nil)
	}
	m.Bake(ctx, "Concurrent")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th, err := m.CreateThread(ctx, fmt.Sprintf("branch-%d", w))
			if err != nil {
				errs <- err
				return
			}
			for round := 0; round < 10; round++ {
				for _, s := range states {
					m.Enter(th, s, map[string]any{"round": round})
				}
				if th.PhysicalDepth() != len(states) {
					errs <- fmt.Errorf("thread %d: depth %d", th.ID(), th.PhysicalDepth())
				}
				for i := len(states) - 1; i >= 1; i-- {
					th.Leave(states[i])
				}
				if round < 9 {
					th.Leave(states[0])
				}
			}
			m.Leave(th, states[0])
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Len(t, trap.Stops(), workers*10*len(states))
	assert.Empty(t, m.Threads())
}

func TestManager_ThreadsSnapshot(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	a := m.DefineState(loc(t, "a.xml", 1, 1), "A", nil)

	t2, err := m.CreateThread(ctx, "first")
	require.NoError(t, err)
	t1, err := m.CreateThread(ctx, "second")
	require.NoError(t, err)
	m.Enter(t1, a, map[string]any{"k": "v"})
	m.Enter(t2, nil, nil)

	snaps := m.Threads()
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[0].ID)
	assert.Equal(t, "first", snaps[0].Name)
	assert.Equal(t, "<uninstrumented>", snaps[0].Frames[0].State)
	assert.Equal(t, "A", snaps[1].Frames[0].State)
	assert.Equal(t, "v", snaps[1].Frames[0].Locals["k"])
}

func TestManager_CloseRefusesNewThreads(t *testing.T) {
	m := NewManager(WithLockOSThread(false))
	th, err := m.CreateThread(context.Background(), "t")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.True(t, th.controller.Exited())

	_, err = m.CreateThread(context.Background(), "late")
	assert.Equal(t, "resource", errors.TypeOf(err))
}

func TestManager_SharedRegistry(t *testing.T) {
	r := NewRegistry()
	m1 := newTestManager(t, WithRegistry(r))
	m2 := newTestManager(t, WithRegistry(r))

	assert.Same(t, m1.Registry(), m2.Registry())
	assert.NotEqual(t, m1.SessionID(), m2.SessionID())
	assert.Same(t, m1.DefineState(loc(t, "a.xml", 1, 1), "A", nil), m2.DefineState(loc(t, "a.xml", 1, 1), "A", nil))
}

func TestManager_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m := newTestManager(t, WithTracerProvider(tp))
	ctx := context.Background()

	a := m.DefineState(loc(t, "a.xml", 1, 1), "A", nil)
	m.Bake(ctx, "Flow")
	th, err := m.CreateThread(ctx, "main")
	require.NoError(t, err)
	m.Enter(th, a, nil)
	m.Leave(th, a)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"vstack.bake", "vstack.thread"}, names)
}

func TestManager_Metrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	m := newTestManager(t, WithMetrics(metrics))
	ctx := context.Background()

	a := m.DefineState(loc(t, "a.xml", 1, 1), "A", nil)
	bad := m.DefineState(loc(t, "", 1, 1), "Bad", nil)
	th, err := m.CreateThread(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.threadsActive))

	m.Enter(th, a, nil)
	m.Enter(th, bad, nil)
	m.Enter(th, nil, nil)
	m.Break(th)
	m.Leave(th, nil)
	m.Leave(th, bad)
	m.Leave(th, a)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.frames.WithLabelValues("instrumented")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.frames.WithLabelValues("disabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.frames.WithLabelValues("uninstrumented")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.stops))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.breaks))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.threadsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.threadsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.statesDefined))
}
