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
	"slices"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/pkg/errors"
	"github.com/tombee/vstack/pkg/source"
)

const tracerName = "github.com/tombee/vstack/internal/debug"

// Manager is the interpreter-facing entry point of one debug session. It
// owns the state registry and the set of live logical threads, and routes
// enter, leave and break requests to the right worker.
type Manager struct {
	sessionID    string
	registry     *Registry
	trap         Trap
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	lockOSThread bool
	maxThreads   int

	mu      sync.Mutex
	threads map[int]*LogicalThread
	closed  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithTrap sets the trap that receives stops. The default ignores them.
func WithTrap(t Trap) Option {
	return func(m *Manager) { m.trap = t }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics records session activity.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTracerProvider sets where bake and thread spans go. The default is
// the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) { m.tracer = tp.Tracer(tracerName) }
}

// WithLockOSThread pins each worker goroutine to its own OS thread.
func WithLockOSThread(lock bool) Option {
	return func(m *Manager) { m.lockOSThread = lock }
}

// WithMaxThreads caps the number of live logical threads. Zero means no cap.
func WithMaxThreads(n int) Option {
	return func(m *Manager) { m.maxThreads = n }
}

// NewManager creates a debug session.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessionID:    uuid.NewString(),
		trap:         NopTrap{},
		lockOSThread: true,
		threads:      make(map[int]*LogicalThread),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = vslog.WithSession(vslog.WithComponent(vslog.OrDiscard(m.logger), "manager"), m.sessionID)
	if m.tracer == nil {
		m.tracer = otel.GetTracerProvider().Tracer(tracerName)
	}
	if m.registry == nil {
		m.registry = NewRegistry(WithRegistryLogger(m.logger), WithRegistryMetrics(m.metrics))
	}
	return m
}

// SessionID returns the unique id of this session.
func (m *Manager) SessionID() string { return m.sessionID }

// Registry returns the session's state registry.
func (m *Manager) Registry() *Registry { return m.registry }

// DefineState returns the State for loc. See Registry.Define.
func (m *Manager) DefineState(loc source.SourceLocation, name string, locals []LocalSymbol) *State {
	return m.registry.Define(loc, name, locals)
}

// Bake binds entry points for all pending states under a container named
// after hint and returns the container name, or "" if nothing was pending.
func (m *Manager) Bake(ctx context.Context, hint string) string {
	_, span := m.tracer.Start(ctx, "vstack.bake",
		trace.WithAttributes(
			attribute.String("vstack.container_hint", hint),
			attribute.Int("vstack.pending", m.registry.Pending()),
		),
	)
	defer span.End()

	container := m.registry.Bake(hint)
	span.SetAttributes(attribute.String("vstack.container", container))
	return container
}

// IsEnabled reports whether s can expose a stop. Nil states never do.
func (m *Manager) IsEnabled(s *State) bool {
	return s != nil && s.Enabled()
}

// CreateThread starts a logical thread with its own worker. Ids of retired
// threads are reused, smallest first. A *errors.ResourceError is returned
// when the thread limit is reached or the session is closed.
func (m *Manager) CreateThread(ctx context.Context, name string) (*LogicalThread, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, &errors.ResourceError{Resource: "logical thread", Cause: errors.New("session closed")}
	}
	if m.maxThreads > 0 && len(m.threads) >= m.maxThreads {
		m.mu.Unlock()
		m.logger.Warn("logical thread limit reached", slog.Int("max_threads", m.maxThreads))
		return nil, &errors.ResourceError{Resource: "logical thread", Limit: m.maxThreads}
	}
	id := 1
	for m.threads[id] != nil {
		id++
	}

	logger := vslog.WithThread(m.logger, id)
	_, span := m.tracer.Start(ctx, "vstack.thread",
		trace.WithAttributes(
			attribute.Int("vstack.thread_id", id),
			attribute.String("vstack.thread_name", name),
		),
	)
	t := &LogicalThread{
		id:      id,
		name:    name,
		logger:  logger,
		metrics: m.metrics,
		span:    span,
		controller: newWorkerController(m.registry, id, workerOptions{
			trap:         m.trap,
			metrics:      m.metrics,
			logger:       logger,
			lockOSThread: m.lockOSThread,
		}),
	}
	m.threads[id] = t
	m.mu.Unlock()

	m.metrics.threadStarted()
	logger.Debug("logical thread created", slog.String("name", name))
	if o, ok := m.trap.(Observer); ok {
		o.ThreadStarted(id, name)
	}
	return t, nil
}

// RetireThread unwinds t, stops its worker and frees its id.
func (m *Manager) RetireThread(t *LogicalThread) {
	m.mu.Lock()
	if m.threads[t.id] != t {
		m.mu.Unlock()
		return
	}
	delete(m.threads, t.id)
	m.mu.Unlock()

	if t.Depth() > 0 {
		t.logger.Warn("retiring logical thread with frames on its stack", slog.Int(vslog.DepthKey, t.Depth()))
		t.span.SetStatus(codes.Error, "retired with frames on stack")
		t.Unwind()
	}
	t.controller.Exit()
	t.span.End()

	m.metrics.threadRetired()
	t.logger.Debug("logical thread retired")
	if o, ok := m.trap.(Observer); ok {
		o.ThreadRetired(t.id)
	}
}

// Thread returns the live thread with the given id.
func (m *Manager) Thread(id int) (*LogicalThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "logical thread", ID: strconv.Itoa(id)}
	}
	return t, nil
}

// Enter pushes a frame for s with a snapshot of locals onto t. A nil s
// records an uninstrumented node.
func (m *Manager) Enter(t *LogicalThread, s *State, locals map[string]any) {
	t.Enter(NewFrame(s, locals))
}

// Leave pops the frame for s from t. A thread whose stack becomes empty is
// retired.
func (m *Manager) Leave(t *LogicalThread, s *State) {
	t.Leave(s)
	if t.Depth() == 0 {
		m.RetireThread(t)
	}
}

// Break traps into the debugger on t's worker without changing its stack.
func (m *Manager) Break(t *LogicalThread) {
	t.Break()
}

// PrimeThread creates a thread for execution already in progress and
// replays its ancestor frames, outermost first, without exposing any stop.
// Ordinary Enter and Leave calls resume once it returns.
func (m *Manager) PrimeThread(ctx context.Context, name string, ancestors []*Frame) (*LogicalThread, error) {
	t, err := m.CreateThread(ctx, name)
	if err != nil {
		return nil, err
	}

	t.priming = true
	for _, f := range ancestors {
		t.Enter(f)
	}
	t.priming = false

	m.metrics.primed()
	t.logger.Debug("logical thread primed", slog.Int(vslog.DepthKey, len(ancestors)))
	if o, ok := m.trap.(Observer); ok {
		o.Primed(t.id, len(ancestors))
	}
	return t, nil
}

// Threads returns snapshots of every live thread ordered by id.
func (m *Manager) Threads() []ThreadSnapshot {
	m.mu.Lock()
	threads := make([]*LogicalThread, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.mu.Unlock()

	slices.SortFunc(threads, func(a, b *LogicalThread) int { return a.id - b.id })
	out := make([]ThreadSnapshot, 0, len(threads))
	for _, t := range threads {
		out = append(out, t.Snapshot())
	}
	return out
}

// Close retires every live thread and refuses new ones.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	threads := make([]*LogicalThread, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, t)
	}
	m.mu.Unlock()

	for _, t := range threads {
		m.RetireThread(t)
	}
	m.logger.Debug("session closed", slog.Int("threads", len(threads)))
	return nil
}
