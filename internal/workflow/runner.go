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

package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"

	"github.com/expr-lang/expr"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/vstack/internal/debug"
	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/pkg/errors"
)

// Runner executes workflow documents under a debug.Manager.
//
// It never recurses over the tree. Each line of execution is a branch with
// its own explicit activity stack, and the scheduler advances one branch by
// one enter or leave per tick, rotating through runnable branches. Every
// branch of a Parallel gets its own logical thread.
type Runner struct {
	manager     *debug.Manager
	logger      *slog.Logger
	output      io.Writer
	include     func(path string) bool
	attachAfter int
}

// NewRunner creates a runner reporting to m.
func NewRunner(m *debug.Manager) *Runner {
	return &Runner{
		manager: m,
		logger:  vslog.WithComponent(vslog.Discard(), "workflow"),
		output:  os.Stdout,
	}
}

// WithLogger sets the runner logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = vslog.WithComponent(vslog.OrDiscard(logger), "workflow")
	return r
}

// WithOutput sets where Log activities write.
func (r *Runner) WithOutput(w io.Writer) *Runner {
	r.output = w
	return r
}

// WithInclude restricts instrumentation to documents whose path include
// accepts.
func (r *Runner) WithInclude(include func(path string) bool) *Runner {
	r.include = include
	return r
}

// WithAttachAfter delays the debugger until n activities have been entered.
// Until then no logical threads exist. At that point every live branch gets
// a thread primed with the frames it already holds, as if a debugger had
// attached to a run in progress.
func (r *Runner) WithAttachAfter(n int) *Runner {
	r.attachAfter = n
	return r
}

// Result is the outcome of one run.
type Result struct {
	Document *Document
	Vars     map[string]any
	Entered  int
}

// step is one activity on a branch's stack.
type step struct {
	activity *Activity
	state    *debug.State
	locals   map[string]any
	children []*Activity
	next     int
}

type branch struct {
	name    string
	thread  *debug.LogicalThread
	stack   []*step
	parent  *branch
	waiting int
}

func (b *branch) top() *step { return b.stack[len(b.stack)-1] }

type run struct {
	*Runner
	ctx      context.Context
	doc      *Document
	syms     *Symbols
	vars     map[string]any
	queue    []*branch
	live     map[*branch]struct{}
	entered  int
	attached bool
}

// Run defines symbols for doc and executes it to completion on the calling
// goroutine. On error or cancellation every logical thread the run created
// is retired.
func (r *Runner) Run(ctx context.Context, doc *Document) (*Result, error) {
	syms := DefineSymbols(ctx, r.manager, doc, r.include)

	x := &run{
		Runner:   r,
		ctx:      ctx,
		doc:      doc,
		syms:     syms,
		vars:     make(map[string]any),
		live:     make(map[*branch]struct{}),
		attached: r.attachAfter <= 0,
	}
	logger := r.logger.With(slog.String("workflow", doc.Name))
	logger.Info("workflow started", slog.String(vslog.FileKey, doc.Path), slog.Int("states", syms.Len()))

	root := &branch{name: doc.Name}
	if err := x.start(root, doc.Root); err != nil {
		x.abort()
		return nil, err
	}

	for len(x.queue) > 0 {
		if err := ctx.Err(); err != nil {
			x.abort()
			logger.Warn("workflow cancelled", vslog.Error(err))
			return nil, err
		}
		b := x.queue[0]
		x.queue = x.queue[1:]
		if err := x.advance(b); err != nil {
			x.abort()
			logger.Error("workflow failed", vslog.Error(err))
			return nil, err
		}
	}

	logger.Info("workflow completed", slog.Int("entered", x.entered))
	return &Result{Document: doc, Vars: x.vars, Entered: x.entered}, nil
}

// start makes b live and enters its first activity.
func (x *run) start(b *branch, a *Activity) error {
	x.live[b] = struct{}{}
	if x.attached {
		t, err := x.manager.CreateThread(x.ctx, b.name)
		if err != nil {
			return err
		}
		b.thread = t
	}
	if err := x.enter(b, a); err != nil {
		return err
	}
	x.schedule(b)
	return nil
}

func (x *run) schedule(b *branch) {
	if b.waiting == 0 {
		x.queue = append(x.queue, b)
	}
}

// advance performs one enter or leave on b.
func (x *run) advance(b *branch) error {
	s := b.top()
	if s.next < len(s.children) {
		child := s.children[s.next]
		s.next++
		if err := x.enter(b, child); err != nil {
			return err
		}
		x.schedule(b)
		return nil
	}

	x.leave(b)
	if len(b.stack) > 0 {
		x.schedule(b)
		return nil
	}

	delete(x.live, b)
	if p := b.parent; p != nil {
		p.waiting--
		x.schedule(p)
	}
	return nil
}

func (x *run) enter(b *branch, a *Activity) error {
	s := &step{
		activity: a,
		state:    x.syms.State(a),
		locals:   maps.Clone(x.vars),
	}
	b.stack = append(b.stack, s)
	if b.thread != nil {
		x.manager.Enter(b.thread, s.state, s.locals)
	}
	x.entered++

	if err := x.execute(b, s); err != nil {
		return err
	}
	if !x.attached && x.entered >= x.attachAfter {
		return x.attach()
	}
	return nil
}

func (x *run) leave(b *branch) {
	s := b.top()
	b.stack = b.stack[:len(b.stack)-1]
	if b.thread != nil {
		x.manager.Leave(b.thread, s.state)
	}
	if len(b.stack) == 0 {
		b.thread = nil
	}
}

// execute applies the effect of entering s.
func (x *run) execute(b *branch, s *step) error {
	a := s.activity
	switch a.Kind {
	case KindWorkflow:
		for _, c := range a.children {
			if c.Kind != KindDefine {
				s.children = append(s.children, c)
			}
		}

	case KindSequence, KindDefine:
		s.children = a.children

	case KindInvoke:
		def := x.doc.Defines[a.Attrs["ref"]]
		s.children = []*Activity{Instantiate(def)}

	case KindParallel:
		for _, c := range a.children {
			child := &branch{
				name:   fmt.Sprintf("%s/%s", b.name, c.Label()),
				parent: b,
			}
			b.waiting++
			if err := x.start(child, c); err != nil {
				return err
			}
		}

	case KindAssign:
		v, err := expr.Run(a.program, maps.Clone(x.vars))
		if err != nil {
			return errors.Wrapf(err, "assign %s at %s", a.Attrs["to"], a.Location)
		}
		x.vars[a.Attrs["to"]] = v

	case KindLog:
		msg := os.Expand(a.Attrs["message"], func(name string) string {
			v, ok := x.vars[name]
			if !ok {
				return ""
			}
			return fmt.Sprint(v)
		})
		if _, err := fmt.Fprintln(x.output, msg); err != nil {
			return errors.Wrap(err, "write log output")
		}

	case KindBreak:
		if b.thread != nil {
			x.manager.Break(b.thread)
		}
	}
	return nil
}

// attach gives every live branch a primed thread.
func (x *run) attach() error {
	x.attached = true
	for b := range x.live {
		frames := make([]*debug.Frame, 0, len(b.stack))
		for _, s := range b.stack {
			frames = append(frames, debug.NewFrame(s.state, s.locals))
		}
		t, err := x.manager.PrimeThread(x.ctx, b.name, frames)
		if err != nil {
			return err
		}
		b.thread = t
	}
	x.logger.Debug("debugger attached", slog.Int("branches", len(x.live)), slog.Int("entered", x.entered))
	return nil
}

// abort retires the threads of every live branch.
func (x *run) abort() {
	for b := range x.live {
		if b.thread != nil {
			x.manager.RetireThread(b.thread)
			b.thread = nil
		}
	}
}

// RunAll runs docs concurrently on m, one goroutine per document. The first
// failure cancels the others.
func RunAll(ctx context.Context, m *debug.Manager, docs []*Document, configure func(*Runner) *Runner) ([]*Result, error) {
	results := make([]*Result, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			r := NewRunner(m)
			if configure != nil {
				r = configure(r)
			}
			res, err := r.Run(ctx, doc)
			if err != nil {
				return errors.Wrapf(err, "run %s", doc.Path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
