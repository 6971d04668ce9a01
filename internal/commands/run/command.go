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

// Package run implements the run command.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tombee/vstack/internal/commands/completion"
	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/internal/debug"
	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/internal/tracing"
	"github.com/tombee/vstack/internal/workflow"
)

// Options holds the run command flags.
type Options struct {
	Breakpoints []string
	Interactive bool
	Watch       bool
	MetricsAddr string
	Trace       bool
	Trap        string
	AttachAfter int
}

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var opts Options

	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Run workflows under the debugger bridge",
		Long: `Run executes one or more workflows concurrently on a single debug session.
Each logical thread of the interpreter is mirrored by a worker goroutine
whose native stack holds one nested frame per active activity.

Traps:
  none     Stops are invisible; the stack is still mirrored (default)
  native   runtime.Breakpoint() on matching breakpoints and <Break/>,
           for use under Delve (goroutines -label vstack.thread=1)
  events   Pause in the built-in debugger shell (implied by --interactive)

Breakpoints:
  --break 'Assign_*'          state name glob
  --break 'flow.xml:12'       file and line
  --break 'Log@flow.xml'      state name glob within a file
  --break 'Log if x > 2'      either form plus an expr condition over locals`,
		Example: `  vstack run flow.xml
  vstack run -i --break 'Log*' flow.xml
  vstack run --watch --metrics-addr :9090 a.xml b.xml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Interactive {
				if opts.Trap != "" && opts.Trap != config.TrapEvents {
					return shared.NewConfigError("invalid flags", fmt.Errorf("--interactive cannot be combined with --trap %s", opts.Trap))
				}
				opts.Trap = config.TrapEvents
				if cmd.InOrStdin() == os.Stdin && !shared.IsInteractive() {
					return shared.NewExecutionError("interactive mode needs a terminal", nil)
				}
			}
			return Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), args, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Breakpoints, "break", "b", nil, "Breakpoint (repeatable)")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "Step through stops in the debugger shell")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when a workflow file changes")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "Print session spans to stderr")
	cmd.Flags().StringVar(&opts.Trap, "trap", "", "Trap kind: none, native or events (default from config)")
	cmd.Flags().IntVar(&opts.AttachAfter, "attach-after", 0, "Attach the debugger only after this many activities")

	cmd.ValidArgsFunction = completion.CompleteWorkflowFiles
	_ = cmd.RegisterFlagCompletionFunc("break", completion.CompleteStateNames)
	_ = cmd.RegisterFlagCompletionFunc("trap", completion.CompleteTraps)

	return cmd
}

// Run executes paths with opts. It is the body of the run command.
func Run(ctx context.Context, in io.Reader, out, errOut io.Writer, paths []string, opts Options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	sessOpts := shared.SessionOptions{Breakpoints: opts.Breakpoints, Trap: opts.Trap}
	if opts.Trace {
		sessOpts.TraceWriter = errOut
	}

	sess, err := shared.NewSession(cfg, sessOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(context.Background()); err != nil {
			sess.Logger.Warn("failed to close session", vslog.Error(err))
		}
	}()
	logger := vslog.WithSession(sess.Logger, sess.Manager.SessionID())

	g, gctx := errgroup.WithContext(ctx)
	stopBackground, cancelBackground := context.WithCancel(gctx)
	defer cancelBackground()

	if cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return shared.NewConfigError("failed to listen for metrics", err)
		}
		srv := &http.Server{Handler: metricsMux(sess), ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-stopBackground.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if sess.Adapter != nil {
		shell := debug.NewShell(sess.Adapter, sess.Manager).WithIO(in, out)
		g.Go(func() error {
			err := shell.Run(stopBackground)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	runOnce := func(ctx context.Context) error {
		docs, err := loadDocuments(paths, cfg)
		if err != nil {
			return err
		}
		results, err := workflow.RunAll(ctx, sess.Manager, docs, func(r *workflow.Runner) *workflow.Runner {
			return r.WithLogger(sess.Logger).
				WithOutput(out).
				WithInclude(cfg.Instrumented).
				WithAttachAfter(opts.AttachAfter)
		})
		if err := sess.Breakpoints.Validate(sess.Manager.Registry().States()); err != nil {
			logger.Warn("breakpoint never hit", vslog.Error(err))
		}
		if err != nil {
			return shared.NewExecutionError("workflow failed", err)
		}
		if !shared.GetQuiet() {
			printSummary(out, results)
		}
		return nil
	}

	g.Go(func() error {
		defer cancelBackground()
		if !opts.Watch {
			return runOnce(gctx)
		}
		watchCtx, stop := signal.NotifyContext(gctx, os.Interrupt)
		defer stop()
		if err := runOnce(watchCtx); err != nil {
			shared.PrintError(errOut, err)
		}
		return watch(watchCtx, paths, logger, func(ctx context.Context) {
			if err := runOnce(ctx); err != nil {
				shared.PrintError(errOut, err)
			}
		})
	})

	return g.Wait()
}

func loadDocuments(paths []string, cfg *config.Config) ([]*workflow.Document, error) {
	docs := make([]*workflow.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := workflow.LoadFile(path)
		if err != nil {
			return nil, shared.NewInvalidWorkflowError("failed to load workflow", err)
		}
		if !cfg.Symbols.Checksum {
			doc.DropChecksums()
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func metricsMux(sess *shared.Session) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", tracing.MetricsHandler(sess.Metrics))
	return mux
}

func printSummary(out io.Writer, results []*workflow.Result) {
	for _, res := range results {
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("%s: %d activities", res.Document.Name, res.Entered)))
		if !shared.GetVerbose() {
			continue
		}
		names := make([]string, 0, len(res.Vars))
		for name := range res.Vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "  %s = %v\n", shared.Muted.Render(name), res.Vars[name])
		}
	}
}
