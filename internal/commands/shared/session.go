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

package shared

import (
	"context"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/internal/debug"
	vslog "github.com/tombee/vstack/internal/log"
	"github.com/tombee/vstack/internal/tracing"
)

// LoadConfig loads configuration from --config or the default location.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	return cfg, nil
}

// NewLogger builds the command logger. --verbose lowers the level to debug
// and --quiet raises it to error.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	lc := cfg.LoggerConfig()
	switch {
	case GetQuiet():
		lc.Level = "error"
	case GetVerbose():
		lc.Level = "debug"
	}
	if w != nil {
		lc.Output = w
	}
	return vslog.New(lc)
}

// SessionOptions adjusts a session beyond what the config file says.
type SessionOptions struct {
	// Breakpoints are added to the configured ones, in command-line form.
	Breakpoints []string

	// Trap overrides workers.trap when set.
	Trap string

	// TraceWriter enables console spans when non-nil.
	TraceWriter io.Writer

	// LogOutput overrides where logs go.
	LogOutput io.Writer
}

// Session bundles one debug.Manager with the pieces built around it.
type Session struct {
	Config  *config.Config
	Logger  *slog.Logger
	Manager *debug.Manager

	// Adapter is set when the events trap is selected.
	Adapter *debug.Adapter

	// Breakpoints holds every configured breakpoint.
	Breakpoints *debug.Config

	// Metrics gathers the session collectors for the metrics endpoint.
	Metrics *prometheus.Registry

	tracing *tracing.Provider
}

// NewSession wires a Manager from cfg.
func NewSession(cfg *config.Config, opts SessionOptions) (*Session, error) {
	logger := NewLogger(cfg, opts.LogOutput)

	bps := make([]debug.Breakpoint, 0, len(cfg.Breakpoints)+len(opts.Breakpoints))
	for _, b := range cfg.Breakpoints {
		bps = append(bps, debug.Breakpoint{State: b.State, File: b.File, Line: b.Line, Condition: b.Condition})
	}
	for _, raw := range opts.Breakpoints {
		bp, err := debug.ParseBreakpoint(raw)
		if err != nil {
			return nil, NewConfigError("invalid breakpoint", err)
		}
		bps = append(bps, bp)
	}
	breakpoints, err := debug.New(bps...)
	if err != nil {
		return nil, NewConfigError("invalid breakpoint", err)
	}

	trapKind := cfg.Workers.Trap
	if opts.Trap != "" {
		trapKind = opts.Trap
	}
	var (
		trap    debug.Trap = debug.NopTrap{}
		adapter *debug.Adapter
	)
	switch trapKind {
	case config.TrapNative:
		trap = debug.NativeTrap{Breakpoints: breakpoints}
	case config.TrapEvents:
		adapter = debug.NewAdapter(breakpoints, logger)
		trap = adapter
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := debug.NewMetrics(reg)

	v, _, _ := GetVersion()
	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    "vstack",
		ServiceVersion: v,
		Console:        cfg.Tracing.Stdout || opts.TraceWriter != nil,
		ConsoleWriter:  opts.TraceWriter,
	})
	if err != nil {
		return nil, NewConfigError("failed to set up tracing", err)
	}

	registry := debug.NewRegistry(
		debug.WithMaxCoordinate(cfg.Symbols.MaxCoordinate),
		debug.WithRegistryLogger(logger),
		debug.WithRegistryMetrics(metrics),
	)
	m := debug.NewManager(
		debug.WithRegistry(registry),
		debug.WithTrap(trap),
		debug.WithLogger(logger),
		debug.WithMetrics(metrics),
		debug.WithTracerProvider(tp.TracerProvider()),
		debug.WithLockOSThread(cfg.Workers.LockOSThread),
		debug.WithMaxThreads(cfg.Workers.MaxThreads),
	)

	return &Session{
		Config:      cfg,
		Logger:      logger,
		Manager:     m,
		Adapter:     adapter,
		Breakpoints: breakpoints,
		Metrics:     reg,
		tracing:     tp,
	}, nil
}

// Close retires every thread, releases a paused worker and flushes spans.
func (s *Session) Close(ctx context.Context) error {
	if s.Adapter != nil {
		s.Adapter.Close()
	}
	if err := s.Manager.Close(); err != nil {
		return err
	}
	return s.tracing.Shutdown(ctx)
}
