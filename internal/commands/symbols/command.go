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

// Package symbols implements the symbols command.
package symbols

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tombee/vstack/internal/commands/completion"
	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/internal/debug"
	"github.com/tombee/vstack/internal/workflow"
)

// StateInfo describes one defined state.
type StateInfo struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	File       string `json:"file"`
	Span       string `json:"span"`
	Enabled    bool   `json:"enabled"`
	Container  string `json:"container"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Result is the JSON payload of the symbols command.
type Result struct {
	States   []StateInfo `json:"states"`
	Warnings []string    `json:"warnings,omitempty"`
}

// NewCommand creates the symbols command
func NewCommand() *cobra.Command {
	var breakpoints []string

	cmd := &cobra.Command{
		Use:   "symbols <file>...",
		Short: "List the debug states of workflows",
		Long: `Symbols parses workflows, defines one debug state per activity and bakes
them, exactly as run would, then lists each state with its source span.

States whose location cannot be expressed as a debug symbol are listed as
disabled with the reason. Breakpoints (from config or --break) that match
no state are reported as warnings.`,
		Example: `  vstack symbols flow.xml
  vstack symbols flow.xml --break 'Assign_*' --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args, breakpoints)
		},
	}

	cmd.Flags().StringArrayVarP(&breakpoints, "break", "b", nil, "Breakpoint to check against the states (repeatable)")
	cmd.ValidArgsFunction = completion.CompleteWorkflowFiles
	_ = cmd.RegisterFlagCompletionFunc("break", completion.CompleteStateNames)

	return cmd
}

func run(ctx context.Context, out io.Writer, paths []string, breakpoints []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	sess, err := shared.NewSession(cfg, shared.SessionOptions{Breakpoints: breakpoints, Trap: config.TrapNone})
	if err != nil {
		return err
	}
	defer sess.Close(ctx)

	var res Result
	for _, path := range paths {
		doc, err := workflow.LoadFile(path)
		if err != nil {
			return shared.NewInvalidWorkflowError("failed to load workflow", err)
		}
		if !cfg.Symbols.Checksum {
			doc.DropChecksums()
		}
		syms := workflow.DefineSymbols(ctx, sess.Manager, doc, cfg.Instrumented)
		for _, a := range doc.Activities() {
			if s := syms.State(a); s != nil {
				res.States = append(res.States, describe(a, s))
			}
		}
	}

	if err := sess.Breakpoints.Validate(sess.Manager.Registry().States()); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}

	if shared.GetJSON() {
		return shared.EmitJSON(out, "symbols", res)
	}
	render(out, res)
	return nil
}

func describe(a *workflow.Activity, s *debug.State) StateInfo {
	info := StateInfo{
		Name:      s.Name(),
		Kind:      string(a.Kind),
		File:      s.Location().File(),
		Span:      s.Location().Range().String(),
		Enabled:   s.Enabled(),
		Container: s.Container(),
	}
	if err := s.Diagnostic(); err != nil {
		info.Diagnostic = err.Error()
	}
	return info
}

func render(out io.Writer, res Result) {
	rows := make([][]string, 0, len(res.States))
	for _, s := range res.States {
		enabled := shared.StatusOK.Render(shared.SymbolOK)
		if !s.Enabled {
			enabled = shared.StatusError.Render(shared.SymbolError)
		}
		rows = append(rows, []string{s.Name, s.Kind, s.File + ":" + s.Span, enabled, s.Container, s.Diagnostic})
	}
	fmt.Fprintln(out, shared.RenderTable([]string{"STATE", "KIND", "LOCATION", "ON", "CONTAINER", "DIAGNOSTIC"}, rows))
	fmt.Fprintln(out, shared.Muted.Render(fmt.Sprintf("%d states", len(res.States))))
	for _, w := range res.Warnings {
		fmt.Fprintln(out, shared.RenderWarn(w))
	}
}
