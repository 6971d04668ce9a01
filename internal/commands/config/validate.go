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

package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/internal/debug"
	vserrors "github.com/tombee/vstack/pkg/errors"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validate the configuration file.

Checks performed:
  - YAML syntax and field values
  - symbols.include globs
  - Configured breakpoints and their conditions

With --strict, warnings are treated as errors.`,
		Example: `  vstack config validate
  vstack config validate --strict --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			return outputValidationResult(cmd.OutOrStdout(), validateFile(path), strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

func validateFile(path string) ValidationResult {
	result := ValidationResult{Path: path}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		result.Valid = true
		result.Warnings = append(result.Warnings, fmt.Sprintf("No configuration file at %s; defaults apply", path))
		return result
	}

	cfg, err := config.Load(path)
	if err != nil {
		result.Errors = append(result.Errors, causeOf(err).Error())
		return result
	}

	bps := make([]debug.Breakpoint, 0, len(cfg.Breakpoints))
	for _, b := range cfg.Breakpoints {
		bps = append(bps, debug.Breakpoint{State: b.State, File: b.File, Line: b.Line, Condition: b.Condition})
	}
	if _, err := debug.New(bps...); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	if cfg.Workers.MaxThreads == 0 {
		result.Warnings = append(result.Warnings, "workers.max_threads is 0; logical threads are unlimited")
	}
	if cfg.Workers.Trap == config.TrapNative && !cfg.Workers.LockOSThread {
		result.Warnings = append(result.Warnings, "workers.trap is native but workers.lock_os_thread is off; workers may share OS threads")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// causeOf strips the ConfigError wrapper added by config.Load.
func causeOf(err error) error {
	var ce *vserrors.ConfigError
	if errors.As(err, &ce) && ce.Cause != nil {
		return ce.Cause
	}
	return err
}

// outputValidationResult prints result and returns a config error when it
// fails.
func outputValidationResult(w io.Writer, result ValidationResult, strict bool) error {
	if shared.GetJSON() {
		if err := shared.EmitJSON(w, "config validate", result); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Fprintln(w, shared.RenderError("Configuration validation failed"))
		}
		fmt.Fprintln(w)

		if len(result.Errors) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Errors:"))
			for _, err := range result.Errors {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusError.Render(shared.SymbolError), err)
			}
			fmt.Fprintln(w)
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(w, shared.Header.Render("Warnings:"))
			for _, warn := range result.Warnings {
				fmt.Fprintf(w, "  %s %s\n", shared.StatusWarn.Render(shared.SymbolWarn), warn)
			}
			fmt.Fprintln(w)
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Fprintln(w, "No issues found.")
		}
	}

	if !result.Valid {
		return shared.NewConfigError("invalid configuration", fmt.Errorf("%d error(s) in %s", len(result.Errors), result.Path))
	}
	if strict && len(result.Warnings) > 0 {
		return shared.NewConfigError("invalid configuration", fmt.Errorf("strict mode: %d warning(s) in %s", len(result.Warnings), result.Path))
	}
	return nil
}
