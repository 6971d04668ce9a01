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

// Package diagnostics implements the doctor command.
package diagnostics

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/pkg/source"
)

// DoctorResult contains the overall health check results
type DoctorResult struct {
	ConfigPath      string        `json:"config_path"`
	ConfigExists    bool          `json:"config_exists"`
	ConfigValid     bool          `json:"config_valid"`
	ConfigError     string        `json:"config_error,omitempty"`
	Trap            string        `json:"trap,omitempty"`
	Worker          WorkerHealth  `json:"worker"`
	Debugger        DebuggerCheck `json:"debugger"`
	Interactive     bool          `json:"interactive"`
	Recommendations []string      `json:"recommendations"`
	OverallHealthy  bool          `json:"overall_healthy"`
}

// WorkerHealth is the outcome of driving one logical thread through a worker.
type WorkerHealth struct {
	Healthy       bool   `json:"healthy"`
	LogicalDepth  int    `json:"logical_depth"`
	PhysicalDepth int    `json:"physical_depth"`
	Elapsed       string `json:"elapsed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DebuggerCheck reports whether a native debugger is on PATH.
type DebuggerCheck struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

// debuggerBinary is looked up on PATH for the native trap.
var debuggerBinary = "dlv"

// NewDoctorCommand creates the doctor command
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and the debugger bridge",
		Long: `Perform a health check of the vstack setup.

This command checks:
  - Config file exists and is valid
  - A worker can mirror a logical stack with nested native frames
  - A native debugger (dlv) is available for the native trap
  - Whether the terminal supports the interactive shell

Provides actionable recommendations for fixing any issues found.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			result := runDoctor(ctx)
			if shared.GetJSON() {
				if err := shared.EmitJSON(cmd.OutOrStdout(), "doctor", result); err != nil {
					return err
				}
			} else {
				outputDoctorText(cmd.OutOrStdout(), result)
			}
			if !result.OverallHealthy {
				return shared.NewExecutionError("health check failed", nil)
			}
			return nil
		},
	}

	return cmd
}

func runDoctor(ctx context.Context) DoctorResult {
	result := DoctorResult{
		Recommendations: []string{},
		OverallHealthy:  true,
		Interactive:     shared.IsInteractive(),
	}

	// Step 1: config file
	result.ConfigPath = shared.GetConfigPath()
	if result.ConfigPath == "" {
		if p, err := config.ConfigPath(); err == nil {
			result.ConfigPath = p
		}
	}
	if _, err := os.Stat(result.ConfigPath); err == nil {
		result.ConfigExists = true
	} else {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("No configuration file at %s; defaults apply. Run 'vstack config show' to see them.", result.ConfigPath))
	}

	cfg, err := shared.LoadConfig()
	if err != nil {
		result.ConfigError = err.Error()
		result.OverallHealthy = false
		result.Recommendations = append(result.Recommendations,
			"Fix the configuration. Run 'vstack config validate' for details.")
		return result
	}
	result.ConfigValid = true
	result.Trap = cfg.Workers.Trap

	// Step 2: worker round trip
	result.Worker = checkWorker(ctx, cfg)
	if !result.Worker.Healthy {
		result.OverallHealthy = false
	}

	// Step 3: native debugger
	result.Debugger = DebuggerCheck{Name: debuggerBinary}
	if path, err := exec.LookPath(debuggerBinary); err == nil {
		result.Debugger.Found = true
		result.Debugger.Path = path
	} else if cfg.Workers.Trap == config.TrapNative {
		result.Recommendations = append(result.Recommendations,
			"workers.trap is native but dlv is not on PATH. Install it with 'go install github.com/go-delve/delve/cmd/dlv@latest'.")
	}

	if !result.Interactive {
		result.Recommendations = append(result.Recommendations,
			"No terminal detected; 'vstack run --interactive' needs one.")
	}
	return result
}

// checkWorker drives a three-deep stack through a fresh session and
// compares the logical and native depths at the innermost frame.
func checkWorker(ctx context.Context, cfg *config.Config) WorkerHealth {
	var health WorkerHealth
	start := time.Now()

	sess, err := shared.NewSession(cfg, shared.SessionOptions{Trap: config.TrapNone, LogOutput: io.Discard})
	if err != nil {
		health.Error = err.Error()
		return health
	}
	defer func() { _ = sess.Close(context.Background()) }()

	m := sess.Manager
	names := []string{"outer", "middle", "inner"}
	for i, name := range names {
		loc, err := source.NewSourceLocation("doctor.xml", i+1, 1, i+1, 10)
		if err != nil {
			health.Error = err.Error()
			return health
		}
		m.DefineState(loc, name, nil)
	}
	m.Bake(ctx, "doctor")

	t, err := m.CreateThread(ctx, "doctor")
	if err != nil {
		health.Error = err.Error()
		return health
	}
	states := m.Registry().States()
	for _, s := range states {
		m.Enter(t, s, nil)
	}
	health.LogicalDepth = t.Depth()
	health.PhysicalDepth = t.PhysicalDepth()
	for i := len(states) - 1; i >= 0; i-- {
		m.Leave(t, states[i])
	}

	health.Elapsed = time.Since(start).Round(time.Microsecond).String()
	switch {
	case health.LogicalDepth != len(names):
		health.Error = fmt.Sprintf("logical depth %d, want %d", health.LogicalDepth, len(names))
	case health.PhysicalDepth != health.LogicalDepth:
		health.Error = fmt.Sprintf("native depth %d does not match logical depth %d", health.PhysicalDepth, health.LogicalDepth)
	default:
		health.Healthy = true
	}
	return health
}

func outputDoctorText(w io.Writer, result DoctorResult) {
	fmt.Fprintln(w, shared.Header.Render("vstack doctor"))
	fmt.Fprintln(w)

	switch {
	case !result.ConfigValid:
		fmt.Fprintln(w, shared.RenderError("Config: "+result.ConfigError))
	case result.ConfigExists:
		fmt.Fprintln(w, shared.RenderOK("Config: "+result.ConfigPath))
	default:
		fmt.Fprintln(w, shared.RenderWarn("Config: defaults"))
	}

	if result.ConfigValid {
		if result.Worker.Healthy {
			fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("Worker: %d nested frames in %s", result.Worker.PhysicalDepth, result.Worker.Elapsed)))
		} else {
			fmt.Fprintln(w, shared.RenderError("Worker: "+result.Worker.Error))
		}

		if result.Debugger.Found {
			fmt.Fprintln(w, shared.RenderOK("Debugger: "+result.Debugger.Path))
		} else {
			fmt.Fprintln(w, shared.RenderWarn("Debugger: "+result.Debugger.Name+" not found"))
		}
		fmt.Fprintln(w, shared.Muted.Render("Trap: "+result.Trap))
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, shared.Header.Render("Recommendations:"))
		for _, r := range result.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}

	fmt.Fprintln(w)
	if result.OverallHealthy {
		fmt.Fprintln(w, shared.RenderOK("All checks passed"))
	} else {
		fmt.Fprintln(w, shared.RenderError("Some checks failed"))
	}
}
