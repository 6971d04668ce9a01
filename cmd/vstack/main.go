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

package main

import (
	"github.com/tombee/vstack/internal/cli"
	"github.com/tombee/vstack/internal/commands/completion"
	configcmd "github.com/tombee/vstack/internal/commands/config"
	"github.com/tombee/vstack/internal/commands/diagnostics"
	"github.com/tombee/vstack/internal/commands/index"
	"github.com/tombee/vstack/internal/commands/run"
	"github.com/tombee/vstack/internal/commands/symbols"
	"github.com/tombee/vstack/internal/commands/validate"
	versioncmd "github.com/tombee/vstack/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Workflow commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(validate.NewCommand())
	rootCmd.AddCommand(symbols.NewCommand())

	// Source inspection
	rootCmd.AddCommand(index.NewCommand())

	// Configuration and shell integration
	rootCmd.AddCommand(configcmd.NewConfigCommand())
	rootCmd.AddCommand(diagnostics.NewDoctorCommand())
	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Custom help command with JSON support
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
