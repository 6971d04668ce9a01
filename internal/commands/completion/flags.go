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

package completion

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/internal/workflow"
)

// CompleteTraps provides completion for --trap flag values.
func CompleteTraps(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		traps := []string{
			config.TrapNone + "\tStops are invisible",
			config.TrapNative + "\tTrap into an attached native debugger",
			config.TrapEvents + "\tPause in the debugger shell",
		}
		return traps, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteStateNames provides completion for --break from the state names of
// the workflows already named on the command line.
func CompleteStateNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, path := range args {
			doc, err := workflow.LoadFile(path)
			if err != nil {
				continue
			}
			for _, a := range doc.Activities() {
				name := workflow.StateName(a)
				if strings.HasPrefix(name, toComplete) && !slices.Contains(names, name) {
					names = append(names, name)
				}
			}
		}
		slices.Sort(names)
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}
