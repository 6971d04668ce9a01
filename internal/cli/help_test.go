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

package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/vstack/internal/commands/shared"
)

type helpEnvelope struct {
	shared.JSONResponse
	Result HelpResult `json:"result"`
}

func newTestRoot() *cobra.Command {
	root := NewRootCommand()
	sample := &cobra.Command{
		Use:     "sample",
		Short:   "Sample subcommand",
		Example: "  vstack sample --flag value",
		RunE:    func(*cobra.Command, []string) error { return nil },
	}
	sample.Flags().String("flag", "", "A sample flag")
	root.AddCommand(sample)
	root.SetHelpCommand(NewHelpCommand(root))
	return root
}

func runHelp(t *testing.T, args ...string) helpEnvelope {
	t.Helper()
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	root := newTestRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"help", "--json"}, args...))
	require.NoError(t, root.Execute())

	var resp helpEnvelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp), buf.String())
	assert.Equal(t, "1.0", resp.Version)
	assert.True(t, resp.Success)
	return resp
}

func TestHelpJSONListsCommands(t *testing.T) {
	resp := runHelp(t)

	assert.Equal(t, "help", resp.Command)
	assert.Nil(t, resp.Result.Command)
	require.NotEmpty(t, resp.Result.Commands)

	var names []string
	for _, c := range resp.Result.Commands {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "sample")

	var global []string
	for _, f := range resp.Result.GlobalFlags {
		global = append(global, f.Name)
	}
	assert.ElementsMatch(t, []string{"verbose", "quiet", "json", "config"}, global)
}

func TestHelpJSONSingleCommand(t *testing.T) {
	resp := runHelp(t, "sample")

	assert.Equal(t, "help sample", resp.Command)
	require.NotNil(t, resp.Result.Command)
	assert.Equal(t, "sample", resp.Result.Command.Name)
	assert.NotEmpty(t, resp.Result.Command.Examples)
	var flag *FlagMetadata
	for i := range resp.Result.Command.Flags {
		if resp.Result.Command.Flags[i].Name == "flag" {
			flag = &resp.Result.Command.Flags[i]
		}
	}
	require.NotNil(t, flag)
	assert.Equal(t, "string", flag.Type)
	assert.Empty(t, resp.Result.Commands)
}

func TestHelpUnknownCommand(t *testing.T) {
	root := newTestRoot()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"help", "nope"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `command "nope" not found`)
}

func TestHelpText(t *testing.T) {
	root := newTestRoot()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"help", "sample"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "Sample subcommand")
}
