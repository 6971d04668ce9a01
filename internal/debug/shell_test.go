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
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShell_ParseCommand(t *testing.T) {
	shell := NewShell(NewAdapter(nil, nil), nil)
	shell.output = &bytes.Buffer{}

	tests := []struct {
		name    string
		input   string
		wantCmd CommandType
		wantArg string
		wantErr bool
	}{
		{name: "continue", input: "continue", wantCmd: CommandContinue},
		{name: "continue shorthand", input: "c", wantCmd: CommandContinue},
		{name: "next", input: "NEXT", wantCmd: CommandNext},
		{name: "next shorthand", input: "n", wantCmd: CommandNext},
		{name: "stack", input: "bt", wantCmd: CommandStack},
		{name: "locals", input: "locals", wantCmd: CommandLocals},
		{name: "inspect joins the query", input: "inspect .items | length", wantCmd: CommandInspect, wantArg: ".items | length"},
		{name: "inspect without query", input: "i", wantErr: true},
		{name: "goroutine", input: "g", wantCmd: CommandGoroutine},
		{name: "break", input: "break Log if n > 1", wantCmd: CommandBreak, wantArg: "Log if n > 1"},
		{name: "break without target", input: "b", wantErr: true},
		{name: "unknown", input: "jump", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := shell.parseCommand(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, cmd.Type)
			if tt.wantArg != "" {
				assert.Equal(t, []string{tt.wantArg}, cmd.Args)
			}
		})
	}
}

func TestShell_HelpReturnsNoCommand(t *testing.T) {
	out := &bytes.Buffer{}
	shell := NewShell(NewAdapter(nil, nil), nil)
	shell.output = out

	cmd, err := shell.parseCommand("help")
	assert.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Contains(t, out.String(), "Debug Commands:")
}

func TestShell_InteractiveSession(t *testing.T) {
	f := newAdapterFixture(t, "A")

	input := strings.Join([]string{
		"locals",
		"inspect .x + 1",
		"stack",
		"bogus",
		"break B",
		"",
		"continue",
		"goroutine",
		"continue",
	}, "\n") + "\n"

	out := &bytes.Buffer{}
	shell := NewShell(f.adapter, f.manager)
	shell.input = strings.NewReader(input)
	shell.output = out

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shellDone := make(chan error, 1)
	go func() { shellDone <- shell.Run(ctx) }()

	done := f.run()
	waitDone(t, done)
	f.adapter.Close()
	require.NoError(t, <-shellDone)

	got := out.String()
	assert.Contains(t, got, "Paused at A (thread 1, depth 1)")
	assert.Contains(t, got, `"x": 1`)
	assert.Contains(t, got, "Thread 1 main")
	assert.Contains(t, got, "#0 A")
	assert.Contains(t, got, "unknown command: bogus")
	assert.Contains(t, got, "Breakpoint set: B")
	assert.Contains(t, got, "Paused at B (thread 1, depth 2)")
	assert.Contains(t, got, "(*worker).park(")
	assert.True(t, f.adapter.Config().Enabled())
	assert.Len(t, f.adapter.Config().Breakpoints(), 2)
}

func TestShell_EOFRunsToCompletion(t *testing.T) {
	f := newAdapterFixture(t, "A", "B")

	shell := NewShell(f.adapter, nil)
	shell.input = strings.NewReader("stack\n")
	out := &bytes.Buffer{}
	shell.output = out

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shellDone := make(chan error, 1)
	go func() { shellDone <- shell.Run(ctx) }()

	waitDone(t, f.run())
	f.adapter.Close()
	require.NoError(t, <-shellDone)
	assert.Contains(t, out.String(), "No thread information available")
	assert.Contains(t, out.String(), "Paused at B")
}

func TestShell_StopsWithContext(t *testing.T) {
	shell := NewShell(NewAdapter(nil, nil), nil)
	shell.output = &bytes.Buffer{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, shell.Run(ctx), context.Canceled)
}
