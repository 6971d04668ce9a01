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

package run

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/vstack/internal/commands/shared"
	"github.com/tombee/vstack/internal/config"
)

const flowXML = `<Workflow name="flow">
  <Assign to="x" value="20 + 1"/>
  <Sequence name="body">
    <Log message="x is ${x}"/>
  </Sequence>
</Workflow>
`

// syncBuffer is written by the shell and the runner at the same time.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setup(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("VSTACK_LOCK_OS_THREAD", "false")
	t.Setenv("LOG_LEVEL", "error")
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestRun(t *testing.T) {
	dir := setup(t, map[string]string{"flow.xml": flowXML})
	out := &syncBuffer{}

	err := Run(context.Background(), nil, out, &bytes.Buffer{}, []string{filepath.Join(dir, "flow.xml")}, Options{})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "x is 21")
	assert.Contains(t, out.String(), "flow: 4 activities")
}

func TestRunSeveralWorkflows(t *testing.T) {
	dir := setup(t, map[string]string{
		"a.xml": `<Workflow name="a"><Log message="from a"/></Workflow>`,
		"b.xml": `<Workflow name="b"><Parallel><Log message="b1"/><Log message="b2"/></Parallel></Workflow>`,
	})
	out := &syncBuffer{}

	err := Run(context.Background(), nil, out, &bytes.Buffer{},
		[]string{filepath.Join(dir, "a.xml"), filepath.Join(dir, "b.xml")}, Options{MetricsAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	for _, want := range []string{"from a", "b1", "b2", "a: 2 activities", "b: 4 activities"} {
		assert.Contains(t, out.String(), want)
	}
}

func TestRunInteractiveShell(t *testing.T) {
	dir := setup(t, map[string]string{"flow.xml": flowXML})
	out := &syncBuffer{}
	in := strings.NewReader("locals\nstack\ncontinue\n")

	err := Run(context.Background(), in, out, &bytes.Buffer{}, []string{filepath.Join(dir, "flow.xml")}, Options{
		Trap:        config.TrapEvents,
		Breakpoints: []string{"Log"},
	})
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "Paused at Log")
	assert.Contains(t, got, "x is 21")
	assert.Contains(t, got, "body")
}

func TestRunTrace(t *testing.T) {
	dir := setup(t, map[string]string{"flow.xml": flowXML})
	var spans bytes.Buffer

	err := Run(context.Background(), nil, &syncBuffer{}, &spans, []string{filepath.Join(dir, "flow.xml")}, Options{Trace: true})
	require.NoError(t, err)
	assert.Contains(t, spans.String(), "vstack.bake")
	assert.Contains(t, spans.String(), "vstack.thread")
}

func TestRunErrors(t *testing.T) {
	dir := setup(t, map[string]string{
		"bad.xml":  `<Workflow><Loop/></Workflow>`,
		"fail.xml": `<Workflow><Assign to="xs" value="[1]"/><Assign to="y" value="xs[4]"/></Workflow>`,
	})

	err := Run(context.Background(), nil, &syncBuffer{}, &bytes.Buffer{}, []string{filepath.Join(dir, "bad.xml")}, Options{})
	assert.Equal(t, shared.ExitInvalidWorkflow, shared.ExitCode(err))

	err = Run(context.Background(), nil, &syncBuffer{}, &bytes.Buffer{}, []string{filepath.Join(dir, "fail.xml")}, Options{})
	assert.Equal(t, shared.ExitExecutionFailed, shared.ExitCode(err))

	err = Run(context.Background(), nil, &syncBuffer{}, &bytes.Buffer{}, []string{filepath.Join(dir, "bad.xml")}, Options{
		Breakpoints: []string{""},
	})
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}

func TestCommandFlagConflict(t *testing.T) {
	dir := setup(t, map[string]string{"flow.xml": flowXML})

	cmd := NewCommand()
	cmd.SetIn(strings.NewReader(""))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-i", "--trap", "native", filepath.Join(dir, "flow.xml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitConfigError, shared.ExitCode(err))
}

func TestCommandInteractiveFromReader(t *testing.T) {
	dir := setup(t, map[string]string{"flow.xml": flowXML})
	out := &syncBuffer{}

	cmd := NewCommand()
	cmd.SetIn(strings.NewReader("next\nnext\n"))
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-i", "--break", "flow", filepath.Join(dir, "flow.xml")})

	require.NoError(t, cmd.Execute())
	got := out.String()
	assert.Contains(t, got, "Paused at flow")
	assert.Contains(t, got, "Paused at Assign_x")
	assert.Contains(t, got, "Paused at body")
}
