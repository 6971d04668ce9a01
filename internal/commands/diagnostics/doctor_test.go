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

package diagnostics

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/vstack/internal/commands/shared"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("VSTACK_LOCK_OS_THREAD", "false")
	t.Setenv("VSTACK_TRAP", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("PATH", dir)
	return dir
}

func TestRunDoctorDefaults(t *testing.T) {
	isolate(t)

	result := runDoctor(context.Background())
	assert.True(t, result.OverallHealthy)
	assert.False(t, result.ConfigExists)
	assert.True(t, result.ConfigValid)
	assert.Equal(t, "none", result.Trap)
	assert.True(t, result.Worker.Healthy, result.Worker.Error)
	assert.Equal(t, 3, result.Worker.LogicalDepth)
	assert.Equal(t, 3, result.Worker.PhysicalDepth)
	assert.False(t, result.Debugger.Found)
	assert.NotEmpty(t, result.Recommendations)
}

func TestRunDoctorNativeWithoutDebugger(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "vstack", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("workers:\n  trap: native\n"), 0o600))

	result := runDoctor(context.Background())
	assert.True(t, result.ConfigExists)
	assert.Equal(t, "native", result.Trap)

	var found bool
	for _, r := range result.Recommendations {
		if bytes.Contains([]byte(r), []byte("dlv is not on PATH")) {
			found = true
		}
	}
	assert.True(t, found, result.Recommendations)
}

func TestRunDoctorDebuggerOnPath(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dlv"), []byte("#!/bin/sh\n"), 0o755))

	result := runDoctor(context.Background())
	assert.True(t, result.Debugger.Found)
	assert.Equal(t, filepath.Join(dir, "dlv"), result.Debugger.Path)
}

func TestDoctorCommandInvalidConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "vstack", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("workers:\n  trap: gdb\n"), 0o600))

	cmd := NewDoctorCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(nil)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, shared.ExitExecutionFailed, shared.ExitCode(err))
	assert.Contains(t, out.String(), "Some checks failed")
	assert.Contains(t, out.String(), "vstack config validate")
}

func TestDoctorCommandJSON(t *testing.T) {
	isolate(t)
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })

	cmd := NewDoctorCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	var resp struct {
		Command string       `json:"command"`
		Result  DoctorResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "doctor", resp.Command)
	assert.True(t, resp.Result.Worker.Healthy)
}
