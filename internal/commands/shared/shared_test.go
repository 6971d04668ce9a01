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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/vstack/internal/config"
	"github.com/tombee/vstack/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitExecutionFailed},
		{"invalid workflow", NewInvalidWorkflowError("bad", nil), ExitInvalidWorkflow},
		{"wrapped config", fmt.Errorf("outer: %w", NewConfigError("bad", nil)), ExitConfigError},
		{"invariant", errors.Wrap(errors.Invariantf("worker", "x"), "run"), ExitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	err := NewExecutionError("workflow failed", errors.New("boom"))
	assert.Equal(t, "workflow failed: boom", err.Error())
	assert.Equal(t, "workflow failed", NewExecutionError("workflow failed", nil).Error())
}

func TestPrintErrorSuggestion(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, NewInvalidWorkflowError("load", &errors.ValidationError{
		Message:    "unknown activity",
		Suggestion: "use Sequence",
	}))
	assert.Contains(t, buf.String(), "unknown activity")
	assert.Contains(t, buf.String(), "Suggestion: use Sequence")
}

func TestEmitJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EmitJSON(&buf, "symbols", map[string]int{"states": 3}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "1.0", got["@version"])
	assert.Equal(t, "symbols", got["command"])
	assert.Equal(t, true, got["success"])
	assert.EqualValues(t, 3, got["result"].(map[string]any)["states"])

	buf.Reset()
	require.NoError(t, EmitJSONError(&buf, "run", []JSONError{{Type: "validation", Message: "bad"}}))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, false, got["success"])
	assert.Len(t, got["errors"], 1)
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"NAME", "SPAN"}, [][]string{{"Assign_x", "2:3-2:32"}})
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Assign_x")
	assert.Contains(t, out, "2:3-2:32")
}

func TestNewSession(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.LockOSThread = false
	cfg.Breakpoints = []config.BreakpointConfig{{State: "Log*"}}

	s, err := NewSession(cfg, SessionOptions{
		Breakpoints: []string{"flow.xml:3 if x > 1"},
		Trap:        config.TrapEvents,
		LogOutput:   &bytes.Buffer{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	require.NotNil(t, s.Adapter)
	assert.Len(t, s.Breakpoints.Breakpoints(), 2)
	assert.Same(t, s.Breakpoints, s.Adapter.Config())
	assert.NotEmpty(t, s.Manager.SessionID())

	families, err := s.Metrics.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewSessionTraps(t *testing.T) {
	cfg := config.Default()
	cfg.Workers.LockOSThread = false

	s, err := NewSession(cfg, SessionOptions{LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	assert.Nil(t, s.Adapter)
	require.NoError(t, s.Close(context.Background()))

	_, err = NewSession(cfg, SessionOptions{Breakpoints: []string{"Log if x +"}, LogOutput: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}
