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
	"testing"

	"github.com/expr-lang/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileLocals(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		known  []string
		locals map[string]any
		want   any
	}{
		{"plain variable", "total > 2", nil, map[string]any{"total": 3}, true},
		{"variable named count", "count > 2", nil, map[string]any{"count": 3}, true},
		{"variable named len", "len + 1", nil, map[string]any{"len": 4}, 5},
		{"known name shadows builtin", "sum", []string{"sum"}, map[string]any{"sum": 7}, 7},
		{"builtin still callable", "len(items)", nil, map[string]any{"items": []any{1, 2}}, 2},
		{"called known name keeps builtin", "max(count, 5)", []string{"max", "count"}, map[string]any{"count": 9}, 9},
		{"missing variable is nil", "count == nil", nil, map[string]any{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := CompileLocals(tt.input, tt.known)
			require.NoError(t, err)
			out, err := expr.Run(prog, tt.locals)
			require.NoError(t, err)
			assert.EqualValues(t, tt.want, out)
		})
	}
}

func TestCompileLocals_SyntaxError(t *testing.T) {
	_, err := CompileLocals("1 +", nil)
	assert.Error(t, err)
}

func TestParseBreakpoint_ConditionNamedLikeBuiltin(t *testing.T) {
	r := NewRegistry()
	s := r.Define(loc(t, "flow.xml", 1, 1), "Log", nil)

	for _, raw := range []string{"Log if count > 2", "Log if len >= 3", "Log if all == true"} {
		bp, err := ParseBreakpoint(raw)
		require.NoError(t, err, raw)
		assert.True(t, bp.Matches(s, map[string]any{"count": 3, "len": 3, "all": true}), raw)
	}
}
