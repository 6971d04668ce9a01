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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspector_Get(t *testing.T) {
	i := NewInspector(map[string]any{
		"order": map[string]any{"total": 42, "items": []string{"a"}},
		"name":  "demo",
	})

	v, ok := i.Get("order.total")
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = i.Get("order.missing")
	assert.False(t, ok)
	_, ok = i.Get("name.length")
	assert.False(t, ok)

	assert.Equal(t, []string{"name", "order"}, i.Keys())
	assert.Equal(t, "  name: string\n  order: map[string]interface {}\n", i.Summary())
}

func TestInspector_Query(t *testing.T) {
	i := NewInspector(map[string]any{
		"items": []string{"a", "b", "c"},
		"count": 2,
	})
	ctx := context.Background()

	got, err := i.Query(ctx, ".items | length")
	require.NoError(t, err)
	assert.Equal(t, []any{3}, got)

	got, err = i.Query(ctx, ".items[]")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, got)

	got, err = i.Query(ctx, ".count * 2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.EqualValues(t, 4, got[0])

	_, err = i.Query(ctx, ".items[")
	assert.Error(t, err)

	_, err = i.Query(ctx, `error("boom")`)
	assert.Error(t, err)

	got, err = NewInspector(nil).Query(ctx, "keys")
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{}}, got)
}

func TestInspector_Format(t *testing.T) {
	i := NewInspector(map[string]any{"a": 1})
	out, err := i.FormatLocals()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, out)

	_, err = i.Format(make(chan int))
	assert.Error(t, err)
}
