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
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/itchyny/gojq"
)

// queryTimeout bounds one inspect query.
const queryTimeout = time.Second

// Inspector provides utilities for inspecting a frame's locals.
type Inspector struct {
	locals map[string]any
}

// NewInspector creates a new inspector for the given locals.
func NewInspector(locals map[string]any) *Inspector {
	return &Inspector{locals: locals}
}

// Get retrieves a value by key.
// Supports dot notation for nested access (e.g., "order.total").
func (i *Inspector) Get(key string) (any, bool) {
	parts := strings.Split(key, ".")
	current := i.locals

	for idx, part := range parts {
		value, ok := current[part]
		if !ok {
			return nil, false
		}
		if idx == len(parts)-1 {
			return value, true
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		current = nested
	}

	return nil, false
}

// Keys returns all top-level keys, sorted.
func (i *Inspector) Keys() []string {
	return slices.Sorted(maps.Keys(i.locals))
}

// Query runs a jq query over the locals and returns every result.
func (i *Inspector) Query(ctx context.Context, q string) ([]any, error) {
	query, err := gojq.Parse(q)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile error: %w", err)
	}

	// gojq only understands JSON-shaped values.
	input, err := normalize(i.locals)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var results []any
	iter := code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

func normalize(locals map[string]any) (any, error) {
	if locals == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(locals)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal locals: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal locals: %w", err)
	}
	return out, nil
}

// Format formats a value for display.
func (i *Inspector) Format(value any) (string, error) {
	bytes, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format value: %w", err)
	}
	return string(bytes), nil
}

// FormatLocals formats all locals for display.
func (i *Inspector) FormatLocals() (string, error) {
	return i.Format(i.locals)
}

// Summary returns key names and types, one per line.
func (i *Inspector) Summary() string {
	var b strings.Builder
	for _, key := range i.Keys() {
		fmt.Fprintf(&b, "  %s: %T\n", key, i.locals[key])
	}
	return b.String()
}
