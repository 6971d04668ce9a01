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
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/vstack/pkg/errors"
	"github.com/tombee/vstack/pkg/source"
)

func loc(t *testing.T, file string, startLine, endLine int) source.SourceLocation {
	t.Helper()
	l, err := source.NewSourceLocation(file, startLine, 1, endLine, 10)
	require.NoError(t, err)
	return l
}

// mustInvariant runs fn and returns the *errors.InvariantError it panics with.
func mustInvariant(t *testing.T, fn func()) *errors.InvariantError {
	t.Helper()
	var got any
	func() {
		defer func() { got = recover() }()
		fn()
	}()
	require.NotNil(t, got, "expected a panic")
	err, ok := got.(*errors.InvariantError)
	require.True(t, ok, "panic value is %T: %v", got, got)
	return err
}

type breakRecord struct {
	state string
	depth int
	parks int
}

// recordingTrap remembers every stop and break together with how many
// worker parks were on the goroutine stack at the time.
type recordingTrap struct {
	mu     sync.Mutex
	stops  []string
	depths []int
	breaks []breakRecord
}

func (r *recordingTrap) Stop(c *Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, c.State.Name())
	r.depths = append(r.depths, c.Depth)
}

func (r *recordingTrap) Break(c *Call) {
	parks := strings.Count(string(c.Stack()), "(*worker).park(")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breaks = append(r.breaks, breakRecord{state: c.State.String(), depth: c.Depth, parks: parks})
}

func (r *recordingTrap) Stops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stops...)
}

func (r *recordingTrap) Breaks() []breakRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]breakRecord(nil), r.breaks...)
}
