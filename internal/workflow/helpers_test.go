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

package workflow

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tombee/vstack/internal/debug"
)

const demoXML = `<Workflow name="demo">
  <Assign to="x" value="1 + 1"/>
  <Sequence name="body">
    <Log message="x=${x}"/>
  </Sequence>
</Workflow>
`

func mustLoad(t *testing.T, xml string) *Document {
	t.Helper()
	doc, err := Load(strings.NewReader(xml), "flows/demo.xml")
	require.NoError(t, err)
	return doc
}

// recordingTrap records stops, breaks and thread lifecycle.
type recordingTrap struct {
	mu      sync.Mutex
	stops   []string
	breaks  int
	started []string
	retired int
	primed  []int
}

func (r *recordingTrap) Stop(c *debug.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, c.State.Name())
}

func (r *recordingTrap) Break(*debug.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breaks++
}

func (r *recordingTrap) ThreadStarted(_ int, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
}

func (r *recordingTrap) ThreadRetired(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retired++
}

func (r *recordingTrap) Primed(_ int, frames int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primed = append(r.primed, frames)
}

func newManager(t *testing.T, trap debug.Trap) *debug.Manager {
	t.Helper()
	m := debug.NewManager(debug.WithTrap(trap), debug.WithLockOSThread(false))
	t.Cleanup(func() { _ = m.Close() })
	return m
}
