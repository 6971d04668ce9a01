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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records debug bridge activity. A nil *Metrics records nothing.
type Metrics struct {
	statesDefined  prometheus.Counter
	statesDisabled prometheus.Counter
	bakes          prometheus.Counter
	threadsActive  prometheus.Gauge
	threadsCreated prometheus.Counter
	frames         *prometheus.CounterVec
	stops          prometheus.Counter
	breaks         prometheus.Counter
	primings       prometheus.Counter
}

// NewMetrics registers the bridge metrics with reg. A nil reg creates
// unregistered collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		statesDefined: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_states_defined_total",
			Help: "Total states defined across all registries",
		}),
		statesDisabled: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_states_disabled_total",
			Help: "Total states disabled because of invalid symbol data",
		}),
		bakes: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_bakes_total",
			Help: "Total bake operations that bound at least one state",
		}),
		threadsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "vstack_logical_threads_active",
			Help: "Number of logical threads with a live worker",
		}),
		threadsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_logical_threads_created_total",
			Help: "Total logical threads created",
		}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vstack_frames_entered_total",
			Help: "Total frames entered by kind (instrumented, disabled, uninstrumented)",
		}, []string{"kind"}),
		stops: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_stops_total",
			Help: "Total visible stops raised by enabled states",
		}),
		breaks: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_breaks_total",
			Help: "Total explicit break requests",
		}),
		primings: f.NewCounter(prometheus.CounterOpts{
			Name: "vstack_primings_total",
			Help: "Total logical threads primed with ancestor frames",
		}),
	}
}

func (m *Metrics) stateDefined() {
	if m != nil {
		m.statesDefined.Inc()
	}
}

func (m *Metrics) stateDisabled() {
	if m != nil {
		m.statesDisabled.Inc()
	}
}

func (m *Metrics) bake() {
	if m != nil {
		m.bakes.Inc()
	}
}

func (m *Metrics) threadStarted() {
	if m != nil {
		m.threadsCreated.Inc()
		m.threadsActive.Inc()
	}
}

func (m *Metrics) threadRetired() {
	if m != nil {
		m.threadsActive.Dec()
	}
}

func (m *Metrics) frameEntered(kind string) {
	if m != nil {
		m.frames.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) stop() {
	if m != nil {
		m.stops.Inc()
	}
}

func (m *Metrics) breakHit() {
	if m != nil {
		m.breaks.Inc()
	}
}

func (m *Metrics) primed() {
	if m != nil {
		m.primings.Inc()
	}
}
