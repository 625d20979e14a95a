// Copyright 2026 The Yggmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package driver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yggmq/yggmq/registry"
)

// Metrics counts the messages of drivers, by driver name.
type Metrics struct {
	received  *prometheus.CounterVec
	processed *prometheus.CounterVec
	sent      *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

func newCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yggmq",
		Subsystem: "driver",
		Name:      name,
		Help:      help,
	}, []string{"driver"})
}

// NewMetrics creates the driver metrics and registers them with reg.  If
// sockets is not nil, a gauge of its registered socket count is added.  A
// nil reg disables metrics, and a nil *Metrics is valid.
func NewMetrics(reg prometheus.Registerer, sockets *registry.Registry) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		received:  newCounter("received_total", "Messages received by drivers"),
		processed: newCounter("processed_total", "Messages translated by drivers"),
		sent:      newCounter("sent_total", "Messages forwarded by drivers"),
		skipped:   newCounter("skipped_total", "Messages dropped by translators"),
	}
	for _, c := range []prometheus.Collector{m.received, m.processed, m.sent, m.skipped} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if sockets != nil {
		gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "yggmq",
			Subsystem: "registry",
			Name:      "sockets",
			Help:      "Sockets currently registered",
		}, func() float64 { return float64(sockets.Count()) })
		if err := reg.Register(gauge); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordReceived(name string) {
	if m != nil {
		m.received.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) recordProcessed(name string) {
	if m != nil {
		m.processed.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) recordSent(name string) {
	if m != nil {
		m.sent.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) recordSkipped(name string) {
	if m != nil {
		m.skipped.WithLabelValues(name).Inc()
	}
}
