// Package metrics defines the prometheus collectors for conversation trees.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "branches"

// Metrics holds the collectors. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	nodesCreated       prometheus.Counter
	completions        *prometheus.CounterVec
	fragments          prometheus.Counter
	completionDuration *prometheus.HistogramVec
	layoutPasses       prometheus.Counter
	layoutDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		nodesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of question nodes branched off the tree",
		}),
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total number of finished completions by provider and outcome",
		}, []string{"provider", "outcome"}),
		fragments: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Total number of text fragments received from providers",
		}),
		completionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Time from request to stream exhaustion",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		layoutPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layout_passes_total",
			Help:      "Total number of automatic layout passes",
		}),
		layoutDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Layout pass duration",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
}

func (m *Metrics) NodeCreated() {
	if m == nil {
		return
	}
	m.nodesCreated.Inc()
}

func (m *Metrics) Fragment() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

// Completion records a finished completion; outcome is "completed" or "failed".
func (m *Metrics) Completion(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(provider, outcome).Inc()
	m.completionDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) LayoutPass(d time.Duration) {
	if m == nil {
		return
	}
	m.layoutPasses.Inc()
	m.layoutDuration.Observe(d.Seconds())
}
