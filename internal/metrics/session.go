package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics records wallet session activity. It satisfies
// session.Recorder.
type SessionMetrics struct {
	RefreshesTotal  *prometheus.CounterVec
	RefreshDuration prometheus.Histogram
	OperationsTotal *prometheus.CounterVec
	ProviderEvents  *prometheus.CounterVec
}

// NewSessionMetrics creates and registers session metrics on the given registry.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Token view refreshes, by outcome (applied, discarded, failed, skipped).",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of token view refreshes that reached the chain.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Wallet operations, by kind and result.",
		}, []string{"kind", "result"}),
		ProviderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "provider_events_total",
			Help:      "Events pushed by the wallet provider.",
		}, []string{"event"}),
	}

	reg.MustRegister(m.RefreshesTotal, m.RefreshDuration, m.OperationsTotal, m.ProviderEvents)
	return m
}

func (m *SessionMetrics) RefreshFinished(outcome string, elapsed time.Duration) {
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		m.RefreshDuration.Observe(elapsed.Seconds())
	}
}

func (m *SessionMetrics) OperationFinished(kind string, result string) {
	m.OperationsTotal.WithLabelValues(kind, result).Inc()
}

func (m *SessionMetrics) ProviderEvent(name string) {
	m.ProviderEvents.WithLabelValues(name).Inc()
}
