package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for agent transport calls and turns.
type Metrics struct {
	CallsTotal      *prometheus.CounterVec
	CallDuration    *prometheus.HistogramVec
	StreamEvents    *prometheus.CounterVec
	TurnsTotal      *prometheus.CounterVec
	TurnTransitions *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. A nil reg registers on the
// default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "agent_transport",
				Name:      "calls_total",
				Help:      "Total calls against the agent service",
			},
			[]string{"operation", "outcome"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "companion",
				Subsystem: "agent_transport",
				Name:      "call_duration_seconds",
				Help:      "Agent service call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		StreamEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "agent_transport",
				Name:      "stream_events_total",
				Help:      "Stream events received from the agent service",
			},
			[]string{"event"},
		),
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "session",
				Name:      "turns_total",
				Help:      "Completed conversational turns",
			},
			[]string{"mode", "outcome"},
		),
		TurnTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "companion",
				Subsystem: "session",
				Name:      "turn_transitions_total",
				Help:      "Turn state transitions",
			},
			[]string{"from", "to"},
		),
	}
}
