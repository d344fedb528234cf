package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Agent metrics
	AgentInvocations *prometheus.CounterVec
	AgentLatency     *prometheus.HistogramVec

	// Persistence metrics
	PersistenceFailures *prometheus.CounterVec

	// Connection manager metrics
	ConnectAttempts     *prometheus.CounterVec
	ReconnectsScheduled prometheus.Counter

	// Live data cache
	CacheLookups *prometheus.CounterVec
}

// New registers the metrics on reg. readyState reports the connection
// manager's numeric ready state and may be nil.
func New(reg prometheus.Registerer, readyState func() int) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Invocations by agent and terminal status
		AgentInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blackhole_agent_invocations_total",
			Help: "Total number of agent invocations by agent and status",
		}, []string{"agent", "status"}),

		AgentLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blackhole_agent_duration_seconds",
			Help:    "Agent processing latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"agent"}),

		// Swallowed storage errors by collection
		PersistenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blackhole_persistence_failures_total",
			Help: "Total number of persistence failures by collection",
		}, []string{"collection"}),

		ConnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blackhole_db_connect_attempts_total",
			Help: "Total number of real database dials by outcome",
		}, []string{"outcome"}),

		ReconnectsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "blackhole_db_reconnects_scheduled_total",
			Help: "Total number of reconnects scheduled after driver errors",
		}),

		// tier: memory, redis, database or miss
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "blackhole_live_data_lookups_total",
			Help: "Live data lookups by serving tier",
		}, []string{"tier"}),
	}

	if readyState != nil {
		factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "blackhole_db_ready_state",
				Help: "Database ready state (0 disconnected, 1 connected, 2 connecting, 3 disconnecting, 99 uninitialized)",
			},
			func() float64 { return float64(readyState()) },
		)
	}

	return m
}

// RecordInvocation records a finished agent invocation
func (m *Metrics) RecordInvocation(agent, status string, seconds float64) {
	if m == nil {
		return
	}
	m.AgentInvocations.WithLabelValues(agent, status).Inc()
	m.AgentLatency.WithLabelValues(agent).Observe(seconds)
}

// RecordPersistenceFailure records a storage failure that was swallowed
func (m *Metrics) RecordPersistenceFailure(collection string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(collection).Inc()
}

// RecordCacheLookup records which tier served a live data request
func (m *Metrics) RecordCacheLookup(tier string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(tier).Inc()
}

// ConnectAttempt implements database.Observer
func (m *Metrics) ConnectAttempt(outcome string) {
	if m == nil {
		return
	}
	m.ConnectAttempts.WithLabelValues(outcome).Inc()
}

// ReconnectScheduled implements database.Observer
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.ReconnectsScheduled.Inc()
}
