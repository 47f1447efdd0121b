// Package metrics exposes runner metrics to Prometheus.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Outcome labels for CommandsTotal.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Registry holds all runner metrics.
type Registry struct {
	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	CommandsActive  prometheus.Gauge
	StreamedBytes   *prometheus.CounterVec

	// Connection metrics
	ActiveSessions     prometheus.Gauge
	SessionsTotal      prometheus.Counter
	HeartbeatsReceived prometheus.Counter
	DecodeErrors       prometheus.Counter

	// Liveness
	WatchdogExpirations prometheus.Counter
}

// Get returns the global metrics registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	// Command metrics
	r.CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workspace_runner_commands_total",
		Help: "Commands dispatched, by command type and outcome",
	}, []string{"type", "outcome"})

	r.CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "workspace_runner_command_duration_seconds",
		Help:    "Time spent handling a command",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	r.CommandsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workspace_runner_commands_in_flight",
		Help: "Commands currently being handled",
	})

	r.StreamedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "workspace_runner_streamed_bytes_total",
		Help: "Bytes of command output streamed to the controller",
	}, []string{"stream"})

	// Connection metrics
	r.ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "workspace_runner_active_sessions",
		Help: "Open controller connections",
	})

	r.SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workspace_runner_sessions_total",
		Help: "Controller connections accepted",
	})

	r.HeartbeatsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workspace_runner_heartbeats_received_total",
		Help: "Heartbeats received from the controller",
	})

	r.DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workspace_runner_decode_errors_total",
		Help: "Inbound frames that failed to decode",
	})

	// Liveness
	r.WatchdogExpirations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "workspace_runner_watchdog_expirations_total",
		Help: "Times the controller was declared dead",
	})

	return r
}

// RecordCommand records one handled command.
func (r *Registry) RecordCommand(commandType string, success bool, duration time.Duration) {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	r.CommandsTotal.WithLabelValues(commandType, outcome).Inc()
	r.CommandDuration.WithLabelValues(commandType).Observe(duration.Seconds())
}

// RecordOutput records streamed output.
func (r *Registry) RecordOutput(stream string, n int) {
	r.StreamedBytes.WithLabelValues(stream).Add(float64(n))
}

// SessionOpened records a new controller connection.
func (r *Registry) SessionOpened() {
	r.SessionsTotal.Inc()
	r.ActiveSessions.Inc()
}

// SessionClosed records a controller connection ending.
func (r *Registry) SessionClosed() {
	r.ActiveSessions.Dec()
}
