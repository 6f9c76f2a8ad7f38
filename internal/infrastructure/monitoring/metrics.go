package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/sandbox/protocol"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Sandbox metrics
	ContextsActive   *prometheus.GaugeVec
	ContextsTotal    *prometheus.CounterVec
	ContextLifetime  *prometheus.HistogramVec
	CommandsSent     *prometheus.CounterVec
	EventsReceived   *prometheus.CounterVec
	SimulatedStatus  *prometheus.CounterVec
	WorkspacesActive prometheus.Gauge

	// Provider metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveContexts    int64   `json:"active_contexts"`
	ActiveWorkspaces  int64   `json:"active_workspaces"`
	ActiveConnections int64   `json:"active_connections"`
	Runs              int64   `json:"runs"`
	RuntimeErrors     int64   `json:"runtime_errors"`
	TotalDuration     float64 `json:"total_duration_seconds"` // sum of all request durations
	RequestCount      int64   `json:"request_count"`          // count for averaging
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics creates a collector registered with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a collector registered with reg. Tests pass a
// fresh prometheus.NewRegistry() so collectors can be created repeatedly.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Sandbox metrics
		ContextsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "playground_contexts_active",
				Help: "Number of mounted isolated contexts",
			},
			[]string{"mode"},
		),
		ContextsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_contexts_total",
				Help: "Total number of isolated contexts mounted",
			},
			[]string{"mode"},
		),
		ContextLifetime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_context_lifetime_seconds",
				Help:    "Time between mount and teardown of an isolated context",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"mode"},
		),
		CommandsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_commands_sent_total",
				Help: "Commands sent to isolated contexts",
			},
			[]string{"mode", "type"},
		),
		EventsReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_events_received_total",
				Help: "Events received from isolated contexts",
			},
			[]string{"mode", "type"},
		),
		SimulatedStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_simulated_requests_total",
				Help: "Completed mock server requests by status",
			},
			[]string{"mode", "status"},
		),
		WorkspacesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_workspaces_active",
				Help: "Number of open workspaces",
			},
		),

		// Provider metrics
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_provider_calls_total",
				Help: "Total number of provider calls",
			},
			[]string{"provider", "method", "status"},
		),
		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_provider_duration_seconds",
				Help:    "Provider call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "method"},
		),
		ProviderErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_provider_errors_total",
				Help: "Total number of provider errors",
			},
			[]string{"provider", "method", "error_type"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "playground_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// Mounted records a new isolated context
func (m *Metrics) Mounted(md mode.Mode) {
	m.ContextsActive.WithLabelValues(md.String()).Inc()
	m.ContextsTotal.WithLabelValues(md.String()).Inc()
	m.mu.Lock()
	m.snapshot.ActiveContexts++
	m.mu.Unlock()
}

// Released records a torn-down isolated context
func (m *Metrics) Released(md mode.Mode, lifetime time.Duration) {
	m.ContextsActive.WithLabelValues(md.String()).Dec()
	m.ContextLifetime.WithLabelValues(md.String()).Observe(lifetime.Seconds())
	m.mu.Lock()
	m.snapshot.ActiveContexts--
	m.mu.Unlock()
}

// Sent records a command sent to a context
func (m *Metrics) Sent(md mode.Mode, kind protocol.Kind) {
	m.CommandsSent.WithLabelValues(md.String(), string(kind)).Inc()
	if kind == protocol.Execute {
		m.mu.Lock()
		m.snapshot.Runs++
		m.mu.Unlock()
	}
}

// Received records an event from a context
func (m *Metrics) Received(md mode.Mode, kind protocol.Kind) {
	m.EventsReceived.WithLabelValues(md.String(), string(kind)).Inc()
	if kind == protocol.RuntimeError {
		m.mu.Lock()
		m.snapshot.RuntimeErrors++
		m.mu.Unlock()
	}
}

// RecordSimulatedResponse records a completed mock server request
func (m *Metrics) RecordSimulatedResponse(md mode.Mode, status int) {
	m.SimulatedStatus.WithLabelValues(md.String(), strconv.Itoa(status)).Inc()
}

// RecordProviderCall records a provider call
func (m *Metrics) RecordProviderCall(provider, method, status string, duration time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, method, status).Inc()
	m.ProviderDuration.WithLabelValues(provider, method).Observe(duration.Seconds())
}

// RecordProviderError records a provider error
func (m *Metrics) RecordProviderError(provider, method, errorType string) {
	m.ProviderErrors.WithLabelValues(provider, method, errorType).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// SetWorkspacesActive sets the number of open workspaces
func (m *Metrics) SetWorkspacesActive(count int) {
	m.WorkspacesActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveWorkspaces = int64(count)
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// GetSnapshot returns the current values for the JSON API
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
