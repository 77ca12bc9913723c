package monitoring

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/microhost/internal/shared/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "microhost"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics.
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Sandbox metrics.
	SandboxesActive    prometheus.Gauge
	SandboxTransitions *prometheus.CounterVec
	SharedEffects      *prometheus.CounterVec
	EscapedKeys        prometheus.Counter

	// App metrics.
	AppStates      *prometheus.CounterVec
	ScriptDuration *prometheus.HistogramVec
	ScriptErrors   *prometheus.CounterVec

	// WebSocket metrics.
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics.
	Uptime    prometheus.Gauge
	startTime time.Time
	done      chan struct{}
	closeOnce sync.Once

	// Snapshot for JSON API - track current values.
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API.
type Snapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	ActiveSandboxes   int64   `json:"active_sandboxes"`
	ActiveConnections int64   `json:"active_connections"`
	ScriptsRun        int64   `json:"scripts_run"`
	ScriptErrors      int64   `json:"script_errors"`
	EscapedKeys       int64   `json:"escaped_keys"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics registers the metric set on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),
		done:      make(chan struct{}),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Sandbox metrics
		SandboxesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sandboxes_active",
				Help:      "Number of running sandboxes",
			},
		),
		SandboxTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sandbox_transitions_total",
				Help:      "Sandbox start and stop operations",
			},
			[]string{"op"},
		),
		SharedEffects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "shared_effects_total",
				Help:      "Install and release of page-wide patches",
			},
			[]string{"op"},
		),
		EscapedKeys: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escaped_keys_total",
				Help:      "Writes mirrored from a sandbox onto the real window",
			},
		),

		// App metrics
		AppStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "app_state_total",
				Help:      "App lifecycle state entries",
			},
			[]string{"state"},
		),
		ScriptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "script_duration_seconds",
				Help:      "Script execution time inside the page",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"kind"},
		),
		ScriptErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_errors_total",
				Help:      "Scripts that threw or timed out",
			},
			[]string{"kind"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime refreshes the uptime gauge until Close.
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Uptime.Set(time.Since(m.startTime).Seconds())
		case <-m.done:
			return
		}
	}
}

// Close stops the uptime updater.
func (m *Metrics) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// SandboxStarted records a sandbox start.
func (m *Metrics) SandboxStarted(app string) {
	m.SandboxesActive.Inc()
	m.SandboxTransitions.WithLabelValues("start").Inc()
	m.mu.Lock()
	m.snapshot.ActiveSandboxes++
	m.mu.Unlock()
}

// SandboxStopped records a sandbox stop.
func (m *Metrics) SandboxStopped(app string) {
	m.SandboxesActive.Dec()
	m.SandboxTransitions.WithLabelValues("stop").Inc()
	m.mu.Lock()
	m.snapshot.ActiveSandboxes--
	m.mu.Unlock()
}

// SharedEffectsChanged records the page-wide patches being installed or released.
func (m *Metrics) SharedEffectsChanged(installed bool) {
	op := "release"
	if installed {
		op = "install"
	}
	m.SharedEffects.WithLabelValues(op).Inc()
}

// KeyEscaped counts a write mirrored onto the real window. The key is left
// out of the labels to keep cardinality bounded.
func (m *Metrics) KeyEscaped(app, key string) {
	m.EscapedKeys.Inc()
	m.mu.Lock()
	m.snapshot.EscapedKeys++
	m.mu.Unlock()
}

// AppStateChanged counts an app entering state.
func (m *Metrics) AppStateChanged(app string, state types.State) {
	m.AppStates.WithLabelValues(string(state)).Inc()
}

// ScriptExecuted records one script run of the given kind.
func (m *Metrics) ScriptExecuted(app, kind string, d time.Duration, err error) {
	m.ScriptDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.ScriptErrors.WithLabelValues(kind).Inc()
	}
	m.mu.Lock()
	m.snapshot.ScriptsRun++
	if err != nil {
		m.snapshot.ScriptErrors++
	}
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values for the JSON API.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AverageLatencyMs = s.totalDuration / float64(s.TotalRequests) * 1000
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
