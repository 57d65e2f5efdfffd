// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the daemon: tool
// latency, session turns, background tasks, and external-pool requests.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// Tool metrics
	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec

	// Session metrics
	sessionsCreated *prometheus.CounterVec
	sessionsActive  *prometheus.GaugeVec
	sessionTurns    *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec

	// Background task metrics
	backgroundStarted  *prometheus.CounterVec
	backgroundFinished *prometheus.CounterVec
	backgroundDuration *prometheus.HistogramVec
	backgroundRunning  prometheus.Gauge

	// ExternalPool metrics
	externalRequests *prometheus.CounterVec
	externalDuration *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance from configuration.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	cfg.SetDefaults()

	m := &Metrics{
		config:   cfg,
		registry: prometheus.NewRegistry(),
	}

	m.initToolMetrics()
	m.initSessionMetrics()
	m.initBackgroundMetrics()
	m.initExternalMetrics()

	return m, nil
}

func (m *Metrics) initToolMetrics() {
	m.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool_name"},
	)

	m.toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
		[]string{"tool_name"},
	)

	m.toolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "tool",
			Name:      "errors_total",
			Help:      "Total number of tool errors",
		},
		[]string{"tool_name"},
	)

	m.registry.MustRegister(m.toolCalls, m.toolCallDuration, m.toolErrors)
}

func (m *Metrics) initSessionMetrics() {
	m.sessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Total number of sessions created",
		},
		[]string{"provider"},
	)

	m.sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of currently active sessions",
		},
		[]string{"provider"},
	)

	m.sessionTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "turns_total",
			Help:      "Total number of completed SessionLoop turns",
		},
		[]string{"provider", "cancelled"},
	)

	m.turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "session",
			Name:      "turn_duration_seconds",
			Help:      "SessionLoop turn duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to 820s
		},
		[]string{"provider"},
	)

	m.registry.MustRegister(m.sessionsCreated, m.sessionsActive, m.sessionTurns, m.turnDuration)
}

func (m *Metrics) initBackgroundMetrics() {
	m.backgroundStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "background",
			Name:      "started_total",
			Help:      "Total number of background tasks started",
		},
		[]string{"tool_name"},
	)

	m.backgroundFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "background",
			Name:      "finished_total",
			Help:      "Total number of background tasks finished, by terminal status",
		},
		[]string{"tool_name", "status"},
	)

	m.backgroundDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "background",
			Name:      "duration_seconds",
			Help:      "Background task wall-clock duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
		},
		[]string{"tool_name"},
	)

	m.backgroundRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: m.config.Namespace,
			Subsystem: "background",
			Name:      "running",
			Help:      "Number of currently running background tasks",
		},
	)

	m.registry.MustRegister(m.backgroundStarted, m.backgroundFinished, m.backgroundDuration, m.backgroundRunning)
}

func (m *Metrics) initExternalMetrics() {
	m.externalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "external",
			Name:      "requests_total",
			Help:      "Total number of ExternalPool MCP requests",
		},
		[]string{"server", "method"},
	)

	m.externalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.config.Namespace,
			Subsystem: "external",
			Name:      "request_duration_seconds",
			Help:      "ExternalPool MCP request round-trip duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
		[]string{"server", "method"},
	)

	m.externalErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.config.Namespace,
			Subsystem: "external",
			Name:      "errors_total",
			Help:      "Total number of ExternalPool MCP request errors",
		},
		[]string{"server", "method"},
	)

	m.registry.MustRegister(m.externalRequests, m.externalDuration, m.externalErrors)
}

// =============================================================================
// Tool Metrics
// =============================================================================

// RecordToolCall records a tool invocation.
func (m *Metrics) RecordToolCall(toolName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	m.toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordToolError records a tool error.
func (m *Metrics) RecordToolError(toolName string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(toolName).Inc()
}

// =============================================================================
// Session Metrics
// =============================================================================

// RecordSessionCreated records a session creation.
func (m *Metrics) RecordSessionCreated(provider string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(provider).Inc()
}

// SetSessionsActive sets the number of active sessions.
func (m *Metrics) SetSessionsActive(provider string, count int) {
	if m == nil {
		return
	}
	m.sessionsActive.WithLabelValues(provider).Set(float64(count))
}

// RecordSessionTurn records one completed SessionLoop turn.
func (m *Metrics) RecordSessionTurn(provider string, duration time.Duration, cancelled bool) {
	if m == nil {
		return
	}
	m.sessionTurns.WithLabelValues(provider, boolLabel(cancelled)).Inc()
	m.turnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// =============================================================================
// Background Metrics
// =============================================================================

// RecordBackgroundStarted records a background task starting.
func (m *Metrics) RecordBackgroundStarted(toolName string) {
	if m == nil {
		return
	}
	m.backgroundStarted.WithLabelValues(toolName).Inc()
	m.backgroundRunning.Inc()
}

// RecordBackgroundFinished records a background task reaching a terminal
// status ("completed", "failed", or "cancelled", as reported by the
// background manager).
func (m *Metrics) RecordBackgroundFinished(toolName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.backgroundFinished.WithLabelValues(toolName, status).Inc()
	m.backgroundDuration.WithLabelValues(toolName).Observe(duration.Seconds())
	m.backgroundRunning.Dec()
}

// =============================================================================
// ExternalPool Metrics
// =============================================================================

// RecordExternalRequest records one ExternalPool MCP request.
func (m *Metrics) RecordExternalRequest(server, method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.externalRequests.WithLabelValues(server, method).Inc()
	m.externalDuration.WithLabelValues(server, method).Observe(duration.Seconds())
	if err != nil {
		m.externalErrors.WithLabelValues(server, method).Inc()
	}
}

// =============================================================================
// HTTP Handler
// =============================================================================

// Handler returns an HTTP handler for the Prometheus metrics endpoint,
// served over the daemon's loopback metrics listener.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
