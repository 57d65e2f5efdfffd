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
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// =============================================================================
// No-op Manager
// =============================================================================

// NoopManager returns a Manager with tracing and metrics both disabled.
// Every Manager/Tracer/Metrics method is nil-safe, so this is equivalent
// to a real Manager built from a Config with both sections disabled.
func NoopManager() *Manager {
	return &Manager{}
}

var noopTracerProvider = tracenoop.NewTracerProvider()

// noopSpan returns a span that discards everything recorded on it, for
// use when tracing is disabled or uninitialized.
func noopSpan() trace.Span {
	_, span := noopTracerProvider.Tracer("noop").Start(context.Background(), "noop")
	return span
}

// =============================================================================
// No-op Metrics / Recorder
// =============================================================================

// Recorder is the metrics surface the daemon records against: tool
// latency, session turns, background tasks, and external-pool requests.
// *Metrics and NoopMetrics both satisfy it.
type Recorder interface {
	RecordToolCall(toolName string, duration time.Duration)
	RecordToolError(toolName string)

	RecordSessionCreated(provider string)
	SetSessionsActive(provider string, count int)
	RecordSessionTurn(provider string, duration time.Duration, cancelled bool)

	RecordBackgroundStarted(toolName string)
	RecordBackgroundFinished(toolName, status string, duration time.Duration)

	RecordExternalRequest(server, method string, duration time.Duration, err error)
}

// NoopMetrics discards every recorded metric. Used when metrics are
// disabled, so callers can record unconditionally.
type NoopMetrics struct{}

func (NoopMetrics) RecordToolCall(_ string, _ time.Duration) {}
func (NoopMetrics) RecordToolError(_ string)                 {}

func (NoopMetrics) RecordSessionCreated(_ string)                       {}
func (NoopMetrics) SetSessionsActive(_ string, _ int)                   {}
func (NoopMetrics) RecordSessionTurn(_ string, _ time.Duration, _ bool) {}

func (NoopMetrics) RecordBackgroundStarted(_ string)                      {}
func (NoopMetrics) RecordBackgroundFinished(_, _ string, _ time.Duration) {}

func (NoopMetrics) RecordExternalRequest(_, _ string, _ time.Duration, _ error) {}

// Handler returns a handler that reports metrics as unavailable.
func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("metrics not enabled"))
	})
}

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*Metrics)(nil)
	_ Recorder = NoopMetrics{}
)

var (
	globalMetrics Recorder
	metricsMu     sync.RWMutex
)

// SetGlobalMetrics installs the process-wide default Recorder, used by
// leaf packages that are not handed one explicitly.
func SetGlobalMetrics(m Recorder) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide default Recorder, falling
// back to NoopMetrics if none has been installed.
func GetGlobalMetrics() Recorder {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return NoopMetrics{}
	}
	return globalMetrics
}
