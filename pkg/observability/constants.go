// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrSessionID      = "session.id"
	AttrToolName       = "tool.name"
	AttrBackgroundTask = "background.task_id"
	AttrExternalServer = "external.server"
	AttrErrorType      = "error.type"
	AttrEventID        = "jcoded.event_id"

	SpanSessionTurn    = "session.turn"
	SpanToolExecution  = "tool.execution"
	SpanBackgroundTask = "background.task"
	SpanExternalCall   = "external.call"

	DefaultServiceName  = "jcoded"
	DefaultSamplingRate = 1.0
	DefaultMetricsPath  = "/metrics"
)
