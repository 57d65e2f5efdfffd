// Package provider defines the abstract streaming completion contract
// (spec §4.10) that SessionLoop drives. Concrete adapters to remote LLM
// APIs are out of scope (spec §1); this package defines only the
// interface and a MockProvider test double used to exercise SessionLoop
// end-to-end per spec §8's literal scenarios.
package provider

import "context"

// EventKind tags a ProviderEvent's variant.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventToolUseStart      EventKind = "tool_use_start"
	EventToolUseInput      EventKind = "tool_use_input"
	EventToolUseComplete   EventKind = "tool_use_complete"
	EventTokenUsage        EventKind = "token_usage"
	EventUpstreamProvider  EventKind = "upstream_provider"
	EventSessionID         EventKind = "session_id"
	EventMessageEnd        EventKind = "message_end"
	EventError             EventKind = "error"
)

// Event is a single item in the stream returned by Complete. Exactly one
// of the typed fields is meaningful, selected by Kind.
type Event struct {
	Kind EventKind

	// EventTextDelta
	Text string

	// EventToolUseStart / EventToolUseInput / EventToolUseComplete
	ToolUseID   string
	ToolName    string
	PartialArgs string         // EventToolUseInput: raw partial JSON so far
	Args        map[string]any // EventToolUseComplete: final parsed args

	// EventTokenUsage
	Usage TokenUsage

	// EventUpstreamProvider
	Upstream string

	// EventSessionID
	SessionID string

	// EventMessageEnd
	StopReason string

	// EventError
	Err error
}

// TokenUsage accumulates per-turn counters (spec §4.10).
type TokenUsage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheCreateTokens int
}

// Add folds another TokenUsage's counters into u.
func (u *TokenUsage) Add(o TokenUsage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadTokens += o.CacheReadTokens
	u.CacheCreateTokens += o.CacheCreateTokens
}

// ToolDefinition is the name/schema/description triple handed to the
// provider so the model knows which tools it may call (spec §4.5).
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any
}

// HistoryMessage is the minimal view of a session message a Provider
// needs to construct the next completion request. It intentionally does
// not import pkg/session to avoid a dependency cycle (session depends on
// provider, not the reverse); pkg/session converts its own Message type
// into this shape when calling Complete.
type HistoryMessage struct {
	Role    string // "user" | "assistant" | "tool" | "system"
	Content []ContentBlock
}

// ContentBlock mirrors the tagged-sum content model in spec §3.
type ContentBlock struct {
	Type string // "text" | "tool_use" | "tool_result" | "image" | "resource"

	Text string // Type == "text"

	ToolUseID string         // Type == "tool_use" | "tool_result"
	ToolName  string         // Type == "tool_use"
	Args      map[string]any // Type == "tool_use"

	ResultContent string // Type == "tool_result"
	IsError       bool   // Type == "tool_result"

	ImageData string // Type == "image", base64
	ImageMIME string // Type == "image"

	ResourceURI string // Type == "resource"
}

// Stream is the lazy, finite, non-restartable sequence of events
// returned by Complete. The consumer owns cancellation: cancelling the
// ctx passed to Complete signals the provider to stop producing; merely
// stopping reading Events gives the provider no signal.
type Stream struct {
	Events <-chan Event
}

// Provider is the contract SessionLoop drives each turn (spec §4.10).
type Provider interface {
	// Name returns the provider's identifying name (e.g. "anthropic").
	Name() string

	// Complete starts a streaming completion. history is the full
	// conversation so far; tools is the current tool list from the
	// registry; system is the system instruction; resumeSessionID, if
	// non-empty, asks the provider to resume a prior server-side turn.
	Complete(ctx context.Context, history []HistoryMessage, tools []ToolDefinition, system string, resumeSessionID string) (*Stream, error)

	// AvailableModelsDisplay returns a human-readable list of models
	// this provider instance can serve, used by SetModel/CycleModel.
	AvailableModelsDisplay() []string

	// Fork returns an independent copy of the provider sharing
	// configuration but no in-flight state.
	Fork() Provider
}
