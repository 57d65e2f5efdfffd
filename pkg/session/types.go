// Package session implements Session and SessionLoop: the per-session
// message history and the single-goroutine turn-taking state machine
// that drives a provider conversation, dispatches tool calls, and
// streams wire events out to connected IPC clients.
package session

import (
	"sync"
	"time"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/provider"
	"github.com/jcode-dev/jcoded/pkg/tool"
)

// EventKind identifies the variant of a wire Event pushed to IPC
// clients, matching the event kind list clients are expected to handle.
type EventKind string

const (
	EventAck                   EventKind = "ack"
	EventTextDelta              EventKind = "text_delta"
	EventToolStart              EventKind = "tool_start"
	EventToolInput              EventKind = "tool_input"
	EventToolExec                EventKind = "tool_exec"
	EventToolDone                EventKind = "tool_done"
	EventTokenUsage              EventKind = "token_usage"
	EventUpstreamProvider        EventKind = "upstream_provider"
	EventNotification            EventKind = "notification"
	EventSoftInterruptInjected   EventKind = "soft_interrupt_injected"
	EventMemoryInjected          EventKind = "memory_injected"
	EventDone                    EventKind = "done"
	EventError                   EventKind = "error"
	EventPong                    EventKind = "pong"
	EventState                   EventKind = "state"
	EventModelChanged            EventKind = "model_changed"
	EventReloading               EventKind = "reloading"
	EventReloadProgress          EventKind = "reload_progress"
	EventSessionID               EventKind = "session_id"
	EventHistory                 EventKind = "history"
	EventMCPStatus               EventKind = "mcp_status"
	EventDebugResponse           EventKind = "debug_response"
)

// Event is one wire event emitted by a SessionLoop, delivered to
// subscribed IPC connections via eventbus.Bus (reused here as a
// per-session broadcast channel rather than the daemon-wide telemetry
// bus it also backs).
type Event struct {
	Kind EventKind
	Data map[string]any
}

// Message is one turn's worth of content in a session's history.
type Message struct {
	ID        string                   `json:"id"`
	Role      string                   `json:"role"` // "user" | "assistant" | "tool"
	Content   []provider.ContentBlock  `json:"content"`
	CreatedAt time.Time                `json:"created_at"`
}

// Session is the persisted state of one conversation: its message
// history, accumulated token usage, and active provider/model/feature
// selection.
type Session struct {
	mu sync.RWMutex

	ID         string             `json:"id"`
	WorkingDir string             `json:"working_dir"`
	Provider   string             `json:"provider"`
	Model      string             `json:"model"`
	Features   map[string]bool    `json:"features"`
	History    []Message          `json:"history"`
	Usage      provider.TokenUsage `json:"usage"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// NewSession creates an empty session with the given id.
func NewSession(id, workingDir, providerName, model string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		WorkingDir: workingDir,
		Provider:   providerName,
		Model:      model,
		Features:   make(map[string]bool),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AppendMessage adds a message to the history under the session lock.
func (s *Session) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = append(s.History, msg)
	s.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the history slice safe for the caller to
// range over without holding the session lock.
func (s *Session) Snapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.History...)
}

// ClearHistory empties the message history. Per the daemon's resolved
// semantics, token usage counters are intentionally left untouched: they
// describe spend against the provider, which already happened and
// cannot be un-spent by clearing local history.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = nil
	s.UpdatedAt = time.Now()
}

// AddUsage accumulates token usage under the session lock.
func (s *Session) AddUsage(u provider.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Usage.Add(u)
}

// SetModel changes the active model under the session lock.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = model
	s.UpdatedAt = time.Now()
}

// SetFeature toggles a named feature flag under the session lock.
func (s *Session) SetFeature(name string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Features == nil {
		s.Features = make(map[string]bool)
	}
	s.Features[name] = enabled
	s.UpdatedAt = time.Now()
}

// persistedSession is the on-disk shape of a Session: the same fields
// without the mutex, so a snapshot can be copied and marshalled freely.
type persistedSession struct {
	ID         string              `json:"id"`
	WorkingDir string              `json:"working_dir"`
	Provider   string              `json:"provider"`
	Model      string              `json:"model"`
	Features   map[string]bool     `json:"features"`
	History    []Message           `json:"history"`
	Usage      provider.TokenUsage `json:"usage"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// snapshotForPersist copies the session's persisted fields under lock.
func (s *Session) snapshotForPersist() persistedSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	features := make(map[string]bool, len(s.Features))
	for k, v := range s.Features {
		features[k] = v
	}
	return persistedSession{
		ID:         s.ID,
		WorkingDir: s.WorkingDir,
		Provider:   s.Provider,
		Model:      s.Model,
		Features:   features,
		History:    append([]Message(nil), s.History...),
		Usage:      s.Usage,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// restoreFromPersisted fills s's fields from a loaded persistedSession.
func (s *Session) restoreFromPersisted(p persistedSession) {
	s.ID = p.ID
	s.WorkingDir = p.WorkingDir
	s.Provider = p.Provider
	s.Model = p.Model
	s.Features = p.Features
	s.History = p.History
	s.Usage = p.Usage
	s.CreatedAt = p.CreatedAt
	s.UpdatedAt = p.UpdatedAt
}

// toHistoryMessages translates the session's Message history into the
// provider-facing HistoryMessage shape used in Complete calls.
func toHistoryMessages(msgs []Message) []provider.HistoryMessage {
	out := make([]provider.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.HistoryMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// toToolDefinitions translates the registry's tool definitions into the
// shape Provider.Complete expects, keeping pkg/provider free of a
// dependency on pkg/tool.
func toToolDefinitions(defs []tool.Definition) []provider.ToolDefinition {
	out := make([]provider.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, provider.ToolDefinition{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out
}

// busEvent is a thin adapter so Event can ride the existing eventbus.Bus
// broadcast/subscribe machinery without that package needing to know
// about session wire events.
func busEvent(ev Event) eventbus.Event {
	return eventbus.Event{Kind: eventbus.Kind(ev.Kind), Payload: ev}
}
