// Package ipc implements IpcServer (spec §4.3): it accepts client
// connections on the transport, multiplexes them onto per-working-dir
// sessions, and translates between the wire request/event schema (spec
// §6) and session.Loop's Command/Event types.
package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/idmint"
	"github.com/jcode-dev/jcoded/pkg/provider"
	"github.com/jcode-dev/jcoded/pkg/session"
	"github.com/jcode-dev/jcoded/pkg/tool"
	"github.com/jcode-dev/jcoded/pkg/transport"
)

// ProviderFactory builds a fresh Provider instance for a new session
// (e.g. the daemon's configured default provider/model).
type ProviderFactory func() provider.Provider

// ToolsFactory returns the ToolRegistry every new session's Loop should
// dispatch against. The daemon builds one registry (read-mostly per
// spec §5's shared-resource policy) and this factory just returns it.
type ToolsFactory func() *tool.Registry

// Server is IpcServer: it owns the listener and the table of live
// sessions keyed by working directory.
type Server struct {
	listener *transport.Listener

	newProvider  ProviderFactory
	tools        ToolsFactory
	systemPrompt string

	mu       sync.Mutex
	byDir    map[string]*sessionEntry
	byID     map[string]*sessionEntry
	mint     *idmint.Mint

	// turnHook, if set, is installed on every session Loop this server
	// creates (wired to pkg/observability by the daemon, kept as a plain
	// passthrough here so this package has no observability import).
	turnHook func(ctx context.Context, sessionID, provider string, do func(ctx context.Context) bool) bool
}

// SetTurnHook installs the SessionLoop turn hook (see session.Loop.SetTurnHook)
// applied to every session this server creates from here on; sessions
// already running are unaffected.
func (s *Server) SetTurnHook(fn func(ctx context.Context, sessionID, provider string, do func(ctx context.Context) bool) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnHook = fn
}

type sessionEntry struct {
	loop       *session.Loop
	loopCancel context.CancelFunc
}

// New creates a Server bound to an already-listening transport.Listener.
func New(ln *transport.Listener, newProvider ProviderFactory, tools ToolsFactory, systemPrompt string) *Server {
	return &Server{
		listener:     ln,
		newProvider:  newProvider,
		tools:        tools,
		systemPrompt: systemPrompt,
		byDir:        make(map[string]*sessionEntry),
		byID:         make(map[string]*sessionEntry),
		mint:         idmint.New(4),
	}
}

// Serve accepts connections until ctx is cancelled or Accept fails.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("ipc: accept: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// sessionFor returns the session keyed by workingDir, creating and
// starting a new Loop if none exists yet.
func (s *Server) sessionFor(ctx context.Context, workingDir string) *sessionEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.byDir[workingDir]; ok {
		return entry
	}

	id := s.mint.Next("sess_")
	sess := session.NewSession(id, workingDir, s.newProvider().Name(), "")
	loop := session.NewLoop(sess, s.newProvider(), s.tools())
	loop.SystemPrompt = s.systemPrompt
	if s.turnHook != nil {
		loop.SetTurnHook(s.turnHook)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	entry := &sessionEntry{loop: loop, loopCancel: cancel}
	go loop.Run(loopCtx)

	s.byDir[workingDir] = entry
	s.byID[id] = entry
	return entry
}

func (s *Server) sessionByID(id string) (*sessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[id]
	return entry, ok
}

// Close stops every running session loop and closes the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	for _, entry := range s.byDir {
		entry.loopCancel()
	}
	s.mu.Unlock()
	return s.listener.Close()
}

func (s *Server) handleConn(ctx context.Context, conn *transport.Conn) {
	defer conn.Close()

	var entry *sessionEntry
	var recv *eventbus.Receiver
	var writeMu sync.Mutex

	stopWriter := make(chan struct{})
	defer close(stopWriter)

	for {
		var req wireRequest
		if err := conn.ReadMessage(&req); err != nil {
			slog.Debug("ipc: connection closed", "error", err)
			return
		}

		switch req.Type {
		case "subscribe":
			entry = s.sessionFor(ctx, req.WorkingDir)
			recv = entry.loop.Events.Subscribe()
			go s.forwardEvents(conn, recv, &writeMu, stopWriter)
			s.writeEnvelope(conn, &writeMu, map[string]any{"type": "ack", "id": req.ID})
			s.writeEnvelope(conn, &writeMu, map[string]any{"type": "session_id", "session_id": entry.loop.Session.ID})

		case "get_history":
			if entry == nil {
				continue
			}
			s.writeEnvelope(conn, &writeMu, map[string]any{
				"type":    "history",
				"history": entry.loop.Session.Snapshot(),
			})

		case "message":
			if entry == nil {
				continue
			}
			entry.loop.Send(session.Command{Kind: session.CmdMessage, Text: req.Content})

		case "soft_interrupt":
			if entry == nil {
				continue
			}
			queue := session.AfterCompletion
			if req.Queue == "interleave" {
				queue = session.Interleave
			}
			entry.loop.HandleCommand(session.Command{
				Kind: session.CmdSoftInterrupt, Text: req.Content, Urgent: req.Urgent, Queue: queue,
			})

		case "cancel":
			if entry == nil {
				continue
			}
			entry.loop.HandleCommand(session.Command{Kind: session.CmdCancel})

		case "clear":
			if entry == nil {
				continue
			}
			entry.loop.Send(session.Command{Kind: session.CmdClear})

		case "reload":
			if entry == nil {
				continue
			}
			entry.loop.Send(session.Command{Kind: session.CmdReload})

		case "resume_session":
			resumed, ok := s.sessionByID(req.SessionID)
			if !ok {
				s.writeEnvelope(conn, &writeMu, map[string]any{"type": "error", "error": "unknown session_id"})
				continue
			}
			if recv != nil {
				recv.Close()
			}
			entry = resumed
			recv = entry.loop.Events.Subscribe()
			go s.forwardEvents(conn, recv, &writeMu, stopWriter)
			entry.loop.Send(session.Command{Kind: session.CmdResumeSession})

		case "set_model":
			if entry == nil {
				continue
			}
			entry.loop.Send(session.Command{Kind: session.CmdSetModel, Model: req.Model})

		case "cycle_model":
			if entry == nil {
				continue
			}
			entry.loop.Send(session.Command{Kind: session.CmdCycleModel})

		case "set_feature":
			if entry == nil {
				continue
			}
			entry.loop.Send(session.Command{
				Kind: session.CmdSetFeature, Feature: req.Feature, Enabled: req.Enabled,
			})

		default:
			s.writeEnvelope(conn, &writeMu, map[string]any{
				"type": "error", "error": fmt.Sprintf("unknown request type %q", req.Type),
			})
		}
	}
}

// forwardEvents drains recv until stopWriter closes or the bus detaches
// the receiver, writing each session.Event out as a flattened envelope.
func (s *Server) forwardEvents(conn *transport.Conn, recv *eventbus.Receiver, writeMu *sync.Mutex, stop <-chan struct{}) {
	defer recv.Close()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-recv.C:
			if !ok {
				return
			}
			sev, ok := ev.Payload.(session.Event)
			if !ok {
				continue
			}
			envelope := map[string]any{"type": string(sev.Kind)}
			for k, v := range sev.Data {
				envelope[k] = v
			}
			if err := s.writeEnvelope(conn, writeMu, envelope); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEnvelope(conn *transport.Conn, writeMu *sync.Mutex, v map[string]any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	return conn.WriteMessage(v)
}

// wireRequest is the flattened decode target for every request kind in
// spec §4.3/§6; unused fields for a given Type are simply left zero.
type wireRequest struct {
	Type       string `json:"type"`
	ID         uint64 `json:"id"`
	WorkingDir string `json:"working_dir"`
	SelfDev    bool   `json:"selfdev,omitempty"`
	Content    string `json:"content,omitempty"`
	Urgent     bool   `json:"urgent,omitempty"`
	Queue      string `json:"queue,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Model      string `json:"model,omitempty"`
	Feature    string `json:"feature,omitempty"`
	Enabled    bool   `json:"enabled,omitempty"`
}
