package session

import (
	"context"
	"sync"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/idmint"
	"github.com/jcode-dev/jcoded/pkg/provider"
	"github.com/jcode-dev/jcoded/pkg/tool"
)

// State is the SessionLoop's current position in its turn-taking state
// machine: Idle -> PrepareTurn -> Streaming -> ToolDispatch -> PostTurn,
// looping from ToolDispatch back to Streaming while the provider keeps
// requesting tool calls, and to Idle once a turn concludes with no
// further tool use and no queued follow-up work.
type State string

const (
	StateIdle        State = "idle"
	StatePrepareTurn State = "prepare_turn"
	StateStreaming   State = "streaming"
	StateToolDispatch State = "tool_dispatch"
	StatePostTurn    State = "post_turn"
)

// QueueDiscipline controls how a message arriving while a turn is
// already in flight gets folded into the conversation.
type QueueDiscipline string

const (
	// AfterCompletion holds the message until the current turn fully
	// concludes (no more tool calls pending) before it is sent.
	AfterCompletion QueueDiscipline = "after_completion"
	// Interleave injects the message at the next tool-dispatch boundary,
	// ahead of the turn reaching a natural stop.
	Interleave QueueDiscipline = "interleave"
)

// CommandKind identifies the operation a Command asks the loop to
// perform; these are the turn-affecting IPC request kinds (Subscribe
// and GetHistory are read-only and handled outside the loop).
type CommandKind string

const (
	CmdMessage       CommandKind = "message"
	CmdSoftInterrupt CommandKind = "soft_interrupt"
	CmdCancel        CommandKind = "cancel"
	CmdClear         CommandKind = "clear"
	CmdReload        CommandKind = "reload"
	CmdResumeSession CommandKind = "resume_session"
	CmdSetModel      CommandKind = "set_model"
	CmdCycleModel    CommandKind = "cycle_model"
	CmdSetFeature    CommandKind = "set_feature"
)

// Command is a single instruction delivered to a running Loop.
type Command struct {
	Kind      CommandKind
	Text      string
	Urgent    bool
	Queue     QueueDiscipline
	Model     string
	Feature   string
	Enabled   bool
}

type queuedMessage struct {
	text  string
	queue QueueDiscipline
}

// Loop is SessionLoop: the single goroutine that owns turn-taking for
// one Session, serializing provider calls and tool dispatch so the
// shared Session state is never touched from two goroutines at once.
type Loop struct {
	Session  *Session
	Provider provider.Provider
	Tools    *tool.Registry
	Events   *eventbus.Bus // session-scoped wire event bus

	SystemPrompt string

	cmdCh chan Command

	mu         sync.Mutex
	state      State
	cancelTurn context.CancelFunc
	queue      []queuedMessage

	mint *idmint.Mint

	// turnHook, if set, wraps each runTurn call for tracing and metrics
	// (wired to pkg/observability by the daemon, kept as a plain callback
	// here so this package has no observability import).
	turnHook func(ctx context.Context, sessionID, provider string, do func(ctx context.Context) bool) bool
}

// SetTurnHook installs a callback invoked around every SessionLoop turn,
// used by the daemon to add an observability span/metric without this
// package depending on pkg/observability.
func (l *Loop) SetTurnHook(fn func(ctx context.Context, sessionID, provider string, do func(ctx context.Context) bool) bool) {
	l.turnHook = fn
}

// NewLoop creates a Loop ready to Run. Events defaults to a fresh bus if
// nil.
func NewLoop(sess *Session, prov provider.Provider, tools *tool.Registry) *Loop {
	return &Loop{
		Session: sess,
		Provider: prov,
		Tools:   tools,
		Events:  eventbus.New(eventbus.DefaultCapacity),
		cmdCh:   make(chan Command, 32),
		state:   StateIdle,
		mint:    idmint.New(4),
	}
}

// State returns the loop's current state (diagnostics / "state" event).
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	l.emit(Event{Kind: EventState, Data: map[string]any{"state": string(s)}})
}

// Send enqueues a command for the loop's goroutine to process. It never
// blocks the caller on turn completion; commands are processed strictly
// in the order received relative to other Send calls (urgency affects
// how a command is handled once it's the loop's turn to process it, not
// queue order into cmdCh itself — urgent soft interrupts still preempt a
// turn already in flight via cancellation, handled inline below).
func (l *Loop) Send(cmd Command) {
	l.cmdCh <- cmd
}

// Run drives the state machine until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.setState(StateIdle)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-l.cmdCh:
			l.dispatchFromIdle(ctx, cmd)
		}
	}
}

func (l *Loop) dispatchFromIdle(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdMessage:
		l.runConversation(ctx, cmd.Text)
	case CmdSoftInterrupt:
		// Open question (d): an urgent-or-not soft interrupt arriving with
		// no turn in flight is just an ordinary message.
		l.runConversation(ctx, cmd.Text)
	case CmdCancel:
		// Nothing running; cancel is a no-op.
	case CmdClear:
		l.Session.ClearHistory()
		l.emit(Event{Kind: EventNotification, Data: map[string]any{"message": "history cleared"}})
	case CmdSetModel:
		l.Session.SetModel(cmd.Model)
		l.emit(Event{Kind: EventModelChanged, Data: map[string]any{"model": cmd.Model}})
	case CmdCycleModel:
		l.cycleModel()
	case CmdSetFeature:
		l.Session.SetFeature(cmd.Feature, cmd.Enabled)
		l.emit(Event{Kind: EventNotification, Data: map[string]any{"feature": cmd.Feature, "enabled": cmd.Enabled}})
	case CmdReload:
		l.emit(Event{Kind: EventReloading, Data: map[string]any{}})
		l.emit(Event{Kind: EventReloadProgress, Data: map[string]any{"status": "complete"}})
	case CmdResumeSession:
		l.emit(Event{Kind: EventSessionID, Data: map[string]any{"session_id": l.Session.ID}})
	}
}

// cycleModel advances to the next model in the provider's display list,
// wrapping around after the last one (resolved open question (b)).
func (l *Loop) cycleModel() {
	models := l.Provider.AvailableModelsDisplay()
	if len(models) == 0 {
		return
	}
	cur := l.Session.Model
	next := models[0]
	for i, m := range models {
		if m == cur {
			next = models[(i+1)%len(models)]
			break
		}
	}
	l.Session.SetModel(next)
	l.emit(Event{Kind: EventModelChanged, Data: map[string]any{"model": next}})
}

// runConversation drives one human message through PrepareTurn ->
// Streaming -> ToolDispatch -> PostTurn (looping internally across as
// many tool-call rounds as the provider requests via runTurn), and then,
// once it reaches a natural stop, starts another round for any queued
// follow-up message before finally returning to Idle.
func (l *Loop) runConversation(ctx context.Context, firstText string) {
	next := firstText
	cancelled := false
	for {
		l.setState(StatePrepareTurn)
		l.emit(Event{Kind: EventAck, Data: map[string]any{}})
		l.Session.AppendMessage(Message{
			ID:      l.mint.Next("msg_"),
			Role:    "user",
			Content: []provider.ContentBlock{{Type: "text", Text: next}},
		})

		if l.turnHook != nil {
			cancelled = l.turnHook(ctx, l.Session.ID, l.Provider.Name(), l.runTurn)
		} else {
			cancelled = l.runTurn(ctx)
		}
		if cancelled {
			break
		}

		// Natural stop: no more tool calls. Check for queued follow-ups.
		l.setState(StatePostTurn)
		queued, ok := l.popAny()
		if !ok {
			break
		}
		next = queued
	}
	l.setState(StateIdle)
	l.emit(Event{Kind: EventDone, Data: map[string]any{"cancelled": cancelled}})
}

// runTurn runs Streaming->ToolDispatch, looping internally
// for as many consecutive tool-call rounds as the provider requests
// within the same logical turn (injecting any Interleave-queued message
// at each dispatch boundary), and returns once the provider stops
// requesting tools or the turn is cancelled.
func (l *Loop) runTurn(ctx context.Context) (cancelled bool) {
	for {
		l.setState(StateStreaming)
		turnCtx, cancel := context.WithCancel(ctx)
		l.mu.Lock()
		l.cancelTurn = cancel
		l.mu.Unlock()

		history := toHistoryMessages(l.Session.Snapshot())
		stream, err := l.Provider.Complete(turnCtx, history, toToolDefinitions(l.Tools.List()), l.SystemPrompt, "")
		if err != nil {
			cancel()
			l.clearCancelTurn()
			l.emit(Event{Kind: EventError, Data: map[string]any{"error": err.Error()}})
			return false
		}

		assistantBlocks, toolCalls, cancelledResults, wasCancelled := l.consumeStream(turnCtx, stream)
		cancel()
		l.clearCancelTurn()

		if len(assistantBlocks) > 0 {
			l.Session.AppendMessage(Message{
				ID:      l.mint.Next("msg_"),
				Role:    "assistant",
				Content: assistantBlocks,
			})
		}

		if wasCancelled {
			if len(cancelledResults) > 0 {
				l.Session.AppendMessage(Message{
					ID:      l.mint.Next("msg_"),
					Role:    "tool",
					Content: cancelledResults,
				})
			}
			return true
		}
		if len(toolCalls) == 0 {
			return false
		}

		l.setState(StateToolDispatch)
		results := l.dispatchTools(ctx, toolCalls)
		l.Session.AppendMessage(Message{
			ID:      l.mint.Next("msg_"),
			Role:    "tool",
			Content: results,
		})

		l.setState(StatePostTurn)
		if interleaved, ok := l.popInterleaved(); ok {
			l.Session.AppendMessage(Message{
				ID:      l.mint.Next("msg_"),
				Role:    "user",
				Content: []provider.ContentBlock{{Type: "text", Text: interleaved}},
			})
		}
		// Loop again: feed tool results (and any interleaved message) back
		// to the provider without returning to the caller.
	}
}

func (l *Loop) clearCancelTurn() {
	l.mu.Lock()
	l.cancelTurn = nil
	l.mu.Unlock()
}

// consumeStream reads provider events until the stream closes or ctx is
// cancelled, translating them into wire Events and collecting the
// assistant's content blocks and any requested tool calls. On a natural
// stream end, every started tool_use is appended to blocks (so the
// assistant message's Content actually carries a tool_use block matching
// each tool_result dispatchTools will later produce, per the data
// model's tool_use/tool_result pairing invariant). On cancellation, a
// synthetic "cancelled" tool_result is returned for every tool_use that
// was started but never completed, since no tool will ever be dispatched
// for it now.
func (l *Loop) consumeStream(ctx context.Context, stream *provider.Stream) (blocks []provider.ContentBlock, toolCalls []provider.Event, cancelledResults []provider.ContentBlock, cancelled bool) {
	var curText string
	toolArgsByID := map[string]map[string]any{}
	toolNameByID := map[string]string{}
	var toolOrder []string

	flushText := func() {
		if curText != "" {
			blocks = append(blocks, provider.ContentBlock{Type: "text", Text: curText})
			curText = ""
		}
	}

	appendToolUseBlocks := func() {
		for _, id := range toolOrder {
			blocks = append(blocks, provider.ContentBlock{
				Type: "tool_use", ToolUseID: id, ToolName: toolNameByID[id], Args: toolArgsByID[id],
			})
		}
	}

	for {
		select {
		case <-ctx.Done():
			flushText()
			appendToolUseBlocks()
			for _, id := range toolOrder {
				cancelledResults = append(cancelledResults, provider.ContentBlock{
					Type: "tool_result", ToolUseID: id, ResultContent: "cancelled", IsError: true,
				})
			}
			return blocks, nil, cancelledResults, true
		case ev, ok := <-stream.Events:
			if !ok {
				flushText()
				appendToolUseBlocks()
				for _, id := range toolOrder {
					toolCalls = append(toolCalls, provider.Event{
						Kind: provider.EventToolUseComplete, ToolUseID: id, ToolName: toolNameByID[id], Args: toolArgsByID[id],
					})
				}
				return blocks, toolCalls, nil, false
			}
			switch ev.Kind {
			case provider.EventTextDelta:
				curText += ev.Text
				l.emit(Event{Kind: EventTextDelta, Data: map[string]any{"text": ev.Text}})
			case provider.EventToolUseStart:
				flushText()
				toolNameByID[ev.ToolUseID] = ev.ToolName
				toolOrder = append(toolOrder, ev.ToolUseID)
				l.emit(Event{Kind: EventToolStart, Data: map[string]any{"tool_use_id": ev.ToolUseID, "tool_name": ev.ToolName}})
			case provider.EventToolUseInput:
				l.emit(Event{Kind: EventToolInput, Data: map[string]any{"tool_use_id": ev.ToolUseID, "partial_args": ev.PartialArgs}})
			case provider.EventToolUseComplete:
				toolArgsByID[ev.ToolUseID] = ev.Args
				if ev.ToolName != "" {
					toolNameByID[ev.ToolUseID] = ev.ToolName
				}
			case provider.EventTokenUsage:
				l.Session.AddUsage(ev.Usage)
				l.emit(Event{Kind: EventTokenUsage, Data: map[string]any{
					"input_tokens": ev.Usage.InputTokens, "output_tokens": ev.Usage.OutputTokens,
				}})
			case provider.EventUpstreamProvider:
				l.emit(Event{Kind: EventUpstreamProvider, Data: map[string]any{"text": ev.Upstream}})
			case provider.EventSessionID:
				l.emit(Event{Kind: EventSessionID, Data: map[string]any{"session_id": ev.SessionID}})
			case provider.EventError:
				flushText()
				errText := ""
				if ev.Err != nil {
					errText = ev.Err.Error()
				}
				l.emit(Event{Kind: EventError, Data: map[string]any{"error": errText}})
			case provider.EventMessageEnd:
				flushText()
				appendToolUseBlocks()
				for _, id := range toolOrder {
					toolCalls = append(toolCalls, provider.Event{
						Kind: provider.EventToolUseComplete, ToolUseID: id, ToolName: toolNameByID[id], Args: toolArgsByID[id],
					})
				}
				return blocks, toolCalls, nil, false
			}
		}
	}
}

// dispatchTools executes every requested tool call via the registry,
// unknown names resolving to tool.InvalidTool rather than failing the
// turn, and returns the results as tool-result content blocks in the
// same order the provider requested them.
func (l *Loop) dispatchTools(ctx context.Context, calls []provider.Event) []provider.ContentBlock {
	results := make([]provider.ContentBlock, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.emit(Event{Kind: EventToolExec, Data: map[string]any{"tool_use_id": call.ToolUseID, "tool_name": call.ToolName}})
			tc := tool.Context{SessionID: l.Session.ID, ToolCallID: call.ToolUseID, WorkingDir: l.Session.WorkingDir}

			var out tool.Output
			if _, ok := l.Tools.Get(call.ToolName); ok {
				out = l.Tools.Execute(ctx, call.ToolName, call.Args, tc)
			} else {
				inv := tool.NewInvalidTool(call.ToolName)
				out, _ = inv.Execute(ctx, call.Args, tc)
			}

			l.emit(Event{Kind: EventToolDone, Data: map[string]any{
				"tool_use_id": call.ToolUseID, "tool_name": call.ToolName, "is_error": out.IsError,
			}})
			results[i] = provider.ContentBlock{
				Type:          "tool_result",
				ToolUseID:     call.ToolUseID,
				ResultContent: out.Text,
				IsError:       out.IsError,
			}
		}()
	}
	wg.Wait()
	return results
}

// HandleCommand applies Cancel/SoftInterrupt semantics that must take
// effect immediately against an in-flight turn rather than waiting for
// Run's cmdCh to drain up to them — the loop's own goroutine calls this
// synchronously is not an option for cross-goroutine cancellation, so
// Cancel and urgent SoftInterrupt are applied directly here rather than
// through cmdCh when a turn is in flight.
func (l *Loop) HandleCommand(cmd Command) {
	switch cmd.Kind {
	case CmdCancel:
		l.mu.Lock()
		cancel := l.cancelTurn
		l.mu.Unlock()
		if cancel != nil {
			cancel()
			return
		}
		l.Send(cmd)
	case CmdSoftInterrupt:
		l.mu.Lock()
		inFlight := l.cancelTurn != nil
		cancel := l.cancelTurn
		l.mu.Unlock()
		if !inFlight {
			l.Send(cmd)
			return
		}
		if cmd.Urgent {
			cancel()
			l.emit(Event{Kind: EventSoftInterruptInjected, Data: map[string]any{"text": cmd.Text, "urgent": true}})
			l.Send(Command{Kind: CmdMessage, Text: cmd.Text})
			return
		}
		queue := cmd.Queue
		if queue == "" {
			queue = AfterCompletion
		}
		l.mu.Lock()
		l.queue = append(l.queue, queuedMessage{text: cmd.Text, queue: queue})
		l.mu.Unlock()
		l.emit(Event{Kind: EventSoftInterruptInjected, Data: map[string]any{"text": cmd.Text, "urgent": false}})
	default:
		l.Send(cmd)
	}
}

// popInterleaved pops the first Interleave-queued message, if any.
func (l *Loop) popInterleaved() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, q := range l.queue {
		if q.queue == Interleave {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return q.text, true
		}
	}
	return "", false
}

// popAny pops the first queued message of either discipline, used once
// a turn reaches a natural stop.
func (l *Loop) popAny() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return "", false
	}
	q := l.queue[0]
	l.queue = l.queue[1:]
	return q.text, true
}

func (l *Loop) emit(ev Event) {
	if l.Events == nil {
		return
	}
	l.Events.Publish(busEvent(ev))
}
