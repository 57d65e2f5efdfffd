package session

import (
	"context"
	"testing"
	"time"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/provider"
	"github.com/jcode-dev/jcoded/pkg/tool"
)

// echoTool is a minimal Tool double used to exercise dispatchTools
// without pulling in any of the real leaf tools.
type echoTool struct{}

func (echoTool) Name() string                    { return "echo" }
func (echoTool) Description() string             { return "echoes its message argument" }
func (echoTool) Schema() map[string]any          { return nil }
func (echoTool) Execute(_ context.Context, args map[string]any, _ tool.Context) (tool.Output, error) {
	msg, _ := args["message"].(string)
	return tool.Output{Text: "echo: " + msg}, nil
}

func newTestLoop(t *testing.T, turns ...[]provider.Event) (*Loop, *eventbus.Receiver) {
	t.Helper()
	sess := NewSession("s1", "/tmp", "mock", "mock-1")
	registry := tool.NewRegistry(nil)
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("register echo tool: %v", err)
	}
	prov := provider.NewMockProvider("mock", turns...)
	loop := NewLoop(sess, prov, registry)
	recv := loop.Events.Subscribe()
	return loop, recv
}

func drainUntilDone(t *testing.T, recv *eventbus.Receiver) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-recv.C:
			sev, ok := ev.Payload.(Event)
			if ok && sev.Kind == EventDone {
				return sev.Data
			}
		case <-deadline:
			t.Fatal("timed out waiting for done event")
		}
	}
}

func TestRunConversationSimpleReply(t *testing.T) {
	turns := [][]provider.Event{
		{
			{Kind: provider.EventTextDelta, Text: "hello "},
			{Kind: provider.EventTextDelta, Text: "world"},
			{Kind: provider.EventMessageEnd},
		},
	}
	loop, recv := newTestLoop(t, turns...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdMessage, Text: "hi"})
	data := drainUntilDone(t, recv)
	if data["cancelled"] != false {
		t.Fatalf("expected uncancelled completion, got %+v", data)
	}

	hist := loop.Session.Snapshot()
	if len(hist) != 2 {
		t.Fatalf("expected user+assistant messages, got %d", len(hist))
	}
	if hist[1].Role != "assistant" || hist[1].Content[0].Text != "hello world" {
		t.Fatalf("unexpected assistant message: %+v", hist[1])
	}
}

func TestRunConversationToolRoundTrip(t *testing.T) {
	turns := [][]provider.Event{
		{
			{Kind: provider.EventToolUseStart, ToolUseID: "t1", ToolName: "echo"},
			{Kind: provider.EventToolUseComplete, ToolUseID: "t1", Args: map[string]any{"message": "ping"}},
			{Kind: provider.EventMessageEnd},
		},
		{
			{Kind: provider.EventTextDelta, Text: "done"},
			{Kind: provider.EventMessageEnd},
		},
	}
	loop, recv := newTestLoop(t, turns...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdMessage, Text: "use the tool"})
	drainUntilDone(t, recv)

	hist := loop.Session.Snapshot()
	var sawToolResult bool
	for _, m := range hist {
		if m.Role == "tool" {
			sawToolResult = true
			if m.Content[0].ResultContent != "echo: ping" {
				t.Fatalf("unexpected tool result: %+v", m.Content[0])
			}
		}
	}
	if !sawToolResult {
		t.Fatalf("expected a tool message in history, got %+v", hist)
	}
}

// blockingProvider streams a single text delta and then blocks until its
// context is cancelled, so tests can reliably land a Cancel while a turn
// is in flight instead of racing a MockProvider that finishes instantly.
type blockingProvider struct {
	models []string
}

func (b *blockingProvider) Name() string                    { return "blocking" }
func (b *blockingProvider) AvailableModelsDisplay() []string { return b.models }
func (b *blockingProvider) Fork() provider.Provider          { return b }

func (b *blockingProvider) Complete(ctx context.Context, _ []provider.HistoryMessage, _ []provider.ToolDefinition, _ string, _ string) (*provider.Stream, error) {
	ch := make(chan provider.Event)
	go func() {
		defer close(ch)
		select {
		case ch <- provider.Event{Kind: provider.EventTextDelta, Text: "partial"}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return &provider.Stream{Events: ch}, nil
}

func TestHandleCommandCancelMidStream(t *testing.T) {
	sess := NewSession("s1", "/tmp", "mock", "mock-1")
	registry := tool.NewRegistry(nil)
	loop := NewLoop(sess, &blockingProvider{}, registry)
	recv := loop.Events.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdMessage, Text: "long running"})

	// Wait for the streaming state before cancelling.
	deadline := time.After(2 * time.Second)
	for loop.State() != StateStreaming {
		select {
		case <-deadline:
			t.Fatal("loop never reached streaming state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	loop.HandleCommand(Command{Kind: CmdCancel})
	data := drainUntilDone(t, recv)
	if data["cancelled"] != true {
		t.Fatalf("expected cancelled completion, got %+v", data)
	}
}

// blockingToolProvider streams a tool_use_start and then blocks until its
// context is cancelled, so a test can land a Cancel while a tool_use is
// in flight and no tool_result has ever been produced for it.
type blockingToolProvider struct{}

func (b *blockingToolProvider) Name() string                    { return "blocking-tool" }
func (b *blockingToolProvider) AvailableModelsDisplay() []string { return nil }
func (b *blockingToolProvider) Fork() provider.Provider          { return b }

func (b *blockingToolProvider) Complete(ctx context.Context, _ []provider.HistoryMessage, _ []provider.ToolDefinition, _ string, _ string) (*provider.Stream, error) {
	ch := make(chan provider.Event)
	go func() {
		defer close(ch)
		select {
		case ch <- provider.Event{Kind: provider.EventToolUseStart, ToolUseID: "t1", ToolName: "echo"}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return &provider.Stream{Events: ch}, nil
}

func TestHandleCommandCancelMidStreamSynthesizesCancelledToolResult(t *testing.T) {
	sess := NewSession("s1", "/tmp", "mock", "mock-1")
	registry := tool.NewRegistry(nil)
	loop := NewLoop(sess, &blockingToolProvider{}, registry)
	recv := loop.Events.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdMessage, Text: "long running tool"})

	deadline := time.After(2 * time.Second)
	for loop.State() != StateStreaming {
		select {
		case <-deadline:
			t.Fatal("loop never reached streaming state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	loop.HandleCommand(Command{Kind: CmdCancel})
	data := drainUntilDone(t, recv)
	if data["cancelled"] != true {
		t.Fatalf("expected cancelled completion, got %+v", data)
	}

	hist := loop.Session.Snapshot()
	var sawToolUse, sawCancelledResult bool
	for _, m := range hist {
		for _, block := range m.Content {
			if block.Type == "tool_use" && block.ToolUseID == "t1" {
				sawToolUse = true
			}
			if block.Type == "tool_result" && block.ToolUseID == "t1" {
				if !block.IsError || block.ResultContent != "cancelled" {
					t.Fatalf("expected cancelled error tool_result, got %+v", block)
				}
				sawCancelledResult = true
			}
		}
	}
	if !sawToolUse {
		t.Fatalf("expected a tool_use block for t1 in history, got %+v", hist)
	}
	if !sawCancelledResult {
		t.Fatalf("expected a synthetic cancelled tool_result for t1 in history, got %+v", hist)
	}
}

func TestHandleCommandSoftInterruptWithNoTurnInFlightActsAsMessage(t *testing.T) {
	turns := [][]provider.Event{
		{
			{Kind: provider.EventTextDelta, Text: "first"},
			{Kind: provider.EventMessageEnd},
		},
	}
	loop, recv := newTestLoop(t, turns...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	// No turn in flight yet: HandleCommand falls back to Send, which just
	// runs an ordinary conversation (resolved open question (d)).
	loop.HandleCommand(Command{Kind: CmdSoftInterrupt, Text: "hello"})
	drainUntilDone(t, recv)

	hist := loop.Session.Snapshot()
	if len(hist) != 2 || hist[1].Content[0].Text != "first" {
		t.Fatalf("unexpected history after first turn: %+v", hist)
	}
}

// gatedProvider streams one text delta, then waits for release to be
// closed before sending EventMessageEnd, letting a test land a command
// while the turn is still in flight without racing a MockProvider that
// completes instantly.
type gatedProvider struct {
	release chan struct{}
}

func (g *gatedProvider) Name() string                    { return "gated" }
func (g *gatedProvider) AvailableModelsDisplay() []string { return nil }
func (g *gatedProvider) Fork() provider.Provider          { return g }

func (g *gatedProvider) Complete(ctx context.Context, _ []provider.HistoryMessage, _ []provider.ToolDefinition, _ string, _ string) (*provider.Stream, error) {
	ch := make(chan provider.Event)
	go func() {
		defer close(ch)
		select {
		case ch <- provider.Event{Kind: provider.EventTextDelta, Text: "first"}:
		case <-ctx.Done():
			return
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return
		}
		select {
		case ch <- provider.Event{Kind: provider.EventMessageEnd}:
		case <-ctx.Done():
		}
	}()
	return &provider.Stream{Events: ch}, nil
}

func TestHandleCommandSoftInterruptQueuedAfterCompletion(t *testing.T) {
	sess := NewSession("s1", "/tmp", "mock", "mock-1")
	registry := tool.NewRegistry(nil)
	prov := &gatedProvider{release: make(chan struct{})}
	loop := NewLoop(sess, prov, registry)
	recv := loop.Events.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdMessage, Text: "hi"})

	deadline := time.After(2 * time.Second)
	for loop.State() != StateStreaming {
		select {
		case <-deadline:
			t.Fatal("loop never reached streaming state")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Turn is in flight: a non-urgent soft interrupt must be queued, not
	// run immediately.
	loop.HandleCommand(Command{Kind: CmdSoftInterrupt, Text: "queued follow-up", Queue: AfterCompletion})

	close(prov.release)
	drainUntilDone(t, recv)

	hist := loop.Session.Snapshot()
	var sawFollowUp bool
	for _, m := range hist {
		if m.Role == "user" && len(m.Content) > 0 && m.Content[0].Text == "queued follow-up" {
			sawFollowUp = true
		}
	}
	if !sawFollowUp {
		t.Fatalf("expected queued follow-up message to run after completion, got %+v", hist)
	}
}

func TestCmdClearPreservesUsage(t *testing.T) {
	loop, recv := newTestLoop(t)
	loop.Session.AppendMessage(Message{ID: "m1", Role: "user"})
	loop.Session.AddUsage(provider.TokenUsage{InputTokens: 7})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdClear})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-recv.C:
			sev, ok := ev.Payload.(Event)
			if ok && sev.Kind == EventNotification {
				goto cleared
			}
		case <-deadline:
			t.Fatal("timed out waiting for clear notification")
		}
	}
cleared:
	if len(loop.Session.Snapshot()) != 0 {
		t.Fatalf("expected history cleared")
	}
	if loop.Session.Usage.InputTokens != 7 {
		t.Fatalf("expected usage preserved, got %+v", loop.Session.Usage)
	}
}

func TestCycleModelWrapsAround(t *testing.T) {
	sess := NewSession("s1", "", "mock", "a")
	registry := tool.NewRegistry(nil)
	prov := provider.NewMockProvider("mock")
	prov.Models = []string{"a", "b", "c"}
	loop := NewLoop(sess, prov, registry)
	recv := loop.Events.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdCycleModel})
	waitForModelChanged(t, recv, "b")

	loop.Send(Command{Kind: CmdCycleModel})
	waitForModelChanged(t, recv, "c")

	loop.Send(Command{Kind: CmdCycleModel})
	waitForModelChanged(t, recv, "a")
}

func waitForModelChanged(t *testing.T, recv *eventbus.Receiver, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-recv.C:
			sev, ok := ev.Payload.(Event)
			if ok && sev.Kind == EventModelChanged {
				if sev.Data["model"] != want {
					t.Fatalf("expected model %q, got %+v", want, sev.Data)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for model_changed event")
		}
	}
}
