package provider

import "context"

// MockProvider replays a fixed, scripted sequence of turns. Each call to
// Complete consumes the next unconsumed Turn in Turns (wrapping is not
// supported — a MockProvider is single-use per test, matching the
// "non-restartable" nature of the real stream contract). It exists to
// drive spec §8's literal end-to-end scenarios against SessionLoop
// without a real network-backed adapter, which is out of scope per §1.
type MockProvider struct {
	NameValue string
	Models    []string
	Turns     [][]Event

	next int
}

// NewMockProvider constructs a MockProvider that will yield the given
// turns in order, one per Complete call.
func NewMockProvider(name string, turns ...[]Event) *MockProvider {
	return &MockProvider{NameValue: name, Turns: turns, Models: []string{name}}
}

func (m *MockProvider) Name() string { return m.NameValue }

func (m *MockProvider) AvailableModelsDisplay() []string { return m.Models }

func (m *MockProvider) Fork() Provider {
	return &MockProvider{NameValue: m.NameValue, Models: m.Models, Turns: m.Turns, next: m.next}
}

// Complete returns a Stream replaying the next scripted turn. If ctx is
// cancelled mid-drain, the stream goroutine stops sending further events
// (simulating "tolerate being cancelled mid-stream by the consumer
// dropping the iterator", spec §4.10).
func (m *MockProvider) Complete(ctx context.Context, history []HistoryMessage, tools []ToolDefinition, system string, resumeSessionID string) (*Stream, error) {
	if m.next >= len(m.Turns) {
		return &Stream{Events: closedEventChan()}, nil
	}
	events := m.Turns[m.next]
	m.next++

	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
		}
	}()
	return &Stream{Events: ch}, nil
}

func closedEventChan() <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}
