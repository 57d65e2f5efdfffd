// Package eventbus implements the process-wide typed broadcast channel
// described in spec §4.1: publishers never block on subscriber readiness,
// and slow subscribers may silently lose events because the authoritative
// state always lives in sessions and on disk.
package eventbus

import "sync"

// Kind identifies the variant of an Event.
type Kind string

const (
	KindToolStatusChanged      Kind = "tool_status_changed"
	KindTodoUpdated            Kind = "todo_updated"
	KindBackgroundTaskComplete Kind = "background_task_completed"
)

// Event is the envelope carried on the bus. Payload is one of the
// *Payload structs below, keyed by Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// ToolStatusChangedPayload accompanies KindToolStatusChanged.
type ToolStatusChangedPayload struct {
	SessionID string
	ToolCallID string
	ToolName  string
	Status    string // "running" | "done" | "error"
}

// TodoUpdatedPayload accompanies KindTodoUpdated.
type TodoUpdatedPayload struct {
	SessionID string
	Summary   string
}

// BackgroundTaskCompletedPayload accompanies KindBackgroundTaskComplete.
type BackgroundTaskCompletedPayload struct {
	TaskID        string
	ToolName      string
	SessionID     string
	Status        string
	ExitCode      int
	OutputPreview string
	OutputPath    string
	DurationSecs  float64
}

// DefaultCapacity is the suggested bounded channel capacity from spec §4.1.
const DefaultCapacity = 256

// Receiver is a cloneable, detachable subscription handle. The
// subscriber reads from C; dropping the Receiver (calling Close, or
// simply letting it be garbage collected after Close) detaches it from
// the bus so the bus stops attempting delivery.
type Receiver struct {
	C      <-chan Event
	bus    *Bus
	id     uint64
	closed bool
	mu     sync.Mutex
}

// Close detaches the receiver. Safe to call more than once.
func (r *Receiver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.bus.remove(r.id)
}

// Bus is a lock-free-for-publishers, lossy multi-producer multi-consumer
// broadcast channel. Publish never blocks: if a subscriber's channel is
// full, that subscriber simply misses the event.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]chan Event
	nextID   uint64
	capacity int
}

// New creates a Bus with the given per-subscriber channel capacity. A
// capacity of 0 uses DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		subs:     make(map[uint64]chan Event),
		capacity: capacity,
	}
}

// Subscribe returns a new Receiver scoped to this call. Each Receiver has
// its own buffered channel; slow readers drop events rather than stall
// publishers.
func (b *Bus) Subscribe() *Receiver {
	ch := make(chan Event, b.capacity)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return &Receiver{C: ch, bus: b, id: id}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans the event out to every current subscriber, never blocking:
// a subscriber whose channel is full is skipped for this event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the current number of attached receivers
// (diagnostics only).
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
