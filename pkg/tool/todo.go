package tool

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
)

// TodoItem is a single entry in a session's todo list.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending, in_progress, completed
}

// TodoArgs is the argument struct for the todo tool.
type TodoArgs struct {
	Items []TodoItem `json:"items" jsonschema:"required,description=The full todo list for the session\\, replacing any previous list"`
}

// TodoTool maintains a per-session todo list in memory, grounded on the
// reference codebase's todo tool's replace-the-whole-list semantics, and
// publishes a summary to the event bus on every update so subscribers
// (the IPC layer) can push it to connected clients.
type TodoTool struct {
	bus *eventbus.Bus

	mu    sync.Mutex
	lists map[string][]TodoItem
}

func NewTodoTool(bus *eventbus.Bus) *TodoTool {
	return &TodoTool{bus: bus, lists: make(map[string][]TodoItem)}
}

func (t *TodoTool) Name() string        { return "todo" }
func (t *TodoTool) Description() string { return "Replace the session's todo list." }
func (t *TodoTool) Schema() map[string]any { return GenerateSchema[TodoArgs]() }

var validTodoStatus = map[string]bool{"pending": true, "in_progress": true, "completed": true}

func (t *TodoTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	raw, ok := args["items"].([]any)
	if !ok {
		return ErrorOutput("items must be an array of {content, status} objects"), nil
	}

	items := make([]TodoItem, 0, len(raw))
	for i, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return ErrorOutput(fmt.Sprintf("items[%d] must be an object", i)), nil
		}
		content, _ := obj["content"].(string)
		status, _ := obj["status"].(string)
		if strings.TrimSpace(content) == "" {
			return ErrorOutput(fmt.Sprintf("items[%d].content is required", i)), nil
		}
		if status == "" {
			status = "pending"
		}
		if !validTodoStatus[status] {
			return ErrorOutput(fmt.Sprintf("items[%d].status %q is not one of pending, in_progress, completed", i, status)), nil
		}
		items = append(items, TodoItem{Content: content, Status: status})
	}

	t.mu.Lock()
	t.lists[tc.SessionID] = items
	t.mu.Unlock()

	summary := summarizeTodos(items)
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{
			Kind: eventbus.KindTodoUpdated,
			Payload: eventbus.TodoUpdatedPayload{
				SessionID: tc.SessionID,
				Summary:   summary,
			},
		})
	}

	return Output{
		Text:  summary,
		Title: "todo",
		Metadata: map[string]any{
			"count": len(items),
		},
	}, nil
}

// List returns the current todo list for a session, or nil if none has
// been set.
func (t *TodoTool) List(sessionID string) []TodoItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TodoItem(nil), t.lists[sessionID]...)
}

func summarizeTodos(items []TodoItem) string {
	if len(items) == 0 {
		return "todo list cleared"
	}
	var b strings.Builder
	var done, inProgress int
	for _, it := range items {
		switch it.Status {
		case "completed":
			done++
		case "in_progress":
			inProgress++
		}
	}
	fmt.Fprintf(&b, "%d/%d completed", done, len(items))
	if inProgress > 0 {
		fmt.Fprintf(&b, ", %d in progress", inProgress)
	}
	b.WriteString(":\n")
	for _, it := range items {
		mark := " "
		switch it.Status {
		case "completed":
			mark = "x"
		case "in_progress":
			mark = "~"
		}
		fmt.Fprintf(&b, "[%s] %s\n", mark, it.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
