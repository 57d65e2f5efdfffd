package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jcode-dev/jcoded/pkg/background"
)

// BgArgs is the argument struct for the bg tool.
type BgArgs struct {
	Action      string `json:"action" jsonschema:"required,enum=list|status|cancel|cleanup,description=Action to perform"`
	TaskID      string `json:"task_id,omitempty" jsonschema:"description=Task id (required for status\\, cancel)"`
	MaxAgeHours int    `json:"max_age_hours,omitempty" jsonschema:"description=For cleanup: remove tasks older than this many hours\\, default 24"`
}

// BgTool lets the agent inspect and manage BackgroundMgr tasks: list
// every tracked task, check one's status, cancel a running one, or
// clean up old status files. Grounded on the reference codebase's
// background-task tool, which offers the same list/status/cancel/cleanup
// surface against its own background manager singleton.
//
// The reference tool's "output" action (read a task's full output file)
// has no counterpart here: BackgroundMgr's TaskStatus does not retain a
// per-task output file path once the task completes (only the
// BackgroundTaskCompleted event carries one, at completion time), so
// there is nothing durable for an "output" action to read back from.
type BgTool struct {
	mgr *background.Manager
}

func NewBgTool(mgr *background.Manager) *BgTool {
	return &BgTool{mgr: mgr}
}

func (t *BgTool) Name() string        { return "bg" }
func (t *BgTool) Description() string {
	return "Manage background tasks. Actions: 'list' shows all tasks, 'status' checks a specific task, 'cancel' stops a running task, 'cleanup' removes old task records."
}
func (t *BgTool) Schema() map[string]any { return GenerateSchema[BgArgs]() }

func (t *BgTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	action, _ := args["action"].(string)
	taskID, _ := args["task_id"].(string)

	switch action {
	case "list":
		return t.list(), nil

	case "status":
		if strings.TrimSpace(taskID) == "" {
			return ErrorOutput("task_id is required for status action"), nil
		}
		return t.status(taskID), nil

	case "cancel":
		if strings.TrimSpace(taskID) == "" {
			return ErrorOutput("task_id is required for cancel action"), nil
		}
		if !t.mgr.Cancel(taskID) {
			return ErrorOutput(fmt.Sprintf("task %s not found or already completed", taskID)), nil
		}
		return Output{Text: fmt.Sprintf("task %s cancelled", taskID), Title: fmt.Sprintf("bg cancel %s", taskID)}, nil

	case "cleanup":
		maxAge := 24 * time.Hour
		if v, ok := numArg(args["max_age_hours"]); ok && v >= 0 {
			maxAge = time.Duration(v) * time.Hour
		}
		removed := t.mgr.Cleanup(maxAge)
		return Output{
			Text:  fmt.Sprintf("cleaned up %d old task record(s) older than %s", removed, maxAge),
			Title: "bg cleanup",
		}, nil

	default:
		return ErrorOutput(fmt.Sprintf("unknown action %q, valid actions: list, status, cancel, cleanup", action)), nil
	}
}

func (t *BgTool) list() Output {
	tasks := t.mgr.List()
	if len(tasks) == 0 {
		return Output{Text: "no background tasks found", Title: "bg list"}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-10s %-10s %s\n", "TASK_ID", "TOOL", "STATUS", "SESSION")
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\n")
	for _, ts := range tasks {
		fmt.Fprintf(&b, "%-14s %-10s %-10s %s\n", ts.TaskID, ts.ToolName, ts.Status, ts.SessionID)
	}
	return Output{
		Text:     strings.TrimRight(b.String(), "\n"),
		Title:    "bg list",
		Metadata: map[string]any{"count": len(tasks)},
	}
}

func (t *BgTool) status(taskID string) Output {
	ts, ok := t.mgr.Get(taskID)
	if !ok {
		return ErrorOutput(fmt.Sprintf("task not found: %s", taskID))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", ts.TaskID)
	fmt.Fprintf(&b, "Tool: %s\n", ts.ToolName)
	fmt.Fprintf(&b, "Status: %s\n", ts.Status)
	fmt.Fprintf(&b, "Session: %s\n", ts.SessionID)
	fmt.Fprintf(&b, "Started: %s\n", ts.StartedAt.Format(time.RFC3339))
	if ts.CompletedAt != nil {
		fmt.Fprintf(&b, "Completed: %s\n", ts.CompletedAt.Format(time.RFC3339))
	}
	if ts.DurationSecs != nil {
		fmt.Fprintf(&b, "Duration: %.2fs\n", *ts.DurationSecs)
	}
	if ts.ExitCode != nil {
		fmt.Fprintf(&b, "Exit code: %d\n", *ts.ExitCode)
	}
	if ts.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", ts.Error)
	}

	return Output{
		Text:  strings.TrimRight(b.String(), "\n"),
		Title: fmt.Sprintf("bg status %s", taskID),
		Metadata: map[string]any{
			"task_id": ts.TaskID,
			"status":  string(ts.Status),
		},
	}
}
