// Package background implements BackgroundMgr: detached execution of
// long-running tool invocations (typically shell commands) outside the
// turn-taking SessionLoop, with on-disk status files so a task's outcome
// survives a daemon restart.
package background

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jcode-dev/jcoded/pkg/eventbus"
	"github.com/jcode-dev/jcoded/pkg/idmint"
	"github.com/jcode-dev/jcoded/pkg/storage"
)

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// TaskStatus is the on-disk and in-memory record for one background
// task, matching the wire schema's field set.
type TaskStatus struct {
	TaskID        string     `json:"task_id"`
	ToolName      string     `json:"tool_name"`
	SessionID     string     `json:"session_id"`
	Status        Status     `json:"status"`
	ExitCode      *int       `json:"exit_code,omitempty"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationSecs  *float64   `json:"duration_secs,omitempty"`
}

// DefaultDir is the well-known directory background task status files
// live under, rooted at the system temp directory.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "jcode-bg-tasks")
}

// Manager tracks in-flight and completed background tasks, persisting
// each one's status to its own JSON file under Dir via pkg/storage's
// atomic writer so a crash never leaves a half-written status file.
type Manager struct {
	Dir string

	bus  *eventbus.Bus
	mint *idmint.Mint

	mu      sync.Mutex
	tasks   map[string]*TaskStatus
	cancels map[string]context.CancelFunc

	// onStart/onFinish, if set, are called around a task's lifecycle for
	// tracing and metrics (wired to pkg/observability by the daemon, kept
	// as plain callbacks here so this package has no observability
	// import).
	onStart  func(toolName string)
	onFinish func(toolName, status string, duration time.Duration)
}

// New creates a Manager rooted at dir (DefaultDir() if empty) publishing
// completion events to bus (may be nil).
func New(dir string, bus *eventbus.Bus) *Manager {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Manager{
		Dir:     dir,
		bus:     bus,
		mint:    idmint.New(4),
		tasks:   make(map[string]*TaskStatus),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Recover scans Dir for status files left over from a previous process,
// loading them into memory and promoting any still marked "running" to
// "failed" — an orphaned task's child process died with the daemon, so
// it can never report its own completion.
func (m *Manager) Recover() error {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return fmt.Errorf("background: create task dir: %w", err)
	}
	entries, err := os.ReadDir(m.Dir)
	if err != nil {
		return fmt.Errorf("background: read task dir: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var ts TaskStatus
		if err := storage.ReadJSON(filepath.Join(m.Dir, e.Name()), &ts); err != nil {
			continue // unreadable status file, skip rather than fail startup
		}
		if ts.Status == StatusRunning {
			ts.Status = StatusFailed
			ts.Error = "orphaned: daemon restarted while task was running"
			now := time.Now()
			ts.CompletedAt = &now
			if d := now.Sub(ts.StartedAt).Seconds(); d >= 0 {
				ts.DurationSecs = &d
			}
			if err := storage.AtomicWriteJSON(m.statusPath(ts.TaskID), ts); err != nil {
				return fmt.Errorf("background: rewrite orphaned status %s: %w", ts.TaskID, err)
			}
		}
		t := ts
		m.tasks[t.TaskID] = &t
	}
	return nil
}

// SetHooks installs callbacks invoked when a task starts and when it
// reaches a terminal status, used by the daemon to add observability
// spans/metrics without this package depending on pkg/observability.
func (m *Manager) SetHooks(onStart func(toolName string), onFinish func(toolName, status string, duration time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStart = onStart
	m.onFinish = onFinish
}

func (m *Manager) statusPath(taskID string) string {
	return filepath.Join(m.Dir, taskID+".json")
}

// Spawn runs fn in a goroutine under a cancellable context, tracking its
// status under a freshly minted task id. fn should respect ctx
// cancellation. toolName/sessionID are recorded for display and events.
func (m *Manager) Spawn(parent context.Context, toolName, sessionID string, fn func(ctx context.Context) (exitCode int, err error)) string {
	taskID := m.mint.Next("")
	ctx, cancel := context.WithCancel(parent)

	ts := &TaskStatus{
		TaskID:    taskID,
		ToolName:  toolName,
		SessionID: sessionID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.tasks[taskID] = ts
	m.cancels[taskID] = cancel
	m.mu.Unlock()

	if err := storage.AtomicWriteJSON(m.statusPath(taskID), ts); err != nil {
		// Still run the task; status just won't survive a crash until the
		// next successful write.
		_ = err
	}

	if m.onStart != nil {
		m.onStart(toolName)
	}

	go m.run(ctx, taskID, fn)

	return taskID
}

func (m *Manager) run(ctx context.Context, taskID string, fn func(ctx context.Context) (int, error)) {
	exitCode, err := fn(ctx)
	now := time.Now()

	m.mu.Lock()
	ts, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	started := ts.StartedAt
	delete(m.cancels, taskID)

	switch {
	case ctx.Err() == context.Canceled:
		ts.Status = StatusCancelled
	case err != nil:
		ts.Status = StatusFailed
		ts.Error = err.Error()
	default:
		ts.Status = StatusCompleted
	}
	ts.ExitCode = &exitCode
	ts.CompletedAt = &now
	d := now.Sub(started).Seconds()
	ts.DurationSecs = &d
	snapshot := *ts
	m.mu.Unlock()

	_ = storage.AtomicWriteJSON(m.statusPath(taskID), snapshot)

	if m.onFinish != nil {
		m.onFinish(snapshot.ToolName, string(snapshot.Status), now.Sub(started))
	}

	if m.bus != nil {
		m.bus.Publish(eventbus.Event{
			Kind: eventbus.KindBackgroundTaskComplete,
			Payload: eventbus.BackgroundTaskCompletedPayload{
				TaskID:       snapshot.TaskID,
				ToolName:     snapshot.ToolName,
				SessionID:    snapshot.SessionID,
				Status:       string(snapshot.Status),
				ExitCode:     exitCode,
				DurationSecs: d,
			},
		})
	}
}

// Cancel requests cancellation of a running task's context. It is a
// no-op if the task is not currently tracked as running.
func (m *Manager) Cancel(taskID string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[taskID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// List returns a snapshot of every tracked task, most recently started
// first.
func (m *Manager) List() []TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskStatus, 0, len(m.tasks))
	for _, ts := range m.tasks {
		out = append(out, *ts)
	}
	sortTasksByStartDesc(out)
	return out
}

// Get returns a single task's current status.
func (m *Manager) Get(taskID string) (TaskStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts, ok := m.tasks[taskID]
	if !ok {
		return TaskStatus{}, false
	}
	return *ts, true
}

// Cleanup removes in-memory and on-disk records for completed tasks
// (any terminal status) older than olderThan.
func (m *Manager) Cleanup(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ts := range m.tasks {
		if ts.Status == StatusRunning {
			continue
		}
		if ts.CompletedAt == nil || ts.CompletedAt.After(cutoff) {
			continue
		}
		delete(m.tasks, id)
		_ = os.Remove(m.statusPath(id))
		removed++
	}
	return removed
}

func sortTasksByStartDesc(tasks []TaskStatus) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].StartedAt.After(tasks[j-1].StartedAt); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}
