package daemonctx

import (
	"context"
	"testing"

	"github.com/jcode-dev/jcoded/pkg/config"
	"github.com/jcode-dev/jcoded/pkg/tool"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SocketPath:        t.TempDir() + "/jcode.sock",
		BackgroundTaskDir: t.TempDir(),
	}
}

func TestNewRegistersBuiltinTools(t *testing.T) {
	dc, err := New(context.Background(), newTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, name := range []string{"read", "write", "edit", "patch", "ls", "glob", "grep", "shell", "todo", "bg", "batch"} {
		if _, ok := dc.Tools.Get(name); !ok {
			t.Errorf("expected builtin tool %q to be registered", name)
		}
	}
}

func TestNewWithNilConfigAppliesDefaults(t *testing.T) {
	dc, err := New(context.Background(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if dc.Config.SocketPath == "" {
		t.Error("expected default socket path to be set")
	}
	if dc.Obs.TracingEnabled() || dc.Obs.MetricsEnabled() {
		t.Error("expected observability disabled by default")
	}
}

func TestToolExecutionIsWrappedWithoutError(t *testing.T) {
	dc, err := New(context.Background(), newTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dir := t.TempDir()
	tc := tool.Context{SessionID: "sess-1", WorkingDir: dir}
	out := dc.Tools.Execute(context.Background(), "ls", map[string]any{}, tc)
	if out.IsError {
		t.Fatalf("expected ls to succeed, got error: %s", out.Text)
	}
}

func TestBackgroundHooksDoNotPanicWhenObservabilityDisabled(t *testing.T) {
	dc, err := New(context.Background(), newTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan struct{})
	dc.Background.Spawn(context.Background(), "shell", "sess-1", func(ctx context.Context) (int, error) {
		close(done)
		return 0, nil
	})
	<-done
}

func TestShutdownClosesExternalPoolAndObservability(t *testing.T) {
	dc, err := New(context.Background(), newTestConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := dc.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
