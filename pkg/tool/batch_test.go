package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBatchRunsCallsConcurrentlyAndPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("B"), 0o644)

	reg := NewRegistry(nil)
	if err := reg.Register(NewReadTool()); err != nil {
		t.Fatal(err)
	}

	batch := NewBatchTool(reg)
	tc := Context{WorkingDir: dir, ToolCallID: "tc1"}

	out, err := batch.Execute(context.Background(), map[string]any{
		"calls": []any{
			map[string]any{"tool": "read", "parameters": map[string]any{"path": "a.txt"}},
			map[string]any{"tool": "read", "parameters": map[string]any{"path": "b.txt"}},
		},
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}
	if out.Metadata["succeeded"] != 2 || out.Metadata["failed"] != 0 {
		t.Fatalf("unexpected metadata: %+v", out.Metadata)
	}
	idxA := strings.Index(out.Text, "--- [1] read ---")
	idxB := strings.Index(out.Text, "--- [2] read ---")
	if idxA == -1 || idxB == -1 || idxA > idxB {
		t.Fatalf("expected ordered, 1-based --- delimited output, got: %s", out.Text)
	}
}

func TestBatchOutputFormatMatchesLiteralScenario(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644)

	reg := NewRegistry(nil)
	if err := reg.Register(NewLsTool()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(NewReadTool()); err != nil {
		t.Fatal(err)
	}

	batch := NewBatchTool(reg)
	tc := Context{WorkingDir: dir, ToolCallID: "tc1"}

	out, err := batch.Execute(context.Background(), map[string]any{
		"calls": []any{
			map[string]any{"tool": "ls", "parameters": map[string]any{"path": "."}},
			map[string]any{"tool": "read", "parameters": map[string]any{"path": "a.txt"}},
		},
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}
	if !strings.HasPrefix(out.Text, "--- [1] ls ---\n") {
		t.Fatalf("expected output to begin with \"--- [1] ls ---\", got: %s", out.Text)
	}
	if !strings.Contains(out.Text, "--- [2] read ---\n") {
		t.Fatalf("expected \"--- [2] read ---\" header, got: %s", out.Text)
	}
	if !strings.Contains(out.Text, "Completed: 2 succeeded, 0 failed") {
		t.Fatalf("expected completion summary, got: %s", out.Text)
	}
}

func TestBatchRejectsNestedBatch(t *testing.T) {
	reg := NewRegistry(nil)
	batch := NewBatchTool(reg)
	tc := Context{ToolCallID: "tc1"}

	out, err := batch.Execute(context.Background(), map[string]any{
		"calls": []any{
			map[string]any{"tool": "batch", "parameters": map[string]any{}},
		},
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output for nested batch")
	}
}

func TestBatchRejectsTooManyCalls(t *testing.T) {
	reg := NewRegistry(nil)
	batch := NewBatchTool(reg)
	tc := Context{ToolCallID: "tc1"}

	calls := make([]any, 11)
	for i := range calls {
		calls[i] = map[string]any{"tool": "read", "parameters": map[string]any{"path": "x.txt"}}
	}

	out, err := batch.Execute(context.Background(), map[string]any{"calls": calls}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output for too many calls")
	}
}

func TestBatchReportsPartialFailure(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("A"), 0o644)

	reg := NewRegistry(nil)
	if err := reg.Register(NewReadTool()); err != nil {
		t.Fatal(err)
	}
	batch := NewBatchTool(reg)
	tc := Context{WorkingDir: dir, ToolCallID: "tc1"}

	out, err := batch.Execute(context.Background(), map[string]any{
		"calls": []any{
			map[string]any{"tool": "read", "parameters": map[string]any{"path": "a.txt"}},
			map[string]any{"tool": "read", "parameters": map[string]any{"path": "missing.txt"}},
		},
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Metadata["succeeded"] != 1 || out.Metadata["failed"] != 1 {
		t.Fatalf("unexpected metadata: %+v", out.Metadata)
	}
	if !strings.Contains(out.Text, "1 succeeded, 1 failed") {
		t.Fatalf("expected summary line, got: %s", out.Text)
	}
}
