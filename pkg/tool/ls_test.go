package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLsListsEntriesSorted(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("xy"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)

	tool := NewLsTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}
	if out.Metadata["count"] != 3 {
		t.Fatalf("expected 3 entries, got %v", out.Metadata["count"])
	}
	aIdx := indexOf(out.Text, "a.txt")
	bIdx := indexOf(out.Text, "b.txt")
	if aIdx == -1 || bIdx == -1 || aIdx > bIdx {
		t.Fatalf("expected sorted output, got: %s", out.Text)
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestLsMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := NewLsTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{"path": "nope"}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output for missing directory")
	}
}
