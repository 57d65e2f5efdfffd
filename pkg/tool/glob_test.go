package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestGlobFindsNestedMatches(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"a.go", "sub/b.go", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tool := NewGlobTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{"pattern": "**/*.go"}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}
	if out.Metadata["count"] != 2 {
		t.Fatalf("expected 2 matches, got %v: %s", out.Metadata["count"], out.Text)
	}
}

func TestGlobRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	tool := NewGlobTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{"pattern": "../*"}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output for traversal pattern")
	}
}
