package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEditReplacesUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{
		"path":   "file.txt",
		"search": "world",
		"replace": "there",
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "hello there" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestEditAmbiguousMatchFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("foo foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{
		"path":   "file.txt",
		"search": "foo",
		"replace": "bar",
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output for ambiguous match")
	}
}

func TestEditReplaceAll(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("foo foo foo"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{
		"path":        "file.txt",
		"search":      "foo",
		"replace":     "bar",
		"replace_all": true,
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error output: %s", out.Text)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "bar bar bar" {
		t.Fatalf("unexpected content: %q", data)
	}
}

func TestEditSearchNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditTool()
	tc := Context{WorkingDir: dir}
	out, err := tool.Execute(context.Background(), map[string]any{
		"path":   "file.txt",
		"search": "missing",
	}, tc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output for missing search text")
	}
}
