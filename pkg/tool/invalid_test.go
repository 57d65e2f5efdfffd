package tool

import (
	"context"
	"testing"
)

func TestInvalidToolAlwaysErrors(t *testing.T) {
	tool := NewInvalidTool("does_not_exist")
	out, err := tool.Execute(context.Background(), nil, Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.IsError {
		t.Fatalf("expected error output")
	}
	if tool.Name() != "does_not_exist" {
		t.Fatalf("expected Name() to echo requested name, got %q", tool.Name())
	}
}
