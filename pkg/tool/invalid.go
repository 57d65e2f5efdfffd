package tool

import (
	"context"
	"fmt"
)

// InvalidTool is a placeholder Tool bound to a name a provider referenced
// that doesn't match anything in the registry — SessionLoop resolves
// unknown tool calls to this rather than failing the turn, so the error
// becomes an ordinary Output fed back to the provider instead of a
// fatal condition, consistent with the tool contract's "failures are
// data" rule.
type InvalidTool struct {
	RequestedName string
}

func NewInvalidTool(requestedName string) *InvalidTool {
	return &InvalidTool{RequestedName: requestedName}
}

func (t *InvalidTool) Name() string        { return t.RequestedName }
func (t *InvalidTool) Description() string { return "Placeholder for an unrecognized tool call." }
func (t *InvalidTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *InvalidTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	return ErrorOutput(fmt.Sprintf("tool %q is not available", t.RequestedName)), nil
}
