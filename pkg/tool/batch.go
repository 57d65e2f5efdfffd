package tool

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	batchMinCalls       = 1
	batchMaxCalls       = 10
	batchEntryTruncate  = 1024
	batchToolName       = "batch"
)

// BatchCall is one sub-invocation requested of the batch tool.
type BatchCall struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"parameters"`
}

// BatchArgs is the argument struct for the batch tool.
type BatchArgs struct {
	Calls []BatchCall `json:"calls" jsonschema:"required,description=1-10 tool calls to run concurrently"`
}

// BatchTool fans a bounded set of tool calls out across goroutines and
// joins their results in call order, grounded on the reference
// codebase's concurrent-fan-out pattern but rebuilt on errgroup for the
// wait/cancel-propagation discipline spec §4.6 relies on for batch
// dispatch during ToolDispatch.
type BatchTool struct {
	registry *Registry
}

func NewBatchTool(registry *Registry) *BatchTool {
	return &BatchTool{registry: registry}
}

func (t *BatchTool) Name() string        { return batchToolName }
func (t *BatchTool) Description() string { return "Run 1-10 tool calls concurrently and collect their results." }
func (t *BatchTool) Schema() map[string]any { return GenerateSchema[BatchArgs]() }

func (t *BatchTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	raw, ok := args["calls"].([]any)
	if !ok || len(raw) == 0 {
		return ErrorOutput("calls must be a non-empty array"), nil
	}
	if len(raw) > batchMaxCalls {
		return ErrorOutput(fmt.Sprintf("too many calls: %d (max %d)", len(raw), batchMaxCalls)), nil
	}

	calls := make([]BatchCall, 0, len(raw))
	for i, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return ErrorOutput(fmt.Sprintf("calls[%d] must be an object", i)), nil
		}
		name, _ := obj["tool"].(string)
		if name == "" {
			return ErrorOutput(fmt.Sprintf("calls[%d].tool is required", i)), nil
		}
		if name == batchToolName {
			return ErrorOutput(fmt.Sprintf("calls[%d]: nesting %q within itself is not allowed", i, batchToolName)), nil
		}
		callArgs, _ := obj["parameters"].(map[string]any)
		calls = append(calls, BatchCall{Tool: name, Args: callArgs})
	}

	results := make([]Output, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			sub := tc.Fork(fmt.Sprintf("%s.%d", tc.ToolCallID, i))
			results[i] = t.registry.Execute(gctx, call.Tool, call.Args, sub)
			return nil
		})
	}
	_ = g.Wait() // sub-executions never return a Go error; failures live in Output.IsError

	succeeded, failed := 0, 0
	var b strings.Builder
	for i, call := range calls {
		out := results[i]
		if out.IsError {
			failed++
		} else {
			succeeded++
		}
		fmt.Fprintf(&b, "--- [%d] %s ---\n%s\n", i+1, call.Tool, truncate(out.Text, batchEntryTruncate))
	}
	fmt.Fprintf(&b, "\nCompleted: %d succeeded, %d failed", succeeded, failed)

	return Output{
		Text:  b.String(),
		Title: fmt.Sprintf("batch (%d calls)", len(calls)),
		Metadata: map[string]any{
			"succeeded": succeeded,
			"failed":    failed,
			"total":     len(calls),
		},
	}, nil
}
