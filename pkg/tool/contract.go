// Package tool implements the tool contract, the insertion-ordered
// ToolRegistry, the built-in leaf tools, and the batch fan-out tool
// described in spec §2, §4.5 and §4.7.
package tool

import (
	"context"
)

// Output is what a tool's Execute returns (spec §4.5's ToolOutput).
// Failures are reported as data (IsError=true), never as exceptional
// control flow: the engine feeds Text back into the next provider turn
// so the model can recover (spec §4.5, §7).
type Output struct {
	Text     string
	Title    string
	Metadata map[string]any
	IsError  bool
}

// ErrorOutput builds an Output representing a tool-body failure.
func ErrorOutput(reason string) Output {
	return Output{Text: reason, IsError: true}
}

// Context is the per-call execution context (spec §3's ToolContext).
// Contexts are single-use; Fork produces a context for a sub-call that
// shares every field except ToolCallID, matching the batch tool's need
// to derive child contexts (spec §4.7).
type Context struct {
	SessionID   string
	MessageID   string
	ToolCallID  string
	WorkingDir  string

	// Input, if non-nil, lets a tool solicit user input mid-call. Not
	// every tool supports this; nil means the capability is unavailable
	// in this context.
	Input func(ctx context.Context, prompt string) (string, error)
}

// Fork returns a Context for a sub-call sharing all fields except
// ToolCallID, which is set to the given id.
func (c Context) Fork(toolCallID string) Context {
	fork := c
	fork.ToolCallID = toolCallID
	return fork
}

// Tool is the capability set every leaf tool and the batch tool satisfy:
// name, human description, a JSON schema for inputs, and an executor.
// Polymorphism is realized via this interface's dynamic dispatch rather
// than any inheritance hierarchy (spec §9).
type Tool interface {
	Name() string
	Description() string

	// Schema returns the JSON schema for this tool's arguments, handed
	// to providers so the model knows how to call it (spec §4.5). A nil
	// return means the tool takes no arguments.
	Schema() map[string]any

	// Execute runs the tool body. The registry passes args through as
	// the caller supplied them, without checking them against Schema(),
	// so each tool reads and checks the fields it uses.
	Execute(ctx context.Context, args map[string]any, tc Context) (Output, error)
}

// Definition is the name/schema/description triple exposed to
// providers via ToolRegistry.List (spec §4.5).
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any
}
