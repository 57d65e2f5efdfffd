package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WriteArgs is the argument struct for the write tool.
type WriteArgs struct {
	Path    string `json:"path" jsonschema:"required,description=File path to write\\, relative to the session working directory"`
	Content string `json:"content" jsonschema:"required,description=Full file content to write"`
}

// WriteTool creates or overwrites a file, grounded on the reference
// codebase's file-writer tool's size limit and sandboxing, rewritten
// against the Output/Schema contract.
type WriteTool struct {
	MaxFileSize int64
}

func NewWriteTool() *WriteTool {
	return &WriteTool{MaxFileSize: 1024 * 1024}
}

func (t *WriteTool) Name() string           { return "write" }
func (t *WriteTool) Description() string    { return "Create a file or overwrite its entire contents." }
func (t *WriteTool) Schema() map[string]any { return GenerateSchema[WriteArgs]() }

func (t *WriteTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)

	if int64(len(content)) > t.MaxFileSize {
		return ErrorOutput(fmt.Sprintf("content too large: %d bytes (max %d)", len(content), t.MaxFileSize)), nil
	}

	full, err := resolvePath(tc.WorkingDir, path)
	if err != nil {
		return ErrorOutput(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return ErrorOutput(fmt.Sprintf("failed to create parent directories: %v", err)), nil
	}

	existed := false
	if _, err := os.Stat(full); err == nil {
		existed = true
	}

	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return ErrorOutput(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	action := "created"
	if existed {
		action = "overwritten"
	}
	return Output{
		Text:  fmt.Sprintf("%s %s (%d bytes)", action, path, len(content)),
		Title: path,
		Metadata: map[string]any{
			"path":    path,
			"bytes":   len(content),
			"existed": existed,
		},
	}, nil
}
