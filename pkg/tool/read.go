package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ReadArgs is the argument struct for the read tool, reflected into a
// JSON schema by GenerateSchema.
type ReadArgs struct {
	Path        string `json:"path" jsonschema:"required,description=File path to read\\, relative to the session working directory"`
	StartLine   int    `json:"start_line,omitempty" jsonschema:"description=Starting line number (1-indexed)\\, defaults to 1"`
	EndLine     int    `json:"end_line,omitempty" jsonschema:"description=Ending line number (inclusive)\\, defaults to end of file"`
	LineNumbers *bool  `json:"line_numbers,omitempty" jsonschema:"description=Include line numbers in output\\, defaults to true"`
}

// ReadTool reads file contents with optional line-range selection,
// grounded on the reference codebase's read_file tool but rewritten
// against the Output/Schema contract.
type ReadTool struct {
	MaxFileSize int64
}

func NewReadTool() *ReadTool {
	return &ReadTool{MaxFileSize: 10 * 1024 * 1024}
}

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return "Read the contents of a file with optional line numbers and range selection." }
func (t *ReadTool) Schema() map[string]any { return GenerateSchema[ReadArgs]() }

func (t *ReadTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	path, _ := args["path"].(string)
	full, err := resolvePath(tc.WorkingDir, path)
	if err != nil {
		return ErrorOutput(err.Error()), nil
	}

	info, err := os.Stat(full)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to stat file: %v", err)), nil
	}
	if info.Size() > t.MaxFileSize {
		return ErrorOutput(fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), t.MaxFileSize)), nil
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	showLineNumbers := true
	if v, ok := args["line_numbers"].(bool); ok {
		showLineNumbers = v
	}

	lines := strings.Split(string(content), "\n")
	total := len(lines)

	startLine := 1
	if v, ok := numArg(args["start_line"]); ok && v >= 1 {
		startLine = v
	}
	endLine := total
	if v, ok := numArg(args["end_line"]); ok && v < total {
		endLine = v
	}
	if startLine > endLine {
		return ErrorOutput(fmt.Sprintf("invalid range: start_line (%d) > end_line (%d)", startLine, endLine)), nil
	}
	if startLine > total {
		return ErrorOutput(fmt.Sprintf("start_line (%d) exceeds file length (%d lines)", startLine, total)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FILE: %s\n", path)
	fmt.Fprintf(&b, "STATS: total lines: %d", total)
	if startLine != 1 || endLine != total {
		fmt.Fprintf(&b, " | showing lines %d-%d", startLine, endLine)
	}
	b.WriteString("\n")
	for i := startLine - 1; i < endLine && i < len(lines); i++ {
		if showLineNumbers {
			fmt.Fprintf(&b, "%6d| %s\n", i+1, lines[i])
		} else {
			fmt.Fprintf(&b, "%s\n", lines[i])
		}
	}

	return Output{
		Text:  strings.TrimRight(b.String(), "\n"),
		Title: path,
		Metadata: map[string]any{
			"path":        path,
			"total_lines": total,
			"start_line":  startLine,
			"end_line":    endLine,
		},
	}, nil
}

// numArg accepts the float64 shape JSON numbers decode into as well as
// plain ints, since callers may construct args programmatically (tests,
// batch sub-calls) rather than via JSON unmarshal.
func numArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
