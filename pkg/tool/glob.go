package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GlobArgs is the argument struct for the glob tool.
type GlobArgs struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Doublestar glob pattern (e.g. '**/*.go')\\, relative to the session working directory"`
	Limit   int    `json:"limit,omitempty" jsonschema:"description=Maximum number of matches to return\\, defaults to 200"`
}

// GlobTool matches files by a doublestar (**) glob pattern, scoped to
// the session working directory.
type GlobTool struct{}

func NewGlobTool() *GlobTool { return &GlobTool{} }

func (t *GlobTool) Name() string        { return "glob" }
func (t *GlobTool) Description() string { return "Find files matching a glob pattern (supports ** recursion)." }
func (t *GlobTool) Schema() map[string]any { return GenerateSchema[GlobArgs]() }

func (t *GlobTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorOutput("pattern is required"), nil
	}
	if filepath.IsAbs(pattern) || strings.Contains(pattern, "..") {
		return ErrorOutput("pattern must be relative and may not contain .."), nil
	}

	limit := 200
	if v, ok := numArg(args["limit"]); ok && v > 0 {
		limit = v
	}

	workDir := tc.WorkingDir
	if workDir == "" {
		workDir = "."
	}
	root := os.DirFS(workDir)

	matches, err := doublestar.Glob(root, pattern)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("invalid pattern: %v", err)), nil
	}
	sort.Strings(matches)

	truncated := false
	if len(matches) > limit {
		matches = matches[:limit]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d match(es) for %q\n", len(matches), pattern)
	for _, m := range matches {
		fmt.Fprintf(&b, "%s\n", m)
	}
	if truncated {
		b.WriteString("… (truncated)\n")
	}

	return Output{
		Text:  strings.TrimRight(b.String(), "\n"),
		Title: pattern,
		Metadata: map[string]any{
			"pattern":   pattern,
			"count":     len(matches),
			"truncated": truncated,
		},
	}, nil
}
