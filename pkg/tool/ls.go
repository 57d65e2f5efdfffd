package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LsArgs is the argument struct for the ls tool.
type LsArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list\\, relative to the session working directory\\, defaults to '.'"`
}

// LsTool lists a directory's immediate entries, grounded on the
// directory-walking pattern the reference codebase's grep_search tool
// uses to enumerate candidate files, but scoped to a single level.
type LsTool struct{}

func NewLsTool() *LsTool { return &LsTool{} }

func (t *LsTool) Name() string        { return "ls" }
func (t *LsTool) Description() string { return "List the immediate contents of a directory." }
func (t *LsTool) Schema() map[string]any { return GenerateSchema[LsArgs]() }

func (t *LsTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	rel, _ := args["path"].(string)
	if rel == "" {
		rel = "."
	}

	full, err := resolvePath(tc.WorkingDir, rel)
	if err != nil {
		return ErrorOutput(err.Error()), nil
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to list directory: %v", err)), nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s/\n", rel)
	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
	}
	for _, name := range names {
		e := byName[name]
		if e.IsDir() {
			fmt.Fprintf(&b, "  %s/\n", name)
		} else {
			info, statErr := e.Info()
			if statErr == nil {
				fmt.Fprintf(&b, "  %s (%d bytes)\n", name, info.Size())
			} else {
				fmt.Fprintf(&b, "  %s\n", name)
			}
		}
	}

	return Output{
		Text:  strings.TrimRight(b.String(), "\n"),
		Title: filepath.Clean(rel),
		Metadata: map[string]any{
			"path":  rel,
			"count": len(entries),
		},
	}, nil
}
