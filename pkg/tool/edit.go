package tool

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EditArgs is the argument struct for the edit tool: an exact-match
// search/replace over a file's contents.
type EditArgs struct {
	Path      string `json:"path" jsonschema:"required,description=File path to edit\\, relative to the session working directory"`
	Search    string `json:"search" jsonschema:"required,description=Exact text to find"`
	Replace   string `json:"replace" jsonschema:"description=Replacement text"`
	ReplaceAll bool  `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring exactly one match"`
}

// EditTool performs an exact-match search/replace, grounded on the
// reference codebase's search_replace tool, which requires (by default)
// the search text to match exactly once to avoid ambiguous edits.
type EditTool struct{}

func NewEditTool() *EditTool { return &EditTool{} }

func (t *EditTool) Name() string           { return "edit" }
func (t *EditTool) Description() string    { return "Replace an exact text match within a file." }
func (t *EditTool) Schema() map[string]any { return GenerateSchema[EditArgs]() }

func (t *EditTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	path, _ := args["path"].(string)
	search, _ := args["search"].(string)
	replace, _ := args["replace"].(string)
	replaceAll, _ := args["replace_all"].(bool)

	if search == "" {
		return ErrorOutput("search text cannot be empty"), nil
	}

	full, err := resolvePath(tc.WorkingDir, path)
	if err != nil {
		return ErrorOutput(err.Error()), nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, search)
	if count == 0 {
		return ErrorOutput("search text not found in file"), nil
	}
	if count > 1 && !replaceAll {
		return ErrorOutput(fmt.Sprintf("search text matches %d times; pass replace_all=true or provide more context to make the match unique", count)), nil
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(content, search, replace)
	} else {
		updated = strings.Replace(content, search, replace, 1)
	}

	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		return ErrorOutput(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	replacements := count
	if !replaceAll {
		replacements = 1
	}
	return Output{
		Text:  fmt.Sprintf("replaced %d occurrence(s) in %s", replacements, path),
		Title: path,
		Metadata: map[string]any{
			"path":         path,
			"replacements": replacements,
		},
	}, nil
}
