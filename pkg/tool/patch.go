package tool

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// PatchArgs is the argument struct for the patch tool: apply a unified
// diff hunk to a single file.
type PatchArgs struct {
	Path  string `json:"path" jsonschema:"required,description=File path to patch\\, relative to the session working directory"`
	Diff  string `json:"diff" jsonschema:"required,description=Unified diff hunks to apply (@@ -a\\,b +c\\,d @@ format)\\, without file headers"`
}

// PatchTool applies a unified-diff hunk set to a file, grounded on the
// reference codebase's apply_patch tool but rewritten to operate purely
// on hunk text against the Output/Schema contract (no ---/+++ file
// header lines are required — Path already identifies the target).
type PatchTool struct{}

func NewPatchTool() *PatchTool { return &PatchTool{} }

func (t *PatchTool) Name() string        { return "patch" }
func (t *PatchTool) Description() string { return "Apply a unified diff hunk set to a file." }
func (t *PatchTool) Schema() map[string]any { return GenerateSchema[PatchArgs]() }

func (t *PatchTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	path, _ := args["path"].(string)
	diff, _ := args["diff"].(string)

	if strings.TrimSpace(diff) == "" {
		return ErrorOutput("diff cannot be empty"), nil
	}

	full, err := resolvePath(tc.WorkingDir, path)
	if err != nil {
		return ErrorOutput(err.Error()), nil
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to read file: %v", err)), nil
	}
	original := strings.Split(string(data), "\n")

	hunks, err := parseHunks(diff)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to parse diff: %v", err)), nil
	}
	if len(hunks) == 0 {
		return ErrorOutput("diff contains no hunks"), nil
	}

	updated, applied, err := applyHunks(original, hunks)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("failed to apply patch: %v", err)), nil
	}

	if err := os.WriteFile(full, []byte(strings.Join(updated, "\n")), 0o644); err != nil {
		return ErrorOutput(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	return Output{
		Text:  fmt.Sprintf("applied %d hunk(s) to %s", applied, path),
		Title: path,
		Metadata: map[string]any{
			"path":  path,
			"hunks": applied,
		},
	}, nil
}

type hunk struct {
	origStart int
	lines     []string // prefixed with ' ', '-', or '+'
}

// parseHunks splits unified-diff text into its @@ ... @@ sections. Lines
// before the first @@ header are ignored, so callers may paste a diff
// that still carries its ---/+++ file header lines.
func parseHunks(diff string) ([]hunk, error) {
	var hunks []hunk
	var cur *hunk
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "@@") {
			if cur != nil {
				hunks = append(hunks, *cur)
			}
			start, err := parseHunkHeader(line)
			if err != nil {
				return nil, err
			}
			cur = &hunk{origStart: start}
			continue
		}
		if cur == nil {
			continue // header/context line before first hunk
		}
		if line == "" {
			continue
		}
		switch line[0] {
		case ' ', '-', '+':
			cur.lines = append(cur.lines, line)
		default:
			// tolerate stray lines with no marker as context
			cur.lines = append(cur.lines, " "+line)
		}
	}
	if cur != nil {
		hunks = append(hunks, *cur)
	}
	return hunks, nil
}

// parseHunkHeader extracts the original-file start line from a
// "@@ -a,b +c,d @@" header (1-indexed, as unified diff specifies).
func parseHunkHeader(line string) (int, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 || !strings.HasPrefix(parts[1], "-") {
		return 0, fmt.Errorf("malformed hunk header: %q", line)
	}
	spec := strings.TrimPrefix(parts[1], "-")
	nums := strings.SplitN(spec, ",", 2)
	start, err := strconv.Atoi(nums[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hunk header: %q", line)
	}
	return start, nil
}

// applyHunks applies each hunk's context/removals/additions against
// original, matching context/removed lines at the hunk's declared
// starting line (tolerating small drift by searching nearby) before
// substituting the added lines.
func applyHunks(original []string, hunks []hunk) ([]string, int, error) {
	result := append([]string(nil), original...)
	offset := 0
	applied := 0

	for _, h := range hunks {
		var oldLines, newLines []string
		for _, l := range h.lines {
			switch l[0] {
			case ' ':
				oldLines = append(oldLines, l[1:])
				newLines = append(newLines, l[1:])
			case '-':
				oldLines = append(oldLines, l[1:])
			case '+':
				newLines = append(newLines, l[1:])
			}
		}

		idx := h.origStart - 1 + offset
		if idx < 0 {
			idx = 0
		}
		pos, ok := findSlice(result, oldLines, idx)
		if !ok {
			return nil, 0, fmt.Errorf("hunk at original line %d does not match file contents", h.origStart)
		}

		out := append([]string(nil), result[:pos]...)
		out = append(out, newLines...)
		out = append(out, result[pos+len(oldLines):]...)
		offset += len(newLines) - len(oldLines)
		result = out
		applied++
	}

	return result, applied, nil
}

// findSlice locates oldLines as a contiguous run in haystack, first
// trying the expected position then scanning outward to tolerate small
// line-number drift from prior hunks in the same patch.
func findSlice(haystack, oldLines []string, expected int) (int, bool) {
	if len(oldLines) == 0 {
		if expected >= 0 && expected <= len(haystack) {
			return expected, true
		}
		return 0, false
	}
	if matchesAt(haystack, oldLines, expected) {
		return expected, true
	}
	for d := 1; d <= 50; d++ {
		if matchesAt(haystack, oldLines, expected-d) {
			return expected - d, true
		}
		if matchesAt(haystack, oldLines, expected+d) {
			return expected + d, true
		}
	}
	return 0, false
}

func matchesAt(haystack, needle []string, pos int) bool {
	if pos < 0 || pos+len(needle) > len(haystack) {
		return false
	}
	for i, l := range needle {
		if haystack[pos+i] != l {
			return false
		}
	}
	return true
}
