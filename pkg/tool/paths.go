package tool

import (
	"fmt"
	"path/filepath"
	"strings"
)

// resolvePath joins workingDir and rel, rejecting absolute inputs and any
// path that escapes workingDir after cleaning — the same sandboxing
// discipline the reference codebase's file tools apply before touching
// disk. The trust model (spec §1 Non-goals: "sandboxing file/shell
// operations" is explicitly out of scope) means this guards against
// accidental traversal, not a hostile caller.
func resolvePath(workingDir, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths not allowed, use relative paths")
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("directory traversal not allowed (..)")
	}

	if workingDir == "" {
		workingDir = "."
	}
	absWorkDir, err := filepath.Abs(workingDir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(absWorkDir, cleaned))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if absPath != absWorkDir && !strings.HasPrefix(absPath, absWorkDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes working directory")
	}
	return absPath, nil
}

// truncate caps s at n runes, appending an ellipsis marker when it does,
// matching spec §8's "output exceeding 500 chars is truncated with an
// ellipsis" boundary behavior.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
