package tool

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GrepArgs is the argument struct for the grep tool.
type GrepArgs struct {
	Pattern     string `json:"pattern" jsonschema:"required,description=Regular expression to search for"`
	Glob        string `json:"glob,omitempty" jsonschema:"description=Doublestar glob restricting which files are searched\\, defaults to '**/*'"`
	ContextLines int   `json:"context_lines,omitempty" jsonschema:"description=Lines of context to show before each match (lines after a match are not shown)\\, defaults to 0"`
	MaxMatches  int    `json:"max_matches,omitempty" jsonschema:"description=Maximum number of matches to return\\, defaults to 200"`
}

// GrepTool searches file contents by regular expression, grounded on
// the reference codebase's grep_search tool's directory-walk-then-match
// structure, rewritten against the Output/Schema contract.
type GrepTool struct{}

func NewGrepTool() *GrepTool { return &GrepTool{} }

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents by regular expression." }
func (t *GrepTool) Schema() map[string]any { return GenerateSchema[GrepArgs]() }

type grepMatch struct {
	file    string
	line    int
	text    string
	context []string
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any, tc Context) (Output, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return ErrorOutput("pattern is required"), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	glob, _ := args["glob"].(string)
	if glob == "" {
		glob = "**/*"
	}
	contextLines := 0
	if v, ok := numArg(args["context_lines"]); ok && v >= 0 {
		contextLines = v
	}
	maxMatches := 200
	if v, ok := numArg(args["max_matches"]); ok && v > 0 {
		maxMatches = v
	}

	workDir := tc.WorkingDir
	if workDir == "" {
		workDir = "."
	}
	root := os.DirFS(workDir)

	files, err := doublestar.Glob(root, glob)
	if err != nil {
		return ErrorOutput(fmt.Sprintf("invalid glob: %v", err)), nil
	}
	sort.Strings(files)

	var matches []grepMatch
	truncated := false
	for _, rel := range files {
		if ctx.Err() != nil {
			return ErrorOutput("search cancelled"), nil
		}
		info, err := fs.Stat(root, rel)
		if err != nil || info.IsDir() {
			continue
		}
		found, err := grepFile(root, rel, re, contextLines, maxMatches-len(matches))
		if err != nil {
			continue // unreadable/binary file, skip
		}
		matches = append(matches, found...)
		if len(matches) >= maxMatches {
			matches = matches[:maxMatches]
			truncated = true
			break
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d match(es) for /%s/ in %q\n", len(matches), pattern, glob)
	for _, m := range matches {
		for _, c := range m.context {
			fmt.Fprintf(&b, "%s\n", c)
		}
		fmt.Fprintf(&b, "%s:%d: %s\n", m.file, m.line, m.text)
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

func grepFile(root fs.FS, rel string, re *regexp.Regexp, contextLines, remaining int) ([]grepMatch, error) {
	if remaining <= 0 {
		return nil, nil
	}
	f, err := root.Open(rel)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []grepMatch
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		var ctxLines []string
		if contextLines > 0 {
			start := i - contextLines
			if start < 0 {
				start = 0
			}
			for j := start; j < i; j++ {
				ctxLines = append(ctxLines, fmt.Sprintf("%s-%d- %s", filepath.ToSlash(rel), j+1, lines[j]))
			}
		}
		matches = append(matches, grepMatch{file: filepath.ToSlash(rel), line: i + 1, text: line, context: ctxLines})
		if len(matches) >= remaining {
			break
		}
	}
	return matches, nil
}
