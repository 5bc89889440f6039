package toolrt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fleetforge/conductor/pkg/model"
)

// EditTool applies a unified diff to a file within the workspace, failing
// if the patch's context or removal lines no longer match the file on
// disk (spec.md §4.4's edit_file contract).
type EditTool struct {
	resolver Resolver
}

// NewEditTool scopes edits to root.
func NewEditTool(root string) *EditTool { return &EditTool{resolver: Resolver{Root: root}} }

func (t *EditTool) Name() string   { return "edit_file" }
func (t *EditTool) Schema() string { return "edit_file" }

type editArgs struct {
	Path  string `json:"path"`
	Patch string `json:"patch"`
}

func (t *EditTool) Execute(ctx context.Context, raw json.RawMessage) (model.ToolResult, error) {
	var args editArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ToolResult{}, fmt.Errorf("decode arguments: %w", err)
	}
	abs, err := t.resolver.Resolve(args.Path)
	if err != nil {
		return model.ToolResult{}, err
	}

	original, err := os.ReadFile(abs)
	if err != nil {
		return model.ToolResult{}, &model.FilesystemError{Path: args.Path, Err: err}
	}

	hunks, err := parseUnifiedDiff(args.Patch)
	if err != nil {
		return model.ToolResult{}, &model.ToolError{Tool: "edit_file", Err: err}
	}

	patched, err := applyHunks(strings.Split(string(original), "\n"), hunks)
	if err != nil {
		return model.ToolResult{}, &model.ToolError{Tool: "edit_file", Err: err}
	}

	if err := os.WriteFile(abs, []byte(strings.Join(patched, "\n")), 0o644); err != nil {
		return model.ToolResult{}, &model.FilesystemError{Path: args.Path, Err: err}
	}
	return model.ToolResult{Content: fmt.Sprintf("applied %d hunk(s) to %s", len(hunks), args.Path)}, nil
}

type diffLine struct {
	kind byte // ' ' context, '-' removal, '+' addition
	text string
}

type hunk struct {
	lines []diffLine
}

// parseUnifiedDiff reads a minimal unified diff body (no "@@" header
// parsing required — hunks are separated by "@@" marker lines, and each
// body line is prefixed ' ', '-', or '+').
func parseUnifiedDiff(patch string) ([]hunk, error) {
	var hunks []hunk
	var current *hunk

	for _, raw := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(raw, "@@"):
			if current != nil {
				hunks = append(hunks, *current)
			}
			current = &hunk{}
		case strings.HasPrefix(raw, "--- ") || strings.HasPrefix(raw, "+++ "):
			continue
		case raw == "":
			continue
		default:
			if current == nil {
				return nil, fmt.Errorf("patch body before any @@ hunk header")
			}
			if len(raw) == 0 {
				continue
			}
			kind := raw[0]
			if kind != ' ' && kind != '-' && kind != '+' {
				return nil, fmt.Errorf("unrecognized diff line: %q", raw)
			}
			current.lines = append(current.lines, diffLine{kind: kind, text: raw[1:]})
		}
	}
	if current != nil {
		hunks = append(hunks, *current)
	}
	if len(hunks) == 0 {
		return nil, fmt.Errorf("patch contained no hunks")
	}
	return hunks, nil
}

// applyHunks finds each hunk's context/removal block within lines and
// replaces it with the addition lines, failing on the first mismatch so a
// stale patch never silently corrupts the file.
func applyHunks(lines []string, hunks []hunk) ([]string, error) {
	for _, h := range hunks {
		var match []string
		var replacement []string
		for _, l := range h.lines {
			switch l.kind {
			case ' ':
				match = append(match, l.text)
				replacement = append(replacement, l.text)
			case '-':
				match = append(match, l.text)
			case '+':
				replacement = append(replacement, l.text)
			}
		}

		idx := indexOf(lines, match)
		if idx < 0 {
			return nil, fmt.Errorf("hunk context/removal lines did not match the file")
		}
		out := make([]string, 0, len(lines)-len(match)+len(replacement))
		out = append(out, lines[:idx]...)
		out = append(out, replacement...)
		out = append(out, lines[idx+len(match):]...)
		lines = out
	}
	return lines, nil
}

func indexOf(haystack, needle []string) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
