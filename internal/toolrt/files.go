package toolrt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fleetforge/conductor/pkg/model"
)

// ReadTool reads a file within the workspace, paginating oversized output.
type ReadTool struct {
	resolver Resolver
}

// NewReadTool scopes reads to root.
func NewReadTool(root string) *ReadTool { return &ReadTool{resolver: Resolver{Root: root}} }

func (t *ReadTool) Name() string   { return "read_file" }
func (t *ReadTool) Schema() string { return "read_file" }

type readArgs struct {
	Path     string `json:"path"`
	MaxBytes int    `json:"max_bytes"`
}

func (t *ReadTool) Execute(ctx context.Context, raw json.RawMessage) (model.ToolResult, error) {
	var args readArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ToolResult{}, fmt.Errorf("decode arguments: %w", err)
	}
	abs, err := t.resolver.Resolve(args.Path)
	if err != nil {
		return model.ToolResult{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return model.ToolResult{}, &model.FilesystemError{Path: args.Path, Err: err}
	}
	if args.MaxBytes > 0 && len(data) > args.MaxBytes {
		data = data[:args.MaxBytes]
	}
	page, total, truncated := Paginate(string(data), DefaultPageSize)
	if truncated {
		page = fmt.Sprintf("%s\n... (%d total lines, showing first %d)", page, total, DefaultPageSize)
	}
	return model.ToolResult{Content: page}, nil
}

// WriteTool writes (overwrites) a file within the workspace.
type WriteTool struct {
	resolver Resolver
}

// NewWriteTool scopes writes to root.
func NewWriteTool(root string) *WriteTool { return &WriteTool{resolver: Resolver{Root: root}} }

func (t *WriteTool) Name() string   { return "write_file" }
func (t *WriteTool) Schema() string { return "write_file" }

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (t *WriteTool) Execute(ctx context.Context, raw json.RawMessage) (model.ToolResult, error) {
	var args writeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return model.ToolResult{}, fmt.Errorf("decode arguments: %w", err)
	}
	abs, err := t.resolver.Resolve(args.Path)
	if err != nil {
		return model.ToolResult{}, err
	}
	if err := os.WriteFile(abs, []byte(args.Content), 0o644); err != nil {
		return model.ToolResult{}, &model.FilesystemError{Path: args.Path, Err: err}
	}
	return model.ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path)}, nil
}
