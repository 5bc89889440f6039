package toolrt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fleetforge/conductor/internal/obslog"
	"github.com/fleetforge/conductor/internal/sanitize"
	"github.com/fleetforge/conductor/internal/toolrt/schema"
	"github.com/fleetforge/conductor/pkg/model"
)

// MaxToolNameLength and MaxToolParamsSize bound a tool call before it is
// ever dispatched, the same validation the teacher's tool registry applies.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// DefaultPageSize is how many output lines a paginated tool result shows
// inline before the rest is captured to disk (spec.md §4.4).
const DefaultPageSize = 500

// Tool is one sandboxed capability a model can invoke.
type Tool interface {
	Name() string
	Schema() string // matches a key in schema.Raw
	Execute(ctx context.Context, args json.RawMessage) (model.ToolResult, error)
}

// Registry holds every tool conductor offers, and enforces the allow-list
// at a single point (DESIGN.md's Open Question resolution): here, not
// duplicated per-tool.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *obslog.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(logger *obslog.Logger) *Registry {
	if logger == nil {
		logger = obslog.Default
	}
	return &Registry{tools: make(map[string]Tool), logger: logger}
}

// Register adds a tool, keyed by its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Descriptors returns the wire-shaped tool list for a given allow-list, for
// handing to comms.Request.Tools.
func (r *Registry) Descriptors(allowed []string) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ToolDescriptor
	for name, t := range r.tools {
		if !matchesAny(name, allowed) {
			continue
		}
		var schemaMap map[string]any
		_ = json.Unmarshal([]byte(schema.Raw[t.Schema()]), &schemaMap)
		out = append(out, ToolDescriptor{Name: name, Schema: schemaMap})
	}
	return out
}

// ToolDescriptor mirrors comms.ToolDescriptor without importing comms,
// avoiding a dependency cycle; callers convert at the call site.
type ToolDescriptor struct {
	Name   string
	Schema map[string]any
}

// Execute validates call against its tool's allow-list membership, name
// length, payload size, and JSON schema, then dispatches it.
func (r *Registry) Execute(ctx context.Context, agentID string, call model.ToolCall, allowed []string) model.ToolResult {
	if len(call.Name) > MaxToolNameLength {
		return errorResult(call.ID, "tool name exceeds maximum length")
	}
	if len(call.Arguments) > MaxToolParamsSize {
		return errorResult(call.ID, "tool arguments exceed maximum size")
	}
	if !matchesAny(call.Name, allowed) {
		r.logger.Warn(obslog.ToolDenied, "", agentID, map[string]any{"tool": call.Name})
		return errorResult(call.ID, fmt.Sprintf("tool %q is not in this agent's allowed_tools", call.Name))
	}

	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool %q", call.Name))
	}

	var decoded any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &decoded); err != nil {
			return errorResult(call.ID, "tool arguments are not valid JSON")
		}
	}
	if err := schema.Validate(tool.Schema(), decoded); err != nil {
		return errorResult(call.ID, fmt.Sprintf("tool arguments failed validation: %v", err))
	}

	r.logger.Info(obslog.ToolInvocation, "", agentID, map[string]any{"tool": call.Name})
	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		r.logger.Error(obslog.ToolCompletion, "", agentID, err, map[string]any{"tool": call.Name})
		return errorResult(call.ID, err.Error())
	}
	result.ToolCallID = call.ID
	result.Content = sanitize.ToolOutput(result.Content)
	r.logger.Info(obslog.ToolCompletion, "", agentID, map[string]any{"tool": call.Name, "is_error": result.IsError})
	return result
}

func errorResult(callID, msg string) model.ToolResult {
	return model.ToolResult{ToolCallID: callID, Content: msg, IsError: true}
}

// matchesAny reports whether name matches any pattern in patterns. A
// pattern ending in "*" matches by prefix; any other pattern must match
// exactly. An empty pattern list denies everything — allow_tools must be
// explicit (spec.md §4.4's allow-list requirement).
func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if matchesPattern(name, p) {
			return true
		}
	}
	return false
}

func matchesPattern(name, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return name == pattern
}

// Paginate splits text into the first DefaultPageSize lines plus the
// overflow, for tools whose output may be arbitrarily large (spec.md
// §4.4's output pagination requirement).
func Paginate(text string, pageSize int) (page string, totalLines int, truncated bool) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	lines := strings.Split(text, "\n")
	totalLines = len(lines)
	if totalLines <= pageSize {
		return text, totalLines, false
	}
	return strings.Join(lines[:pageSize], "\n"), totalLines, true
}
