// Package model holds the plain data types shared across conductor's
// packages: requests, agent configuration, messages, and tool calls.
package model

import (
	"encoding/json"
	"time"
)

// Role identifies which kind of agent produced or should handle a message.
type Role string

const (
	RoleManager  Role = "manager"
	RoleDevelop  Role = "developer"
	RoleAuditor  Role = "auditor"
)

// ModelEndpoint describes the upstream LLM this agent talks to.
type ModelEndpoint struct {
	Provider string `json:"provider,omitempty"` // "anthropic", "openai", "bedrock", or "" for generic
	URL      string `json:"endpoint_url"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model"`
}

// AgentConfig is one entry from the roles configuration (spec.md §6).
// Endpoint is Endpoints[0], kept as its own field so call sites that only
// care about the primary endpoint don't need to slice into Endpoints.
type AgentConfig struct {
	Role          Role            `json:"role"`
	SystemPrompt  string          `json:"system_prompt"`
	Endpoint      ModelEndpoint   `json:"endpoint"`
	Endpoints     []ModelEndpoint `json:"endpoints,omitempty"`
	AllowedTools  []string        `json:"allowed_tools"`
	MaxIterations int             `json:"max_iterations,omitempty"`
}

// AgentInstance is a running instantiation of an AgentConfig, scoped to a
// single session and numbered so multiple developer/auditor instances can
// coexist (spec.md §4.5).
type AgentInstance struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Instance  int    `json:"instance"`
	SessionID string `json:"session_id"`
}

// Message is one turn in an agent's conversation history.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on role=="tool" messages
	Timestamp  time.Time  `json:"timestamp"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolOutputCapture records a tool's full output on disk when it exceeds the
// inline pagination window (spec.md §4.4).
type ToolOutputCapture struct {
	ToolCallID string `json:"tool_call_id"`
	Path       string `json:"path"`
	TotalLines int    `json:"total_lines"`
	PageSize   int    `json:"page_size"`
}

// Assignment is one sub-task the coordinator dispatches to an agent
// instance (spec.md §4.7).
type Assignment struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	Sequence    int    `json:"sequence"`
	Description string `json:"description"`
	DependsOn   []string `json:"depends_on,omitempty"`
}

// Callback is raised by a developer/auditor agent back to the manager
// (spec.md §4.7, "raise_callback").
type Callback struct {
	AssignmentID string `json:"assignment_id"`
	Summary      string `json:"summary"`
	Success      bool   `json:"success"`
}

// Event is one entry in the append-only session event log (spec.md §4.1).
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	AgentID   string    `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// EventKind enumerates the durable session event vocabulary (spec.md §3).
// Readers tolerate unknown kinds, so this list may grow; these are the ones
// the coordinator currently emits.
type EventKind string

const (
	EventRequestDecomposed    EventKind = "request_decomposed"
	EventTaskAssigned         EventKind = "task_assigned"
	EventTaskStarted          EventKind = "task_started"
	EventTaskCompleted        EventKind = "task_completed"
	EventTaskFailed           EventKind = "task_failed"
	EventRoleValidationFailed EventKind = "role_validation_failed"
	EventRoleRetry            EventKind = "role_retry"
	EventTimeoutRetry         EventKind = "timeout_retry"
)
