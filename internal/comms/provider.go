package comms

import (
	"context"

	"github.com/fleetforge/conductor/pkg/model"
)

// Request is what a Channel sends upstream: the rendered conversation plus
// the tool descriptors available to the agent (spec.md §4.3/§4.6).
type Request struct {
	Model    string
	System   string
	Messages []model.Message
	Tools    []ToolDescriptor

	// ToolChoice constrains how the model may use Tools (spec.md §6's wire
	// contract: tool_choice ∈ {"auto", "none"}). Empty means "auto", the
	// provider's own default. "none" is how the agent loop forces a plain
	// text response after an iteration that only read files — without it, a
	// developer agent can re-read the same files forever without ever
	// producing the write the assignment actually needs.
	ToolChoice string
}

// ToolDescriptor is the wire shape of one tool definition offered to the
// model (spec.md §4.6, "Tool definitions").
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Response is what a Channel gets back: assistant text and/or tool calls.
type Response struct {
	Text      string
	ToolCalls []model.ToolCall
	Raw       []byte // exact bytes received, for trace persistence/replay
}

// Provider is a backend capable of completing a Request against one
// upstream model endpoint. Concrete implementations live in
// internal/comms/provider (native SDK backends) and the generic fallback
// in internal/comms/generic.go.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
