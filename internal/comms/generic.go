package comms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fleetforge/conductor/pkg/model"
)

// genericProvider speaks the literal wire contract from spec.md §6 directly:
// a JSON POST of {model, system, messages, tools} and a response shaped
// either as a classic chat-completions choice or a response-style
// function_call_output list. It is the fallback used when a ModelEndpoint
// names no recognized provider, and the only backend exercised for
// arbitrary endpoint_url values the roles config supplies.
type genericProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func newGenericProvider(endpoint, apiKey string, pool *Pool) *genericProvider {
	return &genericProvider{endpoint: endpoint, apiKey: apiKey, client: pool.Client(endpoint)}
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireRequest struct {
	Model      string           `json:"model"`
	System     string           `json:"system,omitempty"`
	Messages   []wireMessage    `json:"messages"`
	Tools      []ToolDescriptor `json:"tools,omitempty"`
	ToolChoice string           `json:"tool_choice,omitempty"`
}

// wireResponse covers both recognized upstream shapes. Classic
// chat-completions responses populate Choices; response-style upstreams
// populate Output directly with function_call_output items.
type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices,omitempty"`

	Output []struct {
		Type    string          `json:"type"`
		Content string          `json:"content,omitempty"`
		Name    string          `json:"name,omitempty"`
		CallID  string          `json:"call_id,omitempty"`
		Args    json.RawMessage `json:"arguments,omitempty"`
	} `json:"output,omitempty"`
}

func (p *genericProvider) Complete(ctx context.Context, req Request) (Response, error) {
	wr := wireRequest{Model: req.Model, System: req.System, Tools: req.Tools, ToolChoice: req.ToolChoice}
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		wr.Messages = append(wr.Messages, wm)
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return Response{}, &model.CommunicationError{Endpoint: p.endpoint, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, &model.CommunicationError{Endpoint: p.endpoint, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, &model.CommunicationError{Endpoint: p.endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &model.CommunicationError{Endpoint: p.endpoint, Err: err}
	}
	if resp.StatusCode >= 400 {
		return Response{}, &model.CommunicationError{Endpoint: p.endpoint, Err: fmt.Errorf("status %d: %s", resp.StatusCode, raw)}
	}

	var wresp wireResponse
	if err := json.Unmarshal(raw, &wresp); err != nil {
		return Response{}, &model.CommunicationError{Endpoint: p.endpoint, Err: err}
	}

	out := Response{Raw: raw}
	switch {
	case len(wresp.Choices) > 0:
		choice := wresp.Choices[0].Message
		out.Text = choice.Content
		for _, tc := range choice.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
	case len(wresp.Output) > 0:
		for _, item := range wresp.Output {
			switch item.Type {
			case "function_call_output", "function_call":
				out.ToolCalls = append(out.ToolCalls, model.ToolCall{ID: item.CallID, Name: item.Name, Arguments: item.Args})
			default:
				out.Text += item.Content
			}
		}
	}
	return out, nil
}
