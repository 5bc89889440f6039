package provider

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/pkg/model"
)

// OpenAI backs comms.Provider with the chat-completions API, also used for
// any OpenAI-compatible endpoint_url (local inference gateways, etc).
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI constructs a backend scoped to one API key and optional
// alternate base URL.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAI) Complete(ctx context.Context, req comms.Request) (comms.Response, error) {
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: req.System}}
	for _, m := range req.Messages {
		cm := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		messages = append(messages, cm)
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
	}
	if req.ToolChoice == "none" {
		chatReq.ToolChoice = "none"
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return comms.Response{}, &model.CommunicationError{Endpoint: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return comms.Response{}, &model.CommunicationError{Endpoint: "openai", Err: errNoChoices}
	}

	raw, _ := json.Marshal(resp)
	choice := resp.Choices[0].Message
	out := comms.Response{Text: choice.Content, Raw: raw}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

var errNoChoices = &noChoicesError{}

type noChoicesError struct{}

func (*noChoicesError) Error() string { return "openai: response contained no choices" }
