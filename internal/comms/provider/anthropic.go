// Package provider adapts conductor's comms.Provider interface to concrete
// upstream SDKs, grounded on the native backends the teacher wrote for
// each model family.
package provider

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/pkg/model"
)

// Anthropic backs comms.Provider with the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic constructs a backend scoped to one API key. A custom base
// URL lets it target endpoint_url values that point at a compatible proxy.
func NewAnthropic(apiKey, baseURL string) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

func (a *Anthropic) Complete(ctx context.Context, req comms.Request) (comms.Response, error) {
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}

	var tools []anthropic.ToolUnionParam
	for _, t := range req.Tools {
		tools = append(tools, anthropic.ToolUnionParamOfTool(anthropic.ToolInputSchemaParam{
			Properties: t.Schema,
		}, t.Name))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  messages,
		Tools:     tools,
		MaxTokens: 4096,
	}
	if req.ToolChoice == "none" {
		none := anthropic.NewToolChoiceNoneParam()
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &none}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return comms.Response{}, &model.CommunicationError{Endpoint: "anthropic", Err: err}
	}

	raw, _ := json.Marshal(msg)
	out := comms.Response{Raw: raw}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return out, nil
}
