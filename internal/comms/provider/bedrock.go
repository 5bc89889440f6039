package provider

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/fleetforge/conductor/internal/comms"
	"github.com/fleetforge/conductor/pkg/model"
)

// Bedrock backs comms.Provider with AWS Bedrock's model-agnostic Converse
// API, so any Bedrock-hosted model (Claude, Llama, Titan, ...) can serve an
// agent's ModelEndpoint without a per-model code path.
type Bedrock struct {
	client *bedrockruntime.Client
}

// NewBedrock constructs a backend using the ambient AWS credential chain
// (environment, shared config, IMDS) for the given region.
func NewBedrock(ctx context.Context, region string) (*Bedrock, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &model.CommunicationError{Endpoint: "bedrock", Err: err}
	}
	return &Bedrock{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (b *Bedrock) Complete(ctx context.Context, req comms.Request) (comms.Response, error) {
	var messages []types.Message
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}

	var system []types.SystemContentBlock
	if req.System != "" {
		system = append(system, &types.SystemContentBlockMemberText{Value: req.System})
	}

	out, err := b.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:    aws.String(req.Model),
		Messages:   messages,
		System:     system,
		ToolConfig: toolConfig(req.Tools, req.ToolChoice),
	})
	if err != nil {
		return comms.Response{}, &model.CommunicationError{Endpoint: "bedrock", Err: err}
	}

	raw, _ := json.Marshal(out)
	resp := comms.Response{Raw: raw}
	msgOutput, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp, nil
	}
	for _, block := range msgOutput.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			resp.Text += text.Value
		}
		if use, ok := block.(*types.ContentBlockMemberToolUse); ok {
			argBytes, _ := json.Marshal(use.Value.Input)
			resp.ToolCalls = append(resp.ToolCalls, model.ToolCall{
				ID:        aws.ToString(use.Value.ToolUseId),
				Name:      aws.ToString(use.Value.Name),
				Arguments: argBytes,
			})
		}
	}
	return resp, nil
}

// toolConfig builds Bedrock's ToolConfiguration from the generic tool
// descriptors. Bedrock's Converse API has no literal "none" tool choice
// (unlike Anthropic/OpenAI's native SDKs): the only way to guarantee the
// model can't call a tool is to omit ToolConfiguration entirely, so
// toolChoice == "none" does exactly that rather than passing a ToolChoice
// value Bedrock would only partially honor.
func toolConfig(tools []comms.ToolDescriptor, toolChoice string) *types.ToolConfiguration {
	if len(tools) == 0 || toolChoice == "none" {
		return nil
	}
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: toDocument(t.Schema)},
		}})
	}
	return &types.ToolConfiguration{Tools: specs}
}

// toDocument wraps a tool's JSON schema as a smithy document, Bedrock's
// wire format for arbitrary structured values.
func toDocument(schema map[string]any) document.Interface {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	v := any(schema)
	return document.NewLazyDocument(&v)
}
