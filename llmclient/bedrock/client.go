// Package bedrock adapts the AWS Bedrock Converse API to the llmclient.Client
// contract, completing the triple of provider adapters (anthropic, openai,
// bedrock) that demonstrate C2's provider-agnosticism.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/agentkit-go/agentkit/llmclient"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used by
// this adapter.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements llmclient.Client via the Bedrock Converse API.
type Client struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int32
}

// Options configures the adapter.
type Options struct {
	Runtime      RuntimeClient
	DefaultModel string
	MaxTokens    int32
}

// New builds a Client from Bedrock runtime options.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{runtime: opts.Runtime, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// Generate implements llmclient.Client.
func (c *Client) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	system, messages := splitSystem(req.Messages)

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		System:          system,
		Messages:        messages,
		InferenceConfig: &brtypes.InferenceConfiguration{MaxTokens: aws.Int32(c.maxTokens)},
		ToolConfig:      toToolConfig(req.Tools),
	}

	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isThrottled(err) {
			return llmclient.Response{}, llmclient.Transient(err)
		}
		return llmclient.Response{}, fmt.Errorf("bedrock converse: %w", err)
	}
	return translate(out), nil
}

func splitSystem(msgs []llmclient.Message) ([]brtypes.SystemContentBlock, []brtypes.Message) {
	var system []brtypes.SystemContentBlock
	var out []brtypes.Message
	for _, m := range msgs {
		switch m.Role {
		case llmclient.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case llmclient.RoleUser, llmclient.RoleTool:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case llmclient.RoleAssistant:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return system, out
}

func toToolConfig(defs []llmclient.ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			_ = json.Unmarshal(d.Parameters, &schema)
		}
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        aws.String(d.Name),
				Description: aws.String(d.Description),
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

func translate(out *bedrockruntime.ConverseOutput) llmclient.Response {
	var content string
	var calls []llmclient.ToolCall

	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *brtypes.ContentBlockMemberText:
				content += b.Value
			case *brtypes.ContentBlockMemberToolUse:
				var args json.RawMessage
				if b.Value.Input != nil {
					raw, _ := b.Value.Input.MarshalSmithyDocument()
					args = raw
				}
				calls = append(calls, llmclient.ToolCall{
					ID:        aws.ToString(b.Value.ToolUseId),
					Name:      aws.ToString(b.Value.Name),
					Arguments: args,
				})
			}
		}
	}

	usage := llmclient.Usage{}
	if out.Usage != nil {
		usage.InputTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.OutputTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return llmclient.Response{Message: llmclient.Assistant(content, calls...), Usage: usage}
}

func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ThrottlingException"
	}
	return false
}
