// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// llmclient.Client contract, proving C2 is provider-agnostic.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentkit-go/agentkit/llmclient"
)

// MessagesClient captures the subset of the Anthropic SDK used by this
// adapter, so tests can substitute a stub in place of *sdk.MessageService.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements llmclient.Client on top of the Anthropic Messages API.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int64
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int64
}

// New builds a Client from an Anthropic Messages client and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP client
// authenticated with apiKey. An empty apiKey is rejected.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, Options{DefaultModel: defaultModel})
}

// Generate implements llmclient.Client.
func (c *Client) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: c.maxTokens,
		Messages:  toAnthropicMessages(req.Messages),
		Tools:     toAnthropicTools(req.Tools),
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isRetryable(err) {
			return llmclient.Response{}, llmclient.Transient(err)
		}
		return llmclient.Response{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translate(msg), nil
}

func toAnthropicMessages(msgs []llmclient.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llmclient.RoleUser, llmclient.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llmclient.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case llmclient.RoleSystem:
			// System prompts are passed via params.System, not the message
			// list, by Anthropic convention; callers should not include
			// RoleSystem in req.Messages when using this adapter; one that
			// is present is sent as a user message at its position in the
			// list rather than dropped silently.
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(defs []llmclient.ToolDefinition) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			_ = json.Unmarshal(d.Parameters, &schema)
		}
		out = append(out, sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{
			Properties: schema["properties"],
		}, d.Name))
	}
	return out
}

func translate(msg *sdk.Message) llmclient.Response {
	var content string
	var calls []llmclient.ToolCall
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			content += b.Text
		case sdk.ToolUseBlock:
			calls = append(calls, llmclient.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: json.RawMessage(b.Input),
			})
		}
	}
	return llmclient.Response{
		Message: llmclient.Assistant(content, calls...),
		Usage: llmclient.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func isRetryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
