// Package openai adapts github.com/openai/openai-go to the llmclient.Client
// contract.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentkit-go/agentkit/llmclient"
)

// ChatClient captures the subset of the openai-go client used by this
// adapter.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Client implements llmclient.Client via OpenAI Chat Completions.
type Client struct {
	chat         ChatClient
	defaultModel string
}

// Options configures the adapter.
type Options struct {
	DefaultModel string
}

// New builds a Client from a ChatClient and options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, defaultModel: opts.DefaultModel}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Generate implements llmclient.Client.
func (c *Client) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := sdk.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
		Tools:    toOpenAITools(req.Tools),
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isRetryable(err) {
			return llmclient.Response{}, llmclient.Transient(err)
		}
		return llmclient.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translate(resp), nil
}

func toOpenAIMessages(msgs []llmclient.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llmclient.RoleSystem:
			out = append(out, sdk.SystemMessage(m.Content))
		case llmclient.RoleUser:
			out = append(out, sdk.UserMessage(m.Content))
		case llmclient.RoleAssistant:
			out = append(out, sdk.AssistantMessage(m.Content))
		case llmclient.RoleTool:
			out = append(out, sdk.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func toOpenAITools(defs []llmclient.ToolDefinition) []sdk.ChatCompletionToolParam {
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		var schema map[string]any
		if len(d.Parameters) > 0 {
			_ = json.Unmarshal(d.Parameters, &schema)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				Parameters:  schema,
			},
		})
	}
	return out
}

func translate(resp *sdk.ChatCompletion) llmclient.Response {
	if len(resp.Choices) == 0 {
		return llmclient.Response{}
	}
	choice := resp.Choices[0]
	calls := make([]llmclient.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, llmclient.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return llmclient.Response{
		Message: llmclient.Assistant(choice.Message.Content, calls...),
		Usage: llmclient.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
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
