package team

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/step"
	"github.com/agentkit-go/agentkit/tool"
)

// scriptedClient returns one canned Response per call, in order.
type scriptedClient struct {
	responses []llmclient.Response
	calls     int
}

func (c *scriptedClient) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func newMemberLoop(t *testing.T, content string) *step.Loop {
	t.Helper()
	client := &scriptedClient{responses: []llmclient.Response{{Message: llmclient.Assistant(content)}}}
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	return step.New(client, registry, event.NewBus(), "test-model")
}

func TestTeamSelectiveDelegationRunsNamedMember(t *testing.T) {
	leaderClient := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("", llmclient.ToolCall{
			ID: "d1", Name: "delegate",
			Arguments: json.RawMessage(`{"member_id":"researcher","task":"find facts"}`),
		})},
		{Message: llmclient.Assistant("synthesized answer")},
	}}
	leaderRegistry, err := tool.NewRegistry(DelegateTool{})
	require.NoError(t, err)
	leader := step.New(leaderClient, leaderRegistry, event.NewBus(), "test-model")

	researcher := &Member{ID: "researcher", Name: "Researcher", Role: "research", Loop: newMemberLoop(t, "some facts")}

	tm := New(leader, 10, event.NewBus(), researcher)

	out, runs, err := tm.Run(context.Background(), "answer a question")
	require.NoError(t, err)
	require.Equal(t, "synthesized answer", out)
	require.Len(t, runs, 1)
	require.Equal(t, "researcher", runs[0].MemberID)
	require.Equal(t, "some facts", runs[0].Response)
	require.True(t, runs[0].Success)
}

func TestTeamFanOutDelegatesToAllMembers(t *testing.T) {
	leaderClient := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("", llmclient.ToolCall{
			ID: "d1", Name: "delegate",
			Arguments: json.RawMessage(`{"task":"review the plan","delegate_to_all":true}`),
		})},
		{Message: llmclient.Assistant("combined review")},
	}}
	leaderRegistry, err := tool.NewRegistry(DelegateTool{})
	require.NoError(t, err)
	leader := step.New(leaderClient, leaderRegistry, event.NewBus(), "test-model")

	a := &Member{ID: "a", Name: "Alice", Loop: newMemberLoop(t, "alice says ok")}
	b := &Member{ID: "b", Name: "Bob", Loop: newMemberLoop(t, "bob says ok")}

	tm := New(leader, 10, event.NewBus(), a, b)

	out, runs, err := tm.Run(context.Background(), "review")
	require.NoError(t, err)
	require.Equal(t, "combined review", out)
	require.Len(t, runs, 2)
}

func TestTeamUnknownMemberIsRecoveredAsToolFailure(t *testing.T) {
	leaderClient := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("", llmclient.ToolCall{
			ID: "d1", Name: "delegate",
			Arguments: json.RawMessage(`{"member_id":"ghost","task":"do something"}`),
		})},
		{Message: llmclient.Assistant("handled the failure")},
	}}
	leaderRegistry, err := tool.NewRegistry(DelegateTool{})
	require.NoError(t, err)
	leader := step.New(leaderClient, leaderRegistry, event.NewBus(), "test-model")

	tm := New(leader, 10, event.NewBus())

	out, runs, err := tm.Run(context.Background(), "do something")
	require.NoError(t, err)
	require.Equal(t, "handled the failure", out)
	require.Empty(t, runs)
}
