package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/step"
	"github.com/agentkit-go/agentkit/tool"
)

type scriptedClient struct {
	responses []llmclient.Response
	calls     int
}

func (c *scriptedClient) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	resp := c.responses[c.calls]
	c.calls++
	return resp, nil
}

func TestAgentNodeRunsLoopAndWritesOutputChannel(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("the answer is 42")},
	}}
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	loop := step.New(client, registry, event.NewBus(), "test-model")

	b := NewBuilder(nil)
	b.SetReducer("history", ListAppendReducer)
	b.AddNode("answer", AgentNode(loop, AgentNodeConfig{
		InputChannel:   "question",
		OutputChannel:  "answer",
		HistoryChannel: "history",
	}))
	b.AddEdge(Start, "answer")
	b.AddEdge("answer", End)

	g, err := b.Compile()
	require.NoError(t, err)

	out, err := g.Run(context.Background(), State{"question": "what is the answer?"})
	require.NoError(t, err)
	require.Equal(t, "the answer is 42", out["answer"])
	require.Equal(t, []string{"what is the answer? -> the answer is 42"}, out["history"])
}
