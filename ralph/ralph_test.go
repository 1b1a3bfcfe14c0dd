package ralph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/tool"

	rstep "github.com/agentkit-go/agentkit/step"
)

// scriptedClient returns one canned Response per call, cycling if exhausted.
type scriptedClient struct {
	responses []llmclient.Response
	calls     int
}

func (c *scriptedClient) Generate(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	resp := c.responses[c.calls%len(c.responses)]
	c.calls++
	return resp, nil
}

func TestRalphCompletesOnPromiseTag(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("working on it")},
	}}
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	inner := rstep.New(client, registry, event.NewBus(), "test-model")

	client.responses = []llmclient.Response{
		{Message: llmclient.Assistant("DONE: wrote main.py\n<promise>DONE</promise>")},
	}

	cfg := DefaultConfig()
	cfg.CompletionPromise = "DONE"
	loop := New(inner, event.NewBus(), cfg)

	out, err := loop.Run(context.Background(), "build the thing")
	require.NoError(t, err)
	require.Equal(t, "DONE: wrote main.py", out)

	status := loop.Status()
	require.True(t, status.State.Completed)
	require.Equal(t, ReasonPromise, status.State.CompletionReason)
	require.Equal(t, 1, status.State.Iteration)
}

func TestRalphCompletesOnIdleThreshold(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("nothing happening")},
	}}
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	inner := rstep.New(client, registry, event.NewBus(), "test-model")

	cfg := DefaultConfig()
	cfg.IdleThreshold = 2
	cfg.MaxIterations = 100
	loop := New(inner, event.NewBus(), cfg)

	out, err := loop.Run(context.Background(), "build the thing")
	require.NoError(t, err)
	require.Equal(t, "nothing happening", out)

	status := loop.Status()
	require.Equal(t, ReasonIdle, status.State.CompletionReason)
	require.Equal(t, 2, status.State.Iteration)
}

func TestRalphCompletesOnMaxIterations(t *testing.T) {
	client := &scriptedClient{responses: []llmclient.Response{
		{Message: llmclient.Assistant("DONE: progress logged each time")},
	}}
	registry, err := tool.NewRegistry()
	require.NoError(t, err)
	inner := rstep.New(client, registry, event.NewBus(), "test-model")

	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.IdleThreshold = 1000
	loop := New(inner, event.NewBus(), cfg)

	_, err = loop.Run(context.Background(), "build the thing")
	require.NoError(t, err)

	status := loop.Status()
	require.Equal(t, ReasonMaxIterations, status.State.CompletionReason)
	require.Equal(t, 3, status.State.Iteration)
}
