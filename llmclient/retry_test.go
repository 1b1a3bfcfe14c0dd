package llmclient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/llmclient"
)

type flakyClient struct {
	failures int
	calls    int
}

func (f *flakyClient) Generate(_ context.Context, _ llmclient.Request) (llmclient.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return llmclient.Response{}, llmclient.Transient(errors.New("rate limited"))
	}
	return llmclient.Response{Message: llmclient.Assistant("ok")}, nil
}

func TestRetrierRetriesTransientErrors(t *testing.T) {
	client := &flakyClient{failures: 2}
	r := llmclient.NewRetrier(client, llmclient.RetryConfig{
		MaxAttempts: 5,
		Initial:     time.Millisecond,
		Base:        2,
		Max:         10 * time.Millisecond,
	})

	resp, err := r.Generate(context.Background(), llmclient.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	assert.Equal(t, 3, client.calls)
}

func TestRetrierDoesNotRetryTerminalErrors(t *testing.T) {
	client := &flakyClient{failures: 0}
	terminalErr := errors.New("bad request")
	wrapped := &terminalClient{err: terminalErr}

	r := llmclient.NewRetrier(wrapped, llmclient.DefaultRetryConfig())
	_, err := r.Generate(context.Background(), llmclient.Request{})
	require.Error(t, err)
	assert.Equal(t, terminalErr, err)
	assert.Equal(t, 1, wrapped.calls)
	_ = client
}

type terminalClient struct {
	err   error
	calls int
}

func (t *terminalClient) Generate(_ context.Context, _ llmclient.Request) (llmclient.Response, error) {
	t.calls++
	return llmclient.Response{}, t.err
}

func TestRetrierExhaustsMaxAttempts(t *testing.T) {
	client := &flakyClient{failures: 100}
	r := llmclient.NewRetrier(client, llmclient.RetryConfig{
		MaxAttempts: 3,
		Initial:     time.Millisecond,
		Base:        2,
		Max:         5 * time.Millisecond,
	})

	_, err := r.Generate(context.Background(), llmclient.Request{})
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
}
