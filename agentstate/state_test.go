package agentstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/llmclient"
)

func TestCanContinueRespectsStatusAndStepBudget(t *testing.T) {
	s := New(2)
	require.False(t, s.CanContinue(), "IDLE must not continue")

	require.NoError(t, s.Start())
	require.True(t, s.CanContinue())

	s.BeginStep()
	require.True(t, s.CanContinue())
	s.BeginStep()
	require.False(t, s.CanContinue(), "current_step reached max_steps")
}

func TestIllegalTransitionsAreRejected(t *testing.T) {
	s := New(5)
	err := s.Transition(StatusCompleted)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestWaitingInputRequiresBothFieldsAndBlocksBareResume(t *testing.T) {
	s := New(5)
	require.NoError(t, s.Start())

	require.Error(t, s.Suspend(nil, "call-1"))
	require.Error(t, s.Suspend(json.RawMessage(`{}`), ""))

	require.NoError(t, s.Suspend(json.RawMessage(`{"q":"confirm?"}`), "call-1"))
	require.Equal(t, StatusWaitingInput, s.Status())

	// Resume requires going through ResumeWithInput, not a bare Transition.
	err := s.Transition(StatusCompleted)
	require.ErrorIs(t, err, ErrIllegalTransition)

	pending, err := s.ResumeWithInput()
	require.NoError(t, err)
	require.Equal(t, "call-1", pending.ToolCallID)
	require.Equal(t, StatusRunning, s.Status())
	require.Nil(t, s.Pending())
}

func TestResumeWithoutInputFails(t *testing.T) {
	s := New(5)
	require.NoError(t, s.Start())
	_, err := s.ResumeWithInput()
	require.ErrorIs(t, err, ErrResumeWithoutInput)
}

func TestTokenCountersAreMonotone(t *testing.T) {
	s := New(5)
	s.AccumulateUsage(llmclient.Usage{InputTokens: 10, OutputTokens: 5})
	s.AccumulateUsage(llmclient.Usage{InputTokens: 3, OutputTokens: 2})
	in, out := s.Tokens()
	require.Equal(t, 13, in)
	require.Equal(t, 7, out)
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	s := New(10)
	require.NoError(t, s.Start())
	s.BeginStep()
	s.AppendMessage(llmclient.User("hello"))
	s.AppendMessage(llmclient.Assistant("", llmclient.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{}`)}))
	s.AccumulateUsage(llmclient.Usage{InputTokens: 7, OutputTokens: 3})
	require.NoError(t, s.Suspend(json.RawMessage(`{"q":"ok?"}`), "c1"))

	cp, err := s.Checkpoint()
	require.NoError(t, err)

	restored, err := Restore(cp)
	require.NoError(t, err)

	require.Equal(t, s.Status(), restored.Status())
	require.Equal(t, s.CurrentStep(), restored.CurrentStep())
	require.Equal(t, s.MaxSteps(), restored.MaxSteps())
	inA, outA := s.Tokens()
	inB, outB := restored.Tokens()
	require.Equal(t, inA, inB)
	require.Equal(t, outA, outB)
	require.Equal(t, s.Messages(), restored.Messages())
	require.Equal(t, s.Pending(), restored.Pending())
}

func TestFailRecordsErrorMessageAndResumeClearsIt(t *testing.T) {
	s := New(5)
	require.NoError(t, s.Start())
	require.NoError(t, s.Fail("boom"))
	require.Equal(t, StatusError, s.Status())
	require.Equal(t, "boom", s.ErrorMessage())

	require.NoError(t, s.Resume())
	require.Equal(t, StatusRunning, s.Status())
	require.Equal(t, "", s.ErrorMessage())
}
