package agentstate

import (
	"encoding/json"

	"github.com/agentkit-go/agentkit/llmclient"
)

// Checkpoint is a serializable snapshot of an AgentState, sufficient to
// restore status, counters, messages, and pending input identically.
type Checkpoint struct {
	Status       Status               `json:"status"`
	CurrentStep  int                  `json:"current_step"`
	MaxSteps     int                  `json:"max_steps"`
	InputTokens  int                  `json:"input_tokens"`
	OutputTokens int                  `json:"output_tokens"`
	Messages     []llmMessageSnapshot `json:"messages"`
	Pending      *PendingInput        `json:"pending_input,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// llmMessageSnapshot mirrors llmclient.Message field-for-field; kept as a
// distinct type so Checkpoint's JSON shape does not depend on llmclient's
// internal layout changing compatibly.
type llmMessageSnapshot struct {
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// Checkpoint captures the current state as a restorable snapshot.
func (s *AgentState) Checkpoint() (Checkpoint, error) {
	msgs := make([]llmMessageSnapshot, len(s.messages))
	for i, m := range s.messages {
		var toolCalls json.RawMessage
		if len(m.ToolCalls) > 0 {
			raw, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return Checkpoint{}, err
			}
			toolCalls = raw
		}
		msgs[i] = llmMessageSnapshot{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCalls:  toolCalls,
			ToolCallID: m.ToolCallID,
		}
	}
	var pending *PendingInput
	if s.pending != nil {
		cp := *s.pending
		pending = &cp
	}
	return Checkpoint{
		Status:       s.status,
		CurrentStep:  s.currentStep,
		MaxSteps:     s.maxSteps,
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
		Messages:     msgs,
		Pending:      pending,
		ErrorMessage: s.errorMessage,
	}, nil
}

// Restore reconstructs an AgentState from a Checkpoint produced by
// Checkpoint. The round trip reproduces status, counters, messages, and
// pending input identically.
func Restore(cp Checkpoint) (*AgentState, error) {
	restored, err := restoreMessages(cp.Messages)
	if err != nil {
		return nil, err
	}
	var pending *PendingInput
	if cp.Pending != nil {
		dup := *cp.Pending
		pending = &dup
	}
	return &AgentState{
		status:       cp.Status,
		currentStep:  cp.CurrentStep,
		maxSteps:     cp.MaxSteps,
		inputTokens:  cp.InputTokens,
		outputTokens: cp.OutputTokens,
		messages:     restored,
		pending:      pending,
		errorMessage: cp.ErrorMessage,
	}, nil
}

func restoreMessages(snapshots []llmMessageSnapshot) ([]llmclient.Message, error) {
	if len(snapshots) == 0 {
		return nil, nil
	}
	out := make([]llmclient.Message, len(snapshots))
	for i, snap := range snapshots {
		var calls []llmclient.ToolCall
		if len(snap.ToolCalls) > 0 {
			if err := json.Unmarshal(snap.ToolCalls, &calls); err != nil {
				return nil, err
			}
		}
		out[i] = llmclient.Message{
			Role:       llmclient.Role(snap.Role),
			Content:    snap.Content,
			ToolCalls:  calls,
			ToolCallID: snap.ToolCallID,
		}
	}
	return out, nil
}
