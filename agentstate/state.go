// Package agentstate implements C4: the mutable record owned exclusively by
// one step loop — status machine, append-only message log, monotone token
// counters, and the pending-input parking slot used to suspend and resume a
// run across a human-in-the-loop tool call.
package agentstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agentkit-go/agentkit/llmclient"
)

// Status is the coarse-grained lifecycle state of an AgentState.
type Status string

const (
	StatusIdle         Status = "IDLE"
	StatusRunning      Status = "RUNNING"
	StatusWaitingInput Status = "WAITING_INPUT"
	StatusCompleted    Status = "COMPLETED"
	StatusError        Status = "ERROR"
)

// legalTransitions enumerates every allowed Status → Status edge. Any
// transition not listed here is rejected by Transition.
var legalTransitions = map[Status]map[Status]bool{
	StatusIdle:         {StatusRunning: true},
	StatusRunning:      {StatusWaitingInput: true, StatusCompleted: true, StatusError: true},
	StatusWaitingInput: {StatusRunning: true},
	StatusCompleted:    {StatusRunning: true},
	StatusError:        {StatusRunning: true},
}

// ErrIllegalTransition is returned by Transition when the requested status
// change is not among the legal edges of the status machine.
var ErrIllegalTransition = errors.New("agentstate: illegal status transition")

// ErrResumeWithoutInput is returned when a caller attempts to move out of
// WAITING_INPUT without first supplying the pending input via ResumeWithInput.
var ErrResumeWithoutInput = errors.New("agentstate: cannot resume from WAITING_INPUT without supplying input")

// PendingInput is the parking slot recorded when a tool requests structured
// user input mid-step. Both fields are set together, or both are nil/empty —
// AgentState enforces this pairing.
type PendingInput struct {
	// Prompt is the tool-declared schema or free-form prompt shown to the user.
	Prompt json.RawMessage
	// ToolCallID identifies the exact tool call this input resumes.
	ToolCallID string
}

// AgentState is the mutable record owned by exactly one step loop instance.
// It is not safe for concurrent use from multiple goroutines; callers that
// need to share it across tasks must copy or serialize access explicitly.
type AgentState struct {
	status Status

	currentStep int
	maxSteps    int

	inputTokens  int
	outputTokens int

	messages []llmclient.Message

	pending *PendingInput

	errorMessage string
}

// New constructs an AgentState in IDLE with the given step budget.
func New(maxSteps int) *AgentState {
	return &AgentState{status: StatusIdle, maxSteps: maxSteps}
}

// Status reports the current lifecycle status.
func (s *AgentState) Status() Status { return s.status }

// CurrentStep reports how many steps have been taken so far.
func (s *AgentState) CurrentStep() int { return s.currentStep }

// MaxSteps reports the configured step budget.
func (s *AgentState) MaxSteps() int { return s.maxSteps }

// Tokens reports the monotone input/output token counters accumulated so far.
func (s *AgentState) Tokens() (input, output int) { return s.inputTokens, s.outputTokens }

// Messages returns the append-only message log. The returned slice must be
// treated as read-only by callers.
func (s *AgentState) Messages() []llmclient.Message { return s.messages }

// Pending returns the parking slot recorded when WAITING_INPUT, or nil.
func (s *AgentState) Pending() *PendingInput { return s.pending }

// ErrorMessage returns the message recorded on transition to ERROR.
func (s *AgentState) ErrorMessage() string { return s.errorMessage }

// CanContinue reports whether the loop may take another step: status must
// be RUNNING and current_step must not have reached max_steps. This is the
// hard invariant named by the step loop's termination check.
func (s *AgentState) CanContinue() bool {
	return s.status == StatusRunning && s.currentStep < s.maxSteps
}

// Transition moves the state machine to next, rejecting any edge not present
// in the legal-transition table.
func (s *AgentState) Transition(next Status) error {
	if s.status == next {
		return nil
	}
	if !legalTransitions[s.status][next] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.status, next)
	}
	s.status = next
	return nil
}

// Start transitions IDLE -> RUNNING.
func (s *AgentState) Start() error {
	return s.Transition(StatusRunning)
}

// BeginStep increments the step counter. Callers must check CanContinue
// before calling BeginStep.
func (s *AgentState) BeginStep() {
	s.currentStep++
}

// AppendMessage appends one message to the log. Messages are immutable once
// appended; callers must not mutate a Message after passing it here.
func (s *AgentState) AppendMessage(m llmclient.Message) {
	s.messages = append(s.messages, m)
}

// AccumulateUsage adds to the monotone token counters. Negative deltas are
// ignored since the counters must never decrease.
func (s *AgentState) AccumulateUsage(u llmclient.Usage) {
	if u.InputTokens > 0 {
		s.inputTokens += u.InputTokens
	}
	if u.OutputTokens > 0 {
		s.outputTokens += u.OutputTokens
	}
}

// Suspend transitions RUNNING -> WAITING_INPUT and records the parking slot.
// prompt and toolCallID must both be non-empty: WAITING_INPUT implies exactly
// one parked tool call.
func (s *AgentState) Suspend(prompt json.RawMessage, toolCallID string) error {
	if len(prompt) == 0 || toolCallID == "" {
		return errors.New("agentstate: Suspend requires both prompt and toolCallID")
	}
	if err := s.Transition(StatusWaitingInput); err != nil {
		return err
	}
	s.pending = &PendingInput{Prompt: prompt, ToolCallID: toolCallID}
	return nil
}

// ResumeWithInput clears the parking slot and transitions WAITING_INPUT ->
// RUNNING. It is the only legal way out of WAITING_INPUT.
func (s *AgentState) ResumeWithInput() (*PendingInput, error) {
	if s.status != StatusWaitingInput {
		return nil, ErrResumeWithoutInput
	}
	pending := s.pending
	if pending == nil {
		return nil, ErrResumeWithoutInput
	}
	s.pending = nil
	if err := s.Transition(StatusRunning); err != nil {
		return nil, err
	}
	return pending, nil
}

// Complete transitions RUNNING -> COMPLETED.
func (s *AgentState) Complete() error {
	return s.Transition(StatusCompleted)
}

// Fail transitions RUNNING -> ERROR and records the error message.
func (s *AgentState) Fail(msg string) error {
	if err := s.Transition(StatusError); err != nil {
		return err
	}
	s.errorMessage = msg
	return nil
}

// Resume transitions {COMPLETED, ERROR} -> RUNNING, the explicit-resume edge
// used to run a fresh turn against an already-finished AgentState.
func (s *AgentState) Resume() error {
	if s.status != StatusCompleted && s.status != StatusError {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.status, StatusRunning)
	}
	s.errorMessage = ""
	return s.Transition(StatusRunning)
}

// Clear empties the message log between runs without altering status or
// counters, matching the "/clear" pruning named by the data model.
func (s *AgentState) Clear() {
	s.messages = nil
}
