// Package step implements the single-agent step loop (C5): the primitive
// that drives the model-tool cycle. The Ralph meta-loop (C6) re-invokes it
// across iterations; graph nodes (C7) and team members (C8) each wrap one
// Loop instance.
package step

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentkit-go/agentkit/agentstate"
	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/tool"
)

// Loop drives one AgentState through the model-tool cycle described by the
// step loop contract. A Loop is read-only after construction and may be
// shared across concurrently running AgentStates, each of which is
// single-owner.
type Loop struct {
	client   llmclient.Client
	registry *tool.Registry
	bus      *event.Bus
	model    string
}

// New constructs a Loop. bus may be nil, in which case events are dropped.
func New(client llmclient.Client, registry *tool.Registry, bus *event.Bus, model string) *Loop {
	return &Loop{client: client, registry: registry, bus: bus, model: model}
}

// Run drives state forward until it reaches COMPLETED, ERROR, or
// WAITING_INPUT, or until ctx is cancelled. If state is IDLE, Run starts it.
// The returned string is the final assistant content when the run completes
// normally; it is empty on suspension or error.
func (l *Loop) Run(ctx context.Context, state *agentstate.AgentState) (string, error) {
	if state.Status() == agentstate.StatusIdle {
		if err := state.Start(); err != nil {
			return "", err
		}
	}
	return l.drive(ctx, state)
}

// Resume supplies the answer to a tool call parked by WAITING_INPUT and
// continues the loop. input becomes the tool result content for the paused
// tool call, exactly as if the tool itself had returned it.
func (l *Loop) Resume(ctx context.Context, state *agentstate.AgentState, input string) (string, error) {
	pending, err := state.ResumeWithInput()
	if err != nil {
		return "", err
	}
	l.emit(ctx, state, event.TypeToolEnd, map[string]any{
		"tool_call_id": pending.ToolCallID,
		"resumed":      true,
	})
	state.AppendMessage(llmclient.ToolResultMessage(pending.ToolCallID, input))
	return l.drive(ctx, state)
}

// drive runs the loop body (spec §4.4 steps 1-7) until a terminal condition.
func (l *Loop) drive(ctx context.Context, state *agentstate.AgentState) (string, error) {
	for {
		if !state.CanContinue() {
			if state.Status() == agentstate.StatusRunning {
				// max_steps reached while still RUNNING: return the last
				// assistant content with COMPLETED.
				if err := state.Complete(); err != nil {
					return "", err
				}
			}
			return lastAssistantContent(state), nil
		}

		state.BeginStep()
		l.emit(ctx, state, event.TypeStepStart, map[string]any{"step": state.CurrentStep()})

		l.emit(ctx, state, event.TypeLLMRequest, map[string]any{"messages": state.Messages()})
		resp, err := l.client.Generate(ctx, llmclient.Request{
			Messages: state.Messages(),
			Tools:    toolDefinitions(l.registry),
			Model:    l.model,
		})
		if err != nil {
			_ = state.Fail(err.Error())
			l.emit(ctx, state, event.TypeError, map[string]any{"error": err.Error()})
			return "", nil
		}
		state.AccumulateUsage(resp.Usage)
		l.emit(ctx, state, event.TypeLLMResponse, map[string]any{"usage": resp.Usage})

		state.AppendMessage(resp.Message)

		if !resp.Message.HasToolCalls() {
			if err := state.Complete(); err != nil {
				return "", err
			}
			l.emit(ctx, state, event.TypeCompletion, map[string]any{"content": resp.Message.Content})
			return resp.Message.Content, nil
		}

		suspended, err := l.executeToolCalls(ctx, state, resp.Message.ToolCalls)
		if err != nil {
			return "", err
		}
		if suspended {
			return "", nil
		}
	}
}

// executeToolCalls runs the tool calls of one assistant message, appending
// tool result messages in the LLM-declared order regardless of completion
// order. It returns suspended=true if a tool parked the run for human input,
// in which case no tool messages for this call (or later calls in this
// batch) are appended, matching the suspend contract of step 6c.
func (l *Loop) executeToolCalls(ctx context.Context, state *agentstate.AgentState, calls []llmclient.ToolCall) (bool, error) {
	if anyInputCapable(l.registry, calls) {
		return l.executeSequential(ctx, state, calls)
	}
	return l.executeConcurrent(ctx, state, calls)
}

func anyInputCapable(registry *tool.Registry, calls []llmclient.ToolCall) bool {
	for _, call := range calls {
		t, ok := registry.Lookup(tool.Ident(call.Name))
		if ok && len(t.Spec().HumanInputSchema) > 0 {
			return true
		}
	}
	return false
}

// executeSequential processes tool calls one at a time in LLM order, as
// spec step 6 literally describes. It stops at the first call that parks
// for human input, leaving any later calls in this batch unprocessed.
func (l *Loop) executeSequential(ctx context.Context, state *agentstate.AgentState, calls []llmclient.ToolCall) (bool, error) {
	for _, call := range calls {
		l.emit(ctx, state, event.TypeToolStart, map[string]any{
			"tool_call_id": call.ID, "name": call.Name, "args": call.Arguments,
		})

		result, err := safeExecute(ctx, l.registry, call.Name, call.Arguments)
		if err != nil {
			return false, err
		}

		if result.NeedsInput {
			if err := state.Suspend(result.Prompt, call.ID); err != nil {
				return false, err
			}
			l.emit(ctx, state, event.TypeUserInputRequired, map[string]any{
				"tool_call_id": call.ID, "prompt": result.Prompt,
			})
			return true, nil
		}

		state.AppendMessage(llmclient.ToolResultMessage(call.ID, renderResult(result)))
		l.emit(ctx, state, event.TypeToolEnd, map[string]any{
			"tool_call_id": call.ID, "success": result.Success,
		})
	}
	return false, nil
}

// executeConcurrent fans out tool calls via errgroup and appends their
// results in LLM-declared order regardless of completion order. It is only
// used when no tool in the batch can request human input, so no suspension
// handling is needed here.
func (l *Loop) executeConcurrent(ctx context.Context, state *agentstate.AgentState, calls []llmclient.ToolCall) (bool, error) {
	results := make([]tool.Result, len(calls))

	for _, call := range calls {
		l.emit(ctx, state, event.TypeToolStart, map[string]any{
			"tool_call_id": call.ID, "name": call.Name, "args": call.Arguments,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			result, err := safeExecute(gctx, l.registry, call.Name, call.Arguments)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	for i, call := range calls {
		state.AppendMessage(llmclient.ToolResultMessage(call.ID, renderResult(results[i])))
		l.emit(ctx, state, event.TypeToolEnd, map[string]any{
			"tool_call_id": call.ID, "success": results[i].Success,
		})
	}
	return false, nil
}

// safeExecute runs registry.Execute behind a recover boundary: a panicking
// tool degrades to a failed Result (spec §7's ToolExecutionError contract)
// instead of aborting the run or, from inside executeConcurrent's errgroup
// goroutines, crashing the process.
func safeExecute(ctx context.Context, registry *tool.Registry, name string, args json.RawMessage) (result tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = tool.Failuref("tool %q panicked: %v", name, r)
			err = nil
		}
	}()
	return registry.Execute(ctx, tool.Ident(name), args)
}

func renderResult(r tool.Result) string {
	if r.Success {
		return r.Content
	}
	if r.Error != "" {
		return r.Error
	}
	return r.Content
}

func toolDefinitions(registry *tool.Registry) []llmclient.ToolDefinition {
	specs := registry.Specs()
	out := make([]llmclient.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		out = append(out, llmclient.ToolDefinition{
			Name:        string(s.Name),
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return out
}

func lastAssistantContent(state *agentstate.AgentState) string {
	msgs := state.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llmclient.RoleAssistant {
			return msgs[i].Content
		}
	}
	return ""
}

func (l *Loop) emit(ctx context.Context, state *agentstate.AgentState, typ event.Type, payload any) {
	if l.bus == nil {
		return
	}
	_ = l.bus.Publish(ctx, event.Event{
		Type:      typ,
		Payload:   payload,
		Step:      state.CurrentStep(),
		Timestamp: time.Now(),
	})
}
