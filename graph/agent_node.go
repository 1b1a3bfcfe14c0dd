package graph

import (
	"context"
	"fmt"

	"github.com/agentkit-go/agentkit/agentstate"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/step"
)

// AgentNodeConfig configures one AgentNode adapter.
type AgentNodeConfig struct {
	// InputChannel holds the user prompt (string) this node reads.
	InputChannel string
	// OutputChannel receives the run's final assistant content.
	OutputChannel string
	// HistoryChannel, if non-empty, receives a one-line trace of this node's
	// run as a list-append update. Declare a matching list-append Reducer
	// for this channel, or concurrent writers in the same level will
	// conflict.
	HistoryChannel string
	MaxSteps       int
}

// AgentNode adapts a step.Loop into a graph NodeFunc: it runs one full
// single-agent step loop per invocation, seeded from the state's input
// channel, and reports the final content on the output channel.
func AgentNode(loop *step.Loop, cfg AgentNodeConfig) NodeFunc {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 15
	}

	return func(ctx context.Context, state State) (PartialUpdate, error) {
		prompt, _ := state[cfg.InputChannel].(string)

		as := agentstate.New(maxSteps)
		as.AppendMessage(llmclient.User(prompt))

		content, err := loop.Run(ctx, as)
		if err != nil {
			return nil, fmt.Errorf("graph: agent node run failed: %w", err)
		}

		update := PartialUpdate{cfg.OutputChannel: content}
		if cfg.HistoryChannel != "" {
			update[cfg.HistoryChannel] = []string{fmt.Sprintf("%s -> %s", prompt, content)}
		}
		return update, nil
	}
}

// ListAppendReducer concatenates two []string channel values, folding a
// single new element or slice in either operand position. It is the reducer
// to declare for AgentNode's HistoryChannel and similar accumulating
// channels.
func ListAppendReducer(a, b any) any {
	return append(toStringSlice(a), toStringSlice(b)...)
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case string:
		return []string{t}
	case nil:
		return nil
	default:
		return []string{fmt.Sprintf("%v", t)}
	}
}
