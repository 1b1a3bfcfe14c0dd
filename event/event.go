// Package event implements the event bus (C3): typed events delivered to
// wildcard subscribers first, then per-type subscribers, both in
// registration order. Delivery is synchronous and sequential per emitter —
// a slow subscriber stalls the emitter, since the bus never buffers.
package event

import "time"

// Type identifies an event kind emitted by the step loop, Ralph meta-loop,
// graph executor or team controller.
type Type string

const (
	TypeStepStart         Type = "step_start"
	TypeLLMRequest        Type = "llm_request"
	TypeLLMResponse       Type = "llm_response"
	TypeToolStart         Type = "tool_start"
	TypeToolEnd           Type = "tool_end"
	TypeUserInputRequired Type = "user_input_required"
	TypeCompletion        Type = "completion"
	TypeError             Type = "error"

	TypeRalphIterationStart Type = "ralph_iteration_start"
	TypeRalphIterationEnd   Type = "ralph_iteration_end"
	TypeRalphCompletion     Type = "ralph_completion"

	TypeNodeStart Type = "node_start"
	TypeNodeEnd   Type = "node_end"
	TypeDone      Type = "done"

	// TypeAll is a sentinel used only for Subscribe to mean "every type",
	// never set on an emitted Event.
	TypeAll Type = "*"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type      Type
	Payload   any
	Step      int
	Timestamp time.Time
}
