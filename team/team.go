// Package team implements the leader-member team controller (C8): a
// roster of C5 step loops delegated to by a distinguished leader loop whose
// tool calls are delegations. The delegation tool carries no pointer back
// to its Team — it resolves one through a context value at execute time,
// breaking the leader -> tool -> team -> leader reference cycle.
package team

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentkit-go/agentkit/agentstate"
	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/step"
	"github.com/agentkit-go/agentkit/tool"
)

// Member is one roster entry: a C5 step loop configured (by its caller)
// with its own role, instructions, and allowed tool subset.
type Member struct {
	ID       string
	Name     string
	Role     string
	Loop     *step.Loop
	MaxSteps int
}

// TeamMemberRun records one delegation's outcome, ordered within a run.
type TeamMemberRun struct {
	MemberID   string
	MemberName string
	Role       string
	Task       string
	Response   string
	Success    bool
	Steps      int
	Error      string
}

// Team holds a roster of Members and a leader loop whose tool registry
// includes a DelegateTool instance. The leader run terminates when it
// emits an assistant message with no delegations, or when the leader's own
// AgentState reaches its max_steps budget of maxIterations steps. The budget
// counts leader steps, not delegations: several delegate calls in one
// leader message run within a single step.
type Team struct {
	id            string
	members       map[string]*Member
	order         []string
	leader        *step.Loop
	maxIterations int
	bus           *event.Bus

	mu   sync.Mutex
	runs []TeamMemberRun
}

var registry sync.Map // id string -> *Team

// New constructs a Team, generates its id, and registers it so DelegateTool
// can resolve it at execute time. maxIterations is the leader's AgentState
// step budget; it bounds leader steps, not individual delegations.
func New(leader *step.Loop, maxIterations int, bus *event.Bus, members ...*Member) *Team {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	t := &Team{
		id:            "team-" + uuid.NewString(),
		members:       make(map[string]*Member, len(members)),
		leader:        leader,
		maxIterations: maxIterations,
		bus:           bus,
	}
	for _, m := range members {
		t.members[m.ID] = m
		t.order = append(t.order, m.ID)
		if m.MaxSteps <= 0 {
			m.MaxSteps = 15
		}
	}
	registry.Store(t.id, t)
	return t
}

// ID returns the team's identity, for wiring into ContextWithTeam by a
// caller that constructs the leader's step.Loop independently.
func (t *Team) ID() string { return t.id }

type ctxKey struct{}

// ContextWithTeam attaches a team id to ctx so a DelegateTool invoked
// during the leader's run can resolve the Team that's actually running.
func ContextWithTeam(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func teamIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}

func lookupTeam(id string) (*Team, bool) {
	v, ok := registry.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Team), true
}

// Run drives the leader loop on task and returns its final content plus the
// ordered record of every delegation performed along the way.
func (t *Team) Run(ctx context.Context, task string) (string, []TeamMemberRun, error) {
	t.mu.Lock()
	t.runs = nil
	t.mu.Unlock()

	ctx = ContextWithTeam(ctx, t.id)
	state := agentstate.New(t.maxIterations)
	state.AppendMessage(llmclient.User(task))

	content, err := t.leader.Run(ctx, state)
	if err != nil {
		return "", t.drainRuns(), err
	}
	return content, t.drainRuns(), nil
}

func (t *Team) drainRuns() []TeamMemberRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TeamMemberRun, len(t.runs))
	copy(out, t.runs)
	return out
}

func (t *Team) recordRun(r TeamMemberRun) {
	t.mu.Lock()
	t.runs = append(t.runs, r)
	t.mu.Unlock()
}

// delegateOne runs a single member's step loop on task and returns the
// rendered tool result.
func (t *Team) delegateOne(ctx context.Context, memberID, task string) tool.Result {
	member, ok := t.members[memberID]
	if !ok {
		return tool.Failuref("team: unknown member %q", memberID)
	}
	content, runErr := t.runMember(ctx, member, task)
	if runErr != nil {
		return tool.Failuref("delegation to %q failed: %v", memberID, runErr)
	}
	return tool.Success(content)
}

// delegateAll fans task out to every member concurrently and concatenates
// their tagged results into a single tool result.
func (t *Team) delegateAll(ctx context.Context, task string) tool.Result {
	results := make([]string, len(t.order))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range t.order {
		i, id := i, id
		g.Go(func() error {
			member := t.members[id]
			content, err := t.runMember(gctx, member, task)
			if err != nil {
				content = fmt.Sprintf("error: %v", err)
			}
			results[i] = fmt.Sprintf("### %s (%s)\n%s", member.Name, member.ID, content)
			return nil
		})
	}
	_ = g.Wait()

	return tool.Success(strings.Join(results, "\n\n"))
}

func (t *Team) runMember(ctx context.Context, member *Member, task string) (string, error) {
	state := agentstate.New(member.MaxSteps)
	state.AppendMessage(llmclient.User(task))

	content, err := member.Loop.Run(ctx, state)

	record := TeamMemberRun{
		MemberID:   member.ID,
		MemberName: member.Name,
		Role:       member.Role,
		Task:       task,
		Response:   content,
		Success:    err == nil,
		Steps:      state.CurrentStep(),
	}
	if err != nil {
		record.Error = err.Error()
	}
	t.recordRun(record)

	return content, err
}

// DelegateInput is the delegation tool's argument shape.
type DelegateInput struct {
	MemberID      string `json:"member_id"`
	Task          string `json:"task"`
	DelegateToAll bool   `json:"delegate_to_all,omitempty"`
}

// delegateSchema is the JSON schema for DelegateInput.
var delegateSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"member_id": {"type": "string", "description": "The roster member to delegate to"},
		"task": {"type": "string", "description": "The task for the member to perform"},
		"delegate_to_all": {"type": "boolean", "description": "Run every member in parallel on this task instead of a single member"}
	},
	"required": ["task"]
}`)

// DelegateTool is the leader's delegation tool. It holds no reference to
// any Team: the team running it is resolved from ctx at Execute time (spec
// §9's cyclic-reference break), so one DelegateTool value can be shared
// across every team's leader registry.
type DelegateTool struct{}

// Spec describes the delegate tool.
func (DelegateTool) Spec() tool.Spec {
	return tool.Spec{
		Name:        "delegate",
		Description: "Delegate a task to a team member, or to all members in parallel.",
		Parameters:  delegateSchema,
	}
}

// Execute resolves the running Team from ctx and performs the delegation.
func (DelegateTool) Execute(ctx context.Context, args json.RawMessage) (tool.Result, error) {
	var input DelegateInput
	if err := json.Unmarshal(args, &input); err != nil {
		return tool.Failuref("invalid delegation arguments: %v", err), nil
	}

	id, ok := teamIDFromContext(ctx)
	if !ok {
		return tool.Failuref("delegate: no team in context"), nil
	}
	t, ok := lookupTeam(id)
	if !ok {
		return tool.Failuref("delegate: unknown team %q", id), nil
	}

	if input.DelegateToAll {
		return t.delegateAll(ctx, input.Task), nil
	}
	if input.MemberID == "" {
		return tool.Failuref("delegate: member_id is required unless delegate_to_all is set"), nil
	}
	return t.delegateOne(ctx, input.MemberID, input.Task), nil
}
