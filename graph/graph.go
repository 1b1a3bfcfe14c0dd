// Package graph implements the StateGraph executor (C7): compiles a node/
// edge graph with per-channel reducers, then executes it as a
// level-synchronous BFS over an active frontier, merging concurrent partial
// updates and resolving conditional routing against freshly-merged state —
// never a statically precomputed stage plan, since routers must see the
// state each level actually produced.
package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentkit-go/agentkit/event"
)

// Start and End are the sentinel node names bracketing every graph.
const (
	Start = "__start__"
	End   = "__end__"
)

// State is a mapping from channel name to value, threaded through node
// executions. Node functions must treat their input State as read-only.
type State map[string]any

// PartialUpdate is the map a node returns: channel name to proposed value.
type PartialUpdate map[string]any

// NodeFunc is one graph node's executable body.
type NodeFunc func(ctx context.Context, state State) (PartialUpdate, error)

// Router resolves a conditional edge's destination against the current
// state, returning a node name or End.
type Router func(ctx context.Context, state State) (string, error)

// Reducer folds two channel values into one. It must be associative and
// commutative so parallel branches can be merged in any order.
type Reducer func(a, b any) any

// ChannelConflict is returned when two nodes in the same level write the
// same reducer-less channel.
type ChannelConflict struct {
	Channel string
	Writers []string
}

func (e *ChannelConflict) Error() string {
	return fmt.Sprintf("graph: channel %q written by multiple nodes without a reducer: %v", e.Channel, e.Writers)
}

// ValidationError is returned by Compile when the graph fails structural
// validation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "graph: " + e.Reason }

type edgeSpec struct {
	from            string
	to              string
	router          Router
	possibleTargets []string
}

// Builder accumulates nodes, edges, and reducers before Compile validates
// and freezes them into a Graph.
type Builder struct {
	nodes    map[string]NodeFunc
	edges    []edgeSpec
	reducers map[string]Reducer
	bus      *event.Bus
	err      error
}

// NewBuilder constructs an empty Builder. bus may be nil to disable event
// emission.
func NewBuilder(bus *event.Bus) *Builder {
	return &Builder{
		nodes:    map[string]NodeFunc{},
		reducers: map[string]Reducer{},
		bus:      bus,
	}
}

// AddNode registers a named node function.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	if b.err != nil {
		return b
	}
	if name == "" || name == Start || name == End {
		b.err = &ValidationError{Reason: fmt.Sprintf("invalid node name %q", name)}
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.err = &ValidationError{Reason: fmt.Sprintf("duplicate node %q", name)}
		return b
	}
	b.nodes[name] = fn
	return b
}

// AddEdge adds an unconditional edge from -> to.
func (b *Builder) AddEdge(from, to string) *Builder {
	if b.err != nil {
		return b
	}
	b.edges = append(b.edges, edgeSpec{from: from, to: to})
	return b
}

// AddConditionalEdge adds a conditional edge: router is evaluated against
// the post-level state to choose among possibleTargets (each a node name or
// End). possibleTargets is required for static validation (orphan and
// dangling-reference detection) even though the router's actual choice is
// resolved at runtime.
func (b *Builder) AddConditionalEdge(from string, router Router, possibleTargets ...string) *Builder {
	if b.err != nil {
		return b
	}
	if router == nil {
		b.err = &ValidationError{Reason: fmt.Sprintf("conditional edge from %q has a nil router", from)}
		return b
	}
	if len(possibleTargets) == 0 {
		b.err = &ValidationError{Reason: fmt.Sprintf("conditional edge from %q declares no possible targets", from)}
		return b
	}
	b.edges = append(b.edges, edgeSpec{from: from, router: router, possibleTargets: possibleTargets})
	return b
}

// SetReducer declares channel's merge semantics. Declaring a second reducer
// for the same channel is rejected: "at most one reducer per channel".
func (b *Builder) SetReducer(channel string, r Reducer) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.reducers[channel]; exists {
		b.err = &ValidationError{Reason: fmt.Sprintf("channel %q already has a reducer", channel)}
		return b
	}
	b.reducers[channel] = r
	return b
}

// Compile validates the accumulated graph and returns an executable Graph.
// Validation: every referenced node exists; START has >=1 outgoing edge;
// END has no outgoing edges; no orphan nodes (every node is reachable via
// some edge's declared target); every channel has at most one reducer
// (enforced incrementally by SetReducer).
func (b *Builder) Compile() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}

	referenced := map[string]bool{}
	endHasOutgoing := false
	startOutgoing := 0

	for _, e := range b.edges {
		if e.from != Start && e.from != End && b.nodes[e.from] == nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("edge references unknown node %q", e.from)}
		}
		if e.from == End {
			endHasOutgoing = true
		}
		if e.from == Start {
			startOutgoing++
		}
		targets := e.possibleTargets
		if e.router == nil {
			targets = []string{e.to}
		}
		for _, t := range targets {
			if t != End && b.nodes[t] == nil {
				return nil, &ValidationError{Reason: fmt.Sprintf("edge from %q references unknown node %q", e.from, t)}
			}
			referenced[t] = true
		}
	}

	if startOutgoing == 0 {
		return nil, &ValidationError{Reason: "START has no outgoing edges"}
	}
	if endHasOutgoing {
		return nil, &ValidationError{Reason: "END must not have outgoing edges"}
	}
	for name := range b.nodes {
		if !referenced[name] {
			return nil, &ValidationError{Reason: fmt.Sprintf("node %q is an orphan (unreachable)", name)}
		}
	}

	edgesByFrom := map[string][]edgeSpec{}
	for _, e := range b.edges {
		edgesByFrom[e.from] = append(edgesByFrom[e.from], e)
	}

	return &Graph{
		nodes:       b.nodes,
		edgesByFrom: edgesByFrom,
		reducers:    b.reducers,
		bus:         b.bus,
	}, nil
}

// Graph is a compiled, executable StateGraph.
type Graph struct {
	nodes       map[string]NodeFunc
	edgesByFrom map[string][]edgeSpec
	reducers    map[string]Reducer
	bus         *event.Bus
}

// Structure describes the compiled graph for introspection/debugging.
type Structure struct {
	Nodes []string
	Edges []EdgeDescription
}

// EdgeDescription is one edge's introspected shape.
type EdgeDescription struct {
	From        string
	To          string // empty for conditional edges
	Conditional bool
	Targets     []string // possible targets for conditional edges
}

// Structure returns the compiled graph's nodes and edges for introspection.
func (g *Graph) Structure() Structure {
	names := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		names = append(names, n)
	}
	sort.Strings(names)

	var edges []EdgeDescription
	for from, specs := range g.edgesByFrom {
		for _, e := range specs {
			if e.router != nil {
				edges = append(edges, EdgeDescription{From: from, Conditional: true, Targets: e.possibleTargets})
			} else {
				edges = append(edges, EdgeDescription{From: from, To: e.to})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].From < edges[j].From })
	return Structure{Nodes: names, Edges: edges}
}

type nodeOutcome struct {
	name   string
	update PartialUpdate
	err    error
}

// Run drives the graph to completion (frontier empties) and returns the
// final state.
func (g *Graph) Run(ctx context.Context, initial State) (State, error) {
	state := cloneState(initial)

	frontier, err := g.resolveSuccessors(ctx, Start, state)
	if err != nil {
		return nil, err
	}

	for len(frontier) > 0 {
		snapshot := cloneState(state)
		outcomes := g.executeLevel(ctx, snapshot, frontier)

		for _, o := range outcomes {
			if o.err != nil {
				return nil, o.err
			}
		}
		if err := g.mergeLevel(state, outcomes); err != nil {
			return nil, err
		}

		nextSet := map[string]bool{}
		for _, o := range outcomes {
			succ, err := g.resolveSuccessors(ctx, o.name, state)
			if err != nil {
				return nil, err
			}
			for _, s := range succ {
				nextSet[s] = true
			}
		}
		frontier = setToSortedSlice(nextSet)
	}

	g.emit(ctx, event.TypeDone, map[string]any{"state": state})
	return state, nil
}

// executeLevel runs every node in frontier concurrently against the same
// state snapshot, so sibling writes within the level never affect reads.
func (g *Graph) executeLevel(ctx context.Context, snapshot State, frontier []string) []nodeOutcome {
	outcomes := make([]nodeOutcome, len(frontier))
	var wg sync.WaitGroup
	for i, name := range frontier {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.emit(ctx, event.TypeNodeStart, map[string]any{"node": name})
			update, err := g.nodes[name](ctx, snapshot)
			outcomes[i] = nodeOutcome{name: name, update: update, err: err}
			payload := map[string]any{"node": name}
			if err != nil {
				payload["error"] = err.Error()
			}
			g.emit(ctx, event.TypeNodeEnd, payload)
		}()
	}
	wg.Wait()
	return outcomes
}

// mergeLevel applies one level's partial updates to state channel-by-
// channel: reducer-less channels written by more than one node fail with
// ChannelConflict; reducer channels fold all of this level's writes (plus
// the channel's existing value, if any) via the declared reducer.
func (g *Graph) mergeLevel(state State, outcomes []nodeOutcome) error {
	writers := map[string][]string{}
	values := map[string][]any{}
	order := []string{}

	for _, o := range outcomes {
		for ch, v := range o.update {
			if _, seen := values[ch]; !seen {
				order = append(order, ch)
			}
			writers[ch] = append(writers[ch], o.name)
			values[ch] = append(values[ch], v)
		}
	}

	for _, ch := range order {
		reducer, hasReducer := g.reducers[ch]
		if len(writers[ch]) > 1 && !hasReducer {
			return &ChannelConflict{Channel: ch, Writers: writers[ch]}
		}
		if !hasReducer {
			state[ch] = values[ch][0]
			continue
		}
		acc, exists := state[ch]
		for _, v := range values[ch] {
			if !exists {
				acc = v
				exists = true
				continue
			}
			acc = reducer(acc, v)
		}
		state[ch] = acc
	}
	return nil
}

// resolveSuccessors evaluates every edge from "from" against state, calling
// routers for conditional edges, and returns the deduped set of real node
// successors (END is excluded: it is a terminal marker, never scheduled).
func (g *Graph) resolveSuccessors(ctx context.Context, from string, state State) ([]string, error) {
	set := map[string]bool{}
	for _, e := range g.edgesByFrom[from] {
		var target string
		if e.router != nil {
			t, err := e.router(ctx, state)
			if err != nil {
				return nil, fmt.Errorf("graph: router from %q failed: %w", from, err)
			}
			target = t
		} else {
			target = e.to
		}
		if target == End {
			continue
		}
		set[target] = true
	}
	return setToSortedSlice(set), nil
}

func (g *Graph) emit(ctx context.Context, typ event.Type, payload any) {
	if g.bus == nil {
		return
	}
	_ = g.bus.Publish(ctx, event.Event{Type: typ, Payload: payload, Timestamp: time.Now()})
}

func cloneState(s State) State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func setToSortedSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
