package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompileRejectsMissingStartEdge(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("a", func(ctx context.Context, s State) (PartialUpdate, error) { return nil, nil })
	b.AddEdge("a", End)
	_, err := b.Compile()
	require.Error(t, err)
}

func TestCompileRejectsOrphanNode(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("a", func(ctx context.Context, s State) (PartialUpdate, error) { return nil, nil })
	b.AddNode("orphan", func(ctx context.Context, s State) (PartialUpdate, error) { return nil, nil })
	b.AddEdge(Start, "a")
	b.AddEdge("a", End)
	_, err := b.Compile()
	require.Error(t, err)
}

func TestCompileRejectsEndWithOutgoingEdge(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("a", func(ctx context.Context, s State) (PartialUpdate, error) { return nil, nil })
	b.AddEdge(Start, "a")
	b.AddEdge("a", End)
	b.AddEdge(End, "a")
	_, err := b.Compile()
	require.Error(t, err)
}

func TestCompileRejectsDuplicateReducer(t *testing.T) {
	b := NewBuilder(nil)
	b.SetReducer("count", func(a, b any) any { return a })
	b.SetReducer("count", func(a, b any) any { return b })
	_, err := b.Compile()
	require.Error(t, err)
}

func TestRunLinearChain(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("double", func(ctx context.Context, s State) (PartialUpdate, error) {
		n := s["n"].(int)
		return PartialUpdate{"n": n * 2}, nil
	})
	b.AddNode("increment", func(ctx context.Context, s State) (PartialUpdate, error) {
		n := s["n"].(int)
		return PartialUpdate{"n": n + 1}, nil
	})
	b.AddEdge(Start, "double")
	b.AddEdge("double", "increment")
	b.AddEdge("increment", End)

	g, err := b.Compile()
	require.NoError(t, err)

	out, err := g.Run(context.Background(), State{"n": 5})
	require.NoError(t, err)
	require.Equal(t, 11, out["n"])
}

func TestRunParallelBranchesWithReducer(t *testing.T) {
	b := NewBuilder(nil)
	b.SetReducer("total", func(a, b any) any { return a.(int) + b.(int) })
	b.AddNode("left", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"total": 10}, nil
	})
	b.AddNode("right", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"total": 20}, nil
	})
	b.AddNode("join", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"joined": s["total"]}, nil
	})
	b.AddEdge(Start, "left")
	b.AddEdge(Start, "right")
	b.AddEdge("left", "join")
	b.AddEdge("right", "join")
	b.AddEdge("join", End)

	g, err := b.Compile()
	require.NoError(t, err)

	out, err := g.Run(context.Background(), State{})
	require.NoError(t, err)
	require.Equal(t, 30, out["total"])
	require.Equal(t, 30, out["joined"])
}

func TestRunParallelBranchesWithoutReducerConflicts(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("left", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"result": "left"}, nil
	})
	b.AddNode("right", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"result": "right"}, nil
	})
	b.AddEdge(Start, "left")
	b.AddEdge(Start, "right")
	b.AddEdge("left", End)
	b.AddEdge("right", End)

	g, err := b.Compile()
	require.NoError(t, err)

	_, err = g.Run(context.Background(), State{})
	require.Error(t, err)
	var conflict *ChannelConflict
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "result", conflict.Channel)
}

func TestRunConditionalEdgeRoutesOnPostLevelState(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("classify", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"score": 7}, nil
	})
	b.AddNode("high", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"bucket": "high"}, nil
	})
	b.AddNode("low", func(ctx context.Context, s State) (PartialUpdate, error) {
		return PartialUpdate{"bucket": "low"}, nil
	})
	b.AddEdge(Start, "classify")
	b.AddConditionalEdge("classify", func(ctx context.Context, s State) (string, error) {
		if s["score"].(int) >= 5 {
			return "high", nil
		}
		return "low", nil
	}, "high", "low")
	b.AddEdge("high", End)
	b.AddEdge("low", End)

	g, err := b.Compile()
	require.NoError(t, err)

	out, err := g.Run(context.Background(), State{})
	require.NoError(t, err)
	require.Equal(t, "high", out["bucket"])
}

func TestStructureReportsNodesAndEdges(t *testing.T) {
	b := NewBuilder(nil)
	b.AddNode("a", func(ctx context.Context, s State) (PartialUpdate, error) { return nil, nil })
	b.AddEdge(Start, "a")
	b.AddEdge("a", End)

	g, err := b.Compile()
	require.NoError(t, err)

	structure := g.Structure()
	require.Equal(t, []string{"a"}, structure.Nodes)
	require.Len(t, structure.Edges, 2)
}
