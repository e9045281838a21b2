package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoSort_DiamondBreaksTiesByID(t *testing.T) {
	// a -> c, a -> b, b -> d, c -> d
	nodes := []Node{
		{ID: "d", Deps: []string{"c", "b"}},
		{ID: "c", Deps: []string{"a"}},
		{ID: "b", Deps: []string{"a"}},
		{ID: "a"},
	}
	order, err := TopoSort(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestTopoSort_SmallestReadyIDFirst(t *testing.T) {
	// z has no deps; b becomes ready only after a, but must still precede z.
	nodes := []Node{
		{ID: "z"},
		{ID: "a"},
		{ID: "b", Deps: []string{"a"}},
	}
	order, err := TopoSort(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "z"}, order)
}

func TestTopoSort_IgnoresUnknownAndDuplicateDeps(t *testing.T) {
	nodes := []Node{
		{ID: "p2", Deps: []string{"p1", "p1", "missing"}},
		{ID: "p1"},
	}
	order, err := TopoSort(nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, order)
}

func TestTopoSort_Deterministic(t *testing.T) {
	nodes := []Node{
		{ID: "e", Deps: []string{"a"}},
		{ID: "d"},
		{ID: "c", Deps: []string{"d", "e"}},
		{ID: "b"},
		{ID: "a"},
	}
	first, err := TopoSort(nodes)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := TopoSort(nodes)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestTopoSort_CycleReturnsPartialOrder(t *testing.T) {
	nodes := []Node{
		{ID: "root"},
		{ID: "x", Deps: []string{"y"}},
		{ID: "y", Deps: []string{"x"}},
	}
	order, err := TopoSort(nodes)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))
	assert.Equal(t, []string{"root"}, order)
}

func TestTopoSort_Empty(t *testing.T) {
	order, err := TopoSort(nil)
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestWouldCreateCycle(t *testing.T) {
	edges := []Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "x", Target: "y"},
	}
	tests := []struct {
		name   string
		source string
		target string
		want   bool
	}{
		{"closing edge", "c", "a", true},
		{"direct back edge", "b", "a", true},
		{"self loop", "a", "a", true},
		{"forward shortcut", "a", "c", false},
		{"unrelated component", "c", "x", false},
		{"unknown nodes", "m", "n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WouldCreateCycle(edges, tt.source, tt.target))
		})
	}
}

func TestReachable_FollowsDirection(t *testing.T) {
	edges := []Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}}
	assert.True(t, Reachable(edges, "a", "c"))
	assert.False(t, Reachable(edges, "c", "a"))
}
