package planner

import (
	"fmt"
	"sort"

	"teamplan/internal/graph"
)

// frame is one pending branch of the include/exclude search. Every frame owns
// its used capacities and selection; children get copies.
type frame struct {
	index    int
	value    float64
	used     []float64
	selected []bool
}

// Backtrack finds a maximum-value selection by exhaustive include/exclude search
// over the topological order, pruning branches that break a dependency, exceed
// a capacity, or cannot beat the best value found so far. It is exponential and
// meant for small inputs. The selection is returned in topological order.
func Backtrack(in Input) ([]string, error) {
	order, err := graph.TopoSort(in.Nodes)
	if err != nil {
		return nil, fmt.Errorf("backtrack: %w", err)
	}
	byID := make(map[string]graph.Node, len(in.Nodes))
	for _, n := range in.Nodes {
		byID[n.ID] = n
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	teams := make([]string, 0, len(in.Capacity))
	for team := range in.Capacity {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	teamIdx := make(map[string]int, len(teams))
	for i, team := range teams {
		teamIdx[team] = i
	}

	type item struct {
		team   int // -1 when the team has no capacity entry
		effort float64
		value  float64
		deps   []int
	}
	items := make([]item, len(order))
	for i, id := range order {
		n := byID[id]
		it := item{team: -1, effort: n.Effort, value: n.Value}
		if t, ok := teamIdx[n.Team]; ok {
			it.team = t
		}
		for _, dep := range n.Deps {
			if p, ok := pos[dep]; ok {
				it.deps = append(it.deps, p)
			}
		}
		items[i] = it
	}

	// suffix[i] is the value still obtainable from items[i:].
	suffix := make([]float64, len(items)+1)
	for i := len(items) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + items[i].value
	}

	caps := make([]float64, len(teams))
	for i, team := range teams {
		caps[i] = in.Capacity[team]
	}
	stack := []frame{{used: make([]float64, len(teams)), selected: make([]bool, len(items))}}

	var best []bool
	bestVal := -1.0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.index == len(items) {
			if f.value > bestVal {
				bestVal = f.value
				best = f.selected
			}
			continue
		}
		if f.value+suffix[f.index] <= bestVal {
			continue
		}

		it := items[f.index]
		stack = append(stack, frame{index: f.index + 1, value: f.value, used: f.used, selected: f.selected})

		if canInclude(it.team, it.effort, it.deps, f, caps) {
			used := append([]float64(nil), f.used...)
			if it.team >= 0 {
				used[it.team] += it.effort
			}
			selected := append([]bool(nil), f.selected...)
			selected[f.index] = true
			// Pushed last so the include branch is explored first.
			stack = append(stack, frame{index: f.index + 1, value: f.value + it.value, used: used, selected: selected})
		}
	}

	var ids []string
	for i, on := range best {
		if on {
			ids = append(ids, order[i])
		}
	}
	return ids, nil
}

func canInclude(team int, effort float64, deps []int, f frame, caps []float64) bool {
	for _, d := range deps {
		if !f.selected[d] {
			return false
		}
	}
	if team < 0 {
		return within(0, effort, 0)
	}
	return within(f.used[team], effort, caps[team])
}
