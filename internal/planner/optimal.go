package planner

import (
	"context"
	"fmt"
	"sort"

	"teamplan/internal/graph"
	"teamplan/internal/solver"
)

// Formulation is the binary program for an Input. Variable i stands for
// project Order[i].
type Formulation struct {
	Order   []string
	Problem solver.Problem
}

// Formulate encodes in as a binary program: maximize total value, one capacity
// row per team, and x[target] - x[source] <= 0 for every dependency edge.
// Variables follow topological order.
func Formulate(in Input) (Formulation, error) {
	order, err := graph.TopoSort(in.Nodes)
	if err != nil {
		return Formulation{}, fmt.Errorf("formulate: %w", err)
	}
	byID := make(map[string]graph.Node, len(in.Nodes))
	for _, n := range in.Nodes {
		byID[n.ID] = n
	}
	varOf := make(map[string]int, len(order))
	objective := make([]float64, len(order))
	teamTerms := make(map[string][]solver.Term)
	for i, id := range order {
		n := byID[id]
		varOf[id] = i
		objective[i] = n.Value
		teamTerms[n.Team] = append(teamTerms[n.Team], solver.Term{Var: i, Coef: n.Effort})
	}

	teams := make([]string, 0, len(teamTerms))
	for team := range teamTerms {
		teams = append(teams, team)
	}
	sort.Strings(teams)

	var constraints []solver.Constraint
	for _, team := range teams {
		constraints = append(constraints, solver.Constraint{
			Name:  "capacity:" + team,
			Terms: teamTerms[team],
			Bound: in.Capacity[team],
		})
	}
	for i, id := range order {
		seen := make(map[string]bool)
		for _, dep := range byID[id].Deps {
			src, ok := varOf[dep]
			if !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			constraints = append(constraints, solver.Constraint{
				Name:  "dependency:" + dep + "->" + id,
				Terms: []solver.Term{{Var: i, Coef: 1}, {Var: src, Coef: -1}},
				Bound: 0,
			})
		}
	}

	return Formulation{
		Order:   order,
		Problem: solver.Problem{Objective: objective, Constraints: constraints},
	}, nil
}

// Optimal solves in with s and returns the selected ids in topological order.
// The GreedyDeps selection is handed to the solver as its starting point. Any
// solver error, an answer that violates a constraint, or a truncated search
// that found nothing better than the starting point is returned as an error;
// callers decide how to recover.
func Optimal(ctx context.Context, in Input, s solver.Solver) ([]string, error) {
	f, err := Formulate(in)
	if err != nil {
		return nil, err
	}
	if len(f.Order) == 0 {
		return nil, nil
	}
	f.Problem.Start = f.assignment(GreedyDeps(in))
	a, err := s.Solve(ctx, f.Problem)
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	if len(a.Values) != len(f.Order) {
		return nil, fmt.Errorf("solve: got %d values for %d variables", len(a.Values), len(f.Order))
	}
	if !f.Problem.Feasible(a.Values, 0) {
		return nil, fmt.Errorf("solve: %w: assignment violates constraints", solver.ErrNoSolution)
	}
	if a.Truncated && f.Problem.Value(a.Values) <= f.Problem.Value(f.Problem.Start) {
		return nil, fmt.Errorf("solve: %w after %d nodes", solver.ErrLimit, a.Nodes)
	}
	var ids []string
	for i, on := range a.Values {
		if on {
			ids = append(ids, f.Order[i])
		}
	}
	return ids, nil
}

// assignment maps selected ids onto the formulation's variables.
func (f Formulation) assignment(ids []string) []bool {
	pos := make(map[string]int, len(f.Order))
	for i, id := range f.Order {
		pos[id] = i
	}
	values := make([]bool, len(f.Order))
	for _, id := range ids {
		if i, ok := pos[id]; ok {
			values[i] = true
		}
	}
	return values
}
