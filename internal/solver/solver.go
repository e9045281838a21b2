// Package solver defines the binary integer program the optimizing planner
// emits and a branch-and-bound implementation on top of gonum's simplex.
package solver

import (
	"context"
	"errors"
)

var (
	// ErrNoSolution means the problem has no feasible assignment.
	ErrNoSolution = errors.New("no feasible solution")
	// ErrLimit means the search stopped on a node/time limit before finding any
	// feasible assignment.
	ErrLimit = errors.New("solver limit reached without a solution")
)

// Term is one coefficient * variable product.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is sum(Terms) <= Bound.
type Constraint struct {
	Name  string
	Terms []Term
	Bound float64
}

// Problem maximizes sum(Objective[i] * x[i]) over binary x subject to every
// constraint. Start, when set, is a known assignment solvers may use as their
// first incumbent.
type Problem struct {
	Objective   []float64
	Constraints []Constraint
	Start       []bool
}

// Assignment is a solver answer. Optimal is false when the search stopped early
// or pruned within the configured gap. Truncated means a node, time or context
// limit cut the search short, so Values is only the best assignment seen.
type Assignment struct {
	Values    []bool
	Objective float64
	Optimal   bool
	Truncated bool
	Nodes     int
}

// Solver solves binary programs. Implementations must not retain the problem.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Assignment, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, p Problem) (Assignment, error)

func (f SolverFunc) Solve(ctx context.Context, p Problem) (Assignment, error) {
	return f(ctx, p)
}

// Feasible reports whether values satisfies every constraint of p within tol.
// Left-hand sides are summed in Terms order.
func (p Problem) Feasible(values []bool, tol float64) bool {
	for _, c := range p.Constraints {
		var lhs float64
		for _, t := range c.Terms {
			if values[t.Var] {
				lhs += t.Coef
			}
		}
		if lhs > c.Bound+tol {
			return false
		}
	}
	return true
}

// Value evaluates the objective for values.
func (p Problem) Value(values []bool) float64 {
	var total float64
	for i, on := range values {
		if on {
			total += p.Objective[i]
		}
	}
	return total
}
