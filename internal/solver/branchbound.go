package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	DefaultGap       = 0.005
	DefaultNodeLimit = 200000
	DefaultTimeLimit = 10 * time.Second

	intTol  = 1e-6
	feasTol = 1e-9
	lpTol   = 1e-10
)

// BranchAndBound solves binary programs by depth-first branch and bound over
// LP relaxations. Gap is the relative optimality gap: a node is pruned once its
// relaxation cannot beat the incumbent by more than Gap. Zero values fall back to
// the package defaults; a negative Gap or limit disables it.
type BranchAndBound struct {
	Gap       float64
	NodeLimit int
	TimeLimit time.Duration
	Now       func() time.Time
}

type bbNode struct {
	fixed []int8 // -1 free, 0 or 1 fixed
}

func (b BranchAndBound) gap() float64 {
	switch {
	case b.Gap == 0:
		return DefaultGap
	case b.Gap < 0:
		return 0
	}
	return b.Gap
}

func (b BranchAndBound) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Solve implements Solver.
func (b BranchAndBound) Solve(ctx context.Context, p Problem) (Assignment, error) {
	n := len(p.Objective)
	for _, c := range p.Constraints {
		for _, t := range c.Terms {
			if t.Var < 0 || t.Var >= n {
				return Assignment{}, fmt.Errorf("constraint %q references variable %d of %d", c.Name, t.Var, n)
			}
		}
	}

	nodeLimit := b.NodeLimit
	if nodeLimit == 0 {
		nodeLimit = DefaultNodeLimit
	}
	timeLimit := b.TimeLimit
	if timeLimit == 0 {
		timeLimit = DefaultTimeLimit
	}
	var deadline time.Time
	if timeLimit > 0 {
		deadline = b.now().Add(timeLimit)
	}
	gap := b.gap()

	var (
		best     []bool
		bestVal  = math.Inf(-1)
		nodes    int
		complete = true
	)
	zero := make([]bool, n)
	if p.Feasible(zero, 0) {
		best, bestVal = zero, 0
	}
	if len(p.Start) == n && p.Feasible(p.Start, 0) {
		if val := p.Value(p.Start); best == nil || val > bestVal {
			best, bestVal = append([]bool(nil), p.Start...), val
		}
	}

	root := bbNode{fixed: make([]int8, n)}
	for i := range root.fixed {
		root.fixed[i] = -1
	}
	stack := []bbNode{root}

	for len(stack) > 0 {
		if nodeLimit > 0 && nodes >= nodeLimit {
			complete = false
			break
		}
		if err := ctx.Err(); err != nil {
			complete = false
			break
		}
		if !deadline.IsZero() && b.now().After(deadline) {
			complete = false
			break
		}

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		rel, err := relax(p, node.fixed)
		if errors.Is(err, ErrNoSolution) {
			continue
		}
		if err != nil {
			return Assignment{}, err
		}
		if best != nil && !improves(rel.bound, bestVal, gap) {
			continue
		}

		branchVar := -1
		bestFrac := 1.0
		for i, v := range rel.x {
			if node.fixed[i] >= 0 {
				continue
			}
			frac := math.Abs(v - math.Round(v))
			if frac <= intTol {
				continue
			}
			// Prefer the most fractional variable; ties keep the lower index.
			if d := math.Abs(v - 0.5); d < bestFrac {
				bestFrac = d
				branchVar = i
			}
		}

		if branchVar < 0 {
			cand := make([]bool, n)
			for i, v := range rel.x {
				cand[i] = math.Round(v) == 1
			}
			if p.Feasible(cand, 0) {
				if val := p.Value(cand); val > bestVal+feasTol {
					best, bestVal = cand, val
				}
				continue
			}
			// Rounded relaxation drifted infeasible; branch on the first free
			// variable instead.
			for i, f := range node.fixed {
				if f < 0 {
					branchVar = i
					break
				}
			}
			if branchVar < 0 {
				continue
			}
		}

		down := bbNode{fixed: append([]int8(nil), node.fixed...)}
		down.fixed[branchVar] = 0
		up := bbNode{fixed: append([]int8(nil), node.fixed...)}
		up.fixed[branchVar] = 1
		// Explore the "take it" branch first.
		stack = append(stack, down, up)
	}

	if best == nil {
		if !complete {
			return Assignment{Nodes: nodes, Truncated: true}, ErrLimit
		}
		return Assignment{Nodes: nodes}, ErrNoSolution
	}
	return Assignment{
		Values:    best,
		Objective: bestVal,
		Optimal:   complete && gap == 0,
		Truncated: !complete,
		Nodes:     nodes,
	}, nil
}

func improves(bound, incumbent, gap float64) bool {
	threshold := incumbent + gap*math.Abs(incumbent)
	return bound > threshold+feasTol
}

type relaxation struct {
	bound float64
	x     []float64 // full-length; fixed variables hold their fixed value
}

// relax solves the LP relaxation of p with the given variables fixed. It returns
// ErrNoSolution when the node is infeasible.
func relax(p Problem, fixed []int8) (relaxation, error) {
	n := len(p.Objective)
	x := make([]float64, n)
	var fixedObj float64
	var free []int
	col := make([]int, n)
	for i, f := range fixed {
		switch f {
		case 1:
			x[i] = 1
			fixedObj += p.Objective[i]
		case 0:
		default:
			col[i] = len(free)
			free = append(free, i)
		}
	}

	type row struct {
		coefs []float64
		rhs   float64
	}
	var rows []row
	for _, c := range p.Constraints {
		rhs := c.Bound
		coefs := make([]float64, len(free))
		var active bool
		minLHS := 0.0
		for _, t := range c.Terms {
			switch fixed[t.Var] {
			case 1:
				rhs -= t.Coef
			case 0:
			default:
				coefs[col[t.Var]] += t.Coef
				active = true
			}
		}
		for _, a := range coefs {
			if a < 0 {
				minLHS += a
			}
		}
		if minLHS > rhs+feasTol {
			return relaxation{}, ErrNoSolution
		}
		if !active {
			continue
		}
		rows = append(rows, row{coefs: coefs, rhs: rhs})
	}

	if len(free) == 0 {
		return relaxation{bound: fixedObj, x: x}, nil
	}

	// x_j <= 1 for every free variable.
	for j := range free {
		coefs := make([]float64, len(free))
		coefs[j] = 1
		rows = append(rows, row{coefs: coefs, rhs: 1})
	}

	// Standard form: [A | I] [x; s] = b, x, s >= 0.
	m := len(rows)
	cols := len(free) + m
	data := make([]float64, m*cols)
	b := make([]float64, m)
	nonNeg := true
	for r, rw := range rows {
		copy(data[r*cols:], rw.coefs)
		data[r*cols+len(free)+r] = 1
		b[r] = rw.rhs
		if rw.rhs < 0 {
			nonNeg = false
		}
	}
	c := make([]float64, cols)
	for j, v := range free {
		c[j] = -p.Objective[v]
	}
	var basis []int
	if nonNeg {
		basis = make([]int, m)
		for r := range basis {
			basis[r] = len(free) + r
		}
	}

	optF, optX, err := lp.Simplex(c, mat.NewDense(m, cols, data), b, lpTol, basis)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return relaxation{}, ErrNoSolution
		}
		return relaxation{}, fmt.Errorf("lp relaxation: %w", err)
	}
	for j, v := range free {
		x[v] = clamp01(optX[j])
	}
	return relaxation{bound: fixedObj - optF, x: x}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
