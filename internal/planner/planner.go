// Package planner holds the selection algorithms. Every planner takes an Input
// made only of actionable projects and returns the selected ids; none of them
// mutate the input.
package planner

import (
	"math"
	"sort"

	"teamplan/internal/graph"
)

// Input is one planning problem. Deps on each node must already be restricted
// to ids present in Nodes; Capacity is keyed by the node Team field. A team
// missing from Capacity has no capacity.
type Input struct {
	Nodes    []graph.Node
	Capacity map[string]float64
}

// within reports whether effort still fits a team that has used some of its
// capacity. Planners keep a running sum of taken effort in selection order,
// the same order result totals are summed in, so a selection that fits here
// never totals more than the capacity.
func within(used, effort, capacity float64) bool {
	return used+effort <= capacity
}

// budget is the per-team effort taken so far by one planner run.
type budget struct {
	capacity map[string]float64
	used     map[string]float64
}

func (in Input) budget() budget {
	return budget{capacity: in.Capacity, used: make(map[string]float64, len(in.Capacity))}
}

func (b budget) fits(n graph.Node) bool {
	return within(b.used[n.Team], n.Effort, b.capacity[n.Team])
}

func (b budget) take(n graph.Node) {
	b.used[n.Team] += n.Effort
}

// Sequential takes projects by descending value, ignoring dependencies. A
// project that does not fit its team's remaining capacity is skipped for good.
// Equal values keep input order.
func Sequential(in Input) []string {
	order := make([]graph.Node, len(in.Nodes))
	copy(order, in.Nodes)
	sort.SliceStable(order, func(i, j int) bool { return order[i].Value > order[j].Value })

	b := in.budget()
	var selected []string
	for _, n := range order {
		if b.fits(n) {
			b.take(n)
			selected = append(selected, n.ID)
		}
	}
	return selected
}

// Ratio is value per unit of effort; zero effort ranks above everything.
func Ratio(n graph.Node) float64 {
	if n.Effort == 0 {
		return math.Inf(1)
	}
	return n.Value / n.Effort
}

// GreedyDeps repeatedly takes the best value/effort project whose dependencies
// are all taken and whose team can still afford it. Ties on ratio go to the
// higher value, then the smaller id. It stops as soon as nothing available
// fits.
func GreedyDeps(in Input) []string {
	index := make(map[string]int, len(in.Nodes))
	for i, n := range in.Nodes {
		index[n.ID] = i
	}
	waiting := make([]int, len(in.Nodes))
	dependents := make([][]int, len(in.Nodes))
	for i, n := range in.Nodes {
		seen := make(map[string]bool, len(n.Deps))
		for _, dep := range n.Deps {
			j, ok := index[dep]
			if !ok || seen[dep] {
				continue
			}
			seen[dep] = true
			waiting[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var frontier []int
	for i := range in.Nodes {
		if waiting[i] == 0 {
			frontier = append(frontier, i)
		}
	}

	b := in.budget()
	var selected []string
	for len(frontier) > 0 {
		sort.Slice(frontier, func(a, b int) bool {
			na, nb := in.Nodes[frontier[a]], in.Nodes[frontier[b]]
			ra, rb := Ratio(na), Ratio(nb)
			if ra != rb {
				return ra > rb
			}
			if na.Value != nb.Value {
				return na.Value > nb.Value
			}
			return na.ID < nb.ID
		})

		pick := -1
		kept := frontier[:0]
		for _, i := range frontier {
			n := in.Nodes[i]
			switch {
			case pick < 0 && b.fits(n):
				pick = i
			case b.fits(n):
				kept = append(kept, i)
			}
			// Projects that do not fit now never will: used effort only grows.
		}
		if pick < 0 {
			break
		}
		frontier = kept

		n := in.Nodes[pick]
		b.take(n)
		selected = append(selected, n.ID)
		for _, d := range dependents[pick] {
			waiting[d]--
			if waiting[d] == 0 {
				frontier = append(frontier, d)
			}
		}
	}
	return selected
}
