// Package graph holds the dependency-graph helpers shared by the planners and the
// store: Kahn topological ordering and the reachability check used to refuse
// edges that would close a cycle.
package graph

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned by TopoSort when not every node could be ordered.
var ErrCycle = errors.New("dependency cycle")

// Node is one project as seen by the planners. Deps lists prerequisite ids.
type Node struct {
	ID     string
	Team   string
	Value  float64
	Effort float64
	Deps   []string
}

// Edge points from a prerequisite (Source) to its dependent (Target).
type Edge struct {
	Source string
	Target string
}

// TopoSort orders nodes so each appears after all of its dependencies, using
// Kahn's algorithm. Whenever several nodes are ready the smallest id goes first,
// so identical input always yields the identical order. Dependency ids that are
// not in the node set are ignored.
//
// If the graph has a cycle the nodes that could be ordered are returned together
// with an error wrapping ErrCycle.
func TopoSort(nodes []Node) ([]string, error) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n.ID] = true
	}

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
		seen := make(map[string]bool, len(n.Deps))
		for _, dep := range n.Deps {
			if !known[dep] || seen[dep] {
				continue
			}
			seen[dep] = true
			inDegree[n.ID]++
			dependents[dep] = append(dependents[dep], n.ID)
		}
	}

	var ready []string
	for id, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(inDegree))
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		for _, succ := range dependents[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready = insertSorted(ready, succ)
			}
		}
	}

	if len(order) != len(inDegree) {
		return order, fmt.Errorf("topological sort: %w (%d of %d nodes ordered)", ErrCycle, len(order), len(inDegree))
	}
	return order, nil
}

func insertSorted(list []string, id string) []string {
	i := sort.SearchStrings(list, id)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = id
	return list
}

// Reachable reports whether to can be reached from from by following edges in
// the source -> target direction.
func Reachable(edges []Edge, from, to string) bool {
	if from == to {
		return true
	}
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[cur] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// WouldCreateCycle reports whether adding source -> target to edges closes a
// cycle, i.e. target already reaches source. A self-loop always does.
func WouldCreateCycle(edges []Edge, source, target string) bool {
	return Reachable(edges, target, source)
}
