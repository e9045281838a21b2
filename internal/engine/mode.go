package engine

import (
	"fmt"
	"strings"
)

// Mode selects the planner used by Prioritize.
type Mode string

const (
	ModeSequential Mode = "naive"
	ModeGreedyDeps Mode = "naive-deps"
	ModeOptimized  Mode = "optimized"
)

// Modes lists every supported mode in display order.
var Modes = []Mode{ModeSequential, ModeGreedyDeps, ModeOptimized}

// ParseMode accepts the wire names and their descriptive aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "naive", "sequential":
		return ModeSequential, nil
	case "naive-deps", "greedy-with-dependencies", "greedy":
		return ModeGreedyDeps, nil
	case "optimized", "optimal":
		return ModeOptimized, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, s)
}

func (m Mode) String() string { return string(m) }

// Label is the human readable name shown in tables.
func (m Mode) Label() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeGreedyDeps:
		return "greedy-with-dependencies"
	case ModeOptimized:
		return "optimized"
	}
	return string(m)
}

// Strategy picks the exact search used in optimized mode.
type Strategy string

const (
	StrategyMIP       Strategy = "mip"
	StrategyBacktrack Strategy = "backtrack"
	StrategyAuto      Strategy = "auto"
)

// DefaultBacktrackMaxProjects bounds StrategyAuto's use of backtracking.
const DefaultBacktrackMaxProjects = 16

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StrategyMIP, nil
	case StrategyMIP, StrategyBacktrack, StrategyAuto:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown strategy %q", ErrInvalidArgument, s)
}
