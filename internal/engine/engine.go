// Package engine turns a snapshot of teams, projects and dependencies into a
// prioritization. It holds no state between calls and never mutates its
// inputs, so one Engine may serve concurrent callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"teamplan/internal/domain"
	"teamplan/internal/graph"
	"teamplan/internal/planner"
	"teamplan/internal/solver"
)

// ErrInvalidArgument marks programming errors such as an unknown mode.
var ErrInvalidArgument = errors.New("invalid argument")

type Engine struct {
	Solver               solver.Solver
	Strategy             Strategy
	BacktrackMaxProjects int
	Logger               *slog.Logger
	Tracer               trace.Tracer
	Now                  func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.Logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		if tracer != nil {
			e.Tracer = tracer
		}
	}
}

// WithSolver replaces the branch-and-bound solver used for StrategyMIP.
func WithSolver(s solver.Solver) Option {
	return func(e *Engine) {
		if s != nil {
			e.Solver = s
		}
	}
}

func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s != "" {
			e.Strategy = s
		}
	}
}

// WithBacktrackMaxProjects sets the largest actionable set StrategyAuto hands
// to the backtracking search.
func WithBacktrackMaxProjects(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.BacktrackMaxProjects = n
		}
	}
}

func New(opts ...Option) Engine {
	e := Engine{
		Solver:               solver.BranchAndBound{},
		Strategy:             StrategyMIP,
		BacktrackMaxProjects: DefaultBacktrackMaxProjects,
		Logger:               slog.Default(),
		Tracer:               noop.NewTracerProvider().Tracer("teamplan/engine"),
		Now:                  time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) tracer() trace.Tracer {
	if e.Tracer != nil {
		return e.Tracer
	}
	return noop.NewTracerProvider().Tracer("teamplan/engine")
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Report is a prioritization plus how it was produced.
type Report struct {
	Result     domain.PrioritizationResult
	Mode       Mode
	Strategy   Strategy // empty unless Mode is ModeOptimized
	Actionable int
	// Fallback is set when the optimized search failed and the greedy
	// planner produced the result instead.
	Fallback    bool
	FallbackErr error
	Duration    time.Duration
}

// Prioritize selects projects under each team's capacity using the planner for
// mode. Only an unknown mode is an error; solver failures fall back to the
// greedy dependency-aware planner.
func (e Engine) Prioritize(ctx context.Context, mode Mode, projects []domain.Project, teams []domain.Team, deps []domain.Dependency) (domain.PrioritizationResult, error) {
	rep, err := e.Run(ctx, mode, projects, teams, deps)
	if err != nil {
		return domain.PrioritizationResult{}, err
	}
	return rep.Result, nil
}

// Run is Prioritize with the details callers persist alongside the result.
func (e Engine) Run(ctx context.Context, mode Mode, projects []domain.Project, teams []domain.Team, deps []domain.Dependency) (Report, error) {
	ctx, span := e.tracer().Start(ctx, "engine.Prioritize")
	defer span.End()
	span.SetAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("projects", len(projects)),
	)

	start := e.now()
	in := buildInput(projects, teams, deps)
	rep := Report{Mode: mode, Actionable: len(in.Nodes)}

	log := e.logger().With("mode", string(mode))
	log.Debug("prioritize start", "projects", len(projects), "actionable", len(in.Nodes), "teams", len(teams), "dependencies", len(deps))

	var selected []string
	switch mode {
	case ModeSequential:
		selected = planner.Sequential(in)
	case ModeGreedyDeps:
		selected = planner.GreedyDeps(in)
	case ModeOptimized:
		rep.Strategy = e.strategyFor(len(in.Nodes))
		ids, err := e.optimize(ctx, rep.Strategy, in)
		if err != nil {
			log.Warn("optimized search failed, using greedy planner",
				"strategy", string(rep.Strategy),
				"actionable", len(in.Nodes),
				"error", err,
			)
			span.RecordError(err)
			rep.Fallback = true
			rep.FallbackErr = err
			ids = planner.GreedyDeps(in)
		}
		selected = ids
	default:
		err := fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, string(mode))
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}

	rep.Result = assemble(selected, projects, teams)
	rep.Duration = e.now().Sub(start)

	span.SetAttributes(
		attribute.Int("selected", len(rep.Result.SelectedProjects)),
		attribute.Bool("fallback", rep.Fallback),
	)
	log.Debug("prioritize done",
		"selected", len(rep.Result.SelectedProjects),
		"unselected", len(rep.Result.UnselectedProjects),
		"total_value", rep.Result.TotalValue(),
		"fallback", rep.Fallback,
		"duration", rep.Duration,
	)
	return rep, nil
}

func (e Engine) strategyFor(actionable int) Strategy {
	switch e.Strategy {
	case StrategyBacktrack:
		return StrategyBacktrack
	case StrategyAuto:
		limit := e.BacktrackMaxProjects
		if limit <= 0 {
			limit = DefaultBacktrackMaxProjects
		}
		if actionable <= limit {
			return StrategyBacktrack
		}
	}
	return StrategyMIP
}

func (e Engine) optimize(ctx context.Context, st Strategy, in planner.Input) ([]string, error) {
	if st == StrategyBacktrack {
		return planner.Backtrack(in)
	}
	s := e.Solver
	if s == nil {
		s = solver.BranchAndBound{}
	}
	return planner.Optimal(ctx, in, s)
}

// number coerces an optional field for filtering; unset and non-finite values
// report ok=false.
func number(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

// Actionable reports whether p can be planned: effort and value both set,
// effort >= 0 and value > 0.
func Actionable(p domain.Project) bool {
	effort, okE := number(p.Effort)
	value, okV := number(p.Value)
	return okE && okV && effort >= 0 && value > 0
}

// buildInput keeps the actionable projects and the edges between them. An edge
// whose source is not actionable is dropped, which leaves its target free to be
// selected on its own.
func buildInput(projects []domain.Project, teams []domain.Team, deps []domain.Dependency) planner.Input {
	in := planner.Input{Capacity: make(map[string]float64, len(teams))}
	for _, t := range teams {
		in.Capacity[t.ID] = t.Capacity
	}

	index := make(map[string]int, len(projects))
	for _, p := range projects {
		if _, dup := index[p.ID]; dup || !Actionable(p) {
			continue
		}
		index[p.ID] = len(in.Nodes)
		in.Nodes = append(in.Nodes, graph.Node{
			ID:     p.ID,
			Team:   p.TeamID,
			Effort: *p.Effort,
			Value:  *p.Value,
		})
	}
	for _, d := range deps {
		_, okSrc := index[d.SourceID]
		ti, okDst := index[d.TargetID]
		if !okSrc || !okDst || d.SourceID == d.TargetID {
			continue
		}
		in.Nodes[ti].Deps = append(in.Nodes[ti].Deps, d.SourceID)
	}
	return in
}

// assemble splits the input projects by the planner's selection. Selected
// projects follow the planner's order; the rest keep input order. Every input
// team gets a summary even when nothing of it was selected, and only input
// teams get one.
func assemble(selected []string, projects []domain.Project, teams []domain.Team) domain.PrioritizationResult {
	res := domain.PrioritizationResult{
		SelectedProjects:   make([]domain.Project, 0, len(selected)),
		UnselectedProjects: make([]domain.Project, 0, len(projects)-len(selected)),
		TeamSummaries:      make(map[string]domain.TeamSummary, len(teams)),
	}
	for _, t := range teams {
		res.TeamSummaries[t.ID] = domain.TeamSummary{}
	}

	byID := make(map[string]domain.Project, len(projects))
	for _, p := range projects {
		if _, ok := byID[p.ID]; !ok {
			byID[p.ID] = p
		}
	}
	picked := make(map[string]bool, len(selected))
	for _, id := range selected {
		p, ok := byID[id]
		if !ok || picked[id] {
			continue
		}
		picked[id] = true
		res.SelectedProjects = append(res.SelectedProjects, p)

		s, ok := res.TeamSummaries[p.TeamID]
		if !ok {
			continue
		}
		effort, _ := number(p.Effort)
		value, _ := number(p.Value)
		s.Allocated += effort
		s.Value += value
		res.TeamSummaries[p.TeamID] = s
	}
	for _, p := range projects {
		if !picked[p.ID] {
			res.UnselectedProjects = append(res.UnselectedProjects, p)
		}
	}
	return res
}
