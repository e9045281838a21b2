package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"teamplan/internal/domain"
	"teamplan/internal/engine"
	"teamplan/internal/solver"
)

func project(id, team string, effort, value float64) domain.Project {
	return domain.Project{ID: id, TeamID: team, Title: "Project " + id, Effort: domain.Float(effort), Value: domain.Float(value)}
}

func ids(ps []domain.Project) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestPrioritize_SequentialExample(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Name: "Alpha", Capacity: 10}}
	projects := []domain.Project{project("P1", "A", 5, 10), project("P2", "A", 8, 9)}

	res, err := eng.Prioritize(context.Background(), engine.ModeSequential, projects, teams, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, ids(res.SelectedProjects))
	assert.Equal(t, []string{"P2"}, ids(res.UnselectedProjects))
	assert.Equal(t, domain.TeamSummary{Allocated: 5, Value: 10}, res.TeamSummaries["A"])
}

func TestPrioritize_GreedyDepsExample(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Name: "Alpha", Capacity: 10}}
	projects := []domain.Project{project("P2", "A", 4, 20), project("P1", "A", 4, 8)}
	deps := []domain.Dependency{{SourceID: "P1", TargetID: "P2"}}

	res, err := eng.Prioritize(context.Background(), engine.ModeGreedyDeps, projects, teams, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, ids(res.SelectedProjects))
	assert.Empty(t, res.UnselectedProjects)
	assert.Equal(t, domain.TeamSummary{Allocated: 8, Value: 28}, res.TeamSummaries["A"])
}

func TestPrioritize_DropsEdgeFromUnactionableSource(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Capacity: 10}}
	p3 := project("P3", "A", 2, 0)
	p3.Value = nil
	projects := []domain.Project{project("P2", "A", 3, 5), p3}
	deps := []domain.Dependency{{SourceID: "P3", TargetID: "P2"}}

	for _, mode := range engine.Modes {
		res, err := eng.Prioritize(context.Background(), mode, projects, teams, deps)
		require.NoError(t, err, mode)
		assert.Equal(t, []string{"P2"}, ids(res.SelectedProjects), mode)
		require.Len(t, res.UnselectedProjects, 1)
		assert.Nil(t, res.UnselectedProjects[0].Value, "unset value is kept for display")
	}
}

func TestPrioritize_OptimizedTradeOff(t *testing.T) {
	teams := []domain.Team{{ID: "A", Capacity: 10}}
	projects := []domain.Project{project("P1", "A", 6, 10), project("P2", "A", 6, 11)}

	for _, st := range []engine.Strategy{engine.StrategyMIP, engine.StrategyBacktrack, engine.StrategyAuto} {
		eng := engine.New(engine.WithLogger(quiet()), engine.WithStrategy(st))
		rep, err := eng.Run(context.Background(), engine.ModeOptimized, projects, teams, nil)
		require.NoError(t, err, st)
		assert.False(t, rep.Fallback, st)
		assert.Equal(t, []string{"P2"}, ids(rep.Result.SelectedProjects), st)
		assert.InDelta(t, 11, rep.Result.TotalValue(), 1e-9, st)
	}
}

func TestPrioritize_AutoStrategyThreshold(t *testing.T) {
	teams := []domain.Team{{ID: "A", Capacity: 10}}
	projects := []domain.Project{project("a", "A", 1, 1), project("b", "A", 1, 1), project("c", "A", 1, 1)}

	eng := engine.New(engine.WithLogger(quiet()), engine.WithStrategy(engine.StrategyAuto), engine.WithBacktrackMaxProjects(3))
	rep, err := eng.Run(context.Background(), engine.ModeOptimized, projects, teams, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyBacktrack, rep.Strategy)

	eng = engine.New(engine.WithLogger(quiet()), engine.WithStrategy(engine.StrategyAuto), engine.WithBacktrackMaxProjects(2))
	rep, err = eng.Run(context.Background(), engine.ModeOptimized, projects, teams, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StrategyMIP, rep.Strategy)
}

func TestPrioritize_SolverFailureFallsBackToGreedy(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	failing := solver.SolverFunc(func(context.Context, solver.Problem) (solver.Assignment, error) {
		return solver.Assignment{}, solver.ErrNoSolution
	})
	eng := engine.New(engine.WithLogger(logger), engine.WithSolver(failing))

	teams := []domain.Team{{ID: "A", Capacity: 10}}
	projects := []domain.Project{project("P2", "A", 4, 20), project("P1", "A", 4, 8)}
	deps := []domain.Dependency{{SourceID: "P1", TargetID: "P2"}}

	rep, err := eng.Run(context.Background(), engine.ModeOptimized, projects, teams, deps)
	require.NoError(t, err)
	assert.True(t, rep.Fallback)
	assert.ErrorIs(t, rep.FallbackErr, solver.ErrNoSolution)
	assert.Equal(t, []string{"P1", "P2"}, ids(rep.Result.SelectedProjects))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "using greedy planner")
}

func TestPrioritize_OptimizedOrderIsTopological(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Capacity: 100}, {ID: "B", Capacity: 100}}
	projects := []domain.Project{
		project("z-top", "B", 1, 30),
		project("m-mid", "A", 1, 20),
		project("a-free", "B", 1, 1),
		project("b-base", "A", 1, 10),
	}
	deps := []domain.Dependency{
		{SourceID: "b-base", TargetID: "m-mid"},
		{SourceID: "m-mid", TargetID: "z-top"},
	}
	res, err := eng.Prioritize(context.Background(), engine.ModeOptimized, projects, teams, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-free", "b-base", "m-mid", "z-top"}, ids(res.SelectedProjects))
}

func TestPrioritize_UnknownModeFailsFast(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	_, err := eng.Prioritize(context.Background(), engine.Mode("fastest"), nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument))
}

func TestPrioritize_EmptySelectionStillSummarizesTeams(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Capacity: 1}, {ID: "B", Capacity: 0}}
	projects := []domain.Project{project("big", "A", 5, 10), {ID: "blank", TeamID: "B", Title: "unset"}}

	for _, mode := range engine.Modes {
		res, err := eng.Prioritize(context.Background(), mode, projects, teams, nil)
		require.NoError(t, err)
		assert.NotNil(t, res.SelectedProjects)
		assert.Empty(t, res.SelectedProjects)
		assert.Equal(t, []string{"big", "blank"}, ids(res.UnselectedProjects))
		assert.Equal(t, map[string]domain.TeamSummary{"A": {}, "B": {}}, res.TeamSummaries)
	}
}

func TestPrioritize_ZeroEffortGoesFirst(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Capacity: 3}}
	projects := []domain.Project{
		project("costly", "A", 3, 300),
		project("free-b", "A", 0, 1),
		project("free-a", "A", 0, 1),
	}
	res, err := eng.Prioritize(context.Background(), engine.ModeGreedyDeps, projects, teams, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"free-a", "free-b", "costly"}, ids(res.SelectedProjects))
}

func TestPrioritize_TeamsKeyedByID(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "t1", Name: "Core", Capacity: 5}, {ID: "t2", Name: "Core", Capacity: 5}}
	projects := []domain.Project{project("a", "t1", 5, 10), project("b", "t2", 5, 10)}
	res, err := eng.Prioritize(context.Background(), engine.ModeSequential, projects, teams, nil)
	require.NoError(t, err)
	assert.Len(t, res.SelectedProjects, 2)
	assert.Equal(t, domain.TeamSummary{Allocated: 5, Value: 10}, res.TeamSummaries["t1"])
	assert.Equal(t, domain.TeamSummary{Allocated: 5, Value: 10}, res.TeamSummaries["t2"])
}

func TestPrioritize_UnknownTeamGetsNoSummary(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	teams := []domain.Team{{ID: "A", Capacity: 5}}
	projects := []domain.Project{project("a", "A", 2, 3), project("ghost", "Z", 0, 4)}
	for _, mode := range engine.Modes {
		res, err := eng.Prioritize(context.Background(), mode, projects, teams, nil)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "ghost"}, ids(res.SelectedProjects), mode)
		assert.Equal(t, map[string]domain.TeamSummary{"A": {Allocated: 2, Value: 3}}, res.TeamSummaries, mode)
	}
}

func TestPrioritize_FractionalCapacityIsExact(t *testing.T) {
	teams := []domain.Team{{ID: "A", Capacity: 0.3}}
	projects := []domain.Project{project("x", "A", 0.1, 5), project("y", "A", 0.2, 5)}
	cases := map[string]struct {
		mode engine.Mode
		eng  engine.Engine
	}{
		"naive":      {engine.ModeSequential, engine.New(engine.WithLogger(quiet()))},
		"naive-deps": {engine.ModeGreedyDeps, engine.New(engine.WithLogger(quiet()))},
		"mip":        {engine.ModeOptimized, engine.New(engine.WithLogger(quiet()), engine.WithStrategy(engine.StrategyMIP))},
		"backtrack":  {engine.ModeOptimized, engine.New(engine.WithLogger(quiet()), engine.WithStrategy(engine.StrategyBacktrack))},
	}
	for name, tc := range cases {
		rep, err := tc.eng.Run(context.Background(), tc.mode, projects, teams, nil)
		require.NoError(t, err, name)
		assert.False(t, rep.Fallback, name)
		assert.Equal(t, []string{"x"}, ids(rep.Result.SelectedProjects), name)
		assert.LessOrEqual(t, rep.Result.TeamSummaries["A"].Allocated, 0.3, name)
	}
}

// chainWorkspace is large enough that a one-node search cannot prove anything.
func chainWorkspace() ([]domain.Project, []domain.Team, []domain.Dependency) {
	teams := []domain.Team{{ID: "A", Capacity: 50}}
	var projects []domain.Project
	var deps []domain.Dependency
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("p%02d", i)
		projects = append(projects, project(id, "A", float64(1+i%7), float64(3+(i*7)%11)))
		if i%5 == 4 {
			deps = append(deps, domain.Dependency{SourceID: fmt.Sprintf("p%02d", i-1), TargetID: id})
		}
	}
	return projects, teams, deps
}

func TestPrioritize_TruncatedSearchIsNeverWorseThanGreedy(t *testing.T) {
	projects, teams, deps := chainWorkspace()
	greedy, err := engine.New(engine.WithLogger(quiet())).Run(context.Background(), engine.ModeGreedyDeps, projects, teams, deps)
	require.NoError(t, err)
	require.Positive(t, greedy.Result.TotalValue())

	eng := engine.New(engine.WithLogger(quiet()), engine.WithSolver(solver.BranchAndBound{NodeLimit: 1}))
	rep, err := eng.Run(context.Background(), engine.ModeOptimized, projects, teams, deps)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rep.Result.TotalValue(), greedy.Result.TotalValue())
	if rep.Fallback {
		assert.ErrorIs(t, rep.FallbackErr, solver.ErrLimit)
		assert.Equal(t, ids(greedy.Result.SelectedProjects), ids(rep.Result.SelectedProjects))
	}
}

func TestPrioritize_CancelledSearchFallsBackToGreedy(t *testing.T) {
	projects, teams, deps := chainWorkspace()
	greedy, err := engine.New(engine.WithLogger(quiet())).Run(context.Background(), engine.ModeGreedyDeps, projects, teams, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := engine.New(engine.WithLogger(quiet())).Run(ctx, engine.ModeOptimized, projects, teams, deps)
	require.NoError(t, err)
	assert.True(t, rep.Fallback)
	assert.ErrorIs(t, rep.FallbackErr, solver.ErrLimit)
	assert.Equal(t, ids(greedy.Result.SelectedProjects), ids(rep.Result.SelectedProjects))
	assert.InDelta(t, greedy.Result.TotalValue(), rep.Result.TotalValue(), 1e-9)
}

func TestActionable(t *testing.T) {
	cases := []struct {
		name   string
		effort *float64
		value  *float64
		want   bool
	}{
		{"both set", domain.Float(3), domain.Float(1), true},
		{"zero effort", domain.Float(0), domain.Float(1), true},
		{"zero value", domain.Float(3), domain.Float(0), false},
		{"negative effort", domain.Float(-1), domain.Float(1), false},
		{"missing effort", nil, domain.Float(1), false},
		{"missing value", domain.Float(1), nil, false},
		{"nan effort", domain.Float(math.NaN()), domain.Float(1), false},
		{"infinite value", domain.Float(1), domain.Float(math.Inf(1)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := domain.Project{ID: "x", Effort: tc.effort, Value: tc.value}
			assert.Equal(t, tc.want, engine.Actionable(p))
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]engine.Mode{
		"naive":                    engine.ModeSequential,
		"sequential":               engine.ModeSequential,
		"naive-deps":               engine.ModeGreedyDeps,
		"greedy-with-dependencies": engine.ModeGreedyDeps,
		" Optimized ":              engine.ModeOptimized,
	} {
		got, err := engine.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := engine.ParseMode("random")
	assert.ErrorIs(t, err, engine.ErrInvalidArgument)
}

func randomWorkspace(rng *rand.Rand) ([]domain.Project, []domain.Team, []domain.Dependency) {
	teams := []domain.Team{
		{ID: "A", Capacity: float64(rng.Intn(15))},
		{ID: "B", Capacity: float64(rng.Intn(15))},
		{ID: "C", Capacity: float64(rng.Intn(15))},
	}
	n := 4 + rng.Intn(9)
	var projects []domain.Project
	for i := 0; i < n; i++ {
		p := domain.Project{ID: fmt.Sprintf("p%02d", i), TeamID: teams[rng.Intn(len(teams))].ID, Title: "t"}
		if rng.Intn(8) > 0 {
			p.Effort = domain.Float(float64(rng.Intn(7)))
		}
		if rng.Intn(8) > 0 {
			p.Value = domain.Float(float64(rng.Intn(25)))
		}
		projects = append(projects, p)
	}
	var deps []domain.Dependency
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			if rng.Intn(5) == 0 {
				deps = append(deps, domain.Dependency{SourceID: projects[j].ID, TargetID: projects[i].ID})
			}
		}
	}
	return projects, teams, deps
}

func TestPrioritize_Invariants(t *testing.T) {
	eng := engine.New(engine.WithLogger(quiet()))
	rng := rand.New(rand.NewSource(99))
	for round := 0; round < 40; round++ {
		projects, teams, deps := randomWorkspace(rng)
		before := append([]domain.Project(nil), projects...)

		values := map[engine.Mode]float64{}
		for _, mode := range engine.Modes {
			res, err := eng.Prioritize(context.Background(), mode, projects, teams, deps)
			require.NoError(t, err)

			// Partition.
			seen := map[string]int{}
			for _, p := range res.SelectedProjects {
				seen[p.ID]++
			}
			for _, p := range res.UnselectedProjects {
				seen[p.ID]++
			}
			require.Len(t, seen, len(projects))
			for id, c := range seen {
				require.Equal(t, 1, c, "round %d %s: %s appears %d times", round, mode, id, c)
			}

			// Capacity.
			for _, team := range teams {
				require.LessOrEqual(t, res.TeamSummaries[team.ID].Allocated, team.Capacity)
			}

			// Precedence among actionable projects.
			if mode != engine.ModeSequential {
				picked := map[string]bool{}
				actionable := map[string]bool{}
				for _, p := range projects {
					actionable[p.ID] = engine.Actionable(p)
				}
				for _, p := range res.SelectedProjects {
					picked[p.ID] = true
				}
				for _, d := range deps {
					if actionable[d.SourceID] && actionable[d.TargetID] && picked[d.TargetID] {
						require.True(t, picked[d.SourceID], "round %d %s: %s without %s", round, mode, d.TargetID, d.SourceID)
					}
				}
			}

			// Determinism.
			again, err := eng.Prioritize(context.Background(), mode, projects, teams, deps)
			require.NoError(t, err)
			require.Equal(t, ids(res.SelectedProjects), ids(again.SelectedProjects))

			values[mode] = res.TotalValue()
		}
		assert.GreaterOrEqual(t, values[engine.ModeOptimized]*(1+solver.DefaultGap)+1e-9, values[engine.ModeGreedyDeps], "round %d", round)
		require.True(t, reflect.DeepEqual(before, projects), "input mutated")
	}
}

func TestPrioritize_RecordsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	failing := solver.SolverFunc(func(context.Context, solver.Problem) (solver.Assignment, error) {
		return solver.Assignment{}, solver.ErrLimit
	})
	eng := engine.New(engine.WithLogger(quiet()), engine.WithTracer(tp.Tracer("test")), engine.WithSolver(failing))

	teams := []domain.Team{{ID: "A", Capacity: 5}}
	projects := []domain.Project{project("P1", "A", 2, 4), project("P2", "A", 2, 3)}
	_, err := eng.Prioritize(context.Background(), engine.ModeOptimized, projects, teams, nil)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "engine.Prioritize", span.Name)
	attrs := map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "optimized", attrs["mode"])
	assert.Equal(t, "2", attrs["projects"])
	assert.Equal(t, "2", attrs["selected"])
	assert.Equal(t, "true", attrs["fallback"])
	require.NotEmpty(t, span.Events)
	assert.Equal(t, "exception", span.Events[0].Name)

	exporter.Reset()
	_, err = eng.Prioritize(context.Background(), engine.Mode("bogus"), projects, teams, nil)
	require.Error(t, err)
	spans = exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
