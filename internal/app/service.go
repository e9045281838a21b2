// Package app wires the workspace store to the prioritization engine.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"teamplan/internal/config"
	"teamplan/internal/db"
	"teamplan/internal/domain"
	"teamplan/internal/engine"
	"teamplan/internal/migrate"
	"teamplan/internal/repo"
	"teamplan/internal/solver"
)

type Service struct {
	DB     *sql.DB
	Repo   repo.Repo
	Engine engine.Engine
	Config *config.Config
	Logger *slog.Logger
}

// Open opens and migrates the workspace database, loads teamplan.yml when
// present, and builds an engine from its planner section.
func Open(ctx context.Context, workspace string, logger *slog.Logger, opts ...engine.Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng, err := NewEngine(cfg.Planner, append([]engine.Option{engine.WithLogger(logger)}, opts...)...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Service{DB: conn, Repo: repo.New(conn), Engine: eng, Config: cfg, Logger: logger}, nil
}

// NewEngine builds an engine from the planner config. Options given later
// override the config.
func NewEngine(p config.Planner, opts ...engine.Option) (engine.Engine, error) {
	strategy, err := engine.ParseStrategy(p.Strategy)
	if err != nil {
		return engine.Engine{}, err
	}
	bb := solver.BranchAndBound{
		Gap:       p.Gap,
		NodeLimit: p.NodeLimit,
		TimeLimit: p.TimeLimit.Std(),
	}
	// A configured gap of 0 asks for a proven optimum.
	if p.Gap == 0 {
		bb.Gap = -1
	}
	base := []engine.Option{
		engine.WithSolver(bb),
		engine.WithStrategy(strategy),
		engine.WithBacktrackMaxProjects(p.BacktrackMaxProjects),
	}
	return engine.New(append(base, opts...)...), nil
}

func (s *Service) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// DefaultMode is the configured mode, or optimized when none is set.
func (s *Service) DefaultMode() engine.Mode {
	if s.Config != nil && s.Config.Planner.DefaultMode != "" {
		if m, err := engine.ParseMode(s.Config.Planner.DefaultMode); err == nil {
			return m
		}
	}
	return engine.ModeOptimized
}

type PrioritizeOptions struct {
	// Mode defaults to DefaultMode when empty.
	Mode    engine.Mode
	Save    bool
	ActorID string
}

type PrioritizeOutcome struct {
	Report engine.Report
	// Plan is set when the run was saved.
	Plan *domain.Plan
}

// Prioritize runs the engine on the current workspace and optionally stores
// the result as a plan.
func (s *Service) Prioritize(ctx context.Context, opts PrioritizeOptions) (PrioritizeOutcome, error) {
	mode := opts.Mode
	if mode == "" {
		mode = s.DefaultMode()
	}
	snap, err := s.Repo.Snapshot(ctx)
	if err != nil {
		return PrioritizeOutcome{}, fmt.Errorf("snapshot: %w", err)
	}
	rep, err := s.Engine.Run(ctx, mode, snap.Projects, snap.Teams, snap.Dependencies)
	if err != nil {
		return PrioritizeOutcome{}, err
	}
	out := PrioritizeOutcome{Report: rep}
	if !opts.Save {
		return out, nil
	}
	plan, err := s.Repo.SavePlan(ctx, domain.Plan{
		Mode:       string(rep.Mode),
		TotalValue: rep.Result.TotalValue(),
		Fallback:   rep.Fallback,
		Result:     rep.Result,
	}, opts.ActorID)
	if err != nil {
		return PrioritizeOutcome{}, fmt.Errorf("save plan: %w", err)
	}
	out.Plan = &plan
	return out, nil
}
