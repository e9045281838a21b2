package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"teamplan/internal/db"
	"teamplan/internal/domain"
	"teamplan/internal/migrate"
	"teamplan/internal/repo"
)

type testEnv struct {
	Repo repo.Repo
	Ctx  context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	r.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Repo: r, Ctx: context.Background()}
}

func (env testEnv) team(t *testing.T, id string, capacity float64) domain.Team {
	t.Helper()
	tm, err := env.Repo.CreateTeam(env.Ctx, domain.Team{ID: id, Name: "Team " + id, Capacity: capacity}, "tester")
	if err != nil {
		t.Fatalf("create team %s: %v", id, err)
	}
	return tm
}

func (env testEnv) project(t *testing.T, id, team string, effort, value *float64) domain.Project {
	t.Helper()
	p, err := env.Repo.CreateProject(env.Ctx, domain.Project{ID: id, TeamID: team, Title: "Project " + id, Effort: effort, Value: value}, "tester")
	if err != nil {
		t.Fatalf("create project %s: %v", id, err)
	}
	return p
}

func TestTeamCRUD(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Repo.CreateTeam(env.Ctx, domain.Team{Name: "Platform", Capacity: 12}, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	name := "Infra"
	capacity := 8.0
	updated, err := env.Repo.UpdateTeam(env.Ctx, created.ID, repo.TeamUpdate{Name: &name, Capacity: &capacity}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Infra" || updated.Capacity != 8 {
		t.Fatalf("unexpected team after update: %+v", updated)
	}
	got, err := env.Repo.GetTeam(env.Ctx, created.ID)
	if err != nil || got != updated {
		t.Fatalf("get: %+v, %v", got, err)
	}
	if _, err := env.Repo.CreateTeam(env.Ctx, domain.Team{ID: created.ID, Name: "dup"}, "tester"); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if _, err := env.Repo.CreateTeam(env.Ctx, domain.Team{Name: "neg", Capacity: -1}, "tester"); !errors.Is(err, repo.ErrInvalid) {
		t.Fatalf("expected invalid error, got %v", err)
	}
	if err := env.Repo.DeleteTeam(env.Ctx, created.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Repo.GetTeam(env.Ctx, created.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProjectKeepsUnsetFields(t *testing.T) {
	env := newTestEnv(t)
	env.team(t, "A", 10)
	p := env.project(t, "p1", "A", nil, domain.Float(3))
	got, err := env.Repo.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Effort != nil || got.Value == nil || *got.Value != 3 {
		t.Fatalf("unexpected fields: %+v", got)
	}

	effort := 4.0
	got, err = env.Repo.UpdateProject(env.Ctx, p.ID, repo.ProjectUpdate{Effort: &effort, ClearValue: true}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Effort == nil || *got.Effort != 4 || got.Value != nil {
		t.Fatalf("unexpected update: %+v", got)
	}
	if _, err := env.Repo.CreateProject(env.Ctx, domain.Project{TeamID: "missing", Title: "x"}, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected missing team error, got %v", err)
	}
}

func TestLinkDependencyRules(t *testing.T) {
	env := newTestEnv(t)
	env.team(t, "A", 10)
	for _, id := range []string{"a", "b", "c"} {
		env.project(t, id, "A", domain.Float(1), domain.Float(1))
	}
	if _, err := env.Repo.LinkDependency(env.Ctx, "a", "b", "tester"); err != nil {
		t.Fatalf("link a->b: %v", err)
	}
	if _, err := env.Repo.LinkDependency(env.Ctx, "b", "c", "tester"); err != nil {
		t.Fatalf("link b->c: %v", err)
	}
	cases := []struct {
		source, target string
		want           error
	}{
		{"a", "a", repo.ErrCycle},
		{"c", "a", repo.ErrCycle},
		{"a", "b", repo.ErrDuplicate},
		{"a", "zzz", repo.ErrNotFound},
	}
	for _, tc := range cases {
		if _, err := env.Repo.LinkDependency(env.Ctx, tc.source, tc.target, "tester"); !errors.Is(err, tc.want) {
			t.Fatalf("link %s->%s: expected %v, got %v", tc.source, tc.target, tc.want, err)
		}
	}
	cycle, err := env.Repo.WouldCreateCycle(env.Ctx, "c", "a")
	if err != nil || !cycle {
		t.Fatalf("expected c->a to be reported as cycle: %v", err)
	}
	cycle, err = env.Repo.WouldCreateCycle(env.Ctx, "a", "c")
	if err != nil || cycle {
		t.Fatalf("a->c is a shortcut, not a cycle: %v", err)
	}

	if err := env.Repo.DeleteProject(env.Ctx, "b", "tester"); err != nil {
		t.Fatalf("delete b: %v", err)
	}
	deps, err := env.Repo.ListDependencies(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 0 {
		t.Fatalf("edges touching b should be gone, got %+v", deps)
	}
	if err := env.Repo.UnlinkDependency(env.Ctx, "a", "c", "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on unlink, got %v", err)
	}
}

func TestDeleteTeamCascades(t *testing.T) {
	env := newTestEnv(t)
	env.team(t, "A", 10)
	env.team(t, "B", 10)
	env.project(t, "a1", "A", domain.Float(1), domain.Float(1))
	env.project(t, "b1", "B", domain.Float(1), domain.Float(1))
	if _, err := env.Repo.LinkDependency(env.Ctx, "a1", "b1", "tester"); err != nil {
		t.Fatal(err)
	}
	if err := env.Repo.DeleteTeam(env.Ctx, "A", "tester"); err != nil {
		t.Fatalf("delete team: %v", err)
	}
	snap, err := env.Repo.Snapshot(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Teams) != 1 || len(snap.Projects) != 1 || snap.Projects[0].ID != "b1" || len(snap.Dependencies) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestCopyProject(t *testing.T) {
	env := newTestEnv(t)
	env.team(t, "A", 10)
	env.team(t, "B", 10)
	env.project(t, "p", "A", domain.Float(2), domain.Float(5))
	cp, err := env.Repo.CopyProject(env.Ctx, "p", "B", "tester")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if cp.TeamID != "B" || cp.SourceProjectID == nil || *cp.SourceProjectID != "p" || cp.IsLinkedCopy == nil || !*cp.IsLinkedCopy {
		t.Fatalf("unexpected copy: %+v", cp)
	}
	got, err := env.Repo.GetProject(env.Ctx, cp.ID)
	if err != nil || got.SourceProjectID == nil || *got.SourceProjectID != "p" {
		t.Fatalf("copy not persisted: %+v, %v", got, err)
	}
	if _, err := env.Repo.CopyProject(env.Ctx, "p", "A", "tester"); !errors.Is(err, repo.ErrInvalid) {
		t.Fatalf("expected same-team copy to fail, got %v", err)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	linked := true
	src := "p1"
	file := domain.ImportFile{
		Teams: []domain.Team{{ID: "A", Name: "Alpha", Capacity: 10}, {ID: "B", Name: "Beta", Capacity: 4}},
		Projects: map[string]domain.Project{
			"p1": {ID: "p1", TeamID: "A", Title: "one", Effort: domain.Float(3), Value: domain.Float(9)},
			"p2": {ID: "p2", TeamID: "B", Title: "two", Effort: nil, Value: domain.Float(1)},
			"p3": {ID: "p3", TeamID: "B", Title: "one copy", Effort: domain.Float(3), Value: domain.Float(9), SourceProjectID: &src, IsLinkedCopy: &linked},
		},
		Dependencies: []domain.Dependency{{SourceID: "p1", TargetID: "p2"}},
	}
	stats, err := env.Repo.Import(env.Ctx, file, true, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Teams != 2 || stats.Projects != 3 || stats.Dependencies != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	out, err := env.Repo.Export(env.Ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(out.Teams) != 2 || len(out.Projects) != 3 || len(out.Dependencies) != 1 {
		t.Fatalf("unexpected export: %+v", out)
	}
	if out.Projects["p2"].Effort != nil {
		t.Fatalf("unset effort lost")
	}
	if p3 := out.Projects["p3"]; p3.SourceProjectID == nil || *p3.SourceProjectID != "p1" || p3.IsLinkedCopy == nil || !*p3.IsLinkedCopy {
		t.Fatalf("linked copy lost: %+v", p3)
	}

	cyclic := domain.ImportFile{Dependencies: []domain.Dependency{{SourceID: "p2", TargetID: "p1"}}}
	if _, err := env.Repo.Import(env.Ctx, cyclic, false, "tester"); !errors.Is(err, repo.ErrCycle) {
		t.Fatalf("expected cycle error, got %v", err)
	}
	deps, _ := env.Repo.ListDependencies(env.Ctx)
	if len(deps) != 1 {
		t.Fatalf("failed import must roll back, got %+v", deps)
	}
}

func TestImportSkipsDanglingDependencies(t *testing.T) {
	env := newTestEnv(t)
	file := domain.ImportFile{
		Teams: []domain.Team{{ID: "A", Name: "Alpha", Capacity: 10}},
		Projects: map[string]domain.Project{
			"p1": {ID: "p1", TeamID: "A", Title: "one", Effort: domain.Float(1), Value: domain.Float(2)},
			"p2": {ID: "p2", TeamID: "A", Title: "two", Effort: domain.Float(1), Value: domain.Float(3)},
		},
		Dependencies: []domain.Dependency{
			{SourceID: "p1", TargetID: "p2"},
			{SourceID: "gone", TargetID: "p2"},
			{SourceID: "p1", TargetID: "gone"},
		},
	}
	stats, err := env.Repo.Import(env.Ctx, file, true, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats != (repo.ImportStats{Teams: 1, Projects: 2, Dependencies: 1, SkippedDependencies: 2}) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	deps, err := env.Repo.ListDependencies(env.Ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deps) != 1 || deps[0] != (domain.Dependency{SourceID: "p1", TargetID: "p2"}) {
		t.Fatalf("unexpected dependencies: %+v", deps)
	}
}

func TestPlansAndEvents(t *testing.T) {
	env := newTestEnv(t)
	env.team(t, "A", 10)
	env.project(t, "p1", "A", domain.Float(1), domain.Float(2))
	res := domain.PrioritizationResult{
		SelectedProjects:   []domain.Project{{ID: "p1", TeamID: "A", Title: "x", Effort: domain.Float(1), Value: domain.Float(2)}},
		UnselectedProjects: []domain.Project{},
		TeamSummaries:      map[string]domain.TeamSummary{"A": {Allocated: 1, Value: 2}},
	}
	plan, err := env.Repo.SavePlan(env.Ctx, domain.Plan{Mode: "optimized", TotalValue: 2, Result: res}, "tester")
	if err != nil {
		t.Fatalf("save plan: %v", err)
	}
	got, err := env.Repo.GetPlan(env.Ctx, plan.ID)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if got.Mode != "optimized" || got.CreatedBy != "tester" || len(got.Result.SelectedProjects) != 1 || got.Result.TeamSummaries["A"].Value != 2 {
		t.Fatalf("unexpected plan: %+v", got)
	}
	plans, err := env.Repo.ListPlans(env.Ctx, 10)
	if err != nil || len(plans) != 1 {
		t.Fatalf("list plans: %d, %v", len(plans), err)
	}

	latest, err := env.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 3 || latest[0].Type != "plan.saved" || latest[2].Type != "team.created" {
		t.Fatalf("unexpected events: %+v", latest)
	}
	after, err := env.Repo.EventsAfter(env.Ctx, 10, latest[2].ID)
	if err != nil || len(after) != 2 || after[0].Type != "project.created" {
		t.Fatalf("events after: %+v, %v", after, err)
	}
	filtered, err := env.Repo.LatestEvents(env.Ctx, 10, repo.EventFilter{EntityKind: "project"})
	if err != nil || len(filtered) != 1 {
		t.Fatalf("filtered events: %+v, %v", filtered, err)
	}
}
