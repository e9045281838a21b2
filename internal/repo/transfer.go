package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"teamplan/internal/domain"
	"teamplan/internal/events"
	"teamplan/internal/graph"
)

// ImportStats counts what an import wrote. SkippedDependencies counts edges
// that named a project missing from the workspace after the import.
type ImportStats struct {
	Teams               int `json:"teams"`
	Projects            int `json:"projects"`
	Dependencies        int `json:"dependencies"`
	SkippedDependencies int `json:"skippedDependencies"`
}

// Import loads an exchange file. With replace the workspace is emptied first;
// otherwise teams and projects are upserted by id and dependencies merged.
// Edges pointing at an unknown project are skipped. The whole import is
// rejected when the resulting graph has a cycle.
func (r Repo) Import(ctx context.Context, f domain.ImportFile, replace bool, actorID string) (ImportStats, error) {
	var stats ImportStats
	for _, t := range f.Teams {
		if t.ID == "" {
			return stats, fmt.Errorf("%w: team without id", ErrInvalid)
		}
		if err := validateTeam(t); err != nil {
			return stats, fmt.Errorf("team %s: %w", t.ID, err)
		}
	}
	projectIDs := make([]string, 0, len(f.Projects))
	for key, p := range f.Projects {
		if p.ID != "" && p.ID != key {
			return stats, fmt.Errorf("%w: project key %s does not match id %s", ErrInvalid, key, p.ID)
		}
		projectIDs = append(projectIDs, key)
	}
	sort.Strings(projectIDs)

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if replace {
			// Cascades to projects and dependencies.
			if _, err := tx.ExecContext(ctx, `DELETE FROM teams`); err != nil {
				return fmt.Errorf("clear workspace: %w", err)
			}
		}
		now := r.now()
		for _, t := range f.Teams {
			if _, err := tx.ExecContext(ctx, `INSERT INTO teams(id,name,capacity,created_at,updated_at) VALUES (?,?,?,?,?)
				ON CONFLICT(id) DO UPDATE SET name=excluded.name, capacity=excluded.capacity, updated_at=excluded.updated_at`,
				t.ID, t.Name, t.Capacity, now, now); err != nil {
				return fmt.Errorf("import team %s: %w", t.ID, err)
			}
			stats.Teams++
		}
		for _, id := range projectIDs {
			p := f.Projects[id]
			p.ID = id
			if err := validateProject(p); err != nil {
				return fmt.Errorf("project %s: %w", id, err)
			}
			if _, err := getTeam(ctx, tx, p.TeamID); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("project %s: team %s: %w", id, p.TeamID, ErrNotFound)
				}
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO projects(id,team_id,title,effort,value,source_project_id,is_linked_copy,position,created_at,updated_at)
				VALUES (?,?,?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM projects),?,?)
				ON CONFLICT(id) DO UPDATE SET team_id=excluded.team_id, title=excluded.title, effort=excluded.effort,
					value=excluded.value, source_project_id=excluded.source_project_id,
					is_linked_copy=excluded.is_linked_copy, updated_at=excluded.updated_at`,
				p.ID, p.TeamID, p.Title, nullableFloat(p.Effort), nullableFloat(p.Value),
				nullableStringPtr(p.SourceProjectID), nullableBool(p.IsLinkedCopy), now, now); err != nil {
				return fmt.Errorf("import project %s: %w", id, err)
			}
			stats.Projects++
		}
		for _, d := range f.Dependencies {
			if d.SourceID == d.TargetID {
				return fmt.Errorf("%s -> %s: %w", d.SourceID, d.TargetID, ErrCycle)
			}
			dangling := false
			for _, id := range []string{d.SourceID, d.TargetID} {
				if _, err := getProject(ctx, tx, id); err != nil {
					if !errors.Is(err, ErrNotFound) {
						return err
					}
					dangling = true
				}
			}
			if dangling {
				stats.SkippedDependencies++
				continue
			}
			res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO dependencies(source_id,target_id,created_at) VALUES (?,?,?)`,
				d.SourceID, d.TargetID, now)
			if err != nil {
				return fmt.Errorf("import dependency %s -> %s: %w", d.SourceID, d.TargetID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				stats.Dependencies++
			}
		}
		if err := checkAcyclic(ctx, tx); err != nil {
			return err
		}
		return r.events().Append(ctx, tx, events.WorkspaceImported, "workspace", "", actorID, events.EventPayload{
			"replace":      replace,
			"teams":        stats.Teams,
			"projects":     stats.Projects,
			"dependencies": stats.Dependencies,
			"skipped":      stats.SkippedDependencies,
		})
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}

func checkAcyclic(ctx context.Context, tx *sql.Tx) error {
	projects, err := listProjects(ctx, tx, "")
	if err != nil {
		return err
	}
	deps, err := listDependencies(ctx, tx)
	if err != nil {
		return err
	}
	nodes := make([]graph.Node, len(projects))
	index := make(map[string]int, len(projects))
	for i, p := range projects {
		nodes[i] = graph.Node{ID: p.ID}
		index[p.ID] = i
	}
	for _, d := range deps {
		if i, ok := index[d.TargetID]; ok {
			nodes[i].Deps = append(nodes[i].Deps, d.SourceID)
		}
	}
	if _, err := graph.TopoSort(nodes); err != nil {
		return fmt.Errorf("import: %w", ErrCycle)
	}
	return nil
}

// Export returns the whole workspace in the exchange format.
func (r Repo) Export(ctx context.Context) (domain.ImportFile, error) {
	s, err := r.Snapshot(ctx)
	if err != nil {
		return domain.ImportFile{}, err
	}
	f := domain.ImportFile{
		Teams:        s.Teams,
		Projects:     make(map[string]domain.Project, len(s.Projects)),
		Dependencies: s.Dependencies,
	}
	if f.Teams == nil {
		f.Teams = []domain.Team{}
	}
	if f.Dependencies == nil {
		f.Dependencies = []domain.Dependency{}
	}
	for _, p := range s.Projects {
		f.Projects[p.ID] = p
	}
	return f, nil
}
