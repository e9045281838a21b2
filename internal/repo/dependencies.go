package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"teamplan/internal/domain"
	"teamplan/internal/events"
	"teamplan/internal/graph"
)

func (r Repo) ListDependencies(ctx context.Context) ([]domain.Dependency, error) {
	return listDependencies(ctx, r.DB)
}

func listDependencies(ctx context.Context, q querier) ([]domain.Dependency, error) {
	rows, err := q.QueryContext(ctx, `SELECT source_id,target_id FROM dependencies ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dependency
	for rows.Next() {
		var d domain.Dependency
		if err := rows.Scan(&d.SourceID, &d.TargetID); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func edges(deps []domain.Dependency) []graph.Edge {
	out := make([]graph.Edge, len(deps))
	for i, d := range deps {
		out[i] = graph.Edge{Source: d.SourceID, Target: d.TargetID}
	}
	return out
}

// WouldCreateCycle reports whether linking source -> target would close a
// cycle with the stored dependencies.
func (r Repo) WouldCreateCycle(ctx context.Context, sourceID, targetID string) (bool, error) {
	if sourceID == targetID {
		return true, nil
	}
	deps, err := r.ListDependencies(ctx)
	if err != nil {
		return false, err
	}
	return graph.WouldCreateCycle(edges(deps), sourceID, targetID), nil
}

// LinkDependency records that target depends on source. Self loops, unknown
// projects, existing edges and edges that would close a cycle are rejected.
func (r Repo) LinkDependency(ctx context.Context, sourceID, targetID, actorID string) (domain.Dependency, error) {
	d := domain.Dependency{SourceID: sourceID, TargetID: targetID}
	if sourceID == "" || targetID == "" {
		return domain.Dependency{}, fmt.Errorf("%w: source and target are required", ErrInvalid)
	}
	if sourceID == targetID {
		return domain.Dependency{}, fmt.Errorf("%w: project %s cannot depend on itself", ErrCycle, sourceID)
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []string{sourceID, targetID} {
			if _, err := getProject(ctx, tx, id); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("project %s: %w", id, ErrNotFound)
				}
				return err
			}
		}
		existing, err := listDependencies(ctx, tx)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e == d {
				return fmt.Errorf("dependency %s -> %s: %w", sourceID, targetID, ErrDuplicate)
			}
		}
		if graph.WouldCreateCycle(edges(existing), sourceID, targetID) {
			return fmt.Errorf("%s -> %s: %w", sourceID, targetID, ErrCycle)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO dependencies(source_id,target_id,created_at) VALUES (?,?,?)`,
			sourceID, targetID, r.now()); err != nil {
			return fmt.Errorf("insert dependency: %w", err)
		}
		return r.events().Append(ctx, tx, events.DependencyLinked, "dependency", targetID, actorID, events.EventPayload{
			"source_id": sourceID, "target_id": targetID,
		})
	})
	if err != nil {
		return domain.Dependency{}, err
	}
	return d, nil
}

func (r Repo) UnlinkDependency(ctx context.Context, sourceID, targetID, actorID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE source_id=? AND target_id=?`, sourceID, targetID)
		if err != nil {
			return fmt.Errorf("delete dependency: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return r.events().Append(ctx, tx, events.DependencyUnlinked, "dependency", targetID, actorID, events.EventPayload{
			"source_id": sourceID, "target_id": targetID,
		})
	})
}
