package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"teamplan/internal/domain"
	"teamplan/internal/events"
)

const projectColumns = `id,team_id,title,effort,value,source_project_id,is_linked_copy`

func scanProject(row interface{ Scan(...any) error }) (domain.Project, error) {
	var (
		p      domain.Project
		effort sql.NullFloat64
		value  sql.NullFloat64
		source sql.NullString
		linked sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.TeamID, &p.Title, &effort, &value, &source, &linked)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if effort.Valid {
		p.Effort = domain.Float(effort.Float64)
	}
	if value.Valid {
		p.Value = domain.Float(value.Float64)
	}
	if source.Valid {
		s := source.String
		p.SourceProjectID = &s
	}
	if linked.Valid {
		b := linked.Int64 != 0
		p.IsLinkedCopy = &b
	}
	return p, nil
}

func validateProject(p domain.Project) error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: project title is required", ErrInvalid)
	}
	if p.TeamID == "" {
		return fmt.Errorf("%w: project team is required", ErrInvalid)
	}
	for name, v := range map[string]*float64{"effort": p.Effort, "value": p.Value} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: project %s must be a finite number", ErrInvalid, name)
		}
	}
	return nil
}

func (r Repo) CreateProject(ctx context.Context, p domain.Project, actorID string) (domain.Project, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if err := validateProject(p); err != nil {
		return domain.Project{}, err
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertProject(ctx, tx, p, r.now()); err != nil {
			return err
		}
		return r.events().Append(ctx, tx, events.ProjectCreated, "project", p.ID, actorID, projectPayload(p))
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func insertProject(ctx context.Context, tx *sql.Tx, p domain.Project, now string) error {
	if _, err := getTeam(ctx, tx, p.TeamID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("team %s: %w", p.TeamID, ErrNotFound)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,team_id,title,effort,value,source_project_id,is_linked_copy,position,created_at,updated_at)
		VALUES (?,?,?,?,?,?,?,(SELECT COALESCE(MAX(position),0)+1 FROM projects),?,?)`,
		p.ID, p.TeamID, p.Title, nullableFloat(p.Effort), nullableFloat(p.Value),
		nullableStringPtr(p.SourceProjectID), nullableBool(p.IsLinkedCopy), now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("project %s: %w", p.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func projectPayload(p domain.Project) events.EventPayload {
	payload := events.EventPayload{"team_id": p.TeamID, "title": p.Title}
	if p.Effort != nil {
		payload["effort"] = *p.Effort
	}
	if p.Value != nil {
		payload["value"] = *p.Value
	}
	return payload
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return getProject(ctx, r.DB, id)
}

func getProject(ctx context.Context, q querier, id string) (domain.Project, error) {
	return scanProject(q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
}

// ListProjects returns projects in creation order, optionally for one team.
func (r Repo) ListProjects(ctx context.Context, teamID string) ([]domain.Project, error) {
	return listProjects(ctx, r.DB, teamID)
}

func listProjects(ctx context.Context, q querier, teamID string) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []any
	if teamID != "" {
		query += ` WHERE team_id=?`
		args = append(args, teamID)
	}
	query += ` ORDER BY position, id`
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate holds the fields to change. ClearEffort and ClearValue reset
// the field to unset, which makes the project unactionable.
type ProjectUpdate struct {
	TeamID      *string
	Title       *string
	Effort      *float64
	Value       *float64
	ClearEffort bool
	ClearValue  bool
}

func (r Repo) UpdateProject(ctx context.Context, id string, u ProjectUpdate, actorID string) (domain.Project, error) {
	var out domain.Project
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		p, err := getProject(ctx, tx, id)
		if err != nil {
			return err
		}
		payload := events.EventPayload{}
		if u.TeamID != nil && *u.TeamID != p.TeamID {
			if _, err := getTeam(ctx, tx, *u.TeamID); err != nil {
				return fmt.Errorf("team %s: %w", *u.TeamID, err)
			}
			p.TeamID = *u.TeamID
			payload["team_id"] = p.TeamID
		}
		if u.Title != nil {
			p.Title = *u.Title
			payload["title"] = p.Title
		}
		switch {
		case u.ClearEffort:
			p.Effort = nil
			payload["effort"] = nil
		case u.Effort != nil:
			p.Effort = domain.Float(*u.Effort)
			payload["effort"] = *u.Effort
		}
		switch {
		case u.ClearValue:
			p.Value = nil
			payload["value"] = nil
		case u.Value != nil:
			p.Value = domain.Float(*u.Value)
			payload["value"] = *u.Value
		}
		out = p
		if len(payload) == 0 {
			return nil
		}
		if err := validateProject(p); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET team_id=?,title=?,effort=?,value=?,updated_at=? WHERE id=?`,
			p.TeamID, p.Title, nullableFloat(p.Effort), nullableFloat(p.Value), r.now(), p.ID); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		return r.events().Append(ctx, tx, events.ProjectUpdated, "project", p.ID, actorID, payload)
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}

// DeleteProject removes a project and every dependency edge touching it.
func (r Repo) DeleteProject(ctx context.Context, id, actorID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return r.events().Append(ctx, tx, events.ProjectDeleted, "project", id, actorID, nil)
	})
}

// CopyProject creates a linked copy of a project on another team. The copy
// starts with the source's effort and value and is planned independently.
func (r Repo) CopyProject(ctx context.Context, id, teamID, actorID string) (domain.Project, error) {
	var out domain.Project
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		src, err := getProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if teamID == src.TeamID {
			return fmt.Errorf("%w: copy must target a different team", ErrInvalid)
		}
		linked := true
		origin := src.ID
		if src.SourceProjectID != nil {
			origin = *src.SourceProjectID
		}
		cp := domain.Project{
			ID:              newID(),
			TeamID:          teamID,
			Title:           src.Title,
			Effort:          src.Effort,
			Value:           src.Value,
			SourceProjectID: &origin,
			IsLinkedCopy:    &linked,
		}
		if err := insertProject(ctx, tx, cp, r.now()); err != nil {
			return err
		}
		out = cp
		payload := projectPayload(cp)
		payload["source_project_id"] = origin
		return r.events().Append(ctx, tx, events.ProjectCreated, "project", cp.ID, actorID, payload)
	})
	if err != nil {
		return domain.Project{}, err
	}
	return out, nil
}
