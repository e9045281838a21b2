package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"teamplan/internal/domain"
	"teamplan/internal/events"
)

// Repo is the SQLite-backed workspace store. Every mutation appends an event
// in the same transaction.
type Repo struct {
	DB     *sql.DB
	Events events.Writer
	Now    func() time.Time
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
	ErrCycle     = errors.New("dependency would create a cycle")
	ErrInvalid   = errors.New("invalid input")
)

func New(db *sql.DB) Repo {
	return Repo{DB: db, Events: events.Writer{}, Now: time.Now}
}

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func (r Repo) events() events.Writer {
	w := r.Events
	if w.Now == nil {
		w.Now = r.Now
	}
	return w
}

// inTx runs fn in a transaction and commits when it returns nil.
func (r Repo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func newID() string {
	return uuid.NewString()
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	if *v {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const teamColumns = `id,name,capacity`

func scanTeam(row interface{ Scan(...any) error }) (domain.Team, error) {
	var t domain.Team
	err := row.Scan(&t.ID, &t.Name, &t.Capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

func validateTeam(t domain.Team) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalid)
	}
	if t.Capacity < 0 {
		return fmt.Errorf("%w: team capacity must not be negative", ErrInvalid)
	}
	return nil
}

func (r Repo) CreateTeam(ctx context.Context, t domain.Team, actorID string) (domain.Team, error) {
	if t.ID == "" {
		t.ID = newID()
	}
	if err := validateTeam(t); err != nil {
		return domain.Team{}, err
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertTeam(ctx, tx, t, r.now()); err != nil {
			return err
		}
		return r.events().Append(ctx, tx, events.TeamCreated, "team", t.ID, actorID, events.EventPayload{
			"name": t.Name, "capacity": t.Capacity,
		})
	})
	if err != nil {
		return domain.Team{}, err
	}
	return t, nil
}

func insertTeam(ctx context.Context, tx *sql.Tx, t domain.Team, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO teams(id,name,capacity,created_at,updated_at) VALUES (?,?,?,?,?)`,
		t.ID, t.Name, t.Capacity, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("team %s: %w", t.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (r Repo) GetTeam(ctx context.Context, id string) (domain.Team, error) {
	return getTeam(ctx, r.DB, id)
}

func getTeam(ctx context.Context, q querier, id string) (domain.Team, error) {
	return scanTeam(q.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=?`, id))
}

func (r Repo) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return listTeams(ctx, r.DB)
}

func listTeams(ctx context.Context, q querier) ([]domain.Team, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TeamUpdate holds the fields to change; nil fields are left alone.
type TeamUpdate struct {
	Name     *string
	Capacity *float64
}

func (r Repo) UpdateTeam(ctx context.Context, id string, u TeamUpdate, actorID string) (domain.Team, error) {
	var out domain.Team
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		t, err := getTeam(ctx, tx, id)
		if err != nil {
			return err
		}
		payload := events.EventPayload{}
		if u.Name != nil {
			t.Name = *u.Name
			payload["name"] = t.Name
		}
		if u.Capacity != nil {
			t.Capacity = *u.Capacity
			payload["capacity"] = t.Capacity
		}
		if len(payload) == 0 {
			out = t
			return nil
		}
		if err := validateTeam(t); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE teams SET name=?,capacity=?,updated_at=? WHERE id=?`,
			t.Name, t.Capacity, r.now(), t.ID); err != nil {
			return fmt.Errorf("update team: %w", err)
		}
		out = t
		return r.events().Append(ctx, tx, events.TeamUpdated, "team", t.ID, actorID, payload)
	})
	if err != nil {
		return domain.Team{}, err
	}
	return out, nil
}

// DeleteTeam removes a team with its projects and their dependencies.
func (r Repo) DeleteTeam(ctx context.Context, id, actorID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var projects int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects WHERE team_id=?`, id).Scan(&projects); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id=?`, id)
		if err != nil {
			return fmt.Errorf("delete team: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return r.events().Append(ctx, tx, events.TeamDeleted, "team", id, actorID, events.EventPayload{"projects_removed": projects})
	})
}

// Snapshot is the state one prioritization runs against.
type Snapshot struct {
	Teams        []domain.Team
	Projects     []domain.Project
	Dependencies []domain.Dependency
}

// Snapshot reads teams, projects and dependencies in one read transaction so
// the three lists are consistent with each other.
func (r Repo) Snapshot(ctx context.Context) (Snapshot, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer tx.Rollback()
	var s Snapshot
	if s.Teams, err = listTeams(ctx, tx); err != nil {
		return Snapshot{}, fmt.Errorf("list teams: %w", err)
	}
	if s.Projects, err = listProjects(ctx, tx, ""); err != nil {
		return Snapshot{}, fmt.Errorf("list projects: %w", err)
	}
	if s.Dependencies, err = listDependencies(ctx, tx); err != nil {
		return Snapshot{}, fmt.Errorf("list dependencies: %w", err)
	}
	return s, tx.Commit()
}
