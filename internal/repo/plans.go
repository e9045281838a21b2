package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"teamplan/internal/domain"
	"teamplan/internal/events"
)

// SavePlan persists a prioritization run. ID and CreatedAt are filled in when
// empty.
func (r Repo) SavePlan(ctx context.Context, p domain.Plan, actorID string) (domain.Plan, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = r.now()
	}
	if p.CreatedBy == "" {
		p.CreatedBy = actorID
	}
	data, err := json.Marshal(p.Result)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("marshal plan result: %w", err)
	}
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO plans(id,mode,total_value,fallback,result_json,created_by,created_at) VALUES (?,?,?,?,?,?,?)`,
			p.ID, p.Mode, p.TotalValue, nullableBool(&p.Fallback), string(data), p.CreatedBy, p.CreatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("plan %s: %w", p.ID, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert plan: %w", err)
		}
		return r.events().Append(ctx, tx, events.PlanSaved, "plan", p.ID, actorID, events.EventPayload{
			"mode":        p.Mode,
			"total_value": p.TotalValue,
			"selected":    len(p.Result.SelectedProjects),
			"fallback":    p.Fallback,
		})
	})
	if err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

func scanPlan(row interface{ Scan(...any) error }) (domain.Plan, error) {
	var (
		p    domain.Plan
		data string
	)
	err := row.Scan(&p.ID, &p.Mode, &p.TotalValue, &p.Fallback, &data, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal([]byte(data), &p.Result); err != nil {
		return p, fmt.Errorf("decode plan %s: %w", p.ID, err)
	}
	return p, nil
}

const planColumns = `id,mode,total_value,fallback,result_json,created_by,created_at`

func (r Repo) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	return scanPlan(r.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id=?`, id))
}

// ListPlans returns the newest plans first.
func (r Repo) ListPlans(ctx context.Context, limit int) ([]domain.Plan, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+planColumns+` FROM plans ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
