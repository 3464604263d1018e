package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type sessionRepo struct {
	db *sql.DB
}

func (r *sessionRepo) Load(ctx context.Context, key string) (*SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key, goal_id, goal_name, phase, active_concept, data, created_at, updated_at
		FROM sessions WHERE key = ?`, key)

	var (
		rec              SessionRecord
		data             string
		created, updated string
	)
	err := row.Scan(&rec.Key, &rec.GoalID, &rec.GoalName, &rec.Phase, &rec.ActiveConcept, &data, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", key, err)
	}

	rec.Data = []byte(data)
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *sessionRepo) Save(ctx context.Context, rec *SessionRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("save session: empty key")
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = updated
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (key, goal_id, goal_name, phase, active_concept, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			goal_id = excluded.goal_id,
			goal_name = excluded.goal_name,
			phase = excluded.phase,
			active_concept = excluded.active_concept,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		rec.Key, rec.GoalID, rec.GoalName, rec.Phase, rec.ActiveConcept, string(rec.Data),
		formatTime(created), formatTime(updated))
	if err != nil {
		return fmt.Errorf("save session %q: %w", rec.Key, err)
	}
	return nil
}

func (r *sessionRepo) List(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, goal_id, goal_name, phase, active_concept, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`+limitClause(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec              SessionRecord
			created, updated string
		)
		if err := rows.Scan(&rec.Key, &rec.GoalID, &rec.GoalName, &rec.Phase, &rec.ActiveConcept, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if rec.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *sessionRepo) Delete(ctx context.Context, key string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", key, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete session %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session %q: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("session %q: %w", key, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM learning_log WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("delete log for %q: %w", key, err)
	}
	return tx.Commit()
}
