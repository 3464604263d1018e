package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type logRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *logRepo) AppendLog(ctx context.Context, e LogEntry) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var score sql.NullInt64
	if e.Score != nil {
		score = sql.NullInt64{Int64: int64(*e.Score), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO learning_log (sequence, session_key, event, phase_before, phase_after, concept_id, content, score, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum, e.SessionKey, e.Event, e.PhaseBefore, e.PhaseAfter, e.ConceptID, e.Content, score, formatTime(ts))
	if err != nil {
		return fmt.Errorf("save log entry: %w", err)
	}
	return nil
}

func (r *logRepo) QueryLog(ctx context.Context, sessionKey string, opts QueryOpts) ([]LogEntry, error) {
	where, args := pageClause(opts)
	args = append([]any{sessionKey}, args...)

	rows, err := r.db.QueryContext(ctx, `
		SELECT sequence, session_key, event, phase_before, phase_after, concept_id, content, score, timestamp
		FROM learning_log WHERE session_key = ?`+where+` ORDER BY sequence ASC`+limitClause(opts.Limit), args...)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e     LogEntry
			score sql.NullInt64
			ts    string
		)
		if err := rows.Scan(&e.Sequence, &e.SessionKey, &e.Event, &e.PhaseBefore, &e.PhaseAfter, &e.ConceptID, &e.Content, &score, &ts); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		if score.Valid {
			v := int(score.Int64)
			e.Score = &v
		}
		if e.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
