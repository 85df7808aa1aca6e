package database

import (
	"context"
	"fmt"
	"time"
)

// IsDayBlocked reports whether the doctor marked the whole date unavailable.
func (q *Queries) IsDayBlocked(ctx context.Context, doctorID, date string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM day_overrides WHERE doctor_id = ? AND date = ?",
		doctorID, date,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check day override: %w", err)
	}
	return count > 0, nil
}

// SetDayBlocked adds or removes a day override. Both directions are idempotent.
func (q *Queries) SetDayBlocked(ctx context.Context, doctorID, date string, blocked bool) error {
	var err error
	if blocked {
		_, err = q.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO day_overrides (doctor_id, date, created_at) VALUES (?, ?, ?)`,
			doctorID, date, toMillis(time.Now()),
		)
	} else {
		_, err = q.db.ExecContext(ctx,
			"DELETE FROM day_overrides WHERE doctor_id = ? AND date = ?",
			doctorID, date,
		)
	}
	if err != nil {
		return fmt.Errorf("set day override: %w", err)
	}
	return nil
}

// BlockedSessionIDs returns the templates switched off for the date.
func (q *Queries) BlockedSessionIDs(ctx context.Context, doctorID, date string) (map[string]struct{}, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT session_id FROM session_overrides WHERE doctor_id = ? AND date = ?",
		doctorID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query session overrides: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// SetSessionBlocked adds or removes a session override. Both directions are idempotent.
func (q *Queries) SetSessionBlocked(ctx context.Context, doctorID, sessionID, date string, blocked bool) error {
	var err error
	if blocked {
		_, err = q.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO session_overrides (doctor_id, session_id, date, created_at) VALUES (?, ?, ?, ?)`,
			doctorID, sessionID, date, toMillis(time.Now()),
		)
	} else {
		_, err = q.db.ExecContext(ctx,
			"DELETE FROM session_overrides WHERE doctor_id = ? AND session_id = ? AND date = ?",
			doctorID, sessionID, date,
		)
	}
	if err != nil {
		return fmt.Errorf("set session override: %w", err)
	}
	return nil
}
