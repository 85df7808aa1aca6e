package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telecare/internal/domain"
	"telecare/internal/models"

	"github.com/google/uuid"
)

const sessionColumns = `id, doctor_id, day_of_week, start_time, end_time, duration_minutes, fee, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*models.SessionTemplate, error) {
	var s models.SessionTemplate
	var createdAt, updatedAt int64
	if err := row.Scan(&s.ID, &s.DoctorID, &s.DayOfWeek, &s.StartTime, &s.EndTime,
		&s.DurationMinutes, &s.Fee, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = fromMillis(createdAt)
	s.UpdatedAt = fromMillis(updatedAt)
	return &s, nil
}

// CreateSession inserts a new template, assigning an ID when empty.
func (q *Queries) CreateSession(ctx context.Context, s *models.SessionTemplate) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DoctorID, s.DayOfWeek, s.StartTime, s.EndTime,
		s.DurationMinutes, s.Fee, toMillis(now), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSession replaces the mutable fields of an existing template.
func (q *Queries) UpdateSession(ctx context.Context, s *models.SessionTemplate) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `
		UPDATE sessions
		SET day_of_week = ?, start_time = ?, end_time = ?, duration_minutes = ?, fee = ?, updated_at = ?
		WHERE id = ?`,
		s.DayOfWeek, s.StartTime, s.EndTime, s.DurationMinutes, s.Fee, toMillis(s.UpdatedAt), s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteSession removes a template and its session overrides.
func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if _, err := q.db.ExecContext(ctx, `DELETE FROM session_overrides WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session overrides: %w", err)
	}
	return nil
}

// GetSession returns a template by ID.
func (q *Queries) GetSession(ctx context.Context, id string) (*models.SessionTemplate, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListSessions returns every template of a doctor ordered by weekday and start.
func (q *Queries) ListSessions(ctx context.Context, doctorID string) ([]models.SessionTemplate, error) {
	return q.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE doctor_id = ?
		ORDER BY day_of_week, start_time`, doctorID)
}

// ListSessionsByDay returns the templates of a doctor for one weekday.
func (q *Queries) ListSessionsByDay(ctx context.Context, doctorID string, dayOfWeek int) ([]models.SessionTemplate, error) {
	return q.querySessions(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE doctor_id = ? AND day_of_week = ?
		ORDER BY start_time`, doctorID, dayOfWeek)
}

func (q *Queries) querySessions(ctx context.Context, query string, args ...any) ([]models.SessionTemplate, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.SessionTemplate
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
