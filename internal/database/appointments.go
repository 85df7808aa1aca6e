package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"telecare/internal/domain"
	"telecare/internal/models"

	"github.com/google/uuid"
)

const appointmentColumns = `id, doctor_id, user_id, session_id, date, start_ms, end_ms, duration_minutes, fee,
	appointment_status, payment_status, payment_method, cancel_reason, created_at, updated_at`

func scanAppointment(row interface{ Scan(...any) error }) (*models.Appointment, error) {
	var a models.Appointment
	var startMs, endMs, createdAt, updatedAt int64
	var status, payment string
	err := row.Scan(&a.ID, &a.DoctorID, &a.UserID, &a.SessionID, &a.Date, &startMs, &endMs,
		&a.DurationMinutes, &a.Fee, &status, &payment, &a.PaymentMethod, &a.CancelReason,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Start = fromMillis(startMs)
	a.End = fromMillis(endMs)
	a.AppointmentStatus = models.AppointmentStatus(status)
	a.PaymentStatus = models.PaymentStatus(payment)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}

// InsertAppointment stores a new appointment. A second live booking of the
// same doctor slot fails with domain.ErrSlotAlreadyBooked.
func (q *Queries) InsertAppointment(ctx context.Context, a *models.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DoctorID, a.UserID, a.SessionID, a.Date, toMillis(a.Start), toMillis(a.End),
		a.DurationMinutes, a.Fee, string(a.AppointmentStatus), string(a.PaymentStatus),
		a.PaymentMethod, a.CancelReason, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrSlotAlreadyBooked
	}
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// CancelBooked moves a booked appointment to cancelled/refunded. It returns
// false when the appointment was not booked, so only one caller ever wins.
func (q *Queries) CancelBooked(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE appointments
		SET appointment_status = ?, payment_status = ?, cancel_reason = ?, updated_at = ?
		WHERE id = ? AND appointment_status = ?`,
		string(models.StatusCancelled), string(models.PaymentRefunded), reason, toMillis(at),
		id, string(models.StatusBooked),
	)
	if err != nil {
		return false, fmt.Errorf("cancel appointment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel appointment rows: %w", err)
	}
	return n == 1, nil
}

// GetAppointment returns an appointment by ID.
func (q *Queries) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// ListAppointments returns one page of a doctor's appointments ordered by
// start, plus the number of rows matching the filter.
func (q *Queries) ListAppointments(ctx context.Context, doctorID string, filter domain.AppointmentFilter, page, limit int) ([]models.Appointment, int, error) {
	where := []string{"doctor_id = ?"}
	args := []any{doctorID}
	if filter.AppointmentStatus != "" {
		where = append(where, "appointment_status = ?")
		args = append(args, string(filter.AppointmentStatus))
	}
	if filter.StartDate != "" {
		where = append(where, "date >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where = append(where, "date <= ?")
		args = append(args, filter.EndDate)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM appointments WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	if page < 1 {
		page = 1
	}
	pageArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	list, err := q.queryAppointments(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE `+cond+
			` ORDER BY start_ms, id LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListExpiredBooked returns booked appointments that ended before now. An
// empty doctorID matches every doctor.
func (q *Queries) ListExpiredBooked(ctx context.Context, doctorID string, now time.Time) ([]models.Appointment, error) {
	return q.queryAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE appointment_status = ? AND end_ms < ? AND (? = '' OR doctor_id = ?)
		ORDER BY end_ms`,
		string(models.StatusBooked), toMillis(now), doctorID, doctorID,
	)
}

// DoctorsWithExpired lists doctors that still have booked appointments past their end.
func (q *Queries) DoctorsWithExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT DISTINCT doctor_id FROM appointments
		WHERE appointment_status = ? AND end_ms < ?
		ORDER BY doctor_id`,
		string(models.StatusBooked), toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired doctors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBookedFrom returns a doctor's booked appointments dated on or after fromDate.
func (q *Queries) ListBookedFrom(ctx context.Context, doctorID, fromDate string) ([]models.Appointment, error) {
	return q.queryAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE doctor_id = ? AND appointment_status = ? AND date >= ?
		ORDER BY start_ms`,
		doctorID, string(models.StatusBooked), fromDate,
	)
}

// ListBookedOnDate returns a doctor's booked appointments on one date.
func (q *Queries) ListBookedOnDate(ctx context.Context, doctorID, date string) ([]models.Appointment, error) {
	return q.queryAppointments(ctx, `
		SELECT `+appointmentColumns+` FROM appointments
		WHERE doctor_id = ? AND appointment_status = ? AND date = ?
		ORDER BY start_ms`,
		doctorID, string(models.StatusBooked), date,
	)
}

// BookedStarts returns the start keys of live appointments in [from, to).
func (q *Queries) BookedStarts(ctx context.Context, doctorID string, from, to time.Time) (map[int64]struct{}, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT start_ms FROM appointments
		WHERE doctor_id = ? AND appointment_status != ? AND start_ms >= ? AND start_ms < ?`,
		doctorID, string(models.StatusCancelled), toMillis(from), toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query booked starts: %w", err)
	}
	defer rows.Close()

	keys := make(map[int64]struct{})
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		keys[ms] = struct{}{}
	}
	return keys, rows.Err()
}

func (q *Queries) queryAppointments(ctx context.Context, query string, args ...any) ([]models.Appointment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var list []models.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}
