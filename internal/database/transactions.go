package database

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/models"

	"github.com/google/uuid"
)

// AppendTransaction writes a ledger entry. Entries are never updated.
func (q *Queries) AppendTransaction(ctx context.Context, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO transactions (id, from_party, to_party, method, amount, payment_for,
			user_id, doctor_id, appointment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.From, t.To, t.Method, t.Amount, t.PaymentFor,
		t.UserID, t.DoctorID, t.AppointmentID, toMillis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// ListTransactions returns ledger entries created in [from, to).
func (q *Queries) ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, from_party, to_party, method, amount, payment_for,
			user_id, doctor_id, appointment_id, created_at
		FROM transactions
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at, id`,
		toMillis(from), toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var list []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.From, &t.To, &t.Method, &t.Amount, &t.PaymentFor,
			&t.UserID, &t.DoctorID, &t.AppointmentID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.CreatedAt = fromMillis(createdAt)
		list = append(list, t)
	}
	return list, rows.Err()
}

// TransactionsForAppointment returns the ledger entries of one appointment.
func (q *Queries) TransactionsForAppointment(ctx context.Context, appointmentID string) ([]models.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, from_party, to_party, method, amount, payment_for,
			user_id, doctor_id, appointment_id, created_at
		FROM transactions WHERE appointment_id = ?
		ORDER BY created_at, id`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var list []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.From, &t.To, &t.Method, &t.Amount, &t.PaymentFor,
			&t.UserID, &t.DoctorID, &t.AppointmentID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.CreatedAt = fromMillis(createdAt)
		list = append(list, t)
	}
	return list, rows.Err()
}
