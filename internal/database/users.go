package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telecare/internal/domain"
	"telecare/internal/models"
)

// UpsertUser registers a patient or refreshes their profile. The wallet
// balance is never touched here.
func (q *Queries) UpsertUser(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, name, telegram_chat_id, wallet_balance, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			telegram_chat_id = excluded.telegram_chat_id,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.TelegramChatID, toMillis(now), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns a patient by ID.
func (q *Queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	var createdAt, updatedAt int64
	err := q.db.QueryRowContext(ctx, `
		SELECT id, name, telegram_chat_id, wallet_balance, created_at, updated_at
		FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &u.TelegramChatID, &u.WalletBalance, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

// WalletBalance returns the patient's current balance.
func (q *Queries) WalletBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx, "SELECT wallet_balance FROM users WHERE id = ?", userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get wallet balance: %w", err)
	}
	return balance, nil
}

// ChatID returns the telegram chat of a patient, or 0 when none is linked.
func (q *Queries) ChatID(ctx context.Context, userID string) (int64, error) {
	var chatID int64
	err := q.db.QueryRowContext(ctx, "SELECT telegram_chat_id FROM users WHERE id = ?", userID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return chatID, err
}

// CreditWallet adds amount to the balance in a single statement. A missing
// user row is created with the credited amount.
func (q *Queries) CreditWallet(ctx context.Context, userID string, amount int64) error {
	now := toMillis(time.Now())
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, wallet_balance, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			wallet_balance = wallet_balance + excluded.wallet_balance,
			updated_at = excluded.updated_at`,
		userID, amount, now, now,
	)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// DebitWallet subtracts amount only if the balance covers it.
func (q *Queries) DebitWallet(ctx context.Context, userID string, amount int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users SET wallet_balance = wallet_balance - ?, updated_at = ?
		WHERE id = ? AND wallet_balance >= ?`,
		amount, toMillis(time.Now()), userID, amount,
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var exists int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&exists); err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	return domain.ErrInsufficientFunds
}
