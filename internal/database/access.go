package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"telecare/shared/access"
)

// IsBlocked checks if a patient is blocked.
func (q *Queries) IsBlocked(ctx context.Context, userID string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blocked_users WHERE user_id = ?",
		userID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetBlockedUser returns blocklist details, or nil when the patient is not blocked.
func (q *Queries) GetBlockedUser(ctx context.Context, userID string) (*access.BlockedUser, error) {
	var bu access.BlockedUser
	var blockedAt int64
	err := q.db.QueryRowContext(ctx,
		"SELECT user_id, blocked_at, reason, blocked_by FROM blocked_users WHERE user_id = ?",
		userID,
	).Scan(&bu.UserID, &blockedAt, &bu.Reason, &bu.BlockedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bu.BlockedAt = fromMillis(blockedAt)
	return &bu, nil
}

// BlockUser adds a patient to the blocklist.
func (q *Queries) BlockUser(ctx context.Context, userID, reason, blockedBy string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO blocked_users (user_id, blocked_at, reason, blocked_by)
		VALUES (?, ?, ?, ?)`,
		userID, toMillis(time.Now()), reason, blockedBy,
	)
	return err
}

// UnblockUser removes a patient from the blocklist.
func (q *Queries) UnblockUser(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx,
		"DELETE FROM blocked_users WHERE user_id = ?",
		userID,
	)
	return err
}

// ListBlockedUsers returns all blocked patients, newest first.
func (q *Queries) ListBlockedUsers(ctx context.Context) ([]access.BlockedUser, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT user_id, blocked_at, reason, blocked_by FROM blocked_users ORDER BY blocked_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []access.BlockedUser
	for rows.Next() {
		var bu access.BlockedUser
		var blockedAt int64
		if err := rows.Scan(&bu.UserID, &blockedAt, &bu.Reason, &bu.BlockedBy); err != nil {
			return nil, err
		}
		bu.BlockedAt = fromMillis(blockedAt)
		users = append(users, bu)
	}
	return users, rows.Err()
}

// IsAdmin checks if an identity is an admin.
func (q *Queries) IsAdmin(ctx context.Context, id string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM admins WHERE id = ?",
		id,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddAdmin registers an admin, replacing an existing row.
func (q *Queries) AddAdmin(ctx context.Context, a access.Admin) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO admins (id, name, telegram_chat_id, added_at)
		VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.ChatID, toMillis(time.Now()),
	)
	return err
}

// ListAdmins returns all admins.
func (q *Queries) ListAdmins(ctx context.Context) ([]access.Admin, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT id, name, telegram_chat_id, added_at FROM admins ORDER BY added_at, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []access.Admin
	for rows.Next() {
		var a access.Admin
		var addedAt int64
		if err := rows.Scan(&a.ID, &a.Name, &a.ChatID, &addedAt); err != nil {
			return nil, err
		}
		a.AddedAt = fromMillis(addedAt)
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// AdminChatIDs returns the linked telegram chats of all admins.
func (q *Queries) AdminChatIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT telegram_chat_id FROM admins WHERE telegram_chat_id != 0")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chatIDs []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, err
		}
		chatIDs = append(chatIDs, chatID)
	}
	return chatIDs, rows.Err()
}
