package access

import (
	"context"
	"time"
)

// BlockedUser is a patient barred from booking.
type BlockedUser struct {
	UserID    string    `json:"userId"`
	BlockedAt time.Time `json:"blockedAt"`
	Reason    string    `json:"reason,omitempty"`
	BlockedBy string    `json:"blockedBy"`
}

// Admin is an identity allowed to moderate patients and export the ledger.
type Admin struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	ChatID  int64     `json:"chatId,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// BlocklistRepository stores blocked patients.
type BlocklistRepository interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
	GetBlockedUser(ctx context.Context, userID string) (*BlockedUser, error)
	BlockUser(ctx context.Context, userID, reason, blockedBy string) error
	UnblockUser(ctx context.Context, userID string) error
	ListBlockedUsers(ctx context.Context) ([]BlockedUser, error)
}

// AdminRepository stores admin identities.
type AdminRepository interface {
	IsAdmin(ctx context.Context, id string) (bool, error)
	AddAdmin(ctx context.Context, a Admin) error
	ListAdmins(ctx context.Context) ([]Admin, error)
	AdminChatIDs(ctx context.Context) ([]int64, error)
}
