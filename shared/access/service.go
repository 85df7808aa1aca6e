// Package access provides admin checks and the patient blocklist.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Service implements access control on top of the blocklist and admin stores.
type Service struct {
	blocklist BlocklistRepository
	admins    AdminRepository
	logger    zerolog.Logger
}

// NewService creates a new access control service.
func NewService(blocklist BlocklistRepository, admins AdminRepository, logger zerolog.Logger) *Service {
	return &Service{
		blocklist: blocklist,
		admins:    admins,
		logger:    logger.With().Str("component", "access").Logger(),
	}
}

// SyncAdmins registers the configured admins. Existing rows are refreshed.
func (s *Service) SyncAdmins(ctx context.Context, admins []Admin) error {
	for _, a := range admins {
		if a.ID == "" {
			continue
		}
		if err := s.admins.AddAdmin(ctx, a); err != nil {
			return fmt.Errorf("add admin %s: %w", a.ID, err)
		}
	}
	s.logger.Info().Int("count", len(admins)).Msg("admins synced")
	return nil
}

// IsBlocked checks if a patient is in the blocklist.
func (s *Service) IsBlocked(ctx context.Context, userID string) (bool, error) {
	return s.blocklist.IsBlocked(ctx, userID)
}

// BlockUser adds a patient to the blocklist on behalf of an admin.
func (s *Service) BlockUser(ctx context.Context, userID, reason, blockedBy string) error {
	if err := s.AdminMiddleware(ctx, blockedBy); err != nil {
		return err
	}

	if err := s.blocklist.BlockUser(ctx, userID, reason, blockedBy); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("blocked_by", blockedBy).
		Str("reason", reason).
		Msg("user blocked")

	return nil
}

// UnblockUser removes a patient from the blocklist on behalf of an admin.
func (s *Service) UnblockUser(ctx context.Context, userID, unblockedBy string) error {
	if err := s.AdminMiddleware(ctx, unblockedBy); err != nil {
		return err
	}

	if err := s.blocklist.UnblockUser(ctx, userID); err != nil {
		return err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("unblocked_by", unblockedBy).
		Msg("user unblocked")

	return nil
}

// ListBlockedUsers returns all blocked patients.
func (s *Service) ListBlockedUsers(ctx context.Context) ([]BlockedUser, error) {
	return s.blocklist.ListBlockedUsers(ctx)
}

// AdminChatIDs returns the telegram chats of admins for report delivery.
func (s *Service) AdminChatIDs(ctx context.Context) ([]int64, error) {
	return s.admins.AdminChatIDs(ctx)
}

// CanBook returns an AccessDeniedError when the patient is blocked.
func (s *Service) CanBook(ctx context.Context, userID string) error {
	blocked, err := s.blocklist.GetBlockedUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking blocklist: %w", err)
	}
	if blocked != nil {
		reason := "booking is blocked for this account"
		if blocked.Reason != "" {
			reason = fmt.Sprintf("booking is blocked for this account: %s", blocked.Reason)
		}
		return &AccessDeniedError{Reason: reason}
	}
	return nil
}

// AdminMiddleware returns an AccessDeniedError unless id is an admin.
func (s *Service) AdminMiddleware(ctx context.Context, id string) error {
	if id == "" {
		return &AccessDeniedError{Reason: "admin identity required"}
	}
	isAdmin, err := s.admins.IsAdmin(ctx, id)
	if err != nil {
		return fmt.Errorf("checking admin status: %w", err)
	}
	if !isAdmin {
		return &AccessDeniedError{Reason: "this action is available to admins only"}
	}
	return nil
}

// AccessDeniedError is returned when access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if error is access denied.
func IsAccessDenied(err error) bool {
	var ade *AccessDeniedError
	return errors.As(err, &ade)
}
