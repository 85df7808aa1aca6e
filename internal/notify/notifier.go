package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telecare/internal/domain"
	"telecare/internal/events"
	"telecare/internal/refunds"

	"github.com/rs/zerolog"
)

// ChatResolver maps a patient to a Telegram chat. Zero means no chat.
type ChatResolver interface {
	ChatID(ctx context.Context, userID string) (int64, error)
}

// Subscriber is the subscription side of the event bus.
type Subscriber interface {
	Subscribe(eventType string, handler events.EventHandler)
}

// Notifier tells patients that their appointments were cancelled and
// refunded.
type Notifier struct {
	sender *Sender
	chats  ChatResolver
	loc    *time.Location
	logger zerolog.Logger
}

// NewNotifier creates a notifier rendering times in loc.
func NewNotifier(sender *Sender, chats ChatResolver, loc *time.Location, logger zerolog.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{
		sender: sender,
		chats:  chats,
		loc:    loc,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Subscribe registers the notifier on bus.
func (n *Notifier) Subscribe(bus Subscriber) {
	bus.Subscribe(events.TypeAppointmentsCancelled, n.HandleCancelled)
}

// HandleCancelled messages every patient in an appointments.cancelled event.
// Delivery problems for one patient do not stop the others.
func (n *Notifier) HandleCancelled(ctx context.Context, e events.Event) error {
	var payload events.AppointmentsCancelled
	if err := e.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}

	var failed int
	for _, a := range payload.Appointments {
		chatID, err := n.chats.ChatID(ctx, a.UserID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && chatID == 0) {
			continue
		}
		if err != nil {
			n.logger.Warn().Err(err).Str("user_id", a.UserID).Msg("resolve chat")
			failed++
			continue
		}

		if err := n.sender.SendText(ctx, chatID, n.cancelText(payload.Reason, a)); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			if !errors.Is(err, ErrRecipientUnreachable) {
				failed++
			}
			continue
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d cancellation notices not delivered", failed, len(payload.Appointments))
	}
	return nil
}

func (n *Notifier) cancelText(reason string, a events.CancelledAppointment) string {
	when := a.Start.In(n.loc).Format("Mon 02 Jan 2006 15:04")
	var why string
	switch reason {
	case refunds.ReasonExpired:
		why = "it was not held before its end time"
	case refunds.ReasonCancelledByDoctor:
		why = "the doctor cancelled it"
	default:
		why = "the doctor changed their availability"
	}
	return fmt.Sprintf("Your appointment on %s was cancelled because %s. %d has been refunded to your wallet.", when, why, a.Fee)
}

// AdminBroadcaster delivers files to every admin chat.
type AdminBroadcaster struct {
	sender *Sender
	admins AdminChats
	logger zerolog.Logger
}

// AdminChats lists the chats of configured admins.
type AdminChats interface {
	AdminChatIDs(ctx context.Context) ([]int64, error)
}

// NewAdminBroadcaster creates a broadcaster.
func NewAdminBroadcaster(sender *Sender, admins AdminChats, logger zerolog.Logger) *AdminBroadcaster {
	return &AdminBroadcaster{sender: sender, admins: admins, logger: logger.With().Str("component", "notify").Logger()}
}

// SendDocument uploads the file to each admin and returns the first error.
func (b *AdminBroadcaster) SendDocument(ctx context.Context, name string, data []byte, caption string) error {
	chats, err := b.admins.AdminChatIDs(ctx)
	if err != nil {
		return fmt.Errorf("list admin chats: %w", err)
	}

	var firstErr error
	for _, chatID := range chats {
		if err := b.sender.SendDocument(ctx, chatID, name, data, caption); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", chatID).Str("file", name).Msg("send document to admin")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
