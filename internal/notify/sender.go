// Package notify delivers patient and admin messages over Telegram.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telecare/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// TelegramSender is the part of tgbotapi.BotAPI the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return 0
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// ErrRecipientUnreachable is returned when Telegram refuses delivery for good,
// for example because the user blocked the bot.
var ErrRecipientUnreachable = errors.New("telegram recipient unreachable")

// Sender sends Telegram messages with throttling and retries.
type Sender struct {
	bot     TelegramSender
	limiter *rate.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

// NewSender creates a sender allowing perSecond messages with a burst of the
// same size.
func NewSender(bot TelegramSender, perSecond float64, retry RetryConfig, logger zerolog.Logger) *Sender {
	if perSecond <= 0 {
		perSecond = 20
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Sender{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		retry:   retry,
		logger:  logger.With().Str("component", "telegram").Logger(),
	}
}

// Send delivers c, waiting for the limiter and retrying transient failures.
func (s *Sender) Send(ctx context.Context, chatID int64, c tgbotapi.Chattable) error {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		_, err := s.bot.Send(c)
		if err == nil {
			metrics.IncNotification("sent")
			return nil
		}
		lastErr = err

		wait := s.retry.delay(attempt)
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch tgErr.Code {
			case 429:
				if tgErr.RetryAfter > 0 {
					wait = time.Duration(tgErr.RetryAfter) * time.Second
				}
				s.logger.Info().Int64("chat_id", chatID).Dur("retry_after", wait).Msg("rate limited by Telegram, waiting")
			case 400, 403:
				metrics.IncNotification("rejected")
				s.logger.Info().Int64("chat_id", chatID).Int("code", tgErr.Code).Str("reason", tgErr.Message).Msg("telegram rejected message")
				return fmt.Errorf("%w: %s", ErrRecipientUnreachable, tgErr.Message)
			}
		}

		if attempt == s.retry.MaxRetries {
			break
		}
		s.logger.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", wait).Msg("retrying telegram send")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.IncNotification("failed")
	s.logger.Error().Err(lastErr).Int64("chat_id", chatID).Msg("max retries exceeded for telegram send")
	return fmt.Errorf("send to %d: %w", chatID, lastErr)
}

// SendText sends a plain text message.
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) error {
	return s.Send(ctx, chatID, tgbotapi.NewMessage(chatID, text))
}

// SendDocument uploads an in-memory file.
func (s *Sender) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	return s.Send(ctx, chatID, doc)
}
