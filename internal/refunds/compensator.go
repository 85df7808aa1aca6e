// Package refunds cancels booked appointments and returns their fee to the
// patient wallet. Every cancel path in the service goes through it.
package refunds

import (
	"context"
	"errors"

	"telecare/internal/domain"
	"telecare/internal/metrics"
	"telecare/internal/models"

	"github.com/rs/zerolog"
)

// Cancellation reasons recorded on the appointment and in metrics. Cascades
// use their ChangeKind as the reason.
const (
	ReasonExpired           = "expired"
	ReasonCancelledByDoctor = "cancelled_by_doctor"
)

// Compensator performs the cancel + credit + ledger unit of work.
type Compensator struct {
	tx     domain.TxManager
	clock  domain.Clock
	logger zerolog.Logger
}

// NewCompensator creates a compensator writing through tx.
func NewCompensator(tx domain.TxManager, clock domain.Clock, logger zerolog.Logger) *Compensator {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Compensator{
		tx:     tx,
		clock:  clock,
		logger: logger.With().Str("component", "refunds").Logger(),
	}
}

// Refund cancels one booked appointment, credits its fee to the patient and
// appends a refund entry, all or nothing. With adjustRevenue the fee is also
// taken off total_revenue. It returns domain.ErrAlreadyFinal when another
// caller cancelled first, and a *domain.CompensationError when the unit of
// work failed and the appointment stays booked.
func (c *Compensator) Refund(ctx context.Context, a models.Appointment, reason string, adjustRevenue bool) error {
	now := c.clock.Now()
	err := c.tx.WithinTx(ctx, func(w domain.LedgerWriter) error {
		ok, err := w.CancelBooked(ctx, a.ID, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyFinal
		}
		if err := w.CreditWallet(ctx, a.UserID, a.Fee); err != nil {
			return err
		}
		if err := w.AppendTransaction(ctx, models.NewRefund(&a, now)); err != nil {
			return err
		}
		if adjustRevenue {
			return w.AddRevenue(ctx, -a.Fee)
		}
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrAlreadyFinal):
		return err
	case err != nil:
		metrics.IncCompensationFailure(reason)
		c.logger.Error().Err(err).
			Str("appointment_id", a.ID).
			Str("user_id", a.UserID).
			Str("reason", reason).
			Msg("refund failed, appointment left booked")
		return &domain.CompensationError{AppointmentID: a.ID, Err: err}
	}

	metrics.IncAppointmentCancelled(reason)
	c.logger.Info().
		Str("appointment_id", a.ID).
		Str("user_id", a.UserID).
		Int64("fee", a.Fee).
		Str("reason", reason).
		Msg("appointment cancelled and refunded")
	return nil
}

// RefundAll refunds each appointment in its own transaction. A failure on one
// does not stop the rest; appointments already final are skipped silently.
// It returns the appointments this call cancelled and the joined failures.
func (c *Compensator) RefundAll(ctx context.Context, list []models.Appointment, reason string) ([]models.Appointment, error) {
	var cancelled []models.Appointment
	var errs []error
	for _, a := range list {
		err := c.Refund(ctx, a, reason, false)
		switch {
		case err == nil:
			a.AppointmentStatus = models.StatusCancelled
			a.PaymentStatus = models.PaymentRefunded
			a.CancelReason = reason
			cancelled = append(cancelled, a)
		case errors.Is(err, domain.ErrAlreadyFinal):
		default:
			errs = append(errs, err)
		}
	}
	return cancelled, errors.Join(errs...)
}
