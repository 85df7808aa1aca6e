// Package reconcile cancels and refunds booked appointments whose time has
// passed, on demand per doctor and periodically for everyone.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telecare/internal/domain"
	"telecare/internal/events"
	"telecare/internal/metrics"
	"telecare/internal/models"
	"telecare/internal/refunds"

	"github.com/rs/zerolog"
)

// Trigger labels for metrics.
const (
	TriggerRequest = "request"
	TriggerSweep   = "sweep"
)

// ExpiredLister finds booked appointments that already ended.
type ExpiredLister interface {
	ListExpiredBooked(ctx context.Context, doctorID string, now time.Time) ([]models.Appointment, error)
	DoctorsWithExpired(ctx context.Context, now time.Time) ([]string, error)
}

// Publisher delivers domain events.
type Publisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) error
}

// Reconciler transitions expired bookings to cancelled with a wallet refund.
type Reconciler struct {
	appointments ExpiredLister
	compensator  *refunds.Compensator
	publisher    Publisher
	clock        domain.Clock
	logger       zerolog.Logger
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(appointments ExpiredLister, compensator *refunds.Compensator, publisher Publisher, clock domain.Clock, logger zerolog.Logger) *Reconciler {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Reconciler{
		appointments: appointments,
		compensator:  compensator,
		publisher:    publisher,
		clock:        clock,
		logger:       logger.With().Str("component", "reconcile").Logger(),
	}
}

// ReconcileDoctor refunds every booked appointment of doctorID with end
// before now. Each appointment is its own transaction; failures are left
// booked for the next run and returned joined.
func (r *Reconciler) ReconcileDoctor(ctx context.Context, doctorID string) ([]models.Appointment, error) {
	return r.reconcile(ctx, doctorID, TriggerRequest)
}

// ReconcileAll runs ReconcileDoctor for every doctor with expired bookings.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	doctors, err := r.appointments.DoctorsWithExpired(ctx, r.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("list doctors with expired appointments: %w", err)
	}

	total := 0
	var errs []error
	for _, doctorID := range doctors {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		cancelled, err := r.reconcile(ctx, doctorID, TriggerSweep)
		total += len(cancelled)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

func (r *Reconciler) reconcile(ctx context.Context, doctorID, trigger string) ([]models.Appointment, error) {
	started := time.Now()
	defer func() { metrics.ObserveReconcile(trigger, time.Since(started).Seconds()) }()

	expired, err := r.appointments.ListExpiredBooked(ctx, doctorID, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list expired appointments: %w", err)
	}
	if len(expired) == 0 {
		return nil, nil
	}

	cancelled, err := r.compensator.RefundAll(ctx, expired, refunds.ReasonExpired)
	if err != nil {
		r.logger.Error().Err(err).
			Str("doctor_id", doctorID).
			Int("expired", len(expired)).
			Int("refunded", len(cancelled)).
			Msg("some expired appointments were not refunded")
	}

	if len(cancelled) > 0 {
		r.logger.Info().
			Str("doctor_id", doctorID).
			Str("trigger", trigger).
			Int("refunded", len(cancelled)).
			Msg("expired appointments reconciled")
		if r.publisher != nil {
			payload := events.NewAppointmentsCancelled(refunds.ReasonExpired, cancelled)
			if perr := r.publisher.PublishJSON(ctx, events.TypeAppointmentsCancelled, payload); perr != nil {
				r.logger.Warn().Err(perr).Msg("publish expired cancellations")
			}
		}
	}

	return cancelled, err
}
