// Package appointments serves doctor appointment listings, explicit
// cancellation and patient booking.
package appointments

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
	"telecare/internal/slots"

	"github.com/rs/zerolog"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// DoctorReconciler refunds a doctor's expired bookings.
type DoctorReconciler interface {
	ReconcileDoctor(ctx context.Context, doctorID string) ([]models.Appointment, error)
}

// BookingGuard rejects patients who may not book.
type BookingGuard interface {
	CanBook(ctx context.Context, userID string) error
}

// Publisher delivers domain events.
type Publisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) error
}

// Service implements the appointment operations.
type Service struct {
	appointments domain.AppointmentRepository
	users        domain.UserRepository
	tx           domain.TxManager
	generator    *slots.Generator
	reconciler   DoctorReconciler
	compensator  *refunds.Compensator
	guard        BookingGuard
	publisher    Publisher
	clock        domain.Clock
	logger       zerolog.Logger
}

// Deps groups the collaborators of Service. Guard and Publisher are optional.
type Deps struct {
	Appointments domain.AppointmentRepository
	Users        domain.UserRepository
	Tx           domain.TxManager
	Generator    *slots.Generator
	Reconciler   DoctorReconciler
	Compensator  *refunds.Compensator
	Guard        BookingGuard
	Publisher    Publisher
	Clock        domain.Clock
}

// NewService creates the appointment service.
func NewService(deps Deps, logger zerolog.Logger) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Service{
		appointments: deps.Appointments,
		users:        deps.Users,
		tx:           deps.Tx,
		generator:    deps.Generator,
		reconciler:   deps.Reconciler,
		compensator:  deps.Compensator,
		guard:        deps.Guard,
		publisher:    deps.Publisher,
		clock:        clock,
		logger:       logger.With().Str("component", "appointments").Logger(),
	}
}

// Page is one page of a doctor's appointments.
type Page struct {
	Appointments []models.Appointment `json:"appointments"`
	Page         int                  `json:"page"`
	Limit        int                  `json:"limit"`
	Total        int                  `json:"total"`
	TotalPages   int                  `json:"totalPages"`
}

// ReconcileAndFetch first refunds the doctor's expired bookings and then
// reads the requested page. A failed reconciliation is logged and the read
// still runs.
func (s *Service) ReconcileAndFetch(ctx context.Context, doctorID string, page, limit int, filter domain.AppointmentFilter) (*Page, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("doctorId is required: %w", domain.ErrInvalidInput)
	}
	switch filter.AppointmentStatus {
	case "", models.StatusBooked, models.StatusCompleted, models.StatusCancelled:
	default:
		return nil, fmt.Errorf("unknown appointmentStatus %q: %w", filter.AppointmentStatus, domain.ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if _, err := s.reconciler.ReconcileDoctor(ctx, doctorID); err != nil {
		s.logger.Error().Err(err).Str("doctor_id", doctorID).Msg("reconciliation before read failed")
	}

	list, total, err := s.appointments.ListAppointments(ctx, doctorID, filter, page, limit)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Appointment{}
	}

	return &Page{
		Appointments: list,
		Page:         page,
		Limit:        limit,
		Total:        total,
		TotalPages:   (total + limit - 1) / limit,
	}, nil
}

// CancelResult is the soft outcome of an explicit cancellation.
type CancelResult struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

// CancelAppointment cancels a booked appointment, refunds its fee to the
// patient wallet and takes it off total_revenue. It never returns an error;
// failures come back as Status false with a message for display.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID string) CancelResult {
	if appointmentID == "" {
		return CancelResult{Status: false, Message: "appointmentId is required"}
	}

	a, err := s.appointments.GetAppointment(ctx, appointmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return CancelResult{Status: false, Message: "Appointment not found"}
	}
	if err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appointmentID).Msg("load appointment for cancel")
		return CancelResult{Status: false, Message: "Could not cancel appointment, please retry"}
	}
	if a.AppointmentStatus != models.StatusBooked {
		return CancelResult{Status: false, Message: fmt.Sprintf("Appointment is already %s", a.AppointmentStatus)}
	}

	err = s.compensator.Refund(ctx, *a, refunds.ReasonCancelledByDoctor, true)
	if errors.Is(err, domain.ErrAlreadyFinal) {
		return CancelResult{Status: false, Message: "Appointment is already cancelled"}
	}
	if err != nil {
		return CancelResult{Status: false, Message: "Could not cancel appointment, please retry"}
	}

	a.AppointmentStatus = models.StatusCancelled
	a.PaymentStatus = models.PaymentRefunded
	s.publishCancelled(ctx, refunds.ReasonCancelledByDoctor, []models.Appointment{*a})

	return CancelResult{Status: true, Message: "Appointment cancelled and fee refunded to wallet"}
}

// BookRequest identifies a slot by its session and start key.
type BookRequest struct {
	DoctorID  string `json:"doctorId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	SlotKey   int64  `json:"slotId,string"`
	Method    string `json:"method"`
}

// Book reserves an available future slot for a patient. Wallet payments are
// debited in the same transaction; other methods record an externally
// captured payment. A taken slot fails with domain.ErrSlotAlreadyBooked.
func (s *Service) Book(ctx context.Context, req BookRequest) (*models.Appointment, error) {
	if req.DoctorID == "" || req.UserID == "" || req.SessionID == "" || req.SlotKey <= 0 {
		return nil, fmt.Errorf("doctorId, userId, sessionId and slotId are required: %w", domain.ErrInvalidInput)
	}
	if req.Method == "" {
		req.Method = models.MethodWallet
	}
	if req.Method != models.MethodWallet && req.Method != models.MethodOnline {
		return nil, fmt.Errorf("unknown payment method %q: %w", req.Method, domain.ErrInvalidInput)
	}

	if s.guard != nil {
		if err := s.guard.CanBook(ctx, req.UserID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	start := time.UnixMilli(req.SlotKey).In(s.generator.Location())
	if !start.After(now) {
		return nil, fmt.Errorf("slot starts in the past: %w", domain.ErrSlotNotAvailable)
	}

	schedule, err := s.generator.Generate(ctx, req.DoctorID, start)
	if err != nil {
		return nil, err
	}
	slot, ok := slots.FindSlot(schedule, req.SessionID, req.SlotKey)
	if !ok {
		return nil, fmt.Errorf("slot %d of session %s: %w", req.SlotKey, req.SessionID, domain.ErrSlotNotAvailable)
	}
	if slot.Status == models.SlotBooked {
		metrics.IncBookingConflict()
		return nil, domain.ErrSlotAlreadyBooked
	}

	a := &models.Appointment{
		DoctorID:          req.DoctorID,
		UserID:            req.UserID,
		SessionID:         req.SessionID,
		Date:              schedule.Date,
		Start:             slot.Start.UTC(),
		End:               slot.End.UTC(),
		DurationMinutes:   slot.DurationMinutes,
		Fee:               slot.Fee,
		AppointmentStatus: models.StatusBooked,
		PaymentStatus:     models.PaymentPaid,
		PaymentMethod:     req.Method,
		CreatedAt:         now.UTC(),
	}

	err = s.tx.WithinTx(ctx, func(w domain.LedgerWriter) error {
		if err := w.InsertAppointment(ctx, a); err != nil {
			return err
		}
		if req.Method == models.MethodWallet {
			if err := w.DebitWallet(ctx, req.UserID, a.Fee); err != nil {
				return err
			}
		}
		if err := w.AppendTransaction(ctx, &models.Transaction{
			From:          models.PartyUser,
			To:            models.PartyAdmin,
			Method:        req.Method,
			Amount:        a.Fee,
			PaymentFor:    models.PaymentForAppointment,
			UserID:        a.UserID,
			DoctorID:      a.DoctorID,
			AppointmentID: a.ID,
			CreatedAt:     now.UTC(),
		}); err != nil {
			return err
		}
		return w.AddRevenue(ctx, a.Fee)
	})
	if errors.Is(err, domain.ErrSlotAlreadyBooked) {
		metrics.IncBookingConflict()
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	metrics.IncBookingCreated(req.Method)
	s.logger.Info().
		Str("appointment_id", a.ID).
		Str("doctor_id", a.DoctorID).
		Str("user_id", a.UserID).
		Time("start", a.Start).
		Str("method", req.Method).
		Msg("appointment booked")

	return a, nil
}

// Wallet returns the patient's wallet balance.
func (s *Service) Wallet(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("userId is required: %w", domain.ErrInvalidInput)
	}
	return s.users.WalletBalance(ctx, userID)
}

func (s *Service) publishCancelled(ctx context.Context, reason string, list []models.Appointment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishJSON(ctx, events.TypeAppointmentsCancelled, events.NewAppointmentsCancelled(reason, list)); err != nil {
		s.logger.Warn().Err(err).Msg("publish cancellation")
	}
}
