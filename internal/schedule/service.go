// Package schedule validates and applies changes to a doctor's weekly
// templates and per-date overrides, cascading refunds to displaced bookings.
package schedule

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/domain"
	"telecare/internal/events"
	"telecare/internal/models"
	"telecare/internal/refunds"

	"github.com/rs/zerolog"
)

// Cascader cancels bookings invalidated by a schedule change.
type Cascader interface {
	Apply(ctx context.Context, change refunds.WindowChange) ([]models.Appointment, error)
}

// Publisher delivers domain events.
type Publisher interface {
	PublishJSON(ctx context.Context, eventType string, payload any) error
}

// Service implements the session and availability mutation guards.
type Service struct {
	sessions  domain.SessionRepository
	overrides domain.OverrideRepository
	cascade   Cascader
	publisher Publisher
	loc       *time.Location
	logger    zerolog.Logger
}

// NewService creates a schedule service. publisher may be nil.
func NewService(
	sessions domain.SessionRepository,
	overrides domain.OverrideRepository,
	cascade Cascader,
	publisher Publisher,
	loc *time.Location,
	logger zerolog.Logger,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		sessions:  sessions,
		overrides: overrides,
		cascade:   cascade,
		publisher: publisher,
		loc:       loc,
		logger:    logger.With().Str("component", "schedule").Logger(),
	}
}

// Result is the outcome of a mutation: the stored template, if any, and the
// appointments cancelled by the cascade.
type Result struct {
	Session   *models.SessionTemplate `json:"session,omitempty"`
	Cancelled []models.Appointment    `json:"cancelledAppointments"`
}

// ListSessions returns a doctor's templates.
func (s *Service) ListSessions(ctx context.Context, doctorID string) ([]models.SessionTemplate, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("doctorId is required: %w", domain.ErrInvalidInput)
	}
	return s.sessions.ListSessions(ctx, doctorID)
}

// CreateSession validates and stores a new template.
func (s *Service) CreateSession(ctx context.Context, tmpl models.SessionTemplate) (*models.SessionTemplate, error) {
	tmpl.ID = ""
	if err := s.validate(ctx, &tmpl); err != nil {
		return nil, err
	}
	if err := s.sessions.CreateSession(ctx, &tmpl); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("doctor_id", tmpl.DoctorID).
		Str("session_id", tmpl.ID).
		Int("day_of_week", tmpl.DayOfWeek).
		Str("start", tmpl.StartTime).
		Str("end", tmpl.EndTime).
		Msg("session created")
	return &tmpl, nil
}

// UpdateSession validates the new window, stores it and cancels bookings
// that no longer fit. The doctor cannot be changed.
func (s *Service) UpdateSession(ctx context.Context, id string, tmpl models.SessionTemplate) (*Result, error) {
	old, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	tmpl.ID = old.ID
	tmpl.DoctorID = old.DoctorID
	if err := s.validate(ctx, &tmpl); err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateSession(ctx, &tmpl); err != nil {
		return nil, err
	}
	tmpl.CreatedAt = old.CreatedAt

	cancelled, err := s.applyCascade(ctx, refunds.WindowChange{
		Kind:     refunds.ChangeSessionUpdated,
		DoctorID: old.DoctorID,
		Old:      old,
		New:      &tmpl,
	})
	return &Result{Session: &tmpl, Cancelled: cancelled}, err
}

// DeleteSession removes a template and cancels its future bookings.
func (s *Service) DeleteSession(ctx context.Context, id string) (*Result, error) {
	old, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.DeleteSession(ctx, id); err != nil {
		return nil, err
	}

	cancelled, err := s.applyCascade(ctx, refunds.WindowChange{
		Kind:     refunds.ChangeSessionDeleted,
		DoctorID: old.DoctorID,
		Old:      old,
	})
	return &Result{Cancelled: cancelled}, err
}

// SetDayAvailability toggles a whole day. Making it unavailable cancels the
// day's bookings.
func (s *Service) SetDayAvailability(ctx context.Context, doctorID, date string, available bool) (*Result, error) {
	if doctorID == "" {
		return nil, fmt.Errorf("doctorId is required: %w", domain.ErrInvalidInput)
	}
	if _, err := models.ParseDate(date, s.loc); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}

	if err := s.overrides.SetDayBlocked(ctx, doctorID, date, !available); err != nil {
		return nil, err
	}
	if available {
		return &Result{}, nil
	}

	cancelled, err := s.applyCascade(ctx, refunds.WindowChange{
		Kind:     refunds.ChangeDayUnavailable,
		DoctorID: doctorID,
		Date:     date,
	})
	return &Result{Cancelled: cancelled}, err
}

// SetSessionAvailability toggles one template on one date. Making it
// unavailable cancels bookings inside that window on that date.
func (s *Service) SetSessionAvailability(ctx context.Context, doctorID, sessionID, date string, available bool) (*Result, error) {
	day, err := models.ParseDate(date, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}

	tmpl, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if doctorID != "" && tmpl.DoctorID != doctorID {
		return nil, fmt.Errorf("session %s of doctor %s: %w", sessionID, doctorID, domain.ErrNotFound)
	}
	if int(day.Weekday()) != tmpl.DayOfWeek {
		return nil, fmt.Errorf("session %s does not run on %s: %w", sessionID, day.Weekday(), domain.ErrInvalidInput)
	}

	if err := s.overrides.SetSessionBlocked(ctx, tmpl.DoctorID, sessionID, date, !available); err != nil {
		return nil, err
	}
	if available {
		return &Result{}, nil
	}

	cancelled, err := s.applyCascade(ctx, refunds.WindowChange{
		Kind:     refunds.ChangeSessionUnavailable,
		DoctorID: tmpl.DoctorID,
		Old:      tmpl,
		Date:     date,
	})
	return &Result{Cancelled: cancelled}, err
}

// validate checks the template on its own and against the doctor's other
// templates on the same weekday. Nothing is written on failure.
func (s *Service) validate(ctx context.Context, tmpl *models.SessionTemplate) error {
	if tmpl.DoctorID == "" {
		return fmt.Errorf("doctorId is required: %w", domain.ErrInvalidInput)
	}
	if tmpl.DayOfWeek < 0 || tmpl.DayOfWeek > 6 {
		return fmt.Errorf("dayOfWeek %d out of range 0-6: %w", tmpl.DayOfWeek, domain.ErrInvalidInput)
	}
	if tmpl.DurationMinutes <= 0 {
		return fmt.Errorf("durationMinutes must be positive: %w", domain.ErrInvalidInput)
	}
	if tmpl.Fee < 0 {
		return fmt.Errorf("fee must not be negative: %w", domain.ErrInvalidInput)
	}

	start, end, err := tmpl.Minutes()
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	if start >= end {
		return &domain.InvalidRangeError{StartTime: tmpl.StartTime, EndTime: tmpl.EndTime}
	}

	existing, err := s.sessions.ListSessionsByDay(ctx, tmpl.DoctorID, tmpl.DayOfWeek)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for i := range existing {
		other := &existing[i]
		if other.ID == tmpl.ID {
			continue
		}
		if tmpl.OverlapsWith(other) {
			return &domain.OverlapError{
				ConflictID: other.ID,
				DayOfWeek:  other.DayOfWeek,
				StartTime:  other.StartTime,
				EndTime:    other.EndTime,
			}
		}
	}
	return nil
}

// applyCascade runs the cascade and publishes the change. The schedule
// mutation is already stored; refunds that failed leave their appointment
// booked and are logged, so only lookup failures reach the caller.
func (s *Service) applyCascade(ctx context.Context, change refunds.WindowChange) ([]models.Appointment, error) {
	cancelled, err := s.cascade.Apply(ctx, change)
	if err != nil {
		s.logger.Error().Err(err).
			Str("doctor_id", change.DoctorID).
			Str("change", string(change.Kind)).
			Msg("cascade cancellation incomplete")
	}
	if cancelled == nil {
		cancelled = []models.Appointment{}
	}

	s.publish(ctx, change, cancelled)

	if err != nil && !domain.IsCompensation(err) {
		return cancelled, fmt.Errorf("cascade %s: %w", change.Kind, err)
	}
	return cancelled, nil
}

func (s *Service) publish(ctx context.Context, change refunds.WindowChange, cancelled []models.Appointment) {
	if s.publisher == nil {
		return
	}

	wc := events.WindowChanged{
		DoctorID:  change.DoctorID,
		Date:      change.Date,
		Change:    string(change.Kind),
		Cancelled: len(cancelled),
	}
	if change.Old != nil {
		wc.SessionID = change.Old.ID
		wc.OldDay, wc.OldStart, wc.OldEnd = change.Old.DayOfWeek, change.Old.StartTime, change.Old.EndTime
	}
	if change.New != nil {
		wc.NewDay, wc.NewStart, wc.NewEnd = change.New.DayOfWeek, change.New.StartTime, change.New.EndTime
	}
	if err := s.publisher.PublishJSON(ctx, events.TypeSessionWindowChanged, wc); err != nil {
		s.logger.Warn().Err(err).Msg("publish window change")
	}

	if len(cancelled) == 0 {
		return
	}
	if err := s.publisher.PublishJSON(ctx, events.TypeAppointmentsCancelled, events.NewAppointmentsCancelled(string(change.Kind), cancelled)); err != nil {
		s.logger.Warn().Err(err).Msg("publish cancelled appointments")
	}
}
