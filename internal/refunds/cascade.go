package refunds

import (
	"context"
	"fmt"
	"time"

	"telecare/internal/domain"
	"telecare/internal/models"
)

// ChangeKind names the schedule mutation behind a cascade.
type ChangeKind string

const (
	ChangeSessionUpdated     ChangeKind = "session_updated"
	ChangeSessionDeleted     ChangeKind = "session_deleted"
	ChangeDayUnavailable     ChangeKind = "day_unavailable"
	ChangeSessionUnavailable ChangeKind = "session_unavailable"
)

// WindowChange is an explicit description of a schedule mutation.
// Old is the template as it was; New is set for updates only. Date is set
// for day and session toggles.
type WindowChange struct {
	Kind     ChangeKind
	DoctorID string
	Old      *models.SessionTemplate
	New      *models.SessionTemplate
	Date     string
}

// BookedLister finds the appointments a change may displace.
type BookedLister interface {
	ListBookedFrom(ctx context.Context, doctorID, fromDate string) ([]models.Appointment, error)
	ListBookedOnDate(ctx context.Context, doctorID, date string) ([]models.Appointment, error)
}

// Cascade cancels and refunds bookings that a schedule change invalidates.
type Cascade struct {
	appointments BookedLister
	compensator  *Compensator
	clock        domain.Clock
	loc          *time.Location
}

// NewCascade creates a cascade handler. loc is the schedule timezone.
func NewCascade(appointments BookedLister, compensator *Compensator, clock domain.Clock, loc *time.Location) *Cascade {
	if clock == nil {
		clock = domain.SystemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Cascade{
		appointments: appointments,
		compensator:  compensator,
		clock:        clock,
		loc:          loc,
	}
}

// Affected returns the booked appointments the change displaces. Only dates
// from today on in the schedule timezone are considered. An update keeps a
// booking only when it is still a slot of the new grid.
func (c *Cascade) Affected(ctx context.Context, change WindowChange) ([]models.Appointment, error) {
	today := c.clock.Now().In(c.loc).Format(models.DateLayout)

	switch change.Kind {
	case ChangeSessionUpdated, ChangeSessionDeleted:
		if change.Old == nil {
			return nil, fmt.Errorf("%s without previous template: %w", change.Kind, domain.ErrInvalidInput)
		}
		booked, err := c.appointments.ListBookedFrom(ctx, change.DoctorID, today)
		if err != nil {
			return nil, err
		}
		var out []models.Appointment
		for _, a := range booked {
			if !change.Old.ContainsStart(a.Start, c.loc) {
				continue
			}
			if change.Kind == ChangeSessionUpdated && change.New != nil && change.New.HasSlot(a.Start, a.End, c.loc) {
				continue
			}
			out = append(out, a)
		}
		return out, nil

	case ChangeDayUnavailable, ChangeSessionUnavailable:
		if change.Date < today {
			return nil, nil
		}
		booked, err := c.appointments.ListBookedOnDate(ctx, change.DoctorID, change.Date)
		if err != nil {
			return nil, err
		}
		if change.Kind == ChangeDayUnavailable {
			return booked, nil
		}
		if change.Old == nil {
			return nil, fmt.Errorf("%s without template: %w", change.Kind, domain.ErrInvalidInput)
		}
		var out []models.Appointment
		for _, a := range booked {
			if change.Old.ContainsStart(a.Start, c.loc) {
				out = append(out, a)
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("unknown change kind %q: %w", change.Kind, domain.ErrInvalidInput)
}

// Apply cancels and refunds every displaced appointment. Appointments whose
// refund failed stay booked and are reported in the returned error.
func (c *Cascade) Apply(ctx context.Context, change WindowChange) ([]models.Appointment, error) {
	affected, err := c.Affected(ctx, change)
	if err != nil {
		return nil, fmt.Errorf("find affected appointments: %w", err)
	}
	if len(affected) == 0 {
		return nil, nil
	}
	return c.compensator.RefundAll(ctx, affected, string(change.Kind))
}
