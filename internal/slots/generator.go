// Package slots expands weekly session templates into bookable slots for a
// calendar day.
package slots

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"telecare/internal/models"
)

// TemplateSource lists a doctor's templates for one weekday.
type TemplateSource interface {
	ListSessionsByDay(ctx context.Context, doctorID string, dayOfWeek int) ([]models.SessionTemplate, error)
}

// OverrideSource reports day and session overrides.
type OverrideSource interface {
	IsDayBlocked(ctx context.Context, doctorID, date string) (bool, error)
	BlockedSessionIDs(ctx context.Context, doctorID, date string) (map[string]struct{}, error)
}

// BookingChecker returns the slot keys already taken by live appointments.
type BookingChecker interface {
	BookedStarts(ctx context.Context, doctorID string, from, to time.Time) (map[int64]struct{}, error)
}

// DaySessionSlots is one active template and its slots.
type DaySessionSlots struct {
	Session models.SessionTemplate `json:"session"`
	Slots   []models.Slot          `json:"slots"`
}

// DaySchedule is the availability view of one doctor on one date.
type DaySchedule struct {
	Date       string                   `json:"date"`
	DayBlocked bool                     `json:"dayBlocked"`
	Sessions   []DaySessionSlots        `json:"sessions"`
	Blocked    []models.SessionTemplate `json:"blockedSessions"`
}

// Generator builds day schedules.
type Generator struct {
	sessions  TemplateSource
	overrides OverrideSource
	bookings  BookingChecker
	loc       *time.Location
}

// NewGenerator creates a generator anchoring templates in loc.
func NewGenerator(sessions TemplateSource, overrides OverrideSource, bookings BookingChecker, loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{
		sessions:  sessions,
		overrides: overrides,
		bookings:  bookings,
		loc:       loc,
	}
}

// Location returns the schedule timezone.
func (g *Generator) Location() *time.Location {
	return g.loc
}

// Generate returns the schedule of doctorID on the calendar day of date. The
// result does not depend on the current time.
func (g *Generator) Generate(ctx context.Context, doctorID string, date time.Time) (*DaySchedule, error) {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, g.loc)
	dateKey := day.Format(models.DateLayout)

	schedule := &DaySchedule{Date: dateKey, Sessions: []DaySessionSlots{}, Blocked: []models.SessionTemplate{}}

	blocked, err := g.overrides.IsDayBlocked(ctx, doctorID, dateKey)
	if err != nil {
		return nil, fmt.Errorf("check day override: %w", err)
	}
	if blocked {
		schedule.DayBlocked = true
		return schedule, nil
	}

	templates, err := g.sessions.ListSessionsByDay(ctx, doctorID, int(day.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(templates) == 0 {
		return schedule, nil
	}

	off, err := g.overrides.BlockedSessionIDs(ctx, doctorID, dateKey)
	if err != nil {
		return nil, fmt.Errorf("list session overrides: %w", err)
	}

	booked, err := g.bookings.BookedStarts(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	for _, tmpl := range templates {
		if _, isOff := off[tmpl.ID]; isOff {
			schedule.Blocked = append(schedule.Blocked, tmpl)
			continue
		}
		slots, err := Expand(&tmpl, day, g.loc, booked)
		if err != nil {
			return nil, fmt.Errorf("expand session %s: %w", tmpl.ID, err)
		}
		schedule.Sessions = append(schedule.Sessions, DaySessionSlots{Session: tmpl, Slots: slots})
	}

	return schedule, nil
}

// Expand walks the template window on date in DurationMinutes steps. A
// trailing remainder shorter than one slot is dropped.
func Expand(tmpl *models.SessionTemplate, date time.Time, loc *time.Location, booked map[int64]struct{}) ([]models.Slot, error) {
	slots := []models.Slot{}
	if tmpl.DurationMinutes <= 0 {
		return slots, nil
	}

	startTime, endTime, err := tmpl.Anchor(date, loc)
	if err != nil {
		return nil, err
	}

	slotDuration := time.Duration(tmpl.DurationMinutes) * time.Minute
	for cursor := startTime; !cursor.Add(slotDuration).After(endTime); cursor = cursor.Add(slotDuration) {
		key := cursor.UnixMilli()
		status := models.SlotAvailable
		if _, taken := booked[key]; taken {
			status = models.SlotBooked
		}
		slots = append(slots, models.Slot{
			ID:              strconv.FormatInt(key, 10),
			Key:             key,
			Start:           cursor,
			End:             cursor.Add(slotDuration),
			DurationMinutes: tmpl.DurationMinutes,
			Fee:             tmpl.Fee,
			SessionID:       tmpl.ID,
			Status:          status,
		})
	}

	return slots, nil
}

// MarkPast turns available slots that start before now into unavailable ones.
// Patients see this view; doctors see the raw schedule.
func MarkPast(schedule *DaySchedule, now time.Time) {
	for i := range schedule.Sessions {
		for j := range schedule.Sessions[i].Slots {
			slot := &schedule.Sessions[i].Slots[j]
			if slot.Status == models.SlotAvailable && slot.Start.Before(now) {
				slot.Status = models.SlotUnavailable
			}
		}
	}
}

// FindSlot returns the slot with key inside the given session, if present.
func FindSlot(schedule *DaySchedule, sessionID string, key int64) (models.Slot, bool) {
	for _, s := range schedule.Sessions {
		if sessionID != "" && s.Session.ID != sessionID {
			continue
		}
		for _, slot := range s.Slots {
			if slot.Key == key {
				return slot, true
			}
		}
	}
	return models.Slot{}, false
}
