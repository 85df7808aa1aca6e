package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionTemplate is a doctor's recurring weekly availability window.
type SessionTemplate struct {
	ID              string    `json:"id"`
	DoctorID        string    `json:"doctorId"`
	DayOfWeek       int       `json:"dayOfWeek"` // 0-6 (Sunday-Saturday)
	StartTime       string    `json:"startTime"` // "10:00"
	EndTime         string    `json:"endTime"`   // "12:00"
	DurationMinutes int       `json:"durationMinutes"`
	Fee             int64     `json:"fee"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DayOverride marks a whole calendar day unavailable for a doctor.
type DayOverride struct {
	DoctorID string `json:"doctorId"`
	Date     string `json:"date"` // YYYY-MM-DD
}

// SessionOverride marks one session template inactive on one calendar day.
type SessionOverride struct {
	DoctorID  string `json:"doctorId"`
	SessionID string `json:"sessionId"`
	Date      string `json:"date"`
}

// DateLayout is the calendar day format used for overrides and appointments.
const DateLayout = "2006-01-02"

// ParseClock parses "HH:mm" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if hour == 24 && minute != 0 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "HH:mm".
func FormatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Minutes returns the template window as minutes since midnight.
func (s *SessionTemplate) Minutes() (start, end int, err error) {
	start, err = ParseClock(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseClock(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Anchor places the template window on the calendar day of date in loc.
// Only the year, month and day of date are used.
func (s *SessionTemplate) Anchor(date time.Time, loc *time.Location) (start, end time.Time, err error) {
	from, to, err := s.Minutes()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(from) * time.Minute), midnight.Add(time.Duration(to) * time.Minute), nil
}

// OverlapsWith reports whether two templates share a weekday and their
// half-open [start, end) windows intersect.
func (s *SessionTemplate) OverlapsWith(other *SessionTemplate) bool {
	if s.DayOfWeek != other.DayOfWeek {
		return false
	}
	aStart, aEnd, err := s.Minutes()
	if err != nil {
		return false
	}
	bStart, bEnd, err := other.Minutes()
	if err != nil {
		return false
	}
	return aStart < bEnd && bStart < aEnd
}

// Covers reports whether [start, end) in loc lies fully inside the template
// window on the template's weekday.
func (s *SessionTemplate) Covers(start, end time.Time, loc *time.Location) bool {
	ls := start.In(loc)
	if int(ls.Weekday()) != s.DayOfWeek {
		return false
	}
	from, to, err := s.Anchor(ls, loc)
	if err != nil {
		return false
	}
	return !ls.Before(from) && !end.In(loc).After(to)
}

// HasSlot reports whether [start, end) is exactly one slot of the template
// grid on its day: aligned to the window start and one slot long.
func (s *SessionTemplate) HasSlot(start, end time.Time, loc *time.Location) bool {
	if s.DurationMinutes <= 0 || !s.Covers(start, end, loc) {
		return false
	}
	slot := time.Duration(s.DurationMinutes) * time.Minute
	if end.Sub(start) != slot {
		return false
	}
	from, _, err := s.Anchor(start.In(loc), loc)
	if err != nil {
		return false
	}
	return start.Sub(from)%slot == 0
}

// ContainsStart reports whether t in loc starts inside the template window on
// the template's weekday.
func (s *SessionTemplate) ContainsStart(t time.Time, loc *time.Location) bool {
	lt := t.In(loc)
	if int(lt.Weekday()) != s.DayOfWeek {
		return false
	}
	from, to, err := s.Anchor(lt, loc)
	if err != nil {
		return false
	}
	return !lt.Before(from) && lt.Before(to)
}

// ParseDate parses a YYYY-MM-DD calendar day as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
