package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
	ErrSlotNotAvailable  = errors.New("slot is not available")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyFinal      = errors.New("appointment is not booked")
)

// OverlapError is returned when a session window intersects another session
// of the same doctor on the same weekday.
type OverlapError struct {
	ConflictID string
	DayOfWeek  int
	StartTime  string
	EndTime    string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("session overlaps existing session on %s (%s-%s)",
		time.Weekday(e.DayOfWeek), e.StartTime, e.EndTime)
}

// InvalidRangeError is returned when a session does not end after it starts.
type InvalidRangeError struct {
	StartTime string
	EndTime   string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid time range: start %s must be before end %s", e.StartTime, e.EndTime)
}

// CompensationError wraps a failed wallet credit or ledger append for one appointment.
type CompensationError struct {
	AppointmentID string
	Err           error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for appointment %s failed: %v", e.AppointmentID, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// IsOverlap reports whether err is an OverlapError.
func IsOverlap(err error) bool {
	var oe *OverlapError
	return errors.As(err, &oe)
}

// IsInvalidRange reports whether err is an InvalidRangeError.
func IsInvalidRange(err error) bool {
	var re *InvalidRangeError
	return errors.As(err, &re)
}

// IsCompensation reports whether err carries a CompensationError.
func IsCompensation(err error) bool {
	var ce *CompensationError
	return errors.As(err, &ce)
}
