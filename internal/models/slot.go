package models

import "time"

// SlotStatus describes whether a generated slot can be booked.
type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotBooked      SlotStatus = "booked"
	SlotUnavailable SlotStatus = "unavailable"
)

// Slot is a bookable interval derived from a session template. Never stored.
type Slot struct {
	ID              string     `json:"id"` // start epoch millis
	Key             int64      `json:"key"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	DurationMinutes int        `json:"durationMinutes"`
	Fee             int64      `json:"fee"`
	SessionID       string     `json:"sessionId"`
	Status          SlotStatus `json:"status"`
}
