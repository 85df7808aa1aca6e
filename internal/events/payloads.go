package events

import (
	"time"

	"telecare/internal/models"
)

// WindowChanged describes a schedule mutation that may displace bookings.
type WindowChanged struct {
	DoctorID  string `json:"doctorId"`
	SessionID string `json:"sessionId,omitempty"`
	Date      string `json:"date,omitempty"`
	Change    string `json:"change"`
	OldDay    int    `json:"oldDayOfWeek"`
	OldStart  string `json:"oldStartTime,omitempty"`
	OldEnd    string `json:"oldEndTime,omitempty"`
	NewDay    int    `json:"newDayOfWeek"`
	NewStart  string `json:"newStartTime,omitempty"`
	NewEnd    string `json:"newEndTime,omitempty"`
	Cancelled int    `json:"cancelled"`
}

// CancelledAppointment is the notification view of a refunded appointment.
type CancelledAppointment struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	DoctorID string    `json:"doctorId"`
	Start    time.Time `json:"start"`
	Fee      int64     `json:"fee"`
}

// AppointmentsCancelled is published after refunds have been committed.
type AppointmentsCancelled struct {
	Reason       string                 `json:"reason"`
	Appointments []CancelledAppointment `json:"appointments"`
}

// NewAppointmentsCancelled builds the appointments.cancelled body.
func NewAppointmentsCancelled(reason string, list []models.Appointment) AppointmentsCancelled {
	p := AppointmentsCancelled{Reason: reason, Appointments: make([]CancelledAppointment, 0, len(list))}
	for _, a := range list {
		p.Appointments = append(p.Appointments, CancelledAppointment{
			ID:       a.ID,
			UserID:   a.UserID,
			DoctorID: a.DoctorID,
			Start:    a.Start,
			Fee:      a.Fee,
		})
	}
	return p
}
