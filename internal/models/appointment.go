package models

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// PaymentStatus is the payment state of an appointment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Appointment is a booked consultation between a patient and a doctor.
type Appointment struct {
	ID                string            `json:"id"`
	DoctorID          string            `json:"doctorId"`
	UserID            string            `json:"userId"`
	SessionID         string            `json:"sessionId,omitempty"`
	Date              string            `json:"date"` // YYYY-MM-DD in the schedule timezone
	Start             time.Time         `json:"start"`
	End               time.Time         `json:"end"`
	DurationMinutes   int               `json:"durationMinutes"`
	Fee               int64             `json:"fee"`
	AppointmentStatus AppointmentStatus `json:"appointmentStatus"`
	PaymentStatus     PaymentStatus     `json:"paymentStatus"`
	PaymentMethod     string            `json:"paymentMethod,omitempty"`
	CancelReason      string            `json:"cancelReason,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// SlotKey returns the epoch-millisecond key of the slot this appointment occupies.
func (a *Appointment) SlotKey() int64 {
	return a.Start.UnixMilli()
}

// IsExpired reports whether a booked appointment has already ended.
func (a *Appointment) IsExpired(now time.Time) bool {
	return a.AppointmentStatus == StatusBooked && a.End.Before(now)
}

// Duration returns the appointment length.
func (a *Appointment) Duration() time.Duration {
	return a.End.Sub(a.Start)
}
