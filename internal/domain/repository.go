package domain

import (
	"context"
	"time"

	"telecare/internal/models"
)

// SessionRepository stores weekly session templates.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *models.SessionTemplate) error
	UpdateSession(ctx context.Context, s *models.SessionTemplate) error
	DeleteSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*models.SessionTemplate, error)
	ListSessions(ctx context.Context, doctorID string) ([]models.SessionTemplate, error)
	ListSessionsByDay(ctx context.Context, doctorID string, dayOfWeek int) ([]models.SessionTemplate, error)
}

// OverrideRepository stores day and session overrides with set semantics.
type OverrideRepository interface {
	IsDayBlocked(ctx context.Context, doctorID, date string) (bool, error)
	SetDayBlocked(ctx context.Context, doctorID, date string, blocked bool) error
	BlockedSessionIDs(ctx context.Context, doctorID, date string) (map[string]struct{}, error)
	SetSessionBlocked(ctx context.Context, doctorID, sessionID, date string, blocked bool) error
}

// AppointmentFilter narrows a doctor's appointment listing. Empty fields match everything.
type AppointmentFilter struct {
	AppointmentStatus models.AppointmentStatus `json:"appointmentStatus,omitempty"`
	StartDate         string                   `json:"startDate,omitempty"`
	EndDate           string                   `json:"endDate,omitempty"`
}

// AppointmentRepository reads appointments.
type AppointmentRepository interface {
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	// ListAppointments returns one page ordered by start and the total row count.
	ListAppointments(ctx context.Context, doctorID string, filter AppointmentFilter, page, limit int) ([]models.Appointment, int, error)
	ListExpiredBooked(ctx context.Context, doctorID string, now time.Time) ([]models.Appointment, error)
	DoctorsWithExpired(ctx context.Context, now time.Time) ([]string, error)
	ListBookedFrom(ctx context.Context, doctorID, fromDate string) ([]models.Appointment, error)
	ListBookedOnDate(ctx context.Context, doctorID, date string) ([]models.Appointment, error)
	// BookedStarts returns the slot keys of live appointments starting in [from, to).
	BookedStarts(ctx context.Context, doctorID string, from, to time.Time) (map[int64]struct{}, error)
}

// LedgerWriter holds every write that moves money or appointment state.
// Implementations are bound to a single transaction.
type LedgerWriter interface {
	InsertAppointment(ctx context.Context, a *models.Appointment) error
	// CancelBooked flips a booked appointment to cancelled/refunded and
	// reports whether this call performed the transition.
	CancelBooked(ctx context.Context, id, reason string, at time.Time) (bool, error)
	CreditWallet(ctx context.Context, userID string, amount int64) error
	DebitWallet(ctx context.Context, userID string, amount int64) error
	AppendTransaction(ctx context.Context, t *models.Transaction) error
	AddRevenue(ctx context.Context, delta int64) error
}

// TxManager runs fn inside one database transaction. fn's error rolls it back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(LedgerWriter) error) error
}

// UserRepository reads and registers patients.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpsertUser(ctx context.Context, u *models.User) error
	WalletBalance(ctx context.Context, userID string) (int64, error)
}

// TransactionRepository reads the append-only ledger.
type TransactionRepository interface {
	ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)
