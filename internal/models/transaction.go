package models

import "time"

// Ledger parties and purposes.
const (
	PartyAdmin = "admin"
	PartyUser  = "user"

	MethodWallet = "wallet"
	MethodOnline = "online"

	PaymentForAppointment = "appointment"
	PaymentForRefund      = "refund"
)

// Transaction is an append-only ledger entry.
type Transaction struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Method        string    `json:"method"`
	Amount        int64     `json:"amount"`
	PaymentFor    string    `json:"paymentFor"`
	UserID        string    `json:"userId"`
	DoctorID      string    `json:"doctorId"`
	AppointmentID string    `json:"appointmentId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewRefund builds the refund entry issued when an appointment is cancelled.
func NewRefund(a *Appointment, at time.Time) *Transaction {
	return &Transaction{
		From:          PartyAdmin,
		To:            PartyUser,
		Method:        MethodWallet,
		Amount:        a.Fee,
		PaymentFor:    PaymentForRefund,
		UserID:        a.UserID,
		DoctorID:      a.DoctorID,
		AppointmentID: a.ID,
		CreatedAt:     at,
	}
}
