package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"telecare/internal/domain"
	"telecare/internal/models"
)

// LedgerSource reads the transaction ledger.
type LedgerSource interface {
	ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
}

// LedgerWorkbook renders one month of the ledger.
type LedgerWorkbook interface {
	WriteTransactions(txs []models.Transaction) error
	WriteSummary(s Summary) error
	Save(w io.Writer) error
	Close() error
}

// WorkbookFactory opens an empty workbook rendering timestamps in loc.
type WorkbookFactory func(loc *time.Location) (LedgerWorkbook, error)

// Summary totals a month of ledger rows by payment purpose.
type Summary struct {
	Appointments int
	Refunds      int
	Paid         int64
	Refunded     int64
}

// Net is the revenue kept after refunds.
func (s Summary) Net() int64 {
	return s.Paid - s.Refunded
}

// Summarize totals appointment payments and refunds.
func Summarize(txs []models.Transaction) Summary {
	var s Summary
	for _, tx := range txs {
		switch tx.PaymentFor {
		case models.PaymentForAppointment:
			s.Appointments++
			s.Paid += tx.Amount
		case models.PaymentForRefund:
			s.Refunds++
			s.Refunded += tx.Amount
		}
	}
	return s
}

// Notifier sends audit reports to admins.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data []byte, caption string) error
}

// MonthLayout is the month format accepted by ParseMonth.
const MonthLayout = "2006-01"

// ParseMonth parses YYYY-MM and returns the first instant of that month in loc.
func ParseMonth(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(MonthLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("month %q must be YYYY-MM: %w", s, domain.ErrInvalidInput)
	}
	return t, nil
}

// MonthRange returns [first of month, first of next month) for the month of t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 1, 0)
}

// GenerateFilename creates a filename like "ledger_2026-01.xlsx".
func GenerateFilename(t time.Time) string {
	return fmt.Sprintf("ledger_%s.xlsx", t.Format(MonthLayout))
}
