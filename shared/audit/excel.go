package audit

import (
	"fmt"
	"io"
	"time"

	"telecare/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	transactionsSheet = "transactions"
	summarySheet      = "summary"

	// builtin excelize number format "#,##0"
	amountNumFmt = 3
)

type cellKind int

const (
	cellText cellKind = iota
	cellTimestamp
	cellAmount
)

type column struct {
	title string
	width float64
	kind  cellKind
	value func(tx *models.Transaction, loc *time.Location) interface{}
}

var transactionLayout = []column{
	{"id", 38, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return tx.ID }},
	{"created_at", 20, cellTimestamp, func(tx *models.Transaction, loc *time.Location) interface{} {
		return tx.CreatedAt.In(loc).Format(time.DateTime)
	}},
	{"payment_for", 14, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return string(tx.PaymentFor) }},
	{"from", 8, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return string(tx.From) }},
	{"to", 8, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return string(tx.To) }},
	{"method", 10, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return string(tx.Method) }},
	{"amount", 12, cellAmount, func(tx *models.Transaction, _ *time.Location) interface{} { return tx.Amount }},
	{"user_id", 20, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return tx.UserID }},
	{"doctor_id", 20, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return tx.DoctorID }},
	{"appointment_id", 38, cellText, func(tx *models.Transaction, _ *time.Location) interface{} { return tx.AppointmentID }},
}

var summaryLayout = []string{"metric", "count", "amount"}

// TransactionColumns returns the header row of the transactions sheet.
func TransactionColumns() []string {
	titles := make([]string, len(transactionLayout))
	for i, c := range transactionLayout {
		titles[i] = c.title
	}
	return titles
}

// ExcelLedgerWorkbook renders the ledger into an in-memory excelize workbook.
type ExcelLedgerWorkbook struct {
	file        *excelize.File
	loc         *time.Location
	headerStyle int
	amountStyle int
	sheets      int
}

// NewLedgerWorkbook creates a workbook whose timestamps are rendered in loc.
func NewLedgerWorkbook(loc *time.Location) (LedgerWorkbook, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("amount style: %w", err)
	}
	return &ExcelLedgerWorkbook{file: f, loc: loc, headerStyle: header, amountStyle: amount}, nil
}

// WriteTransactions fills the transactions sheet, one row per ledger entry.
func (w *ExcelLedgerWorkbook) WriteTransactions(txs []models.Transaction) error {
	if err := w.sheet(transactionsSheet, TransactionColumns()); err != nil {
		return err
	}
	for i, c := range transactionLayout {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.file.SetColWidth(transactionsSheet, name, name, c.width); err != nil {
			return fmt.Errorf("width of %s: %w", c.title, err)
		}
	}

	for r := range txs {
		row := make([]interface{}, len(transactionLayout))
		for i, c := range transactionLayout {
			row[i] = c.value(&txs[r], w.loc)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(transactionsSheet, cell, &row); err != nil {
			return fmt.Errorf("write transaction %s: %w", txs[r].ID, err)
		}
	}

	if len(txs) == 0 {
		return nil
	}
	for i, c := range transactionLayout {
		if c.kind != cellAmount {
			continue
		}
		from, err := excelize.CoordinatesToCellName(i+1, 2)
		if err != nil {
			return err
		}
		to, err := excelize.CoordinatesToCellName(i+1, len(txs)+1)
		if err != nil {
			return err
		}
		if err := w.file.SetCellStyle(transactionsSheet, from, to, w.amountStyle); err != nil {
			return fmt.Errorf("style %s: %w", c.title, err)
		}
	}
	return nil
}

// WriteSummary fills the summary sheet with booking, refund and net totals.
func (w *ExcelLedgerWorkbook) WriteSummary(s Summary) error {
	if err := w.sheet(summarySheet, summaryLayout); err != nil {
		return err
	}
	if err := w.file.SetColWidth(summarySheet, "A", "C", 14); err != nil {
		return fmt.Errorf("summary widths: %w", err)
	}
	rows := [][]interface{}{
		{"appointments", s.Appointments, s.Paid},
		{"refunds", s.Refunds, s.Refunded},
		{"net", s.Appointments - s.Refunds, s.Net()},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := w.file.SetSheetRow(summarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := w.file.SetCellStyle(summarySheet, "C2", fmt.Sprintf("C%d", len(rows)+1), w.amountStyle); err != nil {
		return fmt.Errorf("style summary amounts: %w", err)
	}
	return nil
}

// sheet creates a sheet with a styled, frozen header row. The workbook's
// default sheet is renamed for the first one.
func (w *ExcelLedgerWorkbook) sheet(name string, header []string) error {
	if w.sheets == 0 {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheets++

	if err := w.file.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("header of %s: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := w.file.SetCellStyle(name, "A1", last, w.headerStyle); err != nil {
		return fmt.Errorf("header style of %s: %w", name, err)
	}
	if err := w.file.SetPanes(name, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header of %s: %w", name, err)
	}
	return nil
}

// Save writes the workbook as xlsx.
func (w *ExcelLedgerWorkbook) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

func (w *ExcelLedgerWorkbook) Close() error {
	return w.file.Close()
}
