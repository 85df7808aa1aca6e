// Package audit exports the transaction ledger to Excel and mails the monthly
// workbook to admins.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"telecare/internal/domain"

	"github.com/rs/zerolog"
)

// Config holds configuration for the audit service.
type Config struct {
	// ExportOnStart runs the previous month's export when the service starts.
	ExportOnStart bool

	// Location decides where month boundaries fall. Default UTC.
	Location *time.Location
}

// Service produces ledger workbooks and sends one to admins on the first of
// each month.
type Service struct {
	config   Config
	ledger   LedgerSource
	workbook WorkbookFactory
	notifier Notifier
	clock    domain.Clock
	logger   zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewService creates a new audit service. notifier may be nil, in which case
// only on-demand exports are useful.
func NewService(config Config, ledger LedgerSource, workbooks WorkbookFactory, notifier Notifier, clock domain.Clock, logger zerolog.Logger) *Service {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if workbooks == nil {
		workbooks = NewLedgerWorkbook
	}
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Service{
		config:   config,
		ledger:   ledger,
		workbook: workbooks,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With().Str("component", "audit").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the monthly scheduler.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunMonthly()
		}()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Msg("audit service started")
}

// Stop stops the scheduler and waits for a running export.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := s.nextFirstOfMonth()
	timer := time.NewTimer(nextRun.Sub(s.clock.Now()))
	defer timer.Stop()

	s.logger.Info().Time("next_run", nextRun).Msg("next audit scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.RunMonthly()

			nextRun = s.nextFirstOfMonth()
			timer.Reset(nextRun.Sub(s.clock.Now()))
			s.logger.Info().Time("next_run", nextRun).Msg("next audit scheduled")
		}
	}
}

func (s *Service) nextFirstOfMonth() time.Time {
	now := s.clock.Now().In(s.config.Location)
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, s.config.Location)
}

// RunMonthly exports the previous month and sends it to admins.
func (s *Service) RunMonthly() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	now := s.clock.Now().In(s.config.Location)
	prev := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, s.config.Location)
	if err := s.SendMonth(ctx, prev); err != nil {
		s.logger.Error().Err(err).Str("month", prev.Format(MonthLayout)).Msg("monthly ledger export failed")
	}
}

// SendMonth exports the month of t and sends the workbook to admins.
func (s *Service) SendMonth(ctx context.Context, t time.Time) error {
	if s.notifier == nil {
		return fmt.Errorf("audit notifier not configured")
	}

	data, filename, err := s.ExportMonth(ctx, t)
	if err != nil {
		return err
	}

	caption := fmt.Sprintf("Transaction ledger %s", t.Format(MonthLayout))
	if err := s.notifier.SendDocument(ctx, filename, data, caption); err != nil {
		return fmt.Errorf("send document: %w", err)
	}

	s.logger.Info().Str("filename", filename).Msg("audit report sent")
	return nil
}

// ExportMonth builds the workbook for the month containing t. It has a
// "transactions" sheet with every ledger row and a "summary" sheet with
// totals per payment purpose.
func (s *Service) ExportMonth(ctx context.Context, t time.Time) ([]byte, string, error) {
	from, to := MonthRange(t.In(s.config.Location))

	txs, err := s.ledger.ListTransactions(ctx, from, to)
	if err != nil {
		return nil, "", fmt.Errorf("list transactions: %w", err)
	}

	book, err := s.workbook(s.config.Location)
	if err != nil {
		return nil, "", fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	if err := book.WriteTransactions(txs); err != nil {
		return nil, "", err
	}
	if err := book.WriteSummary(Summarize(txs)); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	if err := book.Save(&buf); err != nil {
		return nil, "", fmt.Errorf("save excel: %w", err)
	}

	s.logger.Debug().Str("month", from.Format(MonthLayout)).Int("rows", len(txs)).Msg("ledger exported")
	return buf.Bytes(), GenerateFilename(from), nil
}
