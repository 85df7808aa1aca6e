package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"telecare/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs every statement against either the pool or an open transaction.
type Queries struct {
	db DBTX
}

// DB is the sqlite connection pool plus the queries bound to it.
type DB struct {
	*sql.DB
	*Queries
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL, busy timeout and BEGIN IMMEDIATE so concurrent writers queue instead of failing.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:      db,
		Queries: &Queries{db: db},
		path:    path,
		logger:  logger,
	}

	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the sqlite file path.
func (db *DB) Path() string {
	return db.path
}

// WithinTx runs fn inside one transaction, committing only if fn succeeds.
func (db *DB) WithinTx(ctx context.Context, fn func(domain.LedgerWriter) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Queries{db: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			telegram_chat_id INTEGER NOT NULL DEFAULT 0,
			wallet_balance INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// Weekly templates
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			fee INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_doctor_day ON sessions(doctor_id, day_of_week)`,

		`CREATE TABLE IF NOT EXISTS day_overrides (
			doctor_id TEXT NOT NULL,
			date TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (doctor_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS session_overrides (
			doctor_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			date TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (doctor_id, session_id, date)
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			doctor_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			start_ms INTEGER NOT NULL,
			end_ms INTEGER NOT NULL,
			duration_minutes INTEGER NOT NULL,
			fee INTEGER NOT NULL,
			appointment_status TEXT NOT NULL DEFAULT 'booked',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT NOT NULL DEFAULT '',
			cancel_reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		// One live booking per doctor slot
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_live_slot
			ON appointments(doctor_id, start_ms) WHERE appointment_status != 'cancelled'`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status_end ON appointments(appointment_status, end_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_doctor_date ON appointments(doctor_id, date)`,

		// Append-only ledger
		`CREATE TABLE IF NOT EXISTS transactions (
			id TEXT PRIMARY KEY,
			from_party TEXT NOT NULL,
			to_party TEXT NOT NULL,
			method TEXT NOT NULL,
			amount INTEGER NOT NULL,
			payment_for TEXT NOT NULL,
			user_id TEXT NOT NULL,
			doctor_id TEXT NOT NULL,
			appointment_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_appointment ON transactions(appointment_id)`,

		`CREATE TABLE IF NOT EXISTS analytics (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS blocked_users (
			user_id TEXT PRIMARY KEY,
			blocked_at INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			blocked_by TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS admins (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			telegram_chat_id INTEGER NOT NULL DEFAULT 0,
			added_at INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
