package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// KeyTotalRevenue is the analytics counter of net booked fees.
const KeyTotalRevenue = "total_revenue"

// AddRevenue adjusts total_revenue by delta in a single statement.
func (q *Queries) AddRevenue(ctx context.Context, delta int64) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO analytics (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = value + excluded.value`,
		KeyTotalRevenue, delta,
	)
	if err != nil {
		return fmt.Errorf("add revenue: %w", err)
	}
	return nil
}

// Revenue returns the current total_revenue value.
func (q *Queries) Revenue(ctx context.Context) (int64, error) {
	var value int64
	err := q.db.QueryRowContext(ctx, "SELECT value FROM analytics WHERE key = ?", KeyTotalRevenue).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get revenue: %w", err)
	}
	return value, nil
}
