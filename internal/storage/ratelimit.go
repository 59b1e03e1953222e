package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RateLimitStore implements the per-tenant-per-resource counters behind the
// gating pipeline. The check and increment are one SQL statement, so two
// overlapping scheduler invocations cannot double-spend a budget.
type RateLimitStore struct {
	db *sql.DB
}

// Acquire reserves one unit of the tenant's budget inside the given window.
// Returns false, leaving the counter untouched, when the budget is exhausted.
// The limit is snapshotted on first use of a window; a settings change takes
// effect with the next window.
func (s *RateLimitStore) Acquire(ctx context.Context, tenantID, resource string, limit int, windowStart time.Time) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_counters (tenant_id, resource, window_start, used, limit_value)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(tenant_id, resource, window_start) DO UPDATE SET
			used = used + 1
		WHERE rate_limit_counters.used < rate_limit_counters.limit_value`,
		tenantID, resource, windowStart.Unix(), limit)
	if err != nil {
		return false, fmt.Errorf("ratelimit: acquire %s/%s: %w", tenantID, resource, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ratelimit: rows affected: %w", err)
	}
	return n > 0, nil
}

// Usage returns the units consumed in a window. Zero when the window has no row.
func (s *RateLimitStore) Usage(ctx context.Context, tenantID, resource string, windowStart time.Time) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `
		SELECT used FROM rate_limit_counters
		WHERE tenant_id = ? AND resource = ? AND window_start = ?`,
		tenantID, resource, windowStart.Unix()).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit: usage: %w", err)
	}
	return used, nil
}
