package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"beacon/internal/domain"
)

// ExecutionStatus classifies one execution log row.
type ExecutionStatus string

const (
	StatusCompleted   ExecutionStatus = "completed"
	StatusFailed      ExecutionStatus = "failed"
	StatusSkipped     ExecutionStatus = "skipped"
	StatusRateLimited ExecutionStatus = "rate_limited"
)

// ExecutionRecord is one append-only audit row.
type ExecutionRecord struct {
	ID             int64           `json:"id,omitempty"`
	JobName        string          `json:"job_name"`
	TenantID       string          `json:"tenant_id"`
	Status         ExecutionStatus `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	ChannelUsed    domain.Channel  `json:"channel_used,omitempty"`
	Result         string          `json:"result,omitempty"` // JSON payload
	Error          string          `json:"error,omitempty"`
	ProviderCallID string          `json:"provider_call_id,omitempty"`
	WindowStart    time.Time       `json:"window_start"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ExecutionLogStore is the append-only audit trail and, through the partial
// unique index on completed rows, the idempotency guard: two scheduler
// invocations racing on the same trigger window cannot both insert a
// completed row.
type ExecutionLogStore struct {
	db *sql.DB
}

// Append inserts one immutable row. For completed rows it reports whether the
// insert won the window: false means another invocation already completed
// this (job, tenant, window) and the caller must treat the dispatch as a
// duplicate. Rows are never updated after insert.
func (s *ExecutionLogStore) Append(ctx context.Context, rec ExecutionRecord) (bool, error) {
	if rec.JobName == "" || rec.TenantID == "" {
		return false, fmt.Errorf("execlog: job_name and tenant_id are required")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_execution_log
			(job_name, tenant_id, status, reason, channel_used, result, error,
			 provider_call_id, window_start, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_name, tenant_id, window_start) WHERE status = 'completed'
			DO NOTHING`,
		rec.JobName, rec.TenantID, string(rec.Status), rec.Reason,
		string(rec.ChannelUsed), rec.Result, rec.Error, rec.ProviderCallID,
		rec.WindowStart.Unix(), createdAt.Unix())
	if err != nil {
		return false, fmt.Errorf("execlog: append: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("execlog: rows affected: %w", err)
	}
	return n > 0, nil
}

// CompletedInWindow reports whether a completed row already exists for the
// trigger window. The tick loop consults this before dispatching so a manual
// re-trigger does not contact the user twice.
func (s *ExecutionLogStore) CompletedInWindow(ctx context.Context, jobName, tenantID string, windowStart time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM job_execution_log
		WHERE job_name = ? AND tenant_id = ? AND window_start = ? AND status = 'completed'
		LIMIT 1`, jobName, tenantID, windowStart.Unix()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("execlog: window check: %w", err)
	}
	return true, nil
}

// Recent returns the newest rows, newest first.
func (s *ExecutionLogStore) Recent(ctx context.Context, limit int) ([]ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_name, tenant_id, status, reason, channel_used, result,
		       error, provider_call_id, window_start, created_at
		FROM job_execution_log
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("execlog: recent: %w", err)
	}
	defer rows.Close()

	var records []ExecutionRecord
	for rows.Next() {
		var (
			rec                    ExecutionRecord
			status, channel        string
			windowStart, createdAt int64
		)
		err := rows.Scan(&rec.ID, &rec.JobName, &rec.TenantID, &status, &rec.Reason,
			&channel, &rec.Result, &rec.Error, &rec.ProviderCallID,
			&windowStart, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("execlog: scan: %w", err)
		}
		rec.Status = ExecutionStatus(status)
		rec.ChannelUsed = domain.Channel(channel)
		rec.WindowStart = time.Unix(windowStart, 0).UTC()
		rec.CreatedAt = time.Unix(createdAt, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
