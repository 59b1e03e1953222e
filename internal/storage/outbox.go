package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// OutboxTask is one durable task row.
type OutboxTask struct {
	ID       int64
	Kind     string
	Payload  json.RawMessage
	Attempts int
}

// OutboxStore is a durable at-least-once task queue. Wake-up style work is
// enqueued here instead of fired at a worker over HTTP, so a dropped call
// cannot silently lose it.
type OutboxStore struct {
	db *sql.DB
}

// Enqueue adds a task due immediately.
func (s *OutboxStore) Enqueue(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outbox (kind, payload, attempts, next_attempt_at, created_at)
		VALUES (?, ?, 0, ?, ?)`, kind, string(data), now, now)
	if err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", kind, err)
	}
	return nil
}

// ClaimDue returns up to limit tasks whose attempt time has passed, pushing
// their next attempt out by the backoff so a concurrent worker does not pick
// them up again while they run.
func (s *OutboxStore) ClaimDue(ctx context.Context, limit int, backoff time.Duration) ([]OutboxTask, error) {
	if limit <= 0 {
		limit = 10
	}
	now := time.Now()

	rows, err := s.db.QueryContext(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, next_attempt_at = ?
		WHERE id IN (
			SELECT id FROM outbox
			WHERE done_at IS NULL AND next_attempt_at <= ?
			ORDER BY id LIMIT ?
		)
		RETURNING id, kind, payload, attempts`,
		now.Add(backoff).Unix(), now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim: %w", err)
	}
	defer rows.Close()

	var tasks []OutboxTask
	for rows.Next() {
		var (
			task    OutboxTask
			payload string
		)
		if err := rows.Scan(&task.ID, &task.Kind, &payload, &task.Attempts); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		task.Payload = json.RawMessage(payload)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// MarkDone completes a task.
func (s *OutboxStore) MarkDone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET done_at = ? WHERE id = ?`, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("outbox: mark done %d: %w", id, err)
	}
	return nil
}

// MarkFailed records the error; the task stays queued for its next attempt.
func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, taskErr error) error {
	msg := ""
	if taskErr != nil {
		msg = taskErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET last_error = ? WHERE id = ?`, msg, id)
	if err != nil {
		return fmt.Errorf("outbox: mark failed %d: %w", id, err)
	}
	return nil
}

// PendingCount reports undone tasks, for operational visibility.
func (s *OutboxStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE done_at IS NULL`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("outbox: pending count: %w", err)
	}
	return n, nil
}
