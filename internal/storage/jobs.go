package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"beacon/internal/domain"
)

// JobStore persists scheduled job definitions.
type JobStore struct {
	db *sql.DB
}

// Save inserts or replaces a job definition. Validation runs first so a
// malformed job never reaches the scheduler loop.
func (s *JobStore) Save(ctx context.Context, job domain.ScheduledJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs
			(job_name, job_type, time_of_day, window_minutes, day_kind, weekdays,
			 day_of_month, default_channel, message_template, cron_expr, is_active,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_name) DO UPDATE SET
			job_type = excluded.job_type,
			time_of_day = excluded.time_of_day,
			window_minutes = excluded.window_minutes,
			day_kind = excluded.day_kind,
			weekdays = excluded.weekdays,
			day_of_month = excluded.day_of_month,
			default_channel = excluded.default_channel,
			message_template = excluded.message_template,
			cron_expr = excluded.cron_expr,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		job.Name, job.Type, int(job.TimeOfDay), job.WindowMinutes,
		string(job.Days.Kind), encodeWeekdays(job.Days.Weekdays), job.Days.DayOfMonth,
		string(job.DefaultChannel), job.MessageTemplate, job.CronExpr,
		boolToInt(job.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("jobs: save %s: %w", job.Name, err)
	}
	return nil
}

// Get loads one job by name.
func (s *JobStore) Get(ctx context.Context, name string) (*domain.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_name, job_type, time_of_day, window_minutes, day_kind, weekdays,
		       day_of_month, default_channel, message_template, cron_expr, is_active,
		       created_at, updated_at
		FROM scheduled_jobs WHERE job_name = ?`, name)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("jobs: %w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("jobs: get %s: %w", name, err)
	}
	return job, nil
}

// ListActive returns all active jobs ordered by name.
func (s *JobStore) ListActive(ctx context.Context) ([]domain.ScheduledJob, error) {
	return s.list(ctx, `WHERE is_active = 1`)
}

// List returns all jobs ordered by name.
func (s *JobStore) List(ctx context.Context) ([]domain.ScheduledJob, error) {
	return s.list(ctx, ``)
}

func (s *JobStore) list(ctx context.Context, where string) ([]domain.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_name, job_type, time_of_day, window_minutes, day_kind, weekdays,
		       day_of_month, default_channel, message_template, cron_expr, is_active,
		       created_at, updated_at
		FROM scheduled_jobs `+where+` ORDER BY job_name`)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: scan: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// SetActive toggles a job without rewriting the whole row.
func (s *JobStore) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET is_active = ?, updated_at = ? WHERE job_name = ?`,
		boolToInt(active), time.Now().Unix(), name)
	if err != nil {
		return fmt.Errorf("jobs: set active %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("jobs: %w: %s", ErrNotFound, name)
	}
	return nil
}

// Delete removes a job definition.
func (s *JobStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE job_name = ?`, name)
	if err != nil {
		return fmt.Errorf("jobs: delete %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("jobs: %w: %s", ErrNotFound, name)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.ScheduledJob, error) {
	var (
		job                  domain.ScheduledJob
		timeOfDay            int
		dayKind, weekdays    string
		channel              string
		active               int
		createdAt, updatedAt int64
	)
	err := r.Scan(&job.Name, &job.Type, &timeOfDay, &job.WindowMinutes, &dayKind,
		&weekdays, &job.Days.DayOfMonth, &channel, &job.MessageTemplate,
		&job.CronExpr, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	job.TimeOfDay = domain.MinuteOfDay(timeOfDay)
	job.Days.Kind = domain.ScheduleType(dayKind)
	job.Days.Weekdays = decodeWeekdays(weekdays)
	job.DefaultChannel = domain.Channel(channel)
	job.IsActive = active != 0
	job.CreatedAt = time.Unix(createdAt, 0).UTC()
	job.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &job, nil
}

func encodeWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
