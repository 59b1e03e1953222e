package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"beacon/internal/domain"
)

// PrefStore persists per-(tenant, job) overrides and answers the per-tick
// eligibility query.
type PrefStore struct {
	db *sql.DB
}

// EligibleUser is one row of the eligibility query: the tenant's settings and
// the job override, loaded together so the tick loop makes no further reads
// per user.
type EligibleUser struct {
	Settings domain.TenantSettings
	Pref     domain.UserJobPreference
}

// Save upserts a preference row. The effective target hour is precomputed in
// UTC (from the custom time or the job default, in the tenant's timezone) so
// the eligibility query can index on it instead of scanning every tenant.
func (s *PrefStore) Save(ctx context.Context, pref domain.UserJobPreference, job domain.ScheduledJob, settings domain.TenantSettings) error {
	if pref.TenantID == "" || pref.JobName == "" {
		return errors.New("prefs: tenant_id and job_name are required")
	}

	utcHour, err := effectiveUTCHour(pref, job, settings)
	if err != nil {
		return fmt.Errorf("prefs: %w", err)
	}

	var customTime any
	if pref.CustomTime != nil {
		customTime = int(*pref.CustomTime)
	}
	var skipWeekends any
	if pref.SkipWeekends != nil {
		skipWeekends = boolToInt(*pref.SkipWeekends)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_job_prefs
			(tenant_id, job_name, is_enabled, custom_time, preferred_channel,
			 skip_weekends, utc_hour, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, job_name) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			custom_time = excluded.custom_time,
			preferred_channel = excluded.preferred_channel,
			skip_weekends = excluded.skip_weekends,
			utc_hour = excluded.utc_hour,
			updated_at = excluded.updated_at`,
		pref.TenantID, pref.JobName, boolToInt(pref.Enabled), customTime,
		string(pref.PreferredChannel), skipWeekends, utcHour, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("prefs: save %s/%s: %w", pref.TenantID, pref.JobName, err)
	}
	return nil
}

// Get loads one preference row.
func (s *PrefStore) Get(ctx context.Context, tenantID, jobName string) (*domain.UserJobPreference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, job_name, is_enabled, custom_time, preferred_channel, skip_weekends
		FROM user_job_prefs WHERE tenant_id = ? AND job_name = ?`, tenantID, jobName)

	pref, err := scanPref(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("prefs: %w: %s/%s", ErrNotFound, tenantID, jobName)
		}
		return nil, fmt.Errorf("prefs: get: %w", err)
	}
	return pref, nil
}

// EligibleUsers returns enabled (tenant, job) pairs whose precomputed target
// hour is within one hour of the current UTC hour. The slop absorbs DST
// drift; the TriggerEvaluator remains the authority on whether the job is
// actually due.
func (s *PrefStore) EligibleUsers(ctx context.Context, jobName string, utcHour int) ([]EligibleUser, error) {
	prev := (utcHour + 23) % 24
	next := (utcHour + 1) % 24

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.tenant_id, p.job_name, p.is_enabled, p.custom_time,
		       p.preferred_channel, p.skip_weekends,
		       t.tenant_id, t.timezone, t.language, t.quiet_start, t.quiet_end,
		       t.skip_weekends, t.channels, t.rate_limits, t.phone_number
		FROM user_job_prefs p
		JOIN tenant_settings t ON t.tenant_id = p.tenant_id
		WHERE p.job_name = ? AND p.is_enabled = 1 AND p.utc_hour IN (?, ?, ?)
		ORDER BY p.tenant_id`, jobName, prev, utcHour, next)
	if err != nil {
		return nil, fmt.Errorf("prefs: eligibility query: %w", err)
	}
	defer rows.Close()

	var users []EligibleUser
	for rows.Next() {
		var (
			user                 EligibleUser
			enabled              int
			customTime           sql.NullInt64
			channel              string
			prefSkip             sql.NullInt64
			quietStart, quietEnd int
			tenantSkip           int
			channels, limits     string
		)
		err := rows.Scan(&user.Pref.TenantID, &user.Pref.JobName, &enabled,
			&customTime, &channel, &prefSkip,
			&user.Settings.TenantID, &user.Settings.Timezone, &user.Settings.Language,
			&quietStart, &quietEnd, &tenantSkip, &channels, &limits,
			&user.Settings.PhoneNumber)
		if err != nil {
			return nil, fmt.Errorf("prefs: scan eligibility row: %w", err)
		}
		user.Pref.Enabled = enabled != 0
		applyNullables(&user.Pref, customTime, channel, prefSkip)
		user.Settings.Quiet = domain.QuietHours{
			Start: domain.MinuteOfDay(quietStart),
			End:   domain.MinuteOfDay(quietEnd),
		}
		user.Settings.SkipWeekends = tenantSkip != 0
		if err := json.Unmarshal([]byte(channels), &user.Settings.Channels); err != nil {
			return nil, fmt.Errorf("prefs: decode channels: %w", err)
		}
		if err := json.Unmarshal([]byte(limits), &user.Settings.RateLimits); err != nil {
			return nil, fmt.Errorf("prefs: decode rate limits: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanPref(r rowScanner) (*domain.UserJobPreference, error) {
	var (
		pref       domain.UserJobPreference
		enabled    int
		customTime sql.NullInt64
		channel    string
		skip       sql.NullInt64
	)
	if err := r.Scan(&pref.TenantID, &pref.JobName, &enabled, &customTime, &channel, &skip); err != nil {
		return nil, err
	}
	pref.Enabled = enabled != 0
	applyNullables(&pref, customTime, channel, skip)
	return &pref, nil
}

func applyNullables(pref *domain.UserJobPreference, customTime sql.NullInt64, channel string, skip sql.NullInt64) {
	if customTime.Valid {
		m := domain.MinuteOfDay(customTime.Int64)
		pref.CustomTime = &m
	}
	pref.PreferredChannel = domain.Channel(channel)
	if skip.Valid {
		b := skip.Int64 != 0
		pref.SkipWeekends = &b
	}
}

// effectiveUTCHour converts the preference's effective local target time into
// the UTC hour it lands on today.
func effectiveUTCHour(pref domain.UserJobPreference, job domain.ScheduledJob, settings domain.TenantSettings) (int, error) {
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return 0, fmt.Errorf("timezone %q: %w", settings.Timezone, err)
	}
	at := pref.EffectiveTime(job)
	now := time.Now().In(loc)
	local := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, loc)
	return local.UTC().Hour(), nil
}
