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

// SettingsStore persists per-tenant schedule settings.
type SettingsStore struct {
	db *sql.DB
}

// Save inserts or replaces a tenant's settings.
func (s *SettingsStore) Save(ctx context.Context, settings domain.TenantSettings) error {
	if settings.TenantID == "" {
		return errors.New("settings: tenant_id is required")
	}
	channels, err := json.Marshal(settings.Channels)
	if err != nil {
		return fmt.Errorf("settings: marshal channels: %w", err)
	}
	limits, err := json.Marshal(settings.RateLimits)
	if err != nil {
		return fmt.Errorf("settings: marshal rate limits: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_settings
			(tenant_id, timezone, language, quiet_start, quiet_end, skip_weekends,
			 channels, rate_limits, phone_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			timezone = excluded.timezone,
			language = excluded.language,
			quiet_start = excluded.quiet_start,
			quiet_end = excluded.quiet_end,
			skip_weekends = excluded.skip_weekends,
			channels = excluded.channels,
			rate_limits = excluded.rate_limits,
			phone_number = excluded.phone_number,
			updated_at = excluded.updated_at`,
		settings.TenantID, settings.Timezone, settings.Language,
		int(settings.Quiet.Start), int(settings.Quiet.End),
		boolToInt(settings.SkipWeekends), string(channels), string(limits),
		settings.PhoneNumber, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("settings: save %s: %w", settings.TenantID, err)
	}
	return nil
}

// Get loads one tenant's settings.
func (s *SettingsStore) Get(ctx context.Context, tenantID string) (*domain.TenantSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, timezone, language, quiet_start, quiet_end, skip_weekends,
		       channels, rate_limits, phone_number
		FROM tenant_settings WHERE tenant_id = ?`, tenantID)

	settings, err := scanSettings(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("settings: %w: %s", ErrNotFound, tenantID)
		}
		return nil, fmt.Errorf("settings: get %s: %w", tenantID, err)
	}
	return settings, nil
}

func scanSettings(r rowScanner) (*domain.TenantSettings, error) {
	var (
		settings             domain.TenantSettings
		quietStart, quietEnd int
		skipWeekends         int
		channels, limits     string
	)
	err := r.Scan(&settings.TenantID, &settings.Timezone, &settings.Language,
		&quietStart, &quietEnd, &skipWeekends, &channels, &limits,
		&settings.PhoneNumber)
	if err != nil {
		return nil, err
	}
	settings.Quiet = domain.QuietHours{
		Start: domain.MinuteOfDay(quietStart),
		End:   domain.MinuteOfDay(quietEnd),
	}
	settings.SkipWeekends = skipWeekends != 0
	if err := json.Unmarshal([]byte(channels), &settings.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if err := json.Unmarshal([]byte(limits), &settings.RateLimits); err != nil {
		return nil, fmt.Errorf("decode rate limits: %w", err)
	}
	return &settings, nil
}
