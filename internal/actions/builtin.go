package actions

import (
	"context"
	"errors"
	"fmt"

	"beacon/internal/domain"
	"beacon/internal/storage"
)

// RegisterBuiltins wires the scheduling-configuration handlers the autonomy
// layer may invoke: toggling a job, moving its time, editing quiet hours.
func RegisterBuiltins(r *Registry, db *storage.DB) {
	r.Register("toggle_job", toggleJob(db))
	r.Register("adjust_schedule", adjustSchedule(db))
	r.Register("edit_quiet_hours", editQuietHours(db))
}

func toggleJob(db *storage.DB) Handler {
	return func(ctx context.Context, tenantID string, params map[string]any) (map[string]any, error) {
		jobName, err := stringParam(params, "job_name")
		if err != nil {
			return nil, err
		}
		enabled, err := boolParam(params, "enabled")
		if err != nil {
			return nil, err
		}

		job, settings, pref, err := loadPrefContext(ctx, db, tenantID, jobName)
		if err != nil {
			return nil, err
		}
		pref.Enabled = enabled
		if err := db.Prefs().Save(ctx, *pref, *job, *settings); err != nil {
			return nil, fmt.Errorf("save preference: %w", err)
		}
		return map[string]any{"job_name": jobName, "enabled": enabled}, nil
	}
}

func adjustSchedule(db *storage.DB) Handler {
	return func(ctx context.Context, tenantID string, params map[string]any) (map[string]any, error) {
		jobName, err := stringParam(params, "job_name")
		if err != nil {
			return nil, err
		}
		raw, err := stringParam(params, "time_of_day")
		if err != nil {
			return nil, err
		}
		custom, err := domain.ParseMinuteOfDay(raw)
		if err != nil {
			return nil, err
		}

		job, settings, pref, err := loadPrefContext(ctx, db, tenantID, jobName)
		if err != nil {
			return nil, err
		}
		pref.CustomTime = &custom
		if err := db.Prefs().Save(ctx, *pref, *job, *settings); err != nil {
			return nil, fmt.Errorf("save preference: %w", err)
		}
		return map[string]any{"job_name": jobName, "time_of_day": custom.String()}, nil
	}
}

func editQuietHours(db *storage.DB) Handler {
	return func(ctx context.Context, tenantID string, params map[string]any) (map[string]any, error) {
		startRaw, err := stringParam(params, "start")
		if err != nil {
			return nil, err
		}
		endRaw, err := stringParam(params, "end")
		if err != nil {
			return nil, err
		}
		start, err := domain.ParseMinuteOfDay(startRaw)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseMinuteOfDay(endRaw)
		if err != nil {
			return nil, err
		}

		settings, err := db.Settings().Get(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		settings.Quiet = domain.QuietHours{Start: start, End: end}
		if err := db.Settings().Save(ctx, *settings); err != nil {
			return nil, fmt.Errorf("save settings: %w", err)
		}
		return map[string]any{"start": start.String(), "end": end.String()}, nil
	}
}

// loadPrefContext loads the job and settings a preference write needs, plus
// the existing preference row or a fresh one.
func loadPrefContext(ctx context.Context, db *storage.DB, tenantID, jobName string) (*domain.ScheduledJob, *domain.TenantSettings, *domain.UserJobPreference, error) {
	job, err := db.Jobs().Get(ctx, jobName)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load job: %w", err)
	}
	settings, err := db.Settings().Get(ctx, tenantID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load settings: %w", err)
	}
	pref, err := db.Prefs().Get(ctx, tenantID, jobName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil, fmt.Errorf("load preference: %w", err)
	}
	if pref == nil {
		pref = &domain.UserJobPreference{TenantID: tenantID, JobName: jobName, Enabled: true}
	}
	return job, settings, pref, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func boolParam(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, fmt.Errorf("missing parameter %q", key)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a boolean", key)
	}
	return b, nil
}
