// Package domain holds the core data model shared by the dispatch engine:
// job definitions, tenant schedule settings, per-user overrides, interventions
// and the execution audit record.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelVoice || c == ChannelSMS
}

// Resource returns the rate-limit resource consumed by the channel.
func (c Channel) Resource() string {
	switch c {
	case ChannelVoice:
		return "voice_minutes"
	case ChannelSMS:
		return "sms_count"
	default:
		return string(c)
	}
}

// ScheduleType classifies how often a job recurs.
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "daily"
	ScheduleWeekly  ScheduleType = "weekly"
	ScheduleMonthly ScheduleType = "monthly"
)

// DayConstraint restricts which days a job may fire on. The zero value
// (KindNone) imposes no restriction. Day rules live on the job definition
// itself so new jobs never require new code branches.
type DayConstraint struct {
	Kind       ScheduleType   `json:"kind"`
	Weekdays   []time.Weekday `json:"weekdays,omitempty"`     // weekly: allowed weekdays
	DayOfMonth int            `json:"day_of_month,omitempty"` // monthly: 1..31
}

const KindNone ScheduleType = ""

// Matches reports whether the constraint allows firing on the given local date.
func (d DayConstraint) Matches(local time.Time) bool {
	switch d.Kind {
	case ScheduleWeekly:
		for _, wd := range d.Weekdays {
			if local.Weekday() == wd {
				return true
			}
		}
		return false
	case ScheduleMonthly:
		return local.Day() == d.DayOfMonth
	default:
		return true
	}
}

// Validate enforces the schedule_type-specific required fields.
func (d DayConstraint) Validate() error {
	switch d.Kind {
	case KindNone, ScheduleDaily:
		return nil
	case ScheduleWeekly:
		if len(d.Weekdays) == 0 {
			return fmt.Errorf("weekly schedule requires at least one weekday")
		}
		for _, wd := range d.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("invalid weekday %d", wd)
			}
		}
		return nil
	case ScheduleMonthly:
		if d.DayOfMonth < 1 || d.DayOfMonth > 31 {
			return fmt.Errorf("monthly schedule requires day_of_month in 1..31, got %d", d.DayOfMonth)
		}
		return nil
	default:
		return fmt.Errorf("unknown schedule kind %q", d.Kind)
	}
}

// ScheduledJob is a proactive outreach job read on every tick.
type ScheduledJob struct {
	Name            string        `json:"job_name"`
	Type            string        `json:"job_type"`
	TimeOfDay       MinuteOfDay   `json:"time_of_day"` // local target time
	WindowMinutes   int           `json:"window_minutes,omitempty"`
	Days            DayConstraint `json:"days"`
	DefaultChannel  Channel       `json:"default_channel"`
	MessageTemplate string        `json:"message_template,omitempty"`
	// CronExpr is informational only; the hourly tick plus the trigger
	// window check is authoritative.
	CronExpr  string    `json:"cron_expr,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks the job definition before it is accepted by the scheduler.
func (j ScheduledJob) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Errorf("job_name is required")
	}
	if !j.DefaultChannel.Valid() {
		return fmt.Errorf("default_channel must be voice or sms, got %q", j.DefaultChannel)
	}
	if j.WindowMinutes < 0 {
		return fmt.Errorf("window_minutes must not be negative")
	}
	return j.Days.Validate()
}

// MinuteOfDay is a local wall-clock time stored as minutes since midnight.
type MinuteOfDay int

// ParseMinuteOfDay parses "HH:MM".
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return MinuteOfDay(hh*60 + mm), nil
}

// MustMinuteOfDay parses "HH:MM" and panics on malformed input. Test helper.
func MustMinuteOfDay(s string) MinuteOfDay {
	m, err := ParseMinuteOfDay(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m MinuteOfDay) Hour() int   { return int(m) / 60 }
func (m MinuteOfDay) Minute() int { return int(m) % 60 }

// String renders the time as "HH:MM".
func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", m.Hour(), m.Minute())
}

// QuietHours is a tenant-local time range during which no proactive outreach
// is sent. The window may wrap midnight (e.g. 22:00-07:00). Start == End
// means quiet hours are disabled.
type QuietHours struct {
	Start MinuteOfDay `json:"start"`
	End   MinuteOfDay `json:"end"`
}

// Contains reports whether the local wall-clock minute falls inside
// [Start, End), handling midnight wraparound.
func (q QuietHours) Contains(m MinuteOfDay) bool {
	if q.Start == q.End {
		return false
	}
	if q.Start < q.End {
		return m >= q.Start && m < q.End
	}
	return m >= q.Start || m < q.End
}

// TenantSettings carries the per-tenant scheduling preferences read on every tick.
type TenantSettings struct {
	TenantID     string         `json:"tenant_id"`
	Timezone     string         `json:"timezone"`
	Language     string         `json:"language"`
	Quiet        QuietHours     `json:"quiet_hours"`
	SkipWeekends bool           `json:"skip_weekends"`
	Channels     []Channel      `json:"notification_channels"`
	RateLimits   map[string]int `json:"rate_limits"` // resource -> allowance per day
	PhoneNumber  string         `json:"phone_number"`
}

// RateLimit returns the configured daily allowance for a resource, or 0 when
// the resource is unlimited.
func (s TenantSettings) RateLimit(resource string) int {
	if s.RateLimits == nil {
		return 0
	}
	return s.RateLimits[resource]
}

// UserJobPreference overrides a job's defaults for one tenant.
type UserJobPreference struct {
	TenantID         string       `json:"tenant_id"`
	JobName          string       `json:"job_name"`
	Enabled          bool         `json:"is_enabled"`
	CustomTime       *MinuteOfDay `json:"custom_time,omitempty"`
	PreferredChannel Channel      `json:"preferred_channel,omitempty"`
	SkipWeekends     *bool        `json:"skip_weekends,omitempty"`
}

// EffectiveTime returns the custom time when set, otherwise the job default.
func (p *UserJobPreference) EffectiveTime(job ScheduledJob) MinuteOfDay {
	if p != nil && p.CustomTime != nil {
		return *p.CustomTime
	}
	return job.TimeOfDay
}

// EffectiveChannel returns the preferred channel when set, otherwise the job default.
func (p *UserJobPreference) EffectiveChannel(job ScheduledJob) Channel {
	if p != nil && p.PreferredChannel.Valid() {
		return p.PreferredChannel
	}
	return job.DefaultChannel
}

// EffectiveSkipWeekends resolves the weekend rule: user override first, then
// tenant setting.
func (p *UserJobPreference) EffectiveSkipWeekends(settings TenantSettings) bool {
	if p != nil && p.SkipWeekends != nil {
		return *p.SkipWeekends
	}
	return settings.SkipWeekends
}

// GuardianVerdict is the approve/block decision gating autonomous actions.
type GuardianVerdict string

const (
	VerdictApproved GuardianVerdict = "approved"
	VerdictBlocked  GuardianVerdict = "blocked"
	VerdictPending  GuardianVerdict = "pending"
)

// InterventionStatus tracks an intervention's lifecycle.
type InterventionStatus string

const (
	InterventionProposed  InterventionStatus = "proposed"
	InterventionCompleted InterventionStatus = "completed"
	InterventionFailed    InterventionStatus = "failed"
	InterventionCancelled InterventionStatus = "cancelled"
)

// Intervention is an autonomously proposed action awaiting (or holding) a
// Guardian verdict. Created by the planning layer; this engine only consumes
// it to decide dispatch eligibility.
type Intervention struct {
	ID           string             `json:"id"`
	TenantID     string             `json:"tenant_id"`
	Title        string             `json:"title"`
	BenefitScore float64            `json:"benefit_score"`
	Verdict      GuardianVerdict    `json:"guardian_verdict"`
	Status       InterventionStatus `json:"status"`
	UserFeedback string             `json:"user_feedback,omitempty"`
	CreatedAt    time.Time          `json:"created_at,omitempty"`
}
