// Package gating applies the ordered policy checks that run after a job's
// trigger window has matched: weekend skip, quiet hours, Guardian verdict and
// the atomic rate-limit reservation. The first failing check aborts the
// pipeline; later checks are not evaluated.
package gating

import (
	"context"
	"time"

	"beacon/internal/domain"
	"beacon/internal/logging"
)

// SkipReason identifies which policy check stopped a dispatch. Skips are not
// errors: they are logged distinctly and never consume rate-limit budget.
type SkipReason string

const (
	SkipWeekend     SkipReason = "weekend"
	SkipQuietHours  SkipReason = "quiet_hours"
	SkipRateLimited SkipReason = "rate_limited"
	SkipBlocked     SkipReason = "blocked"
)

// RateLimiter reserves one unit of a tenant's resource budget. The check and
// increment are a single atomic operation: Acquire returns false without
// consuming anything when the budget is exhausted, so two overlapping ticks
// cannot double-spend.
type RateLimiter interface {
	Acquire(ctx context.Context, tenantID, resource string, limit int, windowStart time.Time) (bool, error)
}

// Input carries everything one gating evaluation needs. LocalNow must already
// be in the tenant's timezone.
type Input struct {
	Job      domain.ScheduledJob
	Settings domain.TenantSettings
	Pref     *domain.UserJobPreference
	Channel  domain.Channel
	LocalNow time.Time
	// Intervention is non-nil only for autonomously proposed actions; plain
	// scheduled jobs skip the Guardian check entirely.
	Intervention *domain.Intervention
}

// Pipeline evaluates the policy checks in order, cheapest first: the pure
// calendar checks and the verdict fields run before the one store round trip.
type Pipeline struct {
	limits RateLimiter
	// BenefitThreshold is the minimum benefit score an intervention needs in
	// addition to an approved verdict. Zero disables the score check.
	BenefitThreshold float64
	logger           logging.Logger
}

// NewPipeline creates a Pipeline backed by the given rate limiter.
func NewPipeline(limits RateLimiter, benefitThreshold float64, logger logging.Logger) *Pipeline {
	return &Pipeline{
		limits:           limits,
		BenefitThreshold: benefitThreshold,
		logger:           logging.OrNop(logger),
	}
}

// Check runs the pipeline. A nil *SkipReason means dispatch may proceed (and
// one unit of the channel's resource has been reserved). A non-nil error
// means the data layer failed; the caller treats that as fatal, not a skip.
func (p *Pipeline) Check(ctx context.Context, in Input) (*SkipReason, error) {
	// 1. Weekend skip.
	if in.Pref.EffectiveSkipWeekends(in.Settings) && isWeekend(in.LocalNow) {
		return skip(SkipWeekend), nil
	}

	// 2. Quiet hours.
	localMinute := domain.MinuteOfDay(in.LocalNow.Hour()*60 + in.LocalNow.Minute())
	if in.Settings.Quiet.Contains(localMinute) {
		return skip(SkipQuietHours), nil
	}

	// 3. Guardian verdict, interventions only. Checked before the rate-limit
	// reservation so a blocked intervention never consumes budget.
	if in.Intervention != nil {
		if in.Intervention.Verdict != domain.VerdictApproved {
			return skip(SkipBlocked), nil
		}
		if p.BenefitThreshold > 0 && in.Intervention.BenefitScore < p.BenefitThreshold {
			return skip(SkipBlocked), nil
		}
	}

	// 4. Rate limit: the only check that touches the store, and the only one
	// with a side effect. Runs last so every earlier skip leaves the counter
	// untouched.
	limit := in.Settings.RateLimit(in.Channel.Resource())
	if limit > 0 {
		windowStart := dayWindowStart(in.LocalNow)
		ok, err := p.limits.Acquire(ctx, in.Settings.TenantID, in.Channel.Resource(), limit, windowStart)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.logger.Debug("tenant %s exhausted %s budget (%d)", in.Settings.TenantID, in.Channel.Resource(), limit)
			return skip(SkipRateLimited), nil
		}
	}

	return nil, nil
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// dayWindowStart keys the rate-limit window to the tenant-local day.
func dayWindowStart(local time.Time) time.Time {
	year, month, day := local.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, local.Location()).UTC()
}

func skip(r SkipReason) *SkipReason {
	return &r
}
