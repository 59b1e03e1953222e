// Package trigger decides whether a scheduled job is due for a tenant at a
// given instant. Evaluation is pure: no I/O, no mutation, safe to call
// redundantly with a fixed clock.
package trigger

import (
	"time"

	"beacon/internal/domain"
)

// DefaultWindowMinutes is the tolerance around the target local time within
// which a job is considered due.
const DefaultWindowMinutes = 10

// Reason explains why a job did not fire.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonWrongTime Reason = "wrong_time"
	ReasonWrongDay  Reason = "wrong_day"
)

// Decision is the outcome of evaluating one (job, tenant) pair.
type Decision struct {
	Fire   bool
	Reason Reason
	// Target is the concrete instant the job was aimed at. Set whenever the
	// time window matched (even if the day constraint then rejected it);
	// callers use it as the trigger-window identity for idempotency.
	Target time.Time
}

// Evaluator holds the evaluation parameters.
type Evaluator struct {
	// WindowMinutes overrides a job's unset window. Zero means DefaultWindowMinutes.
	WindowMinutes int
}

// Evaluate converts now to the tenant's local time and checks whether the
// job's target time (user custom time first, job default second) falls within
// the trigger window, then whether the day constraint allows firing.
//
// Midnight rollover is handled by aiming at the nearest occurrence of the
// target wall-clock time: for a 23:55 target, a local now of 00:02 the next
// day is 7 minutes away, not 23 hours 53 minutes.
func (e Evaluator) Evaluate(job domain.ScheduledJob, pref *domain.UserJobPreference, loc *time.Location, now time.Time) Decision {
	window := job.WindowMinutes
	if window <= 0 {
		window = e.WindowMinutes
	}
	if window <= 0 {
		window = DefaultWindowMinutes
	}

	local := now.In(loc)
	target := nearestTarget(local, pref.EffectiveTime(job))

	diff := local.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Duration(window)*time.Minute {
		return Decision{Reason: ReasonWrongTime}
	}

	// The day constraint is judged against the target's date, not now's:
	// a Sunday 23:55 job matched at Monday 00:02 is still Sunday's firing.
	if !job.Days.Matches(target) {
		return Decision{Reason: ReasonWrongDay, Target: target}
	}

	return Decision{Fire: true, Target: target}
}

// nearestTarget returns the occurrence of the wall-clock target time closest
// to local: today's, yesterday's, or tomorrow's.
func nearestTarget(local time.Time, at domain.MinuteOfDay) time.Time {
	year, month, day := local.Date()
	today := time.Date(year, month, day, at.Hour(), at.Minute(), 0, 0, local.Location())

	best := today
	bestDiff := absDuration(local.Sub(today))
	for _, candidate := range []time.Time{today.AddDate(0, 0, -1), today.AddDate(0, 0, 1)} {
		if d := absDuration(local.Sub(candidate)); d < bestDiff {
			best = candidate
			bestDiff = d
		}
	}
	return best
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
