package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/domain"
)

func warsaw(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	return loc
}

func dailyJob(at string) domain.ScheduledJob {
	return domain.ScheduledJob{
		Name:           "morning_checkin",
		TimeOfDay:      domain.MustMinuteOfDay(at),
		DefaultChannel: domain.ChannelVoice,
		IsActive:       true,
	}
}

func TestEvaluateWindow(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("06:00")
	var e Evaluator

	tests := []struct {
		name   string
		local  string
		fire   bool
		reason Reason
	}{
		{"five after", "06:05", true, ReasonNone},
		{"five before", "05:55", true, ReasonNone},
		{"exactly on window edge", "06:10", true, ReasonNone},
		{"twenty before", "05:40", false, ReasonWrongTime},
		{"an hour later", "07:00", false, ReasonWrongTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := domain.MustMinuteOfDay(tt.local)
			now := time.Date(2026, 3, 4, at.Hour(), at.Minute(), 0, 0, loc)
			d := e.Evaluate(job, nil, loc, now.UTC())
			assert.Equal(t, tt.fire, d.Fire)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEvaluateMidnightRollover(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("23:55")
	var e Evaluator

	// Local 00:02 the next day is 7 minutes past a 23:55 target.
	now := time.Date(2026, 3, 5, 0, 2, 0, 0, loc)
	d := e.Evaluate(job, nil, loc, now)
	require.True(t, d.Fire)
	// The matched target belongs to the previous day.
	assert.Equal(t, 4, d.Target.Day())
	assert.Equal(t, 23, d.Target.Hour())

	// And the mirror case: a 00:05 target matched at 23:58 the night before.
	early := dailyJob("00:05")
	now = time.Date(2026, 3, 4, 23, 58, 0, 0, loc)
	d = e.Evaluate(early, nil, loc, now)
	require.True(t, d.Fire)
	assert.Equal(t, 5, d.Target.Day())
}

func TestEvaluateDayConstraintUsesTargetDate(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("23:55")
	job.Name = "week_planning"
	job.Days = domain.DayConstraint{Kind: domain.ScheduleWeekly, Weekdays: []time.Weekday{time.Sunday}}
	var e Evaluator

	// 2026-03-01 is a Sunday. Local Monday 00:02 still matches Sunday's firing.
	now := time.Date(2026, 3, 2, 0, 2, 0, 0, loc)
	d := e.Evaluate(job, nil, loc, now)
	assert.True(t, d.Fire)

	// Tuesday 23:57 is inside the window but the wrong day.
	now = time.Date(2026, 3, 3, 23, 57, 0, 0, loc)
	d = e.Evaluate(job, nil, loc, now)
	assert.False(t, d.Fire)
	assert.Equal(t, ReasonWrongDay, d.Reason)
}

func TestEvaluateMonthly(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("09:00")
	job.Days = domain.DayConstraint{Kind: domain.ScheduleMonthly, DayOfMonth: 1}
	var e Evaluator

	d := e.Evaluate(job, nil, loc, time.Date(2026, 3, 1, 9, 3, 0, 0, loc))
	assert.True(t, d.Fire)

	d = e.Evaluate(job, nil, loc, time.Date(2026, 3, 2, 9, 3, 0, 0, loc))
	assert.Equal(t, ReasonWrongDay, d.Reason)
}

func TestEvaluateCustomTimeOverride(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("06:00")
	custom := domain.MustMinuteOfDay("19:30")
	pref := &domain.UserJobPreference{CustomTime: &custom}
	var e Evaluator

	d := e.Evaluate(job, pref, loc, time.Date(2026, 3, 4, 19, 33, 0, 0, loc))
	assert.True(t, d.Fire)

	d = e.Evaluate(job, pref, loc, time.Date(2026, 3, 4, 6, 0, 0, 0, loc))
	assert.Equal(t, ReasonWrongTime, d.Reason)
}

func TestEvaluateRespectsTenantTimezone(t *testing.T) {
	// 06:05 in Warsaw (UTC+1 in March before DST) is 05:05 UTC.
	loc := warsaw(t)
	job := dailyJob("06:00")
	var e Evaluator

	utcNow := time.Date(2026, 3, 4, 5, 5, 0, 0, time.UTC)
	d := e.Evaluate(job, nil, loc, utcNow)
	assert.True(t, d.Fire)

	// The same UTC instant evaluated for a UTC tenant misses the window.
	d = e.Evaluate(job, nil, time.UTC, utcNow)
	assert.Equal(t, ReasonWrongTime, d.Reason)
}

func TestEvaluatePerJobWindowOverride(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("06:00")
	job.WindowMinutes = 30
	var e Evaluator

	d := e.Evaluate(job, nil, loc, time.Date(2026, 3, 4, 6, 25, 0, 0, loc))
	assert.True(t, d.Fire)
}

func TestEvaluateIsPure(t *testing.T) {
	loc := warsaw(t)
	job := dailyJob("06:00")
	now := time.Date(2026, 3, 4, 6, 5, 0, 0, loc)
	var e Evaluator

	first := e.Evaluate(job, nil, loc, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Evaluate(job, nil, loc, now))
	}
}
