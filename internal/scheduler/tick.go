// Package scheduler orchestrates one dispatch tick: active jobs, eligible
// users, trigger evaluation, policy gating, delivery and audit logging, all
// under a wall-clock budget.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"beacon/internal/channel"
	"beacon/internal/domain"
	"beacon/internal/gating"
	"beacon/internal/logging"
	"beacon/internal/observability"
	"beacon/internal/storage"
	"beacon/internal/trigger"
	"beacon/internal/tzcache"
)

// JobTypeIntervention marks jobs that deliver autonomously proposed actions
// instead of fixed check-ins. They pull the tenant's oldest proposed
// intervention and run it through the Guardian check.
const JobTypeIntervention = "intervention"

// Dispatcher delivers one message. Satisfied by channel.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, task channel.Task) channel.DispatchResult
}

// Config tunes the tick loop.
type Config struct {
	// TickBudget is the wall-clock ceiling for one tick; checked before each
	// user so a slow tick degrades gracefully instead of being cut off
	// mid-dispatch. Default 55s.
	TickBudget time.Duration
	// UsersPerSecond feeds the token bucket that paces outbound provider
	// traffic, decoupled from iteration order. Default 2.
	UsersPerSecond float64
}

// JobDetail is the per-job slice of a tick summary.
type JobDetail struct {
	JobName        string `json:"job_name"`
	UsersChecked   int    `json:"users_checked"`
	UsersTriggered int    `json:"users_triggered"`
}

// TickSummary is the aggregated result of one tick.
type TickSummary struct {
	Timestamp     time.Time   `json:"timestamp"`
	JobsChecked   int         `json:"jobs_checked"`
	JobsTriggered int         `json:"jobs_triggered"`
	UsersNotified int         `json:"users_notified"`
	Errors        []string    `json:"errors"`
	Details       []JobDetail `json:"details"`
	DurationMS    int64       `json:"duration_ms"`
}

// Runner executes ticks. One Runner serves the whole process; every tick
// re-reads jobs and settings so configuration edits apply on the next run.
type Runner struct {
	db         *storage.DB
	evaluator  trigger.Evaluator
	gate       *gating.Pipeline
	dispatcher Dispatcher
	tz         *tzcache.Cache
	metrics    *observability.Metrics
	logger     logging.Logger

	budget time.Duration
	pace   *rate.Limiter
	// injectable clock for tests
	now func() time.Time
}

func NewRunner(db *storage.DB, evaluator trigger.Evaluator, gate *gating.Pipeline, dispatcher Dispatcher, tz *tzcache.Cache, cfg Config, metrics *observability.Metrics, logger logging.Logger) *Runner {
	if cfg.TickBudget <= 0 {
		cfg.TickBudget = 55 * time.Second
	}
	if cfg.UsersPerSecond <= 0 {
		cfg.UsersPerSecond = 2
	}
	return &Runner{
		db:         db,
		evaluator:  evaluator,
		gate:       gate,
		dispatcher: dispatcher,
		tz:         tz,
		metrics:    metrics,
		logger:     logging.OrNop(logger),
		budget:     cfg.TickBudget,
		pace:       rate.NewLimiter(rate.Limit(cfg.UsersPerSecond), 1),
		now:        time.Now,
	}
}

// RunTick processes every active job sequentially. Users within a job run in
// eligibility-query order, paced by the token bucket. A data-layer failure
// loading jobs aborts the tick; per-user failures are collected and the tick
// continues. When the budget runs out remaining users are left for the next
// tick — safe, because completed dispatches are idempotent per window.
func (r *Runner) RunTick(ctx context.Context, source string) (*TickSummary, error) {
	start := r.now()
	summary := &TickSummary{
		Timestamp: start.UTC(),
		Errors:    []string{},
		Details:   []JobDetail{},
	}
	if r.metrics != nil {
		r.metrics.TicksTotal.WithLabelValues(source).Inc()
	}
	r.logger.Info("tick started (source=%s)", source)

	jobs, err := r.db.Jobs().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active jobs: %w", err)
	}
	deadline := start.Add(r.budget)

outer:
	for _, job := range jobs {
		summary.JobsChecked++
		users, err := r.db.Prefs().EligibleUsers(ctx, job.Name, start.UTC().Hour())
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("job %s: eligibility query: %v", job.Name, err))
			continue
		}

		detail := JobDetail{JobName: job.Name}
		for _, user := range users {
			if r.now().After(deadline) {
				summary.Errors = append(summary.Errors, "tick budget exhausted, remaining users deferred to next tick")
				summary.Details = append(summary.Details, detail)
				break outer
			}
			if err := r.pace.Wait(ctx); err != nil {
				summary.Details = append(summary.Details, detail)
				r.finish(summary, start)
				return summary, err
			}

			detail.UsersChecked++
			notified, err := r.processUser(ctx, job, user)
			if err != nil {
				summary.Errors = append(summary.Errors,
					fmt.Sprintf("job %s tenant %s: %v", job.Name, user.Settings.TenantID, err))
			}
			if notified {
				detail.UsersTriggered++
				summary.UsersNotified++
			}
		}
		if detail.UsersTriggered > 0 {
			summary.JobsTriggered++
		}
		summary.Details = append(summary.Details, detail)
	}

	r.finish(summary, start)
	return summary, nil
}

func (r *Runner) finish(summary *TickSummary, start time.Time) {
	elapsed := r.now().Sub(start)
	summary.DurationMS = elapsed.Milliseconds()
	if r.metrics != nil {
		r.metrics.TickDuration.Observe(elapsed.Seconds())
	}
	r.logger.Info("tick finished: %d jobs, %d notified, %d errors in %s",
		summary.JobsChecked, summary.UsersNotified, len(summary.Errors), elapsed)
}

// processUser runs the full per-user pipeline. notified is true only when a
// dispatch succeeded and this invocation won the idempotency window.
func (r *Runner) processUser(ctx context.Context, job domain.ScheduledJob, user storage.EligibleUser) (bool, error) {
	tenantID := user.Settings.TenantID
	pref := &user.Pref

	loc, err := r.tz.Load(user.Settings.Timezone)
	if err != nil {
		return false, fmt.Errorf("timezone %q: %w", user.Settings.Timezone, err)
	}

	now := r.now()
	decision := r.evaluator.Evaluate(job, pref, loc, now)
	if !decision.Fire {
		r.countSkip(string(decision.Reason))
		return false, nil
	}

	// Idempotency check before anything with a side effect: a re-invoked
	// tick for an already-served window must not burn rate-limit budget.
	done, err := r.db.ExecutionLog().CompletedInWindow(ctx, job.Name, tenantID, decision.Target)
	if err != nil {
		return false, err
	}
	if done {
		r.logger.Debug("job %s tenant %s already completed for window %s", job.Name, tenantID, decision.Target)
		return false, nil
	}

	var (
		intervention *domain.Intervention
		content      string
	)
	if job.Type == JobTypeIntervention {
		intervention, err = r.db.Interventions().NextProposed(ctx, tenantID)
		if err != nil {
			return false, err
		}
		if intervention == nil {
			return false, nil
		}
		content = intervention.Title
	}

	ch := pref.EffectiveChannel(job)
	skipReason, err := r.gate.Check(ctx, gating.Input{
		Job:          job,
		Settings:     user.Settings,
		Pref:         pref,
		Channel:      ch,
		LocalNow:     now.In(loc),
		Intervention: intervention,
	})
	if err != nil {
		return false, err
	}
	if skipReason != nil {
		// Blocked interventions stay proposed: surfacing them for manual
		// action is the calling layer's decision, not ours.
		r.recordSkip(ctx, job, tenantID, ch, *skipReason, decision.Target)
		return false, nil
	}

	res := r.dispatcher.Dispatch(ctx, channel.Task{
		Job:      job,
		Settings: user.Settings,
		Pref:     pref,
		Content:  content,
	})

	rec := storage.ExecutionRecord{
		JobName:        job.Name,
		TenantID:       tenantID,
		ChannelUsed:    res.Channel,
		ProviderCallID: res.ProviderCallID,
		WindowStart:    decision.Target,
	}
	if res.Success {
		rec.Status = storage.StatusCompleted
		if payload, merr := json.Marshal(map[string]string{"content": res.Content}); merr == nil {
			rec.Result = string(payload)
		}
	} else {
		rec.Status = storage.StatusFailed
		rec.Error = res.Err.Error()
	}

	inserted, err := r.db.ExecutionLog().Append(ctx, rec)
	if err != nil {
		return false, err
	}
	if r.metrics != nil {
		r.metrics.DispatchTotal.WithLabelValues(string(res.Channel), string(rec.Status)).Inc()
	}

	if intervention != nil {
		status := domain.InterventionCompleted
		if !res.Success {
			status = domain.InterventionFailed
		}
		if err := r.db.Interventions().SetStatus(ctx, intervention.ID, status); err != nil {
			return res.Success && inserted, err
		}
	}

	if !res.Success {
		return false, fmt.Errorf("dispatch via %s: %w", res.Channel, res.Err)
	}
	if !inserted {
		// lost the window race to a concurrent invocation
		r.logger.Warn("job %s tenant %s: duplicate completion for window %s", job.Name, tenantID, decision.Target)
		return false, nil
	}
	return true, nil
}

// recordSkip appends the audit row for a gated dispatch. Skips never dedupe:
// each invocation's decision is its own audit entry.
func (r *Runner) recordSkip(ctx context.Context, job domain.ScheduledJob, tenantID string, ch domain.Channel, reason gating.SkipReason, windowStart time.Time) {
	r.countSkip(string(reason))

	status := storage.StatusSkipped
	if reason == gating.SkipRateLimited {
		status = storage.StatusRateLimited
	}
	_, err := r.db.ExecutionLog().Append(ctx, storage.ExecutionRecord{
		JobName:     job.Name,
		TenantID:    tenantID,
		Status:      status,
		Reason:      string(reason),
		ChannelUsed: ch,
		WindowStart: windowStart,
	})
	if err != nil {
		r.logger.Error("record skip for job %s tenant %s: %v", job.Name, tenantID, err)
	}
}

func (r *Runner) countSkip(reason string) {
	if r.metrics != nil && reason != "" {
		r.metrics.SkipsTotal.WithLabelValues(reason).Inc()
	}
}
