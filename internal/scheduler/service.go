package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"beacon/internal/logging"
)

// Status is the operational snapshot served by the status endpoint.
type Status struct {
	Running     bool         `json:"running"`
	CronSpec    string       `json:"cron_spec"`
	LastSummary *TickSummary `json:"last_summary,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// Service drives the Runner from an internal cron schedule and serializes
// ticks: a manual run and a cron run never overlap, and a tick still in
// flight when the next cron firing arrives causes that firing to be skipped.
type Service struct {
	runner   *Runner
	cron     *cron.Cron
	cronSpec string
	logger   logging.Logger

	runMu sync.Mutex // held for the duration of one tick

	mu          sync.Mutex // guards the snapshot below
	running     bool
	lastSummary *TickSummary
	lastError   string
}

// NewService registers the tick on cronSpec (standard 5-field syntax).
func NewService(runner *Runner, cronSpec string, logger logging.Logger) (*Service, error) {
	logger = logging.OrNop(logger)
	s := &Service{
		runner:   runner,
		cronSpec: cronSpec,
		logger:   logger,
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cronSpec, func() {
		if _, err := s.RunNow(context.Background(), "cron"); err != nil {
			logger.Error("scheduled tick failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", cronSpec, err)
	}
	s.cron = c
	return s, nil
}

// Start begins cron-driven ticking.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started (cron=%q)", s.cronSpec)
}

// Stop halts the cron schedule and waits for a running tick to finish.
func (s *Service) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes one tick immediately, serialized against cron firings.
// Used by the manual trigger endpoint.
func (s *Service) RunNow(ctx context.Context, source string) (*TickSummary, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setRunning(true)
	summary, err := s.runner.RunTick(ctx, source)
	s.mu.Lock()
	s.running = false
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
		s.lastSummary = summary
	}
	s.mu.Unlock()
	return summary, err
}

func (s *Service) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// Status returns the latest snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:     s.running,
		CronSpec:    s.cronSpec,
		LastSummary: s.lastSummary,
		LastError:   s.lastError,
	}
}
