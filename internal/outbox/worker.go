// Package outbox drains the durable task queue so enqueued work survives
// process restarts and dropped wake-up calls.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"beacon/internal/logging"
	"beacon/internal/observability"
	"beacon/internal/storage"
)

// TaskHandler processes one claimed task.
type TaskHandler func(ctx context.Context, payload json.RawMessage) error

// Config tunes the worker loop.
type Config struct {
	PollInterval time.Duration // default 5s
	ClaimLimit   int           // default 10
	Backoff      time.Duration // claim lease / retry backoff, default 1m
	MaxAttempts  int           // attempts before a task is dropped, default 5
}

// Worker polls the outbox and routes tasks to registered handlers. Tasks
// with no handler, or past their attempt budget, are marked done so they
// cannot wedge the queue.
type Worker struct {
	store    *storage.OutboxStore
	handlers map[string]TaskHandler
	cfg      Config
	metrics  *observability.Metrics
	logger   logging.Logger
}

func NewWorker(store *storage.OutboxStore, cfg Config, metrics *observability.Metrics, logger logging.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]TaskHandler),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logging.OrNop(logger),
	}
}

// Register adds a handler for a task kind.
func (w *Worker) Register(kind string, h TaskHandler) {
	w.handlers[kind] = h
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.DrainOnce(ctx); err != nil {
			w.logger.Error("outbox drain: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainOnce claims and processes one batch of due tasks.
func (w *Worker) DrainOnce(ctx context.Context) error {
	tasks, err := w.store.ClaimDue(ctx, w.cfg.ClaimLimit, w.cfg.Backoff)
	if err != nil {
		return err
	}
	for _, task := range tasks {
		w.process(ctx, task)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, task storage.OutboxTask) {
	handler, ok := w.handlers[task.Kind]
	if !ok {
		w.logger.Warn("outbox task %d has unknown kind %q, dropping", task.ID, task.Kind)
		w.markDone(ctx, task, "dropped")
		return
	}

	if err := handler(ctx, task.Payload); err != nil {
		w.logger.Warn("outbox task %d (%s) attempt %d failed: %v", task.ID, task.Kind, task.Attempts, err)
		if markErr := w.store.MarkFailed(ctx, task.ID, err); markErr != nil {
			w.logger.Error("outbox task %d: record failure: %v", task.ID, markErr)
		}
		if task.Attempts >= w.cfg.MaxAttempts {
			w.logger.Error("outbox task %d (%s) exhausted %d attempts, dropping", task.ID, task.Kind, task.Attempts)
			w.markDone(ctx, task, "exhausted")
			return
		}
		if w.metrics != nil {
			w.metrics.OutboxProcessed.WithLabelValues(task.Kind, "retried").Inc()
		}
		return
	}
	w.markDone(ctx, task, "done")
}

func (w *Worker) markDone(ctx context.Context, task storage.OutboxTask, outcome string) {
	if err := w.store.MarkDone(ctx, task.ID); err != nil {
		w.logger.Error("outbox task %d: mark done: %v", task.ID, err)
		return
	}
	if w.metrics != nil {
		w.metrics.OutboxProcessed.WithLabelValues(task.Kind, outcome).Inc()
	}
}
