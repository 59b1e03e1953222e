package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"beacon/internal/storage"
)

// TaskKind is the outbox kind carrying queued action invocations.
const TaskKind = "action"

type taskPayload struct {
	Action   string         `json:"action"`
	TenantID string         `json:"tenant_id"`
	Params   map[string]any `json:"params,omitempty"`
}

// Queue accepts configuration actions for durable execution. Enqueued
// actions survive restarts; the outbox worker drains them through the
// registry with at-least-once semantics.
type Queue struct {
	registry *Registry
	outbox   *storage.OutboxStore
}

func NewQueue(registry *Registry, outbox *storage.OutboxStore) *Queue {
	return &Queue{registry: registry, outbox: outbox}
}

// Known reports whether name has a registered handler.
func (q *Queue) Known(name string) bool {
	q.registry.mu.RLock()
	defer q.registry.mu.RUnlock()
	_, ok := q.registry.handlers[name]
	return ok
}

// Enqueue records one action invocation for asynchronous execution.
func (q *Queue) Enqueue(ctx context.Context, name, tenantID string, params map[string]any) error {
	if !q.Known(name) {
		return fmt.Errorf("unknown action %q", name)
	}
	return q.outbox.Enqueue(ctx, TaskKind, taskPayload{Action: name, TenantID: tenantID, Params: params})
}

// HandleTask is the outbox handler for TaskKind. A failed action result
// comes back as an error so the worker retries it up to its attempt budget.
func (q *Queue) HandleTask(ctx context.Context, payload json.RawMessage) error {
	var task taskPayload
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode action task: %w", err)
	}
	result := q.registry.Invoke(ctx, task.Action, task.TenantID, task.Params)
	if !result.Success {
		return fmt.Errorf("action %s for tenant %s: %s", task.Action, task.TenantID, result.Error)
	}
	return nil
}
