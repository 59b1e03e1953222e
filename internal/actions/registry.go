// Package actions maps named configuration-change handlers invoked when an
// approved intervention adjusts scheduling instead of sending a message.
package actions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"beacon/internal/logging"
)

// Handler executes one named action for a tenant.
type Handler func(ctx context.Context, tenantID string, params map[string]any) (map[string]any, error)

// Result is the normalized outcome handed back to the autonomy layer.
type Result struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Registry holds the named handlers. Registration happens at wiring time;
// Invoke is safe for concurrent use afterwards.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logging.OrNop(logger),
	}
}

// Register adds a handler under name, replacing any previous one.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names lists registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named handler. Handler errors come back as a failed Result
// rather than a Go error: the caller records the outcome either way.
func (r *Registry) Invoke(ctx context.Context, name, tenantID string, params map[string]any) Result {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return Result{Error: fmt.Sprintf("unknown action %q", name)}
	}

	data, err := h(ctx, tenantID, params)
	if err != nil {
		r.logger.Warn("action %s failed for tenant %s: %v", name, tenantID, err)
		return Result{Error: err.Error()}
	}
	r.logger.Info("action %s completed for tenant %s", name, tenantID)
	return Result{Success: true, Data: data}
}
