package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWorkerProcessesTask(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Outbox().Enqueue(ctx, "notify", map[string]string{"tenant": "t1"}))

	var got string
	w := NewWorker(db.Outbox(), Config{}, nil, nil)
	w.Register("notify", func(_ context.Context, payload json.RawMessage) error {
		var p struct {
			Tenant string `json:"tenant"`
		}
		require.NoError(t, json.Unmarshal(payload, &p))
		got = p.Tenant
		return nil
	})

	require.NoError(t, w.DrainOnce(ctx))
	assert.Equal(t, "t1", got)

	pending, err := db.Outbox().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestWorkerRetriesFailedTask(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Outbox().Enqueue(ctx, "notify", map[string]string{}))

	calls := 0
	w := NewWorker(db.Outbox(), Config{Backoff: time.Millisecond}, nil, nil)
	w.Register("notify", func(context.Context, json.RawMessage) error {
		calls++
		if calls == 1 {
			return errors.New("provider down")
		}
		return nil
	})

	require.NoError(t, w.DrainOnce(ctx))
	assert.Equal(t, 1, calls)
	pending, err := db.Outbox().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending) // still queued for retry

	// next_attempt_at has second granularity; poll until the lease expires
	drainUntil(t, w, func() bool { return calls == 2 })
	pending, err = db.Outbox().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func drainUntil(t *testing.T, w *Worker, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached before deadline")
		}
		require.NoError(t, w.DrainOnce(context.Background()))
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWorkerDropsTaskAfterMaxAttempts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Outbox().Enqueue(ctx, "notify", map[string]string{}))

	calls := 0
	w := NewWorker(db.Outbox(), Config{Backoff: time.Millisecond, MaxAttempts: 2}, nil, nil)
	w.Register("notify", func(context.Context, json.RawMessage) error {
		calls++
		return errors.New("always fails")
	})

	drainUntil(t, w, func() bool { return calls == 2 })
	// two attempts exhausted the budget; further drains find nothing
	require.NoError(t, w.DrainOnce(ctx))
	assert.Equal(t, 2, calls)

	pending, err := db.Outbox().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestWorkerDropsUnknownKind(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Outbox().Enqueue(ctx, "mystery", map[string]string{}))

	w := NewWorker(db.Outbox(), Config{}, nil, nil)
	require.NoError(t, w.DrainOnce(ctx))

	pending, err := db.Outbox().PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	db := openTestDB(t)
	w := NewWorker(db.Outbox(), Config{PollInterval: 5 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
