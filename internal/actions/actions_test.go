package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/domain"
	"beacon/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *storage.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Jobs().Save(ctx, domain.ScheduledJob{
		Name:           "morning_checkin",
		Type:           "checkin",
		TimeOfDay:      domain.MustMinuteOfDay("06:00"),
		DefaultChannel: domain.ChannelVoice,
		IsActive:       true,
	}))
	require.NoError(t, db.Settings().Save(ctx, domain.TenantSettings{
		TenantID: "tenant-1",
		Timezone: "Europe/Warsaw",
	}))
}

func TestRegistryInvokeUnknown(t *testing.T) {
	r := NewRegistry(nil)
	res := r.Invoke(context.Background(), "nope", "tenant-1", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown action")
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r, openTestDB(t))
	assert.Equal(t, []string{"adjust_schedule", "edit_quiet_hours", "toggle_job"}, r.Names())
}

func TestToggleJob(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)
	ctx := context.Background()

	res := r.Invoke(ctx, "toggle_job", "tenant-1", map[string]any{"job_name": "morning_checkin", "enabled": false})
	require.True(t, res.Success, res.Error)

	pref, err := db.Prefs().Get(ctx, "tenant-1", "morning_checkin")
	require.NoError(t, err)
	assert.False(t, pref.Enabled)
}

func TestAdjustSchedule(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)
	ctx := context.Background()

	res := r.Invoke(ctx, "adjust_schedule", "tenant-1", map[string]any{"job_name": "morning_checkin", "time_of_day": "07:30"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "07:30", res.Data["time_of_day"])

	pref, err := db.Prefs().Get(ctx, "tenant-1", "morning_checkin")
	require.NoError(t, err)
	require.NotNil(t, pref.CustomTime)
	assert.Equal(t, domain.MustMinuteOfDay("07:30"), *pref.CustomTime)
}

func TestAdjustScheduleRejectsBadTime(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)

	res := r.Invoke(context.Background(), "adjust_schedule", "tenant-1", map[string]any{"job_name": "morning_checkin", "time_of_day": "25:99"})
	assert.False(t, res.Success)
}

func TestEditQuietHours(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)
	ctx := context.Background()

	res := r.Invoke(ctx, "edit_quiet_hours", "tenant-1", map[string]any{"start": "21:30", "end": "08:00"})
	require.True(t, res.Success, res.Error)

	settings, err := db.Settings().Get(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MustMinuteOfDay("21:30"), settings.Quiet.Start)
	assert.Equal(t, domain.MustMinuteOfDay("08:00"), settings.Quiet.End)
}

func TestEditQuietHoursUnknownTenant(t *testing.T) {
	db := openTestDB(t)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)

	res := r.Invoke(context.Background(), "edit_quiet_hours", "ghost", map[string]any{"start": "21:00", "end": "07:00"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")
}

func TestQueueEnqueueUnknownAction(t *testing.T) {
	db := openTestDB(t)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)
	q := NewQueue(r, db.Outbox())

	err := q.Enqueue(context.Background(), "no_such_action", "tenant-1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")

	pending, err := db.Outbox().PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestQueueRoundTrip(t *testing.T) {
	db := openTestDB(t)
	seed(t, db)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)
	q := NewQueue(r, db.Outbox())
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "toggle_job", "tenant-1", map[string]any{
		"job_name": "morning_checkin",
		"enabled":  false,
	}))

	tasks, err := db.Outbox().ClaimDue(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, TaskKind, tasks[0].Kind)

	require.NoError(t, q.HandleTask(ctx, tasks[0].Payload))

	pref, err := db.Prefs().Get(ctx, "tenant-1", "morning_checkin")
	require.NoError(t, err)
	assert.False(t, pref.Enabled)
}

func TestQueueHandleTaskFailure(t *testing.T) {
	db := openTestDB(t)
	r := NewRegistry(nil)
	RegisterBuiltins(r, db)
	q := NewQueue(r, db.Outbox())

	err := q.HandleTask(context.Background(), []byte(`{"action":"toggle_job","tenant_id":"ghost","params":{"job_name":"missing","enabled":true}}`))
	require.Error(t, err)
}
