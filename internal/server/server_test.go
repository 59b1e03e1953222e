package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/internal/domain"
	"beacon/internal/scheduler"
	"beacon/internal/storage"
	"beacon/internal/tts"
)

type fakeTicker struct {
	summary *scheduler.TickSummary
	err     error
	sources []string
}

func (f *fakeTicker) RunNow(_ context.Context, source string) (*scheduler.TickSummary, error) {
	f.sources = append(f.sources, source)
	return f.summary, f.err
}

func (f *fakeTicker) Status() scheduler.Status {
	return scheduler.Status{CronSpec: "0 * * * *", LastSummary: f.summary}
}

type fakeSpeaker struct {
	err error
}

func (f *fakeSpeaker) Synthesize(_ context.Context, req tts.Request) (*tts.Result, error) {
	if req.Provider != "" && req.Provider != "quality" {
		return nil, errors.New(`unknown tts provider "` + req.Provider + `"`)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Result{Audio: []byte("mp3"), ContentType: "audio/mpeg", Provider: "quality"}, nil
}

type fakeActionQueue struct {
	known    map[string]bool
	enqueued []string
	err      error
}

func (f *fakeActionQueue) Known(name string) bool { return f.known[name] }

func (f *fakeActionQueue) Enqueue(_ context.Context, name, tenantID string, _ map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, name+":"+tenantID)
	return nil
}

const testSecret = "tick-secret"

func newTestServer(t *testing.T, ticker Ticker) (*Server, *storage.DB) {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	if ticker == nil {
		ticker = &fakeTicker{summary: &scheduler.TickSummary{Timestamp: time.Now().UTC()}}
	}
	queue := &fakeActionQueue{known: map[string]bool{"toggle_job": true}}
	return New(Config{Addr: ":0", SchedulerSecret: testSecret}, ticker, &fakeSpeaker{}, queue, db, nil, nil), db
}

func doJSON(t *testing.T, s *Server, method, path, secret string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Scheduler-Secret", secret)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAuthRejectsBeforeWork(t *testing.T) {
	ticker := &fakeTicker{summary: &scheduler.TickSummary{}}
	s, _ := newTestServer(t, ticker)

	rec := doJSON(t, s, http.MethodPost, "/scheduler/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/scheduler/run", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// no tick ran for either rejected request
	assert.Empty(t, ticker.sources)
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	s, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/scheduler/status", nil)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSchedulerRun(t *testing.T) {
	ticker := &fakeTicker{summary: &scheduler.TickSummary{UsersNotified: 3, Errors: []string{}}}
	s, _ := newTestServer(t, ticker)

	rec := doJSON(t, s, http.MethodPost, "/scheduler/run", testSecret, map[string]string{"source": "ci"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got scheduler.TickSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.UsersNotified)
	assert.Equal(t, []string{"ci"}, ticker.sources)
}

func TestSchedulerRunDefaultsSource(t *testing.T) {
	ticker := &fakeTicker{summary: &scheduler.TickSummary{}}
	s, _ := newTestServer(t, ticker)

	rec := doJSON(t, s, http.MethodPost, "/scheduler/run", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"manual"}, ticker.sources)
}

func TestSchedulerRunFatalFailure(t *testing.T) {
	ticker := &fakeTicker{err: errors.New("load active jobs: database locked")}
	s, _ := newTestServer(t, ticker)

	rec := doJSON(t, s, http.MethodPost, "/scheduler/run", testSecret, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "database locked")
}

func TestSpeechEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/speech", testSecret, map[string]string{"text": "hello there"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "quality", rec.Header().Get("X-TTS-Provider"))
	assert.Equal(t, "mp3", rec.Body.String())
}

func TestSpeechEndpointValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/speech", testSecret, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/speech", testSecret, map[string]string{"text": "hi", "provider": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown tts provider")
}

func TestCreateJobValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{
			"daily ok",
			map[string]any{"job_name": "morning", "schedule_type": "daily", "time_of_day": "06:00", "channel": "voice"},
			http.StatusCreated,
		},
		{
			"weekly needs days",
			map[string]any{"job_name": "planning", "schedule_type": "weekly", "time_of_day": "18:00", "channel": "sms"},
			http.StatusBadRequest,
		},
		{
			"weekly with days ok",
			map[string]any{"job_name": "planning", "schedule_type": "weekly", "time_of_day": "18:00", "channel": "sms", "days_of_week": []int{0}},
			http.StatusCreated,
		},
		{
			"monthly needs day_of_month",
			map[string]any{"job_name": "review", "schedule_type": "monthly", "time_of_day": "09:00", "channel": "sms"},
			http.StatusBadRequest,
		},
		{
			"unknown schedule type",
			map[string]any{"job_name": "x", "schedule_type": "hourly", "time_of_day": "09:00", "channel": "sms"},
			http.StatusBadRequest,
		},
		{
			"bad channel",
			map[string]any{"job_name": "x", "schedule_type": "daily", "time_of_day": "09:00", "channel": "fax"},
			http.StatusBadRequest,
		},
		{
			"bad time",
			map[string]any{"job_name": "x", "schedule_type": "daily", "time_of_day": "24:99", "channel": "sms"},
			http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/jobs", testSecret, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestJobRoundTrip(t *testing.T) {
	s, db := newTestServer(t, nil)
	ctx := context.Background()

	rec := doJSON(t, s, http.MethodPost, "/jobs", testSecret, map[string]any{
		"job_name": "week_planning", "schedule_type": "weekly", "time_of_day": "19:30",
		"channel": "voice", "days_of_week": []int{0}, "message_template": "Let's plan the week.",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	job, err := db.Jobs().Get(ctx, "week_planning")
	require.NoError(t, err)
	assert.Equal(t, domain.ScheduleWeekly, job.Days.Kind)
	assert.Equal(t, []time.Weekday{time.Sunday}, job.Days.Weekdays)

	rec = doJSON(t, s, http.MethodGet, "/jobs/week_planning", testSecret, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodDelete, "/jobs/week_planning", testSecret, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/jobs/week_planning", testSecret, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzIsPublic(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := doJSON(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSchedulerStatus(t *testing.T) {
	s, db := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, db.Jobs().Save(ctx, domain.ScheduledJob{
		Name: "morning", Type: "checkin", TimeOfDay: domain.MustMinuteOfDay("06:00"),
		DefaultChannel: domain.ChannelVoice, IsActive: true,
	}))
	_, err := db.ExecutionLog().Append(ctx, storage.ExecutionRecord{
		JobName: "morning", TenantID: "t1", Status: storage.StatusCompleted,
		WindowStart: time.Now().UTC(),
	})
	require.NoError(t, err)

	rec := doJSON(t, s, http.MethodGet, "/scheduler/status", testSecret, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		ActiveJobs []domain.ScheduledJob     `json:"active_jobs"`
		RecentLog  []storage.ExecutionRecord `json:"recent_log"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.ActiveJobs, 1)
	assert.Len(t, got.RecentLog, 1)
}

func TestEnqueueAction(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/actions", testSecret, map[string]any{
		"action":    "toggle_job",
		"tenant_id": "tenant-1",
		"params":    map[string]any{"job_name": "morning", "enabled": false},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"toggle_job:tenant-1"}, s.actionQ.(*fakeActionQueue).enqueued)
}

func TestEnqueueActionValidation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/actions", testSecret, map[string]any{
		"action": "toggle_job",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/actions", testSecret, map[string]any{
		"action":    "no_such_action",
		"tenant_id": "tenant-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown action")

	rec = doJSON(t, s, http.MethodPost, "/actions", "", map[string]any{
		"action":    "toggle_job",
		"tenant_id": "tenant-1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.actionQ.(*fakeActionQueue).enqueued)
}
