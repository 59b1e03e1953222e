package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"beacon/internal/domain"
	"beacon/internal/storage"
	"beacon/internal/tts"
)

func (s *Server) handleHealthz(c *gin.Context) {
	if err := s.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSchedulerRun(c *gin.Context) {
	var body struct {
		Source string `json:"source"`
	}
	// body is optional
	_ = c.ShouldBindJSON(&body)
	if body.Source == "" {
		body.Source = "manual"
	}

	summary, err := s.ticker.RunNow(c.Request.Context(), body.Source)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	ctx := c.Request.Context()
	jobs, err := s.db.Jobs().ListActive(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	recent, err := s.db.ExecutionLog().Recent(ctx, 20)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scheduler":   s.ticker.Status(),
		"active_jobs": jobs,
		"recent_log":  recent,
	})
}

func (s *Server) handleSpeech(c *gin.Context) {
	var body struct {
		Text     string `json:"text"`
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	res, err := s.speaker.Synthesize(c.Request.Context(), tts.Request{
		Text:     body.Text,
		Provider: body.Provider,
	})
	if err != nil {
		if strings.Contains(err.Error(), "unknown tts provider") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Header("X-TTS-Provider", res.Provider)
	c.Data(http.StatusOK, res.ContentType, res.Audio)
}

func (s *Server) handleEnqueueAction(c *gin.Context) {
	var body struct {
		Action   string         `json:"action"`
		TenantID string         `json:"tenant_id"`
		Params   map[string]any `json:"params"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Action == "" || body.TenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action and tenant_id are required"})
		return
	}
	if !s.actionQ.Known(body.Action) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown action %q", body.Action)})
		return
	}
	if err := s.actionQ.Enqueue(c.Request.Context(), body.Action, body.TenantID, body.Params); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// jobRequest is the custom-job creation payload. schedule_type-specific
// required fields are validated before the job can reach the tick loop.
type jobRequest struct {
	JobName         string `json:"job_name"`
	JobType         string `json:"job_type"`
	ScheduleType    string `json:"schedule_type"`
	TimeOfDay       string `json:"time_of_day"`
	DaysOfWeek      []int  `json:"days_of_week"`
	DayOfMonth      int    `json:"day_of_month"`
	WindowMinutes   int    `json:"window_minutes"`
	Channel         string `json:"channel"`
	MessageTemplate string `json:"message_template"`
	CronExpr        string `json:"cron_expr"`
	IsActive        *bool  `json:"is_active"`
}

func (r jobRequest) toJob() (domain.ScheduledJob, error) {
	timeOfDay, err := domain.ParseMinuteOfDay(r.TimeOfDay)
	if err != nil {
		return domain.ScheduledJob{}, err
	}

	days := domain.DayConstraint{}
	switch domain.ScheduleType(r.ScheduleType) {
	case domain.ScheduleDaily:
		days.Kind = domain.ScheduleDaily
	case domain.ScheduleWeekly:
		days.Kind = domain.ScheduleWeekly
		for _, d := range r.DaysOfWeek {
			days.Weekdays = append(days.Weekdays, time.Weekday(d))
		}
	case domain.ScheduleMonthly:
		days.Kind = domain.ScheduleMonthly
		days.DayOfMonth = r.DayOfMonth
	default:
		return domain.ScheduledJob{}, errors.New("schedule_type must be daily, weekly or monthly")
	}

	jobType := r.JobType
	if jobType == "" {
		jobType = "custom"
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}

	job := domain.ScheduledJob{
		Name:            r.JobName,
		Type:            jobType,
		TimeOfDay:       timeOfDay,
		WindowMinutes:   r.WindowMinutes,
		Days:            days,
		DefaultChannel:  domain.Channel(r.Channel),
		MessageTemplate: r.MessageTemplate,
		CronExpr:        r.CronExpr,
		IsActive:        active,
	}
	return job, job.Validate()
}

func (s *Server) handleCreateJob(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := req.toJob()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.db.Jobs().Save(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("job %s saved (schedule=%s channel=%s)", job.Name, req.ScheduleType, job.DefaultChannel)
	c.JSON(http.StatusCreated, job)
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs, err := s.db.Jobs().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.db.Jobs().Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) handleDeleteJob(c *gin.Context) {
	if err := s.db.Jobs().Delete(c.Request.Context(), c.Param("name")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
