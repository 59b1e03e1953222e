// Package server exposes the engine's HTTP surface: the scheduler trigger
// and status endpoints, the speech endpoint, job CRUD and operational routes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"beacon/internal/logging"
	"beacon/internal/observability"
	"beacon/internal/scheduler"
	"beacon/internal/storage"
	"beacon/internal/tts"
)

// Config configures the HTTP server.
type Config struct {
	Addr string
	// SchedulerSecret authenticates the trigger, status and speech routes.
	SchedulerSecret string
	CORSOrigins     []string
	// AudioDir, when set, is served under /audio for voice providers to
	// fetch synthesized clips.
	AudioDir string
	Debug    bool
}

// Ticker is the scheduler surface the server drives. Satisfied by
// scheduler.Service.
type Ticker interface {
	RunNow(ctx context.Context, source string) (*scheduler.TickSummary, error)
	Status() scheduler.Status
}

// Speaker is the speech surface. Satisfied by tts.Chain.
type Speaker interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// ActionQueue accepts configuration actions for durable asynchronous
// execution. Satisfied by actions.Queue.
type ActionQueue interface {
	Known(name string) bool
	Enqueue(ctx context.Context, name, tenantID string, params map[string]any) error
}

// Server wires the gin engine and the underlying http.Server.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	ticker     Ticker
	speaker    Speaker
	actionQ    ActionQueue
	db         *storage.DB
	logger     logging.Logger
}

// New builds the server and registers all routes.
func New(cfg Config, ticker Ticker, speaker Speaker, actionQ ActionQueue, db *storage.DB, metrics *observability.Metrics, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Scheduler-Secret"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		ticker:  ticker,
		speaker: speaker,
		actionQ: actionQ,
		db:      db,
		logger:  logger,
	}

	engine.GET("/healthz", s.handleHealthz)
	if metrics != nil {
		engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	if cfg.AudioDir != "" {
		engine.Static("/audio", cfg.AudioDir)
	}

	authed := engine.Group("/", s.requireSecret())
	authed.POST("/scheduler/run", s.handleSchedulerRun)
	authed.GET("/scheduler/status", s.handleSchedulerStatus)
	authed.POST("/speech", s.handleSpeech)
	if actionQ != nil {
		authed.POST("/actions", s.handleEnqueueAction)
	}
	authed.POST("/jobs", s.handleCreateJob)
	authed.GET("/jobs", s.handleListJobs)
	authed.GET("/jobs/:name", s.handleGetJob)
	authed.DELETE("/jobs/:name", s.handleDeleteJob)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // a manual tick can take most of a minute
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("http server listening on %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
