package main

import (
	"fmt"

	"beacon/internal/actions"
	"beacon/internal/channel"
	"beacon/internal/config"
	beaconerrors "beacon/internal/errors"
	"beacon/internal/gating"
	"beacon/internal/llm"
	"beacon/internal/logging"
	"beacon/internal/observability"
	"beacon/internal/outbox"
	"beacon/internal/scheduler"
	"beacon/internal/storage"
	"beacon/internal/trigger"
	"beacon/internal/tts"
	"beacon/internal/tzcache"
)

// engine bundles the long-lived components the commands share.
type engine struct {
	db          *storage.DB
	metrics     *observability.Metrics
	runner      *scheduler.Runner
	service     *scheduler.Service
	speech      *tts.Chain
	actionQueue *actions.Queue
	worker      *outbox.Worker
}

func (e *engine) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

// buildEngine assembles the full dependency graph from config. Everything is
// constructor-injected so tests can swap any layer.
func buildEngine(cfg *config.Config) (*engine, error) {
	db, err := storage.Open(storage.Config{
		Path:        cfg.Database.Path,
		BusyTimeout: cfg.Database.BusyTimeout,
	}, logging.NewComponentLogger("storage"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	tz, err := tzcache.New(1024)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	metrics := observability.NewMetrics()
	router := buildRouter(cfg.LLM, metrics)
	speech := buildSpeechChain(cfg.TTS)

	audioStore, err := channel.NewFileAudioStore(cfg.Server.AudioDir, cfg.Server.AudioBaseURL, logging.NewComponentLogger("audio"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audio store: %w", err)
	}

	twilioCfg := channel.TwilioConfig{
		BaseURL:    cfg.Twilio.BaseURL,
		AccountSID: cfg.Twilio.AccountSID,
		AuthToken:  cfg.Twilio.AuthToken,
		FromNumber: cfg.Twilio.FromNumber,
	}
	dispatcher := channel.NewDispatcher(
		channel.NewTwilioCaller(twilioCfg, logging.NewComponentLogger("twilio")),
		channel.NewTwilioMessenger(twilioCfg, logging.NewComponentLogger("twilio")),
		router,
		speech,
		audioStore,
		logging.NewComponentLogger("dispatch"),
	)

	gate := gating.NewPipeline(db.RateLimits(), cfg.Scheduler.BenefitThreshold, logging.NewComponentLogger("gating"))
	evaluator := trigger.Evaluator{WindowMinutes: cfg.Scheduler.WindowMinutes}

	runner := scheduler.NewRunner(db, evaluator, gate, dispatcher, tz, scheduler.Config{
		TickBudget:     cfg.Scheduler.TickBudget,
		UsersPerSecond: cfg.Scheduler.UsersPerSecond,
	}, metrics, logging.NewComponentLogger("scheduler"))

	service, err := scheduler.NewService(runner, cfg.Scheduler.CronSpec, logging.NewComponentLogger("scheduler"))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scheduler service: %w", err)
	}

	registry := actions.NewRegistry(logging.NewComponentLogger("actions"))
	actions.RegisterBuiltins(registry, db)
	queue := actions.NewQueue(registry, db.Outbox())

	worker := outbox.NewWorker(db.Outbox(), outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, metrics, logging.NewComponentLogger("outbox"))
	worker.Register(actions.TaskKind, queue.HandleTask)

	return &engine{
		db:          db,
		metrics:     metrics,
		runner:      runner,
		service:     service,
		speech:      speech,
		actionQueue: queue,
		worker:      worker,
	}, nil
}

// buildRouter turns the configured tier ladders into generator rungs. Tier
// numbers follow ladder order; the emergency model sits outside at tier 0.
func buildRouter(cfg config.LLMConfig, sink llm.AttemptSink) *llm.Router {
	ladders := map[llm.TaskCategory][]llm.Rung{
		llm.CategoryConversational: buildLadder(cfg.Conversational),
		llm.CategorySummary:        buildLadder(cfg.Summary),
	}
	var emergency *llm.Rung
	if cfg.Emergency != nil {
		rung := buildRung(0, *cfg.Emergency)
		emergency = &rung
	}
	return llm.NewRouter(llm.RouterConfig{
		Ladders:   ladders,
		Emergency: emergency,
		Breaker:   beaconerrors.DefaultCircuitBreakerConfig(),
	}, sink, logging.NewComponentLogger("llm"))
}

func buildLadder(tiers []config.TierConfig) []llm.Rung {
	rungs := make([]llm.Rung, 0, len(tiers))
	for i, tier := range tiers {
		rungs = append(rungs, buildRung(i+1, tier))
	}
	return rungs
}

func buildRung(tier int, tc config.TierConfig) llm.Rung {
	clientCfg := llm.ClientConfig{
		Name:    tc.Name,
		BaseURL: tc.BaseURL,
		APIKey:  tc.APIKey,
		Model:   tc.Model,
	}
	logger := logging.NewComponentLogger("llm")
	var gen llm.Generator
	if tc.Provider == "anthropic" {
		gen = llm.NewAnthropicClient(clientCfg, logger)
	} else {
		gen = llm.NewOpenAIClient(clientCfg, logger)
	}
	return llm.Rung{
		Tier:            tier,
		Generator:       gen,
		Model:           tc.Model,
		CostPer1KInput:  tc.CostPer1KIn,
		CostPer1KOutput: tc.CostPer1KOu,
	}
}

// buildSpeechChain lays out the provider fallback chain in config order,
// optionally terminated by the always-succeeding silent provider.
func buildSpeechChain(cfg config.TTSConfig) *tts.Chain {
	providers := make([]tts.Synthesizer, 0, len(cfg.Providers)+1)
	for _, pc := range cfg.Providers {
		providers = append(providers, tts.NewHTTPProvider(tts.HTTPConfig{
			Name:         pc.Name,
			Endpoint:     pc.Endpoint,
			APIKey:       pc.APIKey,
			DefaultVoice: pc.Voice,
		}, logging.NewComponentLogger("tts")))
	}
	if cfg.SilentLast {
		providers = append(providers, tts.SilentProvider{})
	}
	return tts.NewChain(providers, cfg.MaxTextLen, logging.NewComponentLogger("tts"))
}
