package llm

import (
	"context"
	"fmt"
	"time"

	beaconerrors "beacon/internal/errors"
	"beacon/internal/logging"
)

// Rung is one step of a tier ladder: a generator plus its cost rates.
type Rung struct {
	Tier            int // 1..4 on the ladder, 0 for the emergency model
	Generator       Generator
	Model           string
	CostPer1KInput  float64
	CostPer1KOutput float64
}

// RouterConfig configures the Router.
type RouterConfig struct {
	// Ladders maps a task category to its ordered preference ladder. The
	// order encodes explicit preference, not necessarily ascending cost.
	Ladders map[TaskCategory][]Rung
	// Emergency is the single designated last-resort model, outside the
	// ladder and on a different provider family. Optional.
	Emergency *Rung
	// Breaker configures the per-provider circuit breakers.
	Breaker beaconerrors.CircuitBreakerConfig
}

// Router selects a provider tier for each generation task and cascades to
// the next rung on retryable failure. Exactly one successful generation is
// returned per call; the router never issues parallel speculative calls.
type Router struct {
	ladders   map[TaskCategory][]Rung
	emergency *Rung
	breakers  map[string]*beaconerrors.CircuitBreaker
	sink      AttemptSink
	logger    logging.Logger
}

// NewRouter creates a Router. Attempts (including failures) are forwarded to
// sink for cost analytics; pass nil to discard them.
func NewRouter(cfg RouterConfig, sink AttemptSink, logger logging.Logger) *Router {
	if sink == nil {
		sink = NopSink{}
	}
	logger = logging.OrNop(logger)

	breakers := make(map[string]*beaconerrors.CircuitBreaker)
	addBreaker := func(rung Rung) {
		name := rung.Generator.Name()
		if _, ok := breakers[name]; !ok {
			breakers[name] = beaconerrors.NewCircuitBreaker(name, cfg.Breaker, logger)
		}
	}
	for _, ladder := range cfg.Ladders {
		for _, rung := range ladder {
			addBreaker(rung)
		}
	}
	if cfg.Emergency != nil {
		addBreaker(*cfg.Emergency)
	}

	return &Router{
		ladders:   cfg.Ladders,
		emergency: cfg.Emergency,
		breakers:  breakers,
		sink:      sink,
		logger:    logger,
	}
}

// Generate walks the category's ladder until one provider succeeds.
//
// Retryable failures (timeouts, 5xx, rate-limit responses, open circuits)
// cascade to the next rung; a non-retryable failure surfaces immediately
// without touching the rest of the ladder or the emergency model. When every
// configured tier fails retryably, the emergency model is called last.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) (*Generation, []Attempt, error) {
	ladder, ok := r.ladders[req.Category]
	if !ok || len(ladder) == 0 {
		return nil, nil, beaconerrors.NewPermanentError(fmt.Errorf("no tier ladder for category %q", req.Category))
	}

	var attempts []Attempt
	var lastErr error

	for _, rung := range ladder {
		gen, attempt, err := r.tryRung(ctx, rung, req)
		attempts = append(attempts, attempt)
		if err == nil {
			return gen, attempts, nil
		}
		// Only classified-retryable failures cascade; anything else
		// (including unclassified errors) surfaces immediately.
		if !beaconerrors.IsTransient(err) {
			return nil, attempts, err
		}
		lastErr = err
		r.logger.Warn("tier %d (%s) failed, cascading: %v", rung.Tier, rung.Generator.Name(), err)
	}

	if r.emergency != nil {
		r.logger.Warn("all %d tiers failed for %q, falling back to emergency model %s",
			len(ladder), req.Category, r.emergency.Generator.Name())
		gen, attempt, err := r.tryRung(ctx, *r.emergency, req)
		attempts = append(attempts, attempt)
		if err == nil {
			return gen, attempts, nil
		}
		lastErr = err
	}

	return nil, attempts, fmt.Errorf("all providers failed for %q: %w", req.Category, lastErr)
}

// tryRung performs one provider call under the provider's circuit breaker and
// records the attempt.
func (r *Router) tryRung(ctx context.Context, rung Rung, req GenerateRequest) (*Generation, Attempt, error) {
	name := rung.Generator.Name()
	attempt := Attempt{Tier: rung.Tier, Provider: name, Model: rung.Model}

	breaker := r.breakers[name]
	if breaker != nil {
		if err := breaker.Allow(); err != nil {
			attempt.Err = err.Error()
			r.sink.RecordAttempt(req.Category, attempt)
			return nil, attempt, err
		}
	}

	start := time.Now()
	content, usage, err := rung.Generator.Generate(ctx, req)
	attempt.DurationMS = time.Since(start).Milliseconds()
	if breaker != nil {
		breaker.Mark(err)
	}

	if err != nil {
		attempt.Err = err.Error()
		r.sink.RecordAttempt(req.Category, attempt)
		return nil, attempt, err
	}

	cost := rung.cost(usage)
	attempt.Succeeded = true
	attempt.Usage = usage
	attempt.CostUSD = cost
	r.sink.RecordAttempt(req.Category, attempt)

	return &Generation{
		Content:  content,
		Provider: name,
		Model:    rung.Model,
		Tier:     rung.Tier,
		Usage:    usage,
		CostUSD:  cost,
	}, attempt, nil
}

func (rung Rung) cost(usage TokenUsage) float64 {
	return float64(usage.PromptTokens)/1000.0*rung.CostPer1KInput +
		float64(usage.CompletionTokens)/1000.0*rung.CostPer1KOutput
}
