package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/roastcraft/enrich-cli/internal/cost"
	"github.com/roastcraft/enrich-cli/internal/evaluator"
	"github.com/roastcraft/enrich-cli/internal/extractor"
	"github.com/roastcraft/enrich-cli/internal/fallback"
	"github.com/roastcraft/enrich-cli/internal/metrics"
	"github.com/roastcraft/enrich-cli/internal/pipeline"
	"github.com/roastcraft/enrich-cli/internal/resilience"
	"github.com/roastcraft/enrich-cli/internal/review"
	"github.com/roastcraft/enrich-cli/internal/store"
)

// pipelineEnv holds the initialized store, orchestrator, and supporting
// components needed by the run/batch commands.
type pipelineEnv struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Reviews      *review.Queue
	Ledger       *cost.Ledger
	Recorder     *metrics.Recorder
	DLQ          *resilience.DLQ
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	case "memory":
		return store.NewMemory(), nil
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}

// initPipeline sets up the store, the fallback client, and the
// orchestrator. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	ledger := cost.NewLedger(cost.NewCalculator(cost.DefaultRates()))
	recorder := metrics.NewRecorder()

	var inferClient pipeline.InferenceClient
	if cfg.Fallback.Enabled {
		svc := fallback.NewAnthropicService(cfg.Fallback.Key, cfg.Fallback.Model, cfg.Fallback.MaxTokens)
		retry := resilience.DefaultRetryConfig()
		if cfg.Retry.MaxAttempts > 0 {
			retry.MaxAttempts = cfg.Retry.MaxAttempts
		}
		if cfg.Retry.BaseDelay > 0 {
			retry.BaseDelay = cfg.Retry.BaseDelay
		}
		if cfg.Retry.MaxDelay > 0 {
			retry.MaxDelay = cfg.Retry.MaxDelay
		}
		retry.OnRetry = resilience.RetryLogger("anthropic", "infer")

		inferClient = fallback.NewClient(svc, fallback.ClientConfig{
			Limiter:              fallback.NewSourceLimiter(cfg.RateLimit),
			Breaker:              resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
			Retry:                retry,
			Ledger:               ledger,
			ConfidenceFloor:      cfg.Fallback.ConfidenceFloor,
			Timeout:              cfg.Fallback.Timeout(),
			CacheTTL:             cfg.Cache.TTL,
			CacheCleanupInterval: cfg.Cache.CleanupInterval,
		})
	}

	ruleSpecs := evaluator.DefaultRuleSpecs()
	if cfg.Pipeline.RulesFile != "" {
		ruleSpecs, err = evaluator.LoadRules(cfg.Pipeline.RulesFile)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	eval, err := evaluator.New(evaluator.Config{
		GlobalThreshold: cfg.Pipeline.GlobalThreshold,
		FieldThresholds: cfg.Pipeline.FieldThresholds,
		Rules:           ruleSpecs,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	reviews := review.NewQueue(st, review.NewWebhookNotifier(cfg.Notify), nil)

	orch, err := pipeline.New(cfg.Pipeline, extractor.Default(), eval, inferClient, st, reviews, recorder)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &pipelineEnv{
		Store:        st,
		Orchestrator: orch,
		Reviews:      reviews,
		Ledger:       ledger,
		Recorder:     recorder,
		DLQ:          resilience.NewDLQ(cfg.Batch.MaxDLQRetries),
	}, nil
}
