package config

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/compresr/agent-pipeline/alert"
	"github.com/compresr/agent-pipeline/budget"
	"github.com/compresr/agent-pipeline/cache"
	"github.com/compresr/agent-pipeline/pipeline"
	"github.com/compresr/agent-pipeline/provider"
	"github.com/compresr/agent-pipeline/record"
	"github.com/compresr/agent-pipeline/reliability"
	"github.com/compresr/agent-pipeline/store"
)

// Engine bundles the wired pipeline and the handles an embedding process
// needs for queries and shutdown.
type Engine struct {
	Executor *pipeline.Executor
	Query    *budget.Query
	Status   budget.Forecaster
	Recorder *record.Recorder
	Records  record.Store

	closers []func() error
}

// Close releases the engine's resources (record worker, redis, sqlite).
func (e *Engine) Close() error {
	e.Recorder.Close()
	var firstErr error
	for _, close := range e.closers {
		if err := close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build wires the full pipeline from configuration: KV store, budget
// subsystem, reliability engine, cache, and execution recording.
func Build(ctx context.Context, cfg *Config, client provider.Client, log zerolog.Logger) (*Engine, error) {
	// Re-resolving is idempotent; it covers configs assembled in code
	// rather than loaded from a file.
	cfg.applyDefaults()
	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	engine := &Engine{}

	var kv store.KV
	if cfg.Store.RedisAddr != "" {
		redis, err := store.NewRedis(ctx, cfg.Store.RedisAddr)
		if err != nil {
			return nil, err
		}
		engine.closers = append(engine.closers, redis.Close)
		kv = redis
	} else {
		log.Warn().Msg("config: no redis_addr, using in-memory store (single process only)")
		kv = store.NewMemory()
	}

	var sink alert.Sink = alert.NewLogSink(log)
	if cfg.Recording.AlertLogPath != "" {
		jsonl, err := alert.NewJSONLSink(cfg.Recording.AlertLogPath)
		if err != nil {
			return nil, fmt.Errorf("config: alert log: %w", err)
		}
		sink = alert.Multi{sink, jsonl}
	}

	query := budget.NewQuery(kv, budget.WithQueryNamespace(cfg.Namespace))
	spend := budget.NewRecorder(kv,
		budget.WithRecorderNamespace(cfg.Namespace),
		budget.WithAlertSink(sink),
		budget.WithRecorderLogger(log),
	)
	tracker := budget.NewTracker(query, cfg.Budget.Defaults,
		budget.WithTenantOverrides(cfg.Budget.Tenants),
		budget.WithTrackerLogger(log),
	)
	engine.Query = query
	engine.Status = budget.NewLinearForecaster(query)

	var records record.Store
	if cfg.Recording.SQLitePath != "" {
		sqlite, err := record.NewSQLiteStore(cfg.Recording.SQLitePath)
		if err != nil {
			return nil, err
		}
		engine.closers = append(engine.closers, sqlite.Close)
		records = sqlite
	} else {
		records = record.NewMemoryStore()
	}
	engine.Records = records

	recorderOpts := []record.RecorderOption{record.WithLogger(log)}
	if cfg.Recording.Async {
		recorderOpts = append(recorderOpts, record.WithAsync(DefaultAsyncBuffer))
	}
	engine.Recorder = record.NewRecorder(records, recorderOpts...)

	var engineOpts []reliability.EngineOption
	engineOpts = append(engineOpts, reliability.WithEngineLogger(log))
	if cfg.Reliability.BreakerEnabled {
		engineOpts = append(engineOpts, reliability.WithBreaker(
			reliability.NewCircuitBreaker(cfg.Reliability.breakerConfig())))
	}
	relEngine := reliability.NewEngine(cfg.Reliability.engineConfig(), engineOpts...)

	engine.Executor = pipeline.NewExecutor(client, relEngine, tracker, spend, engine.Recorder,
		pipeline.WithCache(cache.NewLayer(kv, cache.WithLogger(log))),
		pipeline.WithExecutorLogger(log),
	)

	return engine, nil
}
