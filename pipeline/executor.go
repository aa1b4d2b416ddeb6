package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/compresr/agent-pipeline/budget"
	"github.com/compresr/agent-pipeline/cache"
	"github.com/compresr/agent-pipeline/pricing"
	"github.com/compresr/agent-pipeline/provider"
	"github.com/compresr/agent-pipeline/record"
	"github.com/compresr/agent-pipeline/reliability"
)

// CostEstimator projects the cost of a call before it is made, for
// pre-flight budget gating. Estimates only gate; billing always uses the
// usage the provider reports.
type CostEstimator func(agent Agent, req *provider.Request) float64

// defaultEstimator prices the tokenized input at the primary model's input
// rate. Output cost is unknowable up front and deliberately not guessed.
func defaultEstimator(agent Agent, req *provider.Request) float64 {
	if agent.Type == provider.TypeImage {
		return pricing.ImageCost(agent.Model, 1)
	}
	tokens := provider.EstimateTokens(agent.Model, req.Input)
	return pricing.Cost(tokens, 0, pricing.For(agent.Model))
}

// Executor runs invocations through the middleware chain.
type Executor struct {
	client    provider.Client
	engine    *reliability.Engine
	tracker   *budget.Tracker
	spend     *budget.Recorder
	cache     *cache.Layer
	recorder  *record.Recorder
	estimator CostEstimator
	log       zerolog.Logger
	now       func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCache enables the response cache stage.
func WithCache(layer *cache.Layer) ExecutorOption {
	return func(x *Executor) { x.cache = layer }
}

// WithCostEstimator replaces the pre-flight cost estimator.
func WithCostEstimator(est CostEstimator) ExecutorOption {
	return func(x *Executor) { x.estimator = est }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(log zerolog.Logger) ExecutorOption {
	return func(x *Executor) { x.log = log }
}

// WithExecutorClock overrides the time source.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(x *Executor) { x.now = now }
}

// NewExecutor wires the pipeline. All collaborators except the cache are
// required; a nil cache disables stages 3 and 6.
func NewExecutor(
	client provider.Client,
	engine *reliability.Engine,
	tracker *budget.Tracker,
	spend *budget.Recorder,
	recorder *record.Recorder,
	opts ...ExecutorOption,
) *Executor {
	x := &Executor{
		client:    client,
		engine:    engine,
		tracker:   tracker,
		spend:     spend,
		recorder:  recorder,
		estimator: defaultEstimator,
		log:       zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// CallOption adjusts a single invocation.
type CallOption func(*callContext)

// SkipCache bypasses cache lookup and write for this call.
func SkipCache() CallOption {
	return func(c *callContext) { c.skipCache = true }
}

// Execute runs one invocation. tenant accepts the shapes resolveTenant
// supports. On success the Result is returned; on failure the terminal
// error propagates after accounting is attempted.
func (x *Executor) Execute(ctx context.Context, agent Agent, req *provider.Request, tenant any, opts ...CallOption) (*Result, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, &ValidationError{Msg: "request is required"}
	}

	c := newCallContext(agent, req, x.now())
	for _, opt := range opts {
		opt(c)
	}

	// Stage 1: resolve tenant. Errors propagate uncaught.
	tenantID, override, err := resolveTenant(tenant)
	if err != nil {
		return nil, err
	}
	c.tenantID = tenantID
	c.budgetOverride = override

	cfg, err := x.tracker.ResolveConfig(tenantID, override)
	if err != nil {
		return nil, err
	}
	c.budgetConfig = cfg

	// Stage 2: budget gate, before any cost is incurred.
	if err := x.tracker.CheckBudget(ctx, agent.Name, tenantID, x.estimator(agent, req), cfg); err != nil {
		return nil, err
	}

	// Stage 3: cache lookup. Streamed responses are consumed
	// incrementally and are never cacheable.
	cacheable := x.cache != nil && agent.CacheEnabled && !c.skipCache && !req.Stream
	if cacheable {
		c.fingerprint = cache.Fingerprint(agent.CacheKey, agent.Name, agent.Version, agent.Model, req.Params, req.Input)
		if snap, hit, err := x.cache.Lookup(ctx, c.fingerprint); err != nil {
			x.log.Warn().Err(err).Str("agent", agent.Name).Msg("pipeline: cache lookup failed, continuing")
		} else if hit {
			return x.finishCacheHit(ctx, c, snap), nil
		}
	}

	// Stage 4: provider invocation under the reliability engine.
	resp, err := x.engine.Invoke(ctx, agent.Name, agent.Model, agent.FallbackModels,
		func(ctx context.Context, model string) (*provider.Response, error) {
			return x.client.Invoke(ctx, model, req)
		})
	completedAt := x.now()

	if err != nil {
		c.failure = err
		x.recordFailure(ctx, c, completedAt, err)
		return nil, err
	}

	c.output = resp
	if resp.Model != "" {
		c.model = resp.Model
	}

	usage := resp.Usage
	if usage.InputTokens == 0 && usage.OutputTokens == 0 && len(resp.Raw) > 0 {
		usage = provider.ParseUsage(resp.Raw)
	}
	c.totalCostUSD = deriveCost(agent, c.model, usage)

	// Stage 5: spend + execution recording. Best-effort: failures here
	// are logged and never surface to the caller.
	x.recordSuccess(ctx, c, completedAt, usage)

	// Stage 6: cache write, successes only.
	if cacheable {
		if err := x.cache.Store(ctx, c.fingerprint, resp, agent.CacheTTL); err != nil {
			x.log.Warn().Err(err).Str("agent", agent.Name).Msg("pipeline: cache write failed")
		}
	}

	return &Result{
		Output:   resp.Content,
		Response: resp,
		Model:    c.model,
		CostUSD:  c.totalCostUSD,
		Duration: completedAt.Sub(c.startedAt),
	}, nil
}

// deriveCost prefers the provider-reported cost and otherwise derives it
// from token counts and the pricing table.
func deriveCost(agent Agent, model string, usage provider.Usage) float64 {
	if usage.CostUSD != nil {
		return *usage.CostUSD
	}
	if agent.Type == provider.TypeImage {
		return pricing.ImageCost(model, 1)
	}

	p := pricing.For(model)
	if usage.CacheCreationTokens > 0 || usage.CacheReadTokens > 0 {
		return pricing.CostWithCache(usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens, p)
	}
	return pricing.Cost(usage.InputTokens, usage.OutputTokens, p)
}

// finishCacheHit short-circuits stages 4 through 6. No provider call, no
// spend: the hit is free. A near-zero-duration record is still written so
// hits show up in execution history.
func (x *Executor) finishCacheHit(ctx context.Context, c *callContext, snap *cache.Snapshot) *Result {
	resp := snap.Response()
	c.output = resp
	c.cacheHit = true
	completedAt := x.now()

	x.recorder.RecordSuccess(ctx, record.Execution{
		AgentType:     c.agent.Name,
		ExecutionType: c.agent.Type,
		Model:         resp.Model,
		TenantID:      c.tenantID,
		StartedAt:     c.startedAt,
		CompletedAt:   completedAt,
		Usage:         resp.Usage,
		CacheHit:      true,
	})

	return &Result{
		Output:   resp.Content,
		Response: resp,
		Model:    resp.Model,
		CacheHit: true,
		Duration: completedAt.Sub(c.startedAt),
	}
}

func (x *Executor) recordSuccess(ctx context.Context, c *callContext, completedAt time.Time, usage provider.Usage) {
	if err := x.spend.RecordSpend(ctx, c.agent.Name, c.totalCostUSD, c.tenantID, c.budgetConfig); err != nil {
		x.log.Warn().Err(err).Str("agent", c.agent.Name).Msg("pipeline: spend recording failed")
	}
	totalTokens := int64(usage.InputTokens + usage.OutputTokens)
	if err := x.spend.RecordTokens(ctx, c.agent.Name, totalTokens, c.tenantID, c.budgetConfig); err != nil {
		x.log.Warn().Err(err).Str("agent", c.agent.Name).Msg("pipeline: token recording failed")
	}
	if err := x.spend.RecordExecution(ctx, c.agent.Name, c.tenantID, c.budgetConfig); err != nil {
		x.log.Warn().Err(err).Str("agent", c.agent.Name).Msg("pipeline: execution counting failed")
	}

	x.recorder.RecordSuccess(ctx, record.Execution{
		AgentType:     c.agent.Name,
		ExecutionType: c.agent.Type,
		Model:         c.model,
		TenantID:      c.tenantID,
		StartedAt:     c.startedAt,
		CompletedAt:   completedAt,
		Usage:         usage,
		CostUSD:       c.totalCostUSD,
	})
}

func (x *Executor) recordFailure(ctx context.Context, c *callContext, completedAt time.Time, cause error) {
	x.recorder.RecordFailure(ctx, record.Execution{
		AgentType:     c.agent.Name,
		ExecutionType: c.agent.Type,
		Model:         c.model,
		TenantID:      c.tenantID,
		StartedAt:     c.startedAt,
		CompletedAt:   completedAt,
	}, cause)
}
