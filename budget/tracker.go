package budget

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Tracker coordinates pre-flight budget gating. It resolves the effective
// Config for a tenant and rejects (hard) or warns (soft) when a configured
// limit would be breached.
//
// The check and the subsequent spend recording are not one transaction: two
// concurrent calls can both pass a check that would have failed serialized.
type Tracker struct {
	query     *Query
	defaults  Config
	overrides map[string]TenantOverride
	log       zerolog.Logger
	now       func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTenantOverrides registers per-tenant budget overrides, keyed by
// tenant id.
func WithTenantOverrides(overrides map[string]TenantOverride) TrackerOption {
	return func(t *Tracker) { t.overrides = overrides }
}

// WithTrackerLogger sets the logger.
func WithTrackerLogger(log zerolog.Logger) TrackerOption {
	return func(t *Tracker) { t.log = log }
}

// WithTrackerClock overrides the time source.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker with the given global default Config.
func NewTracker(query *Query, defaults Config, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		query:    query,
		defaults: defaults,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ResolveConfig produces the effective Config for a tenant. An inline
// override (supplied with the call) wins over a registered tenant override,
// which wins over the global defaults.
func (t *Tracker) ResolveConfig(tenantID string, inline *TenantOverride) (Config, error) {
	if inline != nil {
		return Resolve(t.defaults, inline)
	}
	if override, ok := t.overrides[tenantID]; ok {
		return Resolve(t.defaults, &override)
	}
	return t.defaults, nil
}

// CheckBudget gates an invocation before any cost is incurred.
// estimatedCostUSD is the projected cost of the call (zero when unknown); a
// cost limit breaches when current spend has reached it or when the estimate
// would push spend past it. Under hard enforcement a breach returns
// *ExceededError; under soft enforcement it is logged and the call proceeds.
func (t *Tracker) CheckBudget(ctx context.Context, agentType, tenantID string, estimatedCostUSD float64, cfg Config) error {
	if !cfg.Enabled || cfg.Enforcement == EnforcementNone || cfg.Enforcement == "" {
		return nil
	}

	breach, err := t.findBreach(ctx, agentType, tenantID, estimatedCostUSD, cfg)
	if err != nil {
		// A failing counter store must not take down invocations:
		// treat an unreadable budget as within budget.
		t.log.Warn().Err(err).Msg("budget: pre-flight check failed, allowing call")
		return nil
	}
	if breach == nil {
		return nil
	}

	if cfg.Enforcement == EnforcementHard {
		return breach
	}

	t.log.Warn().
		Str("tenant_id", tenantID).
		Str("agent_type", agentType).
		Str("scope", string(breach.Scope)).
		Str("period", string(breach.Period)).
		Str("dimension", string(breach.Dimension)).
		Float64("limit", breach.Limit).
		Float64("current", breach.Current).
		Msg("budget: soft enforcement, allowing call over limit")
	return nil
}

// findBreach returns the first breached limit, checked in a fixed order:
// global cost, per-agent cost, tokens, executions; daily before monthly.
func (t *Tracker) findBreach(ctx context.Context, agentType, tenantID string, estimate float64, cfg Config) (*ExceededError, error) {
	for _, scope := range []Scope{ScopeGlobal, ScopeAgent} {
		agent := ""
		if scope == ScopeAgent {
			if agentType == "" {
				continue
			}
			agent = agentType
		}
		for _, period := range []Period{PeriodDaily, PeriodMonthly} {
			limit, ok := costLimitFor(cfg, scope, period, agent)
			if !ok {
				continue
			}
			current, err := t.query.CurrentSpend(ctx, scope, period, agent, tenantID)
			if err != nil {
				return nil, err
			}
			if current >= limit || current+estimate > limit {
				return &ExceededError{
					Scope:     scope,
					Period:    period,
					Dimension: DimensionCost,
					TenantID:  tenantID,
					AgentType: agent,
					Limit:     limit,
					Current:   current,
				}, nil
			}
		}
	}

	for _, c := range []struct {
		period Period
		limit  *int64
	}{
		{PeriodDaily, cfg.DailyTokenLimit},
		{PeriodMonthly, cfg.MonthlyTokenLimit},
	} {
		if c.limit == nil {
			continue
		}
		current, err := t.query.CurrentTokens(ctx, c.period, tenantID)
		if err != nil {
			return nil, err
		}
		if current >= *c.limit {
			return &ExceededError{
				Scope:     ScopeGlobal,
				Period:    c.period,
				Dimension: DimensionTokens,
				TenantID:  tenantID,
				AgentType: agentType,
				Limit:     float64(*c.limit),
				Current:   float64(current),
			}, nil
		}
	}

	for _, c := range []struct {
		period Period
		limit  *int64
	}{
		{PeriodDaily, cfg.DailyExecutionLimit},
		{PeriodMonthly, cfg.MonthlyExecutionLimit},
	} {
		if c.limit == nil {
			continue
		}
		current, err := t.query.CurrentExecutions(ctx, c.period, tenantID)
		if err != nil {
			return nil, err
		}
		if current >= *c.limit {
			return &ExceededError{
				Scope:     ScopeGlobal,
				Period:    c.period,
				Dimension: DimensionExecutions,
				TenantID:  tenantID,
				AgentType: agentType,
				Limit:     float64(*c.limit),
				Current:   float64(current),
			}, nil
		}
	}

	return nil, nil
}
