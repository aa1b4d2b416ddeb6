package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/compresr/agent-pipeline/alert"
	"github.com/compresr/agent-pipeline/store"
)

// Recorder performs the post-flight side of accounting: atomic counter
// increments plus cap alerts. Counter TTLs are applied only when a key is
// created, so repeated increments never extend a window.
type Recorder struct {
	kv     store.KV
	alerts alert.Sink
	ns     string
	now    func() time.Time
	log    zerolog.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithAlertSink routes cap alerts to the given sink.
func WithAlertSink(s alert.Sink) RecorderOption {
	return func(r *Recorder) { r.alerts = s }
}

// WithRecorderClock overrides the time source (tests cross calendar
// boundaries with it).
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(log zerolog.Logger) RecorderOption {
	return func(r *Recorder) { r.log = log }
}

// WithRecorderNamespace overrides the key namespace.
func WithRecorderNamespace(ns string) RecorderOption {
	return func(r *Recorder) { r.ns = ns }
}

// NewRecorder creates a Recorder over the given KV store.
func NewRecorder(kv store.KV, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		kv:     kv,
		alerts: alert.Discard,
		ns:     DefaultNamespace,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultNamespace prefixes every counter and cache key.
const DefaultNamespace = "agents"

// RecordSpend adds amount (USD) to the four cost counters: global daily,
// global monthly, per-agent daily, per-agent monthly. No-op for amounts <= 0.
func (r *Recorder) RecordSpend(ctx context.Context, agentType string, amount float64, tenantID string, cfg Config) error {
	if amount <= 0 {
		return nil
	}
	now := r.now()

	for _, inc := range []struct {
		key string
		ttl time.Duration
	}{
		{costKey(r.ns, tenantID, "", PeriodDaily, now), dailyTTL},
		{costKey(r.ns, tenantID, "", PeriodMonthly, now), monthlyTTL},
		{costKey(r.ns, tenantID, agentType, PeriodDaily, now), dailyTTL},
		{costKey(r.ns, tenantID, agentType, PeriodMonthly, now), monthlyTTL},
	} {
		if _, err := r.kv.Increment(ctx, inc.key, amount, inc.ttl); err != nil {
			return fmt.Errorf("budget: record spend: %w", err)
		}
	}

	if cfg.Enabled {
		r.checkCostLimits(ctx, agentType, tenantID, cfg)
	}
	return nil
}

// RecordTokens adds tokens to the two global token counters. Tokens are
// never tracked per-agent. No-op for counts <= 0.
func (r *Recorder) RecordTokens(ctx context.Context, agentType string, tokens int64, tenantID string, cfg Config) error {
	if tokens <= 0 {
		return nil
	}
	now := r.now()

	for _, inc := range []struct {
		key string
		ttl time.Duration
	}{
		{tokenKey(r.ns, tenantID, PeriodDaily, now), dailyTTL},
		{tokenKey(r.ns, tenantID, PeriodMonthly, now), monthlyTTL},
	} {
		if _, err := r.kv.Increment(ctx, inc.key, float64(tokens), inc.ttl); err != nil {
			return fmt.Errorf("budget: record tokens: %w", err)
		}
	}

	if cfg.Enabled {
		r.checkTokenLimits(ctx, agentType, tenantID, cfg)
	}
	return nil
}

// RecordExecution counts one completed invocation against the daily and
// monthly execution counters.
func (r *Recorder) RecordExecution(ctx context.Context, agentType, tenantID string, cfg Config) error {
	now := r.now()

	for _, inc := range []struct {
		key string
		ttl time.Duration
	}{
		{execKey(r.ns, tenantID, PeriodDaily, now), dailyTTL},
		{execKey(r.ns, tenantID, PeriodMonthly, now), monthlyTTL},
	} {
		if _, err := r.kv.Increment(ctx, inc.key, 1, inc.ttl); err != nil {
			return fmt.Errorf("budget: record execution: %w", err)
		}
	}

	if cfg.Enabled {
		r.checkExecutionLimits(ctx, agentType, tenantID, cfg)
	}
	return nil
}

func (r *Recorder) eventKind(cfg Config) alert.Kind {
	if cfg.Enforcement == EnforcementHard {
		return alert.KindHardCap
	}
	return alert.KindSoftCap
}

// checkCostLimits alerts on the first breached cost limit, if any.
func (r *Recorder) checkCostLimits(ctx context.Context, agentType, tenantID string, cfg Config) {
	now := r.now()

	type check struct {
		scope  Scope
		period Period
		agent  string
		limit  float64
		ok     bool
	}
	checks := []check{
		{ScopeGlobal, PeriodDaily, "", deref(cfg.DailyLimitUSD), cfg.DailyLimitUSD != nil},
		{ScopeGlobal, PeriodMonthly, "", deref(cfg.MonthlyLimitUSD), cfg.MonthlyLimitUSD != nil},
	}
	if limit, ok := cfg.agentDailyLimit(agentType); ok {
		checks = append(checks, check{ScopeAgent, PeriodDaily, agentType, limit, true})
	}
	if limit, ok := cfg.agentMonthlyLimit(agentType); ok {
		checks = append(checks, check{ScopeAgent, PeriodMonthly, agentType, limit, true})
	}

	for _, c := range checks {
		if !c.ok {
			continue
		}
		current, err := readCounter(ctx, r.kv, costKey(r.ns, tenantID, c.agent, c.period, now))
		if err != nil {
			r.log.Warn().Err(err).Msg("budget: cost limit check failed")
			continue
		}
		if current >= c.limit {
			r.fireAlert(ctx, alert.Event{
				Kind:      r.eventKind(cfg),
				Scope:     string(c.scope),
				Period:    string(c.period),
				Dimension: string(DimensionCost),
				TenantID:  tenantID,
				AgentType: c.agent,
				Limit:     c.limit,
				Current:   current,
				At:        now,
			}, c.scope, tenantID)
			return
		}
	}
}

func (r *Recorder) checkTokenLimits(ctx context.Context, agentType, tenantID string, cfg Config) {
	now := r.now()

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
		current, err := readCounter(ctx, r.kv, tokenKey(r.ns, tenantID, c.period, now))
		if err != nil {
			r.log.Warn().Err(err).Msg("budget: token limit check failed")
			continue
		}
		if current >= float64(*c.limit) {
			r.fireAlert(ctx, alert.Event{
				Kind:      r.eventKind(cfg),
				Scope:     string(ScopeGlobal),
				Period:    string(c.period),
				Dimension: string(DimensionTokens),
				TenantID:  tenantID,
				AgentType: agentType,
				Limit:     float64(*c.limit),
				Current:   current,
				At:        now,
			}, ScopeGlobal, tenantID)
			return
		}
	}
}

func (r *Recorder) checkExecutionLimits(ctx context.Context, agentType, tenantID string, cfg Config) {
	now := r.now()

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
		current, err := readCounter(ctx, r.kv, execKey(r.ns, tenantID, c.period, now))
		if err != nil {
			r.log.Warn().Err(err).Msg("budget: execution limit check failed")
			continue
		}
		if current >= float64(*c.limit) {
			r.fireAlert(ctx, alert.Event{
				Kind:      r.eventKind(cfg),
				Scope:     string(ScopeGlobal),
				Period:    string(c.period),
				Dimension: string(DimensionExecutions),
				TenantID:  tenantID,
				AgentType: agentType,
				Limit:     float64(*c.limit),
				Current:   current,
				At:        now,
			}, ScopeGlobal, tenantID)
			return
		}
	}
}

// fireAlert delivers an event at most once per (kind, scope, tenant, day).
// The dedup marker carries a short TTL so a sustained breach re-alerts at
// most hourly rather than staying silent all day after the first event.
func (r *Recorder) fireAlert(ctx context.Context, ev alert.Event, scope Scope, tenantID string) {
	marker := alertMarkerKey(r.ns, string(ev.Kind), scope, tenantID, ev.At)
	created, err := r.kv.SetNX(ctx, marker, "1", alertMarkerTTL)
	if err != nil {
		r.log.Warn().Err(err).Msg("budget: alert dedup marker failed")
		return
	}
	if !created {
		return
	}

	r.log.Warn().
		Str("kind", string(ev.Kind)).
		Str("scope", ev.Scope).
		Str("period", ev.Period).
		Str("dimension", ev.Dimension).
		Str("tenant_id", tenantID).
		Float64("limit", ev.Limit).
		Float64("current", ev.Current).
		Msg("budget: limit breached")
	r.alerts.Notify(ctx, ev)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
