package budget

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/compresr/agent-pipeline/store"
)

// Query is the read side of spend accounting: pure reads over the same key
// scheme the Recorder writes.
type Query struct {
	kv  store.KV
	ns  string
	now func() time.Time
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithQueryClock overrides the time source.
func WithQueryClock(now func() time.Time) QueryOption {
	return func(q *Query) { q.now = now }
}

// WithQueryNamespace overrides the key namespace.
func WithQueryNamespace(ns string) QueryOption {
	return func(q *Query) { q.ns = ns }
}

// NewQuery creates a Query over the given KV store.
func NewQuery(kv store.KV, opts ...QueryOption) *Query {
	q := &Query{kv: kv, ns: DefaultNamespace, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func readCounter(ctx context.Context, kv store.KV, key string) (float64, error) {
	raw, ok, err := kv.Read(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("budget: counter %q holds non-numeric value %q", key, raw)
	}
	return v, nil
}

// CurrentSpend returns accumulated USD spend for the scope/period. Absent
// counters read as zero. agentType is required for ScopeAgent.
func (q *Query) CurrentSpend(ctx context.Context, scope Scope, period Period, agentType, tenantID string) (float64, error) {
	agent := ""
	if scope == ScopeAgent {
		agent = agentType
	}
	return readCounter(ctx, q.kv, costKey(q.ns, tenantID, agent, period, q.now()))
}

// CurrentTokens returns the accumulated token count for the period.
func (q *Query) CurrentTokens(ctx context.Context, period Period, tenantID string) (int64, error) {
	v, err := readCounter(ctx, q.kv, tokenKey(q.ns, tenantID, period, q.now()))
	return int64(v), err
}

// CurrentExecutions returns the accumulated invocation count for the period.
func (q *Query) CurrentExecutions(ctx context.Context, period Period, tenantID string) (int64, error) {
	v, err := readCounter(ctx, q.kv, execKey(q.ns, tenantID, period, q.now()))
	return int64(v), err
}

// Remaining is a remaining-budget amount: Unlimited when the dimension has
// no configured limit.
type Remaining struct {
	Amount    float64
	Unlimited bool
}

// RemainingBudget returns max(limit - current, 0) for the cost dimension, or
// Unlimited when no limit applies.
func (q *Query) RemainingBudget(ctx context.Context, scope Scope, period Period, agentType, tenantID string, cfg Config) (Remaining, error) {
	limit, ok := costLimitFor(cfg, scope, period, agentType)
	if !ok {
		return Remaining{Unlimited: true}, nil
	}

	current, err := q.CurrentSpend(ctx, scope, period, agentType, tenantID)
	if err != nil {
		return Remaining{}, err
	}
	return Remaining{Amount: math.Max(limit-current, 0)}, nil
}

// RemainingTokenBudget is the token analogue of RemainingBudget, global only.
func (q *Query) RemainingTokenBudget(ctx context.Context, period Period, tenantID string, cfg Config) (Remaining, error) {
	var limit *int64
	if period == PeriodMonthly {
		limit = cfg.MonthlyTokenLimit
	} else {
		limit = cfg.DailyTokenLimit
	}
	if limit == nil {
		return Remaining{Unlimited: true}, nil
	}

	current, err := q.CurrentTokens(ctx, period, tenantID)
	if err != nil {
		return Remaining{}, err
	}
	return Remaining{Amount: math.Max(float64(*limit-current), 0)}, nil
}

func costLimitFor(cfg Config, scope Scope, period Period, agentType string) (float64, bool) {
	switch {
	case scope == ScopeGlobal && period == PeriodDaily:
		if cfg.DailyLimitUSD == nil {
			return 0, false
		}
		return *cfg.DailyLimitUSD, true
	case scope == ScopeGlobal && period == PeriodMonthly:
		if cfg.MonthlyLimitUSD == nil {
			return 0, false
		}
		return *cfg.MonthlyLimitUSD, true
	case scope == ScopeAgent && period == PeriodDaily:
		return cfg.agentDailyLimit(agentType)
	case scope == ScopeAgent && period == PeriodMonthly:
		return cfg.agentMonthlyLimit(agentType)
	}
	return 0, false
}
