package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/agent-pipeline/store"
)

func newTestTracker(t *testing.T, defaults Config, opts ...TrackerOption) (*Tracker, *Recorder) {
	t.Helper()
	now := fixedClock(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	kv := store.NewMemory(store.WithClock(now))
	q := NewQuery(kv, WithQueryClock(now))
	rec := NewRecorder(kv, WithRecorderClock(now))
	opts = append(opts, WithTrackerClock(now))
	return NewTracker(q, defaults, opts...), rec
}

func TestCheckBudgetDisabledAllowsEverything(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	require.NoError(t, rec.RecordSpend(ctx, "a", 1000, "acme", Config{}))

	cfg := Config{Enabled: false, Enforcement: EnforcementHard, DailyLimitUSD: floatPtr(1)}
	assert.NoError(t, tracker.CheckBudget(ctx, "a", "acme", 0, cfg))

	cfg = Config{Enabled: true, Enforcement: EnforcementNone, DailyLimitUSD: floatPtr(1)}
	assert.NoError(t, tracker.CheckBudget(ctx, "a", "acme", 0, cfg))
}

func TestCheckBudgetHardRejectsAtLimit(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	cfg := Config{Enabled: true, Enforcement: EnforcementHard, DailyLimitUSD: floatPtr(10)}
	require.NoError(t, rec.RecordSpend(ctx, "a", 10, "acme", Config{}))

	err := tracker.CheckBudget(ctx, "a", "acme", 0, cfg)
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, ScopeGlobal, exceeded.Scope)
	assert.Equal(t, PeriodDaily, exceeded.Period)
	assert.Equal(t, DimensionCost, exceeded.Dimension)
	assert.InDelta(t, 10.0, exceeded.Current, 1e-9)
}

// An estimate that would push spend past the limit is rejected even though
// current spend alone is still within it.
func TestCheckBudgetHardRejectsOnEstimate(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	cfg := Config{Enabled: true, Enforcement: EnforcementHard, DailyLimitUSD: floatPtr(10)}
	require.NoError(t, rec.RecordSpend(ctx, "a", 4, "acme", Config{}))

	assert.NoError(t, tracker.CheckBudget(ctx, "a", "acme", 5, cfg),
		"4 + 5 stays within 10")

	var exceeded *ExceededError
	err := tracker.CheckBudget(ctx, "a", "acme", 7, cfg)
	require.ErrorAs(t, err, &exceeded)
	assert.InDelta(t, 4.0, exceeded.Current, 1e-9,
		"rejection happens pre-flight, spend is untouched")
}

func TestCheckBudgetSoftAllowsOverLimit(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	cfg := Config{Enabled: true, Enforcement: EnforcementSoft, DailyLimitUSD: floatPtr(10)}
	require.NoError(t, rec.RecordSpend(ctx, "a", 50, "acme", Config{}))

	assert.NoError(t, tracker.CheckBudget(ctx, "a", "acme", 0, cfg))
}

func TestCheckBudgetPerAgentLimit(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	cfg := Config{
		Enabled:             true,
		Enforcement:         EnforcementHard,
		AgentDailyLimitsUSD: map[string]float64{"expensive": 2},
	}
	require.NoError(t, rec.RecordSpend(ctx, "expensive", 2, "acme", Config{}))

	var exceeded *ExceededError
	err := tracker.CheckBudget(ctx, "expensive", "acme", 0, cfg)
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, ScopeAgent, exceeded.Scope)
	assert.Equal(t, "expensive", exceeded.AgentType)

	// Other agents are unaffected by the per-agent cap.
	assert.NoError(t, tracker.CheckBudget(ctx, "cheap", "acme", 0, cfg))
}

func TestCheckBudgetExecutionLimit(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	cfg := Config{Enabled: true, Enforcement: EnforcementHard, DailyExecutionLimit: intPtr(2)}
	require.NoError(t, rec.RecordExecution(ctx, "a", "acme", Config{}))
	assert.NoError(t, tracker.CheckBudget(ctx, "a", "acme", 0, cfg))

	require.NoError(t, rec.RecordExecution(ctx, "a", "acme", Config{}))
	var exceeded *ExceededError
	err := tracker.CheckBudget(ctx, "a", "acme", 0, cfg)
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, DimensionExecutions, exceeded.Dimension)
}

func TestCheckBudgetNilLimitIsUnlimited(t *testing.T) {
	ctx := context.Background()
	tracker, rec := newTestTracker(t, Config{})

	require.NoError(t, rec.RecordSpend(ctx, "a", 1e9, "acme", Config{}))

	cfg := Config{Enabled: true, Enforcement: EnforcementHard}
	assert.NoError(t, tracker.CheckBudget(ctx, "a", "acme", 0, cfg))
}

func TestResolveConfigPrecedence(t *testing.T) {
	defaults := Config{
		Enabled:       true,
		Enforcement:   EnforcementSoft,
		DailyLimitUSD: floatPtr(100),
	}

	registered := map[string]TenantOverride{
		"acme": {Inherit: true, Config: Config{DailyLimitUSD: floatPtr(10)}},
	}
	tracker, _ := newTestTracker(t, defaults, WithTenantOverrides(registered))

	// No override: defaults apply.
	cfg, err := tracker.ResolveConfig("other", nil)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, *cfg.DailyLimitUSD, 1e-9)

	// Registered override: merged over defaults.
	cfg, err = tracker.ResolveConfig("acme", nil)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, *cfg.DailyLimitUSD, 1e-9)
	assert.Equal(t, EnforcementSoft, cfg.Enforcement, "unset fields inherit")

	// Inline override beats the registered one.
	inline := &TenantOverride{Inherit: true, Config: Config{DailyLimitUSD: floatPtr(1)}}
	cfg, err = tracker.ResolveConfig("acme", inline)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, *cfg.DailyLimitUSD, 1e-9)
}
