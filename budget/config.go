package budget

import (
	"fmt"

	"dario.cat/mergo"
)

// Enforcement selects what happens when a limit is crossed.
type Enforcement string

const (
	// EnforcementNone disables budget checks entirely.
	EnforcementNone Enforcement = "none"
	// EnforcementSoft logs and alerts on a breach but allows the call.
	EnforcementSoft Enforcement = "soft"
	// EnforcementHard rejects calls once a limit is reached.
	EnforcementHard Enforcement = "hard"
)

// Config is the resolved budget configuration for one invocation. A nil
// limit means unlimited for that dimension, never zero. Once resolved for a
// call the value is never mutated.
type Config struct {
	Enabled     bool        `yaml:"enabled"`
	Enforcement Enforcement `yaml:"enforcement"`

	DailyLimitUSD   *float64 `yaml:"daily_limit_usd,omitempty"`
	MonthlyLimitUSD *float64 `yaml:"monthly_limit_usd,omitempty"`

	// Per-agent cost limits, keyed by agent name.
	AgentDailyLimitsUSD   map[string]float64 `yaml:"agent_daily_limits_usd,omitempty"`
	AgentMonthlyLimitsUSD map[string]float64 `yaml:"agent_monthly_limits_usd,omitempty"`

	// Token limits are global only: they model infra capacity, while cost
	// limits model billing, so per-agent token caps are intentionally absent.
	DailyTokenLimit   *int64 `yaml:"daily_token_limit,omitempty"`
	MonthlyTokenLimit *int64 `yaml:"monthly_token_limit,omitempty"`

	DailyExecutionLimit   *int64 `yaml:"daily_execution_limit,omitempty"`
	MonthlyExecutionLimit *int64 `yaml:"monthly_execution_limit,omitempty"`
}

// Validate checks limit signs and the enforcement mode.
func (c *Config) Validate() error {
	switch c.Enforcement {
	case "", EnforcementNone, EnforcementSoft, EnforcementHard:
	default:
		return fmt.Errorf("budget: unknown enforcement mode %q", c.Enforcement)
	}

	for name, limit := range map[string]*float64{
		"daily_limit_usd":   c.DailyLimitUSD,
		"monthly_limit_usd": c.MonthlyLimitUSD,
	} {
		if limit != nil && *limit < 0 {
			return fmt.Errorf("budget: %s must be >= 0, got %f", name, *limit)
		}
	}
	for name, limit := range map[string]*int64{
		"daily_token_limit":       c.DailyTokenLimit,
		"monthly_token_limit":     c.MonthlyTokenLimit,
		"daily_execution_limit":   c.DailyExecutionLimit,
		"monthly_execution_limit": c.MonthlyExecutionLimit,
	} {
		if limit != nil && *limit < 0 {
			return fmt.Errorf("budget: %s must be >= 0, got %d", name, *limit)
		}
	}
	for agent, limit := range c.AgentDailyLimitsUSD {
		if limit < 0 {
			return fmt.Errorf("budget: agent_daily_limits_usd[%s] must be >= 0, got %f", agent, limit)
		}
	}
	for agent, limit := range c.AgentMonthlyLimitsUSD {
		if limit < 0 {
			return fmt.Errorf("budget: agent_monthly_limits_usd[%s] must be >= 0, got %f", agent, limit)
		}
	}
	return nil
}

// TenantOverride is a tenant's budget record before resolution. When Inherit
// is true the override is merged over the global defaults (set fields win);
// when false it replaces them wholesale.
type TenantOverride struct {
	Inherit bool   `yaml:"inherit"`
	Config  Config `yaml:",inline"`
}

// Resolve produces the effective Config for a call from global defaults and
// an optional tenant override.
func Resolve(defaults Config, override *TenantOverride) (Config, error) {
	if override == nil {
		return defaults, nil
	}
	if !override.Inherit {
		return override.Config, nil
	}

	merged := defaults
	if err := mergo.Merge(&merged, override.Config, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("budget: merge tenant override: %w", err)
	}
	return merged, nil
}

// agentDailyLimit returns the per-agent daily cost limit, if configured.
func (c *Config) agentDailyLimit(agentType string) (float64, bool) {
	limit, ok := c.AgentDailyLimitsUSD[agentType]
	return limit, ok
}

func (c *Config) agentMonthlyLimit(agentType string) (float64, bool) {
	limit, ok := c.AgentMonthlyLimitsUSD[agentType]
	return limit, ok
}
