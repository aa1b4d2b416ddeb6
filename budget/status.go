package budget

import (
	"context"
	"math"
)

// DimensionStatus is one row of a status report. Only configured dimensions
// appear in a report; unlimited dimensions are omitted entirely.
type DimensionStatus struct {
	Scope       Scope     `json:"scope"`
	Period      Period    `json:"period"`
	Dimension   Dimension `json:"dimension"`
	AgentType   string    `json:"agent_type,omitempty"`
	Limit       float64   `json:"limit"`
	Current     float64   `json:"current"`
	Remaining   float64   `json:"remaining"`
	PercentUsed float64   `json:"percent_used"`
}

// StatusReport is a point-in-time budget snapshot for a tenant.
type StatusReport struct {
	TenantID   string            `json:"tenant_id,omitempty"`
	AgentType  string            `json:"agent_type,omitempty"`
	Dimensions []DimensionStatus `json:"dimensions"`
	Forecast   *Forecast         `json:"forecast,omitempty"`
}

// percentUsed rounds current/limit to two decimal places of percent.
func percentUsed(current, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(current/limit*100*100) / 100
}

// Status assembles the full report: global and per-agent cost dimensions,
// global token dimensions, execution counts, plus a month-end forecast when
// a Forecaster is supplied.
func (q *Query) Status(ctx context.Context, agentType, tenantID string, cfg Config, forecaster Forecaster) (*StatusReport, error) {
	report := &StatusReport{TenantID: tenantID, AgentType: agentType}

	addCost := func(scope Scope, period Period, agent string) error {
		limit, ok := costLimitFor(cfg, scope, period, agent)
		if !ok {
			return nil
		}
		current, err := q.CurrentSpend(ctx, scope, period, agent, tenantID)
		if err != nil {
			return err
		}
		report.Dimensions = append(report.Dimensions, DimensionStatus{
			Scope:       scope,
			Period:      period,
			Dimension:   DimensionCost,
			AgentType:   agent,
			Limit:       limit,
			Current:     current,
			Remaining:   math.Max(limit-current, 0),
			PercentUsed: percentUsed(current, limit),
		})
		return nil
	}

	for _, period := range []Period{PeriodDaily, PeriodMonthly} {
		if err := addCost(ScopeGlobal, period, ""); err != nil {
			return nil, err
		}
		if agentType != "" {
			if err := addCost(ScopeAgent, period, agentType); err != nil {
				return nil, err
			}
		}
	}

	addCount := func(period Period, dim Dimension, limit *int64, read func() (int64, error)) error {
		if limit == nil {
			return nil
		}
		current, err := read()
		if err != nil {
			return err
		}
		report.Dimensions = append(report.Dimensions, DimensionStatus{
			Scope:       ScopeGlobal,
			Period:      period,
			Dimension:   dim,
			Limit:       float64(*limit),
			Current:     float64(current),
			Remaining:   math.Max(float64(*limit-current), 0),
			PercentUsed: percentUsed(float64(current), float64(*limit)),
		})
		return nil
	}

	counts := []struct {
		period Period
		dim    Dimension
		limit  *int64
		read   func() (int64, error)
	}{
		{PeriodDaily, DimensionTokens, cfg.DailyTokenLimit, func() (int64, error) { return q.CurrentTokens(ctx, PeriodDaily, tenantID) }},
		{PeriodMonthly, DimensionTokens, cfg.MonthlyTokenLimit, func() (int64, error) { return q.CurrentTokens(ctx, PeriodMonthly, tenantID) }},
		{PeriodDaily, DimensionExecutions, cfg.DailyExecutionLimit, func() (int64, error) { return q.CurrentExecutions(ctx, PeriodDaily, tenantID) }},
		{PeriodMonthly, DimensionExecutions, cfg.MonthlyExecutionLimit, func() (int64, error) { return q.CurrentExecutions(ctx, PeriodMonthly, tenantID) }},
	}
	for _, c := range counts {
		if err := addCount(c.period, c.dim, c.limit, c.read); err != nil {
			return nil, err
		}
	}

	if forecaster != nil {
		forecast, err := forecaster.Project(ctx, tenantID, cfg)
		if err != nil {
			return nil, err
		}
		report.Forecast = forecast
	}

	return report, nil
}
