package budget

import (
	"context"
	"math"
	"time"
)

// Forecast projects month-end spend from the current trajectory.
type Forecast struct {
	SpendToDate    float64 `json:"spend_to_date"`
	ProjectedSpend float64 `json:"projected_spend"`
	DayOfMonth     int     `json:"day_of_month"`
	DaysInMonth    int     `json:"days_in_month"`
	// OverBudget is set when the projection exceeds the monthly cost
	// limit. Always false when no monthly limit is configured.
	OverBudget bool `json:"over_budget"`
}

// Forecaster projects a tenant's month-end spend.
type Forecaster interface {
	Project(ctx context.Context, tenantID string, cfg Config) (*Forecast, error)
}

// LinearForecaster extrapolates month-to-date spend linearly across the
// remaining days of the month. Crude, but monotone with actual spend and
// cheap enough to compute on every status call.
type LinearForecaster struct {
	query *Query
	now   func() time.Time
}

// NewLinearForecaster creates a forecaster over the given query.
func NewLinearForecaster(query *Query, opts ...ForecasterOption) *LinearForecaster {
	f := &LinearForecaster{query: query, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForecasterOption configures a LinearForecaster.
type ForecasterOption func(*LinearForecaster)

// WithForecasterClock overrides the time source.
func WithForecasterClock(now func() time.Time) ForecasterOption {
	return func(f *LinearForecaster) { f.now = now }
}

// Project implements Forecaster.
func (f *LinearForecaster) Project(ctx context.Context, tenantID string, cfg Config) (*Forecast, error) {
	spend, err := f.query.CurrentSpend(ctx, ScopeGlobal, PeriodMonthly, "", tenantID)
	if err != nil {
		return nil, err
	}

	now := f.now()
	day := now.Day()
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, now.Location()).Day()

	projected := spend
	if day > 0 {
		projected = spend / float64(day) * float64(daysInMonth)
	}
	projected = math.Round(projected*10000) / 10000

	forecast := &Forecast{
		SpendToDate:    spend,
		ProjectedSpend: projected,
		DayOfMonth:     day,
		DaysInMonth:    daysInMonth,
	}
	if cfg.MonthlyLimitUSD != nil && projected > *cfg.MonthlyLimitUSD {
		forecast.OverBudget = true
	}
	return forecast, nil
}
