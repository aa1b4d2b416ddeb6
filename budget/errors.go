package budget

import "fmt"

// ExceededError reports a hard-enforcement budget rejection. It names the
// breached dimension so callers can surface "budget exceeded" messaging
// distinctly from a provider outage.
type ExceededError struct {
	Scope     Scope
	Period    Period
	Dimension Dimension
	TenantID  string
	AgentType string
	Limit     float64
	Current   float64
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	target := tenantPart(e.TenantID)
	if e.Scope == ScopeAgent {
		target += " agent " + e.AgentType
	}
	return fmt.Sprintf("budget: %s %s %s limit exceeded for %s: %.4f of %.4f",
		e.Period, e.Scope, e.Dimension, target, e.Current, e.Limit)
}
