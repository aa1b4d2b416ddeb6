// Package budget implements multi-tenant spend accounting and enforcement.
//
// DESIGN: Counters live in a shared KV store under calendar-keyed names, so
// period rollover is a new key rather than a reset. Recording and checking
// are deliberately not transactional: two concurrent calls can both pass a
// check that would have failed had they been serialized. Hard enforcement
// narrows that window, it does not close it.
package budget

import "time"

// Scope selects which counter family a query targets.
type Scope string

const (
	// ScopeGlobal aggregates across all agents of a tenant.
	ScopeGlobal Scope = "global"
	// ScopeAgent tracks a single agent type within a tenant.
	ScopeAgent Scope = "agent"
)

// Period is an accounting window keyed by calendar date or month.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// Dimension names what a counter measures.
type Dimension string

const (
	DimensionCost       Dimension = "cost"
	DimensionTokens     Dimension = "tokens"
	DimensionExecutions Dimension = "executions"
)

const (
	dailyTTL   = 24 * time.Hour
	monthlyTTL = 31 * 24 * time.Hour

	// alertMarkerTTL bounds how often a repeated breach may re-alert.
	alertMarkerTTL = time.Hour
)

func ttlFor(p Period) time.Duration {
	if p == PeriodMonthly {
		return monthlyTTL
	}
	return dailyTTL
}

// datePart keys a counter to its calendar window. A new day or month
// produces a new key, which reads as a zero-valued counter.
func datePart(p Period, now time.Time) string {
	if p == PeriodMonthly {
		return now.Format("2006-01")
	}
	return now.Format("2006-01-02")
}

func tenantPart(tenantID string) string {
	if tenantID == "" {
		return "global"
	}
	return "tenant:" + tenantID
}

// costKey: <ns>:budget:<tenantPart>[:agent:<name>]:<datePart>
func costKey(ns, tenantID, agentType string, p Period, now time.Time) string {
	key := ns + ":budget:" + tenantPart(tenantID)
	if agentType != "" {
		key += ":agent:" + agentType
	}
	return key + ":" + datePart(p, now)
}

// tokenKey: <ns>:tokens:<tenantPart>:<datePart> (tokens are never per-agent)
func tokenKey(ns, tenantID string, p Period, now time.Time) string {
	return ns + ":tokens:" + tenantPart(tenantID) + ":" + datePart(p, now)
}

// execKey: <ns>:execs:<tenantPart>:<datePart>
func execKey(ns, tenantID string, p Period, now time.Time) string {
	return ns + ":execs:" + tenantPart(tenantID) + ":" + datePart(p, now)
}

// alertMarkerKey dedupes alerts per (kind, scope, tenant, calendar day).
func alertMarkerKey(ns, kind string, scope Scope, tenantID string, now time.Time) string {
	return ns + ":alerted:" + kind + ":" + string(scope) + ":" + tenantPart(tenantID) + ":" + now.Format("2006-01-02")
}
