package pipeline

import (
	"time"

	"github.com/compresr/agent-pipeline/budget"
	"github.com/compresr/agent-pipeline/provider"
)

// callContext is the mutable per-invocation state threaded through the
// stages. Output and failure are mutually exclusive: exactly one is set by
// the time the pipeline terminates. Never shared across calls, never
// persisted.
type callContext struct {
	agent   Agent
	request *provider.Request

	tenantID       string
	budgetOverride *budget.TenantOverride
	budgetConfig   budget.Config

	skipCache   bool
	fingerprint string

	startedAt    time.Time
	totalCostUSD float64

	output   *provider.Response
	failure  error
	cacheHit bool
	model    string
}

func newCallContext(agent Agent, req *provider.Request, startedAt time.Time) *callContext {
	return &callContext{
		agent:     agent,
		request:   req,
		startedAt: startedAt,
		model:     agent.Model,
	}
}
