// Package record builds and persists execution history.
//
// DESIGN: History is observability, not control flow. A failed write is
// logged and swallowed; it must never fail the user-facing call. Records are
// append-mostly: built once per terminal call and never mutated afterwards.
package record

import (
	"time"

	"github.com/compresr/agent-pipeline/provider"
)

// Status is the terminal state of an execution.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Record is one execution history entry.
type Record struct {
	ID            string                 `json:"id"`
	AgentType     string                 `json:"agent_type"`
	ExecutionType provider.ExecutionType `json:"execution_type"`
	Model         string                 `json:"model"`
	Status        Status                 `json:"status"`

	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`

	DurationMs  int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	TenantID string `json:"tenant_id,omitempty"`
	CacheHit bool   `json:"cache_hit"`

	ErrorClass   string `json:"error_class,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Metadata is an opaque JSON object attached by the pipeline.
	Metadata string `json:"metadata,omitempty"`
}

// Filters narrows a stats query.
type Filters struct {
	TenantID string
	Since    time.Time
	Until    time.Time
}

// Stats is the aggregate view over matching records.
type Stats struct {
	Count         int64   `json:"count"`
	SuccessCount  int64   `json:"success_count"`
	ErrorCount    int64   `json:"error_count"`
	CacheHits     int64   `json:"cache_hits"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	TotalCostUSD  float64 `json:"total_cost_usd"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
