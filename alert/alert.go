// Package alert delivers budget cap notifications.
//
// DESIGN: The budget subsystem emits at most one event per (kind, scope,
// tenant, day); deduplication lives there, not here. Sinks only deliver.
package alert

import (
	"context"
	"time"
)

// Kind classifies a budget event.
type Kind string

const (
	// KindSoftCap is emitted when a limit is crossed under soft enforcement.
	KindSoftCap Kind = "soft_cap"
	// KindHardCap is emitted when a limit is crossed under hard enforcement.
	KindHardCap Kind = "hard_cap"
)

// Event describes a budget limit crossing.
type Event struct {
	Kind      Kind      `json:"kind"`
	Scope     string    `json:"scope"`  // "global" or "agent"
	Period    string    `json:"period"` // "daily" or "monthly"
	Dimension string    `json:"dimension"` // "cost", "tokens", or "executions"
	TenantID  string    `json:"tenant_id,omitempty"`
	AgentType string    `json:"agent_type,omitempty"`
	Limit     float64   `json:"limit"`
	Current   float64   `json:"current"`
	At        time.Time `json:"at"`
}

// Sink receives budget events. Implementations must be safe for concurrent
// use and must not block the calling invocation for long; delivery is
// best-effort.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event)

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Notify(ctx, ev)
	}
}

// Discard drops all events.
var Discard = SinkFunc(func(context.Context, Event) {})
