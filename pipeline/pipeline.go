// Package pipeline runs agent invocations through the ordered middleware
// chain: resolve tenant, check budget, check cache, invoke the provider
// under the reliability engine, record spend and execution, write cache.
//
// DESIGN: Each stage may short-circuit the rest. The per-call Context is
// owned exclusively by its invocation and discarded once the result is
// extracted; the only state shared between concurrent calls lives in the KV
// store and the breaker.
package pipeline

import (
	"fmt"
	"time"

	"github.com/compresr/agent-pipeline/cache"
	"github.com/compresr/agent-pipeline/provider"
)

// Agent is the immutable configuration of a registered agent type. Built
// once at registration, never mutated per call.
type Agent struct {
	// Name identifies the agent type in budgets, records, and cache keys.
	Name string
	// Version participates in the cache fingerprint: bumping it after a
	// prompt change invalidates stale cached responses.
	Version string

	Type provider.ExecutionType

	// Model is the primary model; FallbackModels are tried in order when
	// the primary is exhausted.
	Model          string
	FallbackModels []string

	CacheEnabled bool
	CacheTTL     time.Duration
	CacheKey     cache.KeySpec
}

// Validate rejects unusable agent configurations.
func (a *Agent) Validate() error {
	if a.Name == "" {
		return &ValidationError{Msg: "agent name is required"}
	}
	if a.Model == "" {
		return &ValidationError{Msg: fmt.Sprintf("agent %s: model is required", a.Name)}
	}
	switch a.Type {
	case provider.TypeChat, provider.TypeImage, provider.TypeAudio, provider.TypeTranscription:
	default:
		return &ValidationError{Msg: fmt.Sprintf("agent %s: unknown execution type %q", a.Name, a.Type)}
	}
	if err := a.CacheKey.Validate(); err != nil {
		return &ValidationError{Msg: err.Error()}
	}
	return nil
}

// ValidationError reports malformed input to the pipeline. It is never
// retried and never triggers fallback.
type ValidationError struct {
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "pipeline: " + e.Msg
}

// Result is what a completed invocation returns to the caller.
type Result struct {
	// Output is the primary content of the response.
	Output string
	// Response is the full provider response (reconstructed from the
	// cache on a hit).
	Response *provider.Response
	// Model is the model that actually served the call; on fallback it
	// differs from the agent's primary model.
	Model    string
	CacheHit bool
	CostUSD  float64
	Duration time.Duration
}
