// Package config - defaults.go centralizes default values.
//
// DESIGN: Defaults that appear in multiple places are defined here once so
// they stay auditable.
package config

import "time"

// =============================================================================
// KEY NAMESPACE
// =============================================================================

// DefaultNamespace prefixes every counter, cache, and marker key.
const DefaultNamespace = "agents"

// =============================================================================
// CACHE
// =============================================================================

// DefaultCacheTTL applies to agents that enable caching without a TTL.
const DefaultCacheTTL = 1 * time.Hour

// =============================================================================
// RELIABILITY
// =============================================================================

// DefaultMaxRetries per model, after the initial attempt.
const DefaultMaxRetries = 2

// DefaultBaseDelay for retry backoff.
const DefaultBaseDelay = 400 * time.Millisecond

// DefaultMaxDelay caps exponential backoff.
const DefaultMaxDelay = 3 * time.Second

// DefaultBreakerErrors is the failure count that opens a circuit.
const DefaultBreakerErrors = 5

// DefaultBreakerWithin is the sliding failure window.
const DefaultBreakerWithin = 1 * time.Minute

// DefaultBreakerCooldown before an open circuit allows a trial request.
const DefaultBreakerCooldown = 30 * time.Second

// =============================================================================
// RECORDING
// =============================================================================

// DefaultAsyncBuffer bounds in-flight execution records in async mode.
const DefaultAsyncBuffer = 256
