// Package store defines the key-value store backing spend counters, cached
// responses, and alert dedup markers.
//
// DESIGN: This store is the only mutable state shared across concurrent
// invocations. Two implementations ship: Redis, whose Increment is an atomic
// server-side INCRBYFLOAT, and Memory, a process-local store whose Increment
// is serialized by a mutex and therefore only safe within a single process.
// Multi-process deployments must use Redis; there is no in-process layer on
// top of it.
package store

import (
	"context"
	"time"
)

// KV is the store contract the pipeline depends on.
//
// TTL semantics: a TTL passed to Write replaces any existing expiry. A TTL
// passed to Increment applies only when the increment creates the key, so
// repeated increments never extend a counter's window.
type KV interface {
	// Read returns the value at key. ok is false when the key is absent
	// or expired.
	Read(ctx context.Context, key string) (value string, ok bool, err error)

	// Write stores value at key with the given TTL. Zero TTL means no expiry.
	Write(ctx context.Context, key, value string, ttl time.Duration) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds amount to the numeric value at key and
	// returns the new total. A missing key counts as zero.
	Increment(ctx context.Context, key string, amount float64, ttl time.Duration) (float64, error)

	// SetNX writes value only if key is absent, returning whether the
	// write happened. Used for once-per-window markers.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
