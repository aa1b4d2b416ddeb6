// Package reliability wraps provider calls with retries, model fallback
// chains, and per-agent circuit breaking.
//
// DESIGN: Retry eligibility and backoff are pure functions of the policy and
// the attempt index (plus jitter), so they can be tested without sleeping.
// The Engine owns the loop: retry within a model, then fall back to the next
// model in the chain.
package reliability

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/compresr/agent-pipeline/provider"
)

// Backoff selects how the retry delay grows across attempts.
type Backoff string

const (
	BackoffConstant    Backoff = "constant"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy computes retry eligibility and backoff for one attempt
// sequence. The zero value never retries.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int

	Backoff   Backoff
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// RetryableErrors extends the default retryable set with caller
	// sentinels, matched via errors.Is.
	RetryableErrors []error

	// RetryableMatch extends the default retryable set with extra
	// case-insensitive message substrings.
	RetryableMatch []string
}

// DefaultRetryPolicy matches typical provider guidance: a few exponential
// retries capped at a modest delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		Backoff:     BackoffExponential,
		BaseDelay:   400 * time.Millisecond,
		MaxDelay:    3 * time.Second,
	}
}

// ShouldRetry reports whether another retry may follow attempt (zero-based
// count of retries already made).
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// DelayFor computes the backoff before retry attempt (zero-based). The base
// delay is constant or exponential per the policy, capped at MaxDelay, then
// perturbed upward by uniform jitter in [0%, 50%] of itself so synchronized
// clients don't retry in lockstep.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	if p.Backoff == BackoffExponential {
		for i := 0; i < attempt; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				break
			}
		}
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	jitter := time.Duration(rand.Float64() * 0.5 * float64(delay))
	return delay + jitter
}

// defaultRetryableSubstrings are matched case-insensitively against error
// messages from providers that don't surface structured status codes.
var defaultRetryableSubstrings = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"timeout",
	"timed out",
	"overloaded",
	"temporarily unavailable",
	"connection reset",
	"bad gateway",
	"service unavailable",
}

// retryableStatuses are HTTP statuses worth retrying.
var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	529: true, // Anthropic "overloaded"
}

// IsRetryable reports whether an error is transient enough to retry: the
// default set (rate limit, timeout, 5xx, overloaded — by type or by message
// substring) plus the policy's extra sentinels and substrings. A canceled
// context is never retryable; a deadline that expired may succeed next time.
func (p RetryPolicy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var provErr *provider.Error
	if errors.As(err, &provErr) {
		if retryableStatuses[provErr.Status] {
			return true
		}
		if provErr.Code == "timeout" || provErr.Code == "rate_limit" || provErr.Code == "overloaded" {
			return true
		}
	}

	for _, sentinel := range p.RetryableErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, substr := range defaultRetryableSubstrings {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	for _, substr := range p.RetryableMatch {
		if substr != "" && strings.Contains(msg, strings.ToLower(substr)) {
			return true
		}
	}

	return false
}
