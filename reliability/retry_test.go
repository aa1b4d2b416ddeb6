package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/compresr/agent-pipeline/provider"
)

func TestShouldRetry(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}

	assert.True(t, p.ShouldRetry(0))
	assert.True(t, p.ShouldRetry(1))
	assert.False(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))

	zero := RetryPolicy{}
	assert.False(t, zero.ShouldRetry(0))
}

func TestDelayFor_Constant(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffConstant,
		BaseDelay:   200 * time.Millisecond,
	}

	for attempt := 0; attempt < 5; attempt++ {
		d := p.DelayFor(attempt)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

// TestDelayFor_ExponentialBounds checks that for base=0.4s, max=3.0s the
// delay for attempt n stays within [0.4*2^n, 1.5*min(0.4*2^n, 3.0)].
func TestDelayFor_ExponentialBounds(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 10,
		Backoff:     BackoffExponential,
		BaseDelay:   400 * time.Millisecond,
		MaxDelay:    3 * time.Second,
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("jittered delay stays within bounds", prop.ForAll(
		func(attempt int) bool {
			base := 400 * time.Millisecond
			for i := 0; i < attempt; i++ {
				base *= 2
			}
			if base > 3*time.Second {
				base = 3 * time.Second
			}

			d := p.DelayFor(attempt)
			return d >= base && d <= base+base/2
		},
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestDelayFor_ExponentialNoMaxDelay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffExponential,
		BaseDelay:   100 * time.Millisecond,
	}

	d := p.DelayFor(3)
	assert.GreaterOrEqual(t, d, 800*time.Millisecond)
	assert.LessOrEqual(t, d, 1200*time.Millisecond)
}

func TestIsRetryable_DefaultSet(t *testing.T) {
	p := RetryPolicy{}

	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"rate limit status", provider.RateLimitError("slow down"), true},
		{"overloaded status", provider.OverloadedError("busy"), true},
		{"timeout code", provider.TimeoutError("deadline"), true},
		{"500", &provider.Error{Status: 500, Message: "internal"}, true},
		{"502", &provider.Error{Status: 502, Message: "bad gateway"}, true},
		{"503", &provider.Error{Status: 503, Message: "unavailable"}, true},
		{"400", &provider.Error{Status: 400, Message: "bad input"}, false},
		{"404", &provider.Error{Status: 404, Message: "no such model"}, false},
		{"message substring", errors.New("upstream Rate Limit reached"), true},
		{"overloaded substring", errors.New("model is OVERLOADED right now"), true},
		{"timed out substring", errors.New("request timed out"), true},
		{"plain error", errors.New("invalid api key"), false},
		{"canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, p.IsRetryable(tc.err))
		})
	}
}

func TestIsRetryable_CallerExtras(t *testing.T) {
	sentinel := errors.New("flaky backend")
	p := RetryPolicy{
		RetryableErrors: []error{sentinel},
		RetryableMatch:  []string{"quota churn"},
	}

	assert.True(t, p.IsRetryable(sentinel))
	assert.True(t, p.IsRetryable(errors.New("transient Quota Churn detected")))
	assert.False(t, p.IsRetryable(errors.New("permanent failure")))
}
