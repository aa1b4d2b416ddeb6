package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/agent-pipeline/provider"
)

// countingInvoker scripts per-model behavior and counts attempts.
type countingInvoker struct {
	mu       sync.Mutex
	attempts map[string]int
	behavior map[string]func(attempt int) (*provider.Response, error)
}

func newCountingInvoker() *countingInvoker {
	return &countingInvoker{
		attempts: map[string]int{},
		behavior: map[string]func(int) (*provider.Response, error){},
	}
}

func (c *countingInvoker) invoke(_ context.Context, model string) (*provider.Response, error) {
	c.mu.Lock()
	c.attempts[model]++
	n := c.attempts[model]
	fn := c.behavior[model]
	c.mu.Unlock()

	if fn == nil {
		return &provider.Response{Content: "ok", Model: model}, nil
	}
	return fn(n)
}

func (c *countingInvoker) count(model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[model]
}

func alwaysFail(err error) func(int) (*provider.Response, error) {
	return func(int) (*provider.Response, error) { return nil, err }
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestEngine(cfg EngineConfig, opts ...EngineOption) *Engine {
	opts = append(opts, WithSleep(noSleep))
	return NewEngine(cfg, opts...)
}

func TestEngine_SuccessFirstTry(t *testing.T) {
	inv := newCountingInvoker()
	e := newTestEngine(EngineConfig{Retry: RetryPolicy{MaxAttempts: 2}})

	resp, err := e.Invoke(context.Background(), "summarizer", "gpt-x", nil, inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 1, inv.count("gpt-x"))
}

// TestEngine_RetryableThenFallback is scenario: the primary rate-limits on
// every attempt (1 initial + 2 retries) and the first fallback succeeds.
func TestEngine_RetryableThenFallback(t *testing.T) {
	inv := newCountingInvoker()
	inv.behavior["gpt-x"] = alwaysFail(provider.RateLimitError("slow down"))

	e := newTestEngine(EngineConfig{Retry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}})

	resp, err := e.Invoke(context.Background(), "summarizer", "gpt-x", []string{"gpt-y"}, inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, "gpt-y", resp.Model)
	assert.Equal(t, 3, inv.count("gpt-x"), "1 initial + 2 retries")
	assert.Equal(t, 1, inv.count("gpt-y"))
}

// TestEngine_FallbackOrder verifies the chain is tried strictly in order
// and the primary is never revisited after moving on.
func TestEngine_FallbackOrder(t *testing.T) {
	inv := newCountingInvoker()
	inv.behavior["primary"] = alwaysFail(&provider.Error{Status: 400, Message: "bad request"})
	inv.behavior["fb-1"] = alwaysFail(&provider.Error{Status: 400, Message: "bad request"})

	e := newTestEngine(EngineConfig{Retry: RetryPolicy{MaxAttempts: 2}})

	resp, err := e.Invoke(context.Background(), "a", "primary", []string{"fb-1", "fb-2"}, inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, "fb-2", resp.Model)
	assert.Equal(t, 1, inv.count("primary"), "non-retryable consumes a single attempt")
	assert.Equal(t, 1, inv.count("fb-1"))
	assert.Equal(t, 1, inv.count("fb-2"))
}

func TestEngine_ExhaustedReturnsLastError(t *testing.T) {
	lastErr := &provider.Error{Status: 503, Message: "unavailable"}
	inv := newCountingInvoker()
	inv.behavior["gpt-x"] = alwaysFail(provider.RateLimitError("nope"))
	inv.behavior["gpt-y"] = alwaysFail(lastErr)

	e := newTestEngine(EngineConfig{Retry: RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond}})

	_, err := e.Invoke(context.Background(), "a", "gpt-x", []string{"gpt-y"}, inv.invoke)
	require.Error(t, err)

	var provErr *provider.Error
	require.ErrorAs(t, err, &provErr, "original error type preserved")
	assert.Equal(t, 503, provErr.Status)
}

func TestEngine_NonFallbackPropagatesImmediately(t *testing.T) {
	sentinel := errors.New("invalid prompt")
	inv := newCountingInvoker()
	inv.behavior["gpt-x"] = alwaysFail(sentinel)

	e := newTestEngine(EngineConfig{
		Retry:             RetryPolicy{MaxAttempts: 2},
		NonFallbackErrors: []error{sentinel},
	})

	_, err := e.Invoke(context.Background(), "a", "gpt-x", []string{"gpt-y"}, inv.invoke)
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, inv.count("gpt-x"))
	assert.Equal(t, 0, inv.count("gpt-y"), "validation errors never trigger fallback")
}

func TestEngine_BreakerSkipsModelWithoutRequest(t *testing.T) {
	breaker := NewCircuitBreaker(BreakerConfig{Errors: 1, Within: time.Minute, Cooldown: time.Hour})
	breaker.RecordFailure("a:gpt-x")

	inv := newCountingInvoker()
	e := newTestEngine(EngineConfig{Retry: RetryPolicy{MaxAttempts: 2}}, WithBreaker(breaker))

	resp, err := e.Invoke(context.Background(), "a", "gpt-x", []string{"gpt-y"}, inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, "gpt-y", resp.Model)
	assert.Equal(t, 0, inv.count("gpt-x"), "open breaker skips the model entirely")
}

func TestEngine_BreakerOnlyOpenChainFails(t *testing.T) {
	breaker := NewCircuitBreaker(BreakerConfig{Errors: 1, Within: time.Minute, Cooldown: time.Hour})
	breaker.RecordFailure("a:gpt-x")

	inv := newCountingInvoker()
	e := newTestEngine(EngineConfig{Retry: RetryPolicy{MaxAttempts: 2}}, WithBreaker(breaker))

	_, err := e.Invoke(context.Background(), "a", "gpt-x", nil, inv.invoke)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
}

// TestEngine_BreakerStopsRetriesMidModel covers the circuit opening from
// this call's own failures: once the threshold is hit the remaining retries
// must not reach the provider, and the engine moves to the fallback.
func TestEngine_BreakerStopsRetriesMidModel(t *testing.T) {
	breaker := NewCircuitBreaker(BreakerConfig{Errors: 2, Within: time.Minute, Cooldown: time.Hour})

	inv := newCountingInvoker()
	inv.behavior["gpt-x"] = alwaysFail(provider.RateLimitError("slow down"))

	e := newTestEngine(EngineConfig{
		Retry: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond},
	}, WithBreaker(breaker))

	resp, err := e.Invoke(context.Background(), "a", "gpt-x", []string{"gpt-y"}, inv.invoke)
	require.NoError(t, err)
	assert.Equal(t, "gpt-y", resp.Model)
	assert.Equal(t, 2, inv.count("gpt-x"), "no request may be sent while the circuit is open")
	assert.Equal(t, 1, inv.count("gpt-y"))
}

func TestEngine_BreakerStopsRetriesMidModelNoFallback(t *testing.T) {
	breaker := NewCircuitBreaker(BreakerConfig{Errors: 2, Within: time.Minute, Cooldown: time.Hour})

	inv := newCountingInvoker()
	inv.behavior["gpt-x"] = alwaysFail(provider.RateLimitError("slow down"))

	e := newTestEngine(EngineConfig{
		Retry: RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond},
	}, WithBreaker(breaker))

	_, err := e.Invoke(context.Background(), "a", "gpt-x", nil, inv.invoke)
	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 2, inv.count("gpt-x"))
}

func TestEngine_OverallTimeoutBoundsSequence(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}

	inv := newCountingInvoker()
	inv.behavior["gpt-x"] = func(int) (*provider.Response, error) {
		// Each attempt burns 10s of wall clock.
		clock.Advance(10 * time.Second)
		return nil, provider.RateLimitError("slow down")
	}

	e := newTestEngine(EngineConfig{
		Retry:   RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond},
		Timeout: 15 * time.Second,
	}, WithEngineClock(clock.Now))

	_, err := e.Invoke(context.Background(), "a", "gpt-x", []string{"gpt-y"}, inv.invoke)
	require.Error(t, err)
	assert.Equal(t, 2, inv.count("gpt-x"), "deadline checked between attempts")
	assert.Equal(t, 0, inv.count("gpt-y"), "no fallback once the budget is spent")
}
