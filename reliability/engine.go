package reliability

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/compresr/agent-pipeline/provider"
)

// ErrDeadlineExhausted is returned when the engine's overall timeout expires
// before any attempt produced an error worth surfacing.
var ErrDeadlineExhausted = errors.New("reliability: overall timeout exhausted")

// EngineConfig tunes an Engine.
type EngineConfig struct {
	Retry RetryPolicy

	// NonFallbackErrors propagate immediately without trying further
	// models. Matched via errors.Is. Validation-class failures belong
	// here: a malformed request fails identically on every model in the
	// chain.
	NonFallbackErrors []error

	// Timeout bounds the entire retry+fallback sequence. Advisory: it is
	// checked between attempts, never preempting an in-flight request.
	// The provider client's own request timeout is the hard stop.
	Timeout time.Duration
}

// Engine orchestrates retries, the model fallback chain, and the breaker
// for a single agent invocation.
type Engine struct {
	cfg     EngineConfig
	breaker *CircuitBreaker
	log     zerolog.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBreaker gates each model attempt through the breaker.
func WithBreaker(b *CircuitBreaker) EngineOption {
	return func(e *Engine) { e.breaker = b }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithEngineClock overrides the time source.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithSleep overrides the backoff sleep (tests run without waiting).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = sleep }
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg: cfg,
		log: zerolog.Nop(),
		now: time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InvokeFunc performs one attempt against a specific model.
type InvokeFunc func(ctx context.Context, model string) (*provider.Response, error)

// Invoke tries the primary model and then each fallback in order. Within a
// model, retryable errors are retried per the policy with backoff; a
// non-retryable error (or retry exhaustion) moves to the next model. An
// open breaker skips a model without sending a request. When the whole
// chain is exhausted the last error propagates with its original type.
func (e *Engine) Invoke(ctx context.Context, agentKey, primary string, fallbacks []string, fn InvokeFunc) (*provider.Response, error) {
	models := append([]string{primary}, fallbacks...)

	var deadline time.Time
	if e.cfg.Timeout > 0 {
		deadline = e.now().Add(e.cfg.Timeout)
	}

	var lastErr error
	for _, model := range models {
		if e.deadlinePassed(deadline) {
			break
		}

		breakerKey := agentKey + ":" + model
		resp, err := e.tryModel(ctx, breakerKey, model, deadline, fn)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if e.isNonFallback(err) {
			return nil, err
		}
		var openErr *CircuitOpenError
		if errors.As(err, &openErr) {
			e.log.Debug().Str("model", model).Msg("reliability: circuit open, skipping model")
			continue
		}
		e.log.Debug().Err(err).Str("model", model).Msg("reliability: model exhausted, falling back")
	}

	if lastErr == nil {
		lastErr = ErrDeadlineExhausted
	}
	return nil, lastErr
}

// tryModel runs the initial attempt plus retries for one model. The breaker
// gates every attempt, not just entry to the model: a circuit opened by this
// call's own failures stops the remaining retries without sending them.
func (e *Engine) tryModel(ctx context.Context, breakerKey, model string, deadline time.Time, fn InvokeFunc) (*provider.Response, error) {
	for attempt := 0; ; attempt++ {
		if e.breaker != nil && !e.breaker.Allow(breakerKey) {
			return nil, &CircuitOpenError{Key: breakerKey}
		}
		resp, err := fn(ctx, model)
		if err == nil {
			if e.breaker != nil {
				e.breaker.RecordSuccess(breakerKey)
			}
			return resp, nil
		}
		if e.breaker != nil {
			e.breaker.RecordFailure(breakerKey)
		}

		if e.isNonFallback(err) || !e.cfg.Retry.IsRetryable(err) || !e.cfg.Retry.ShouldRetry(attempt) {
			return nil, err
		}
		if e.deadlinePassed(deadline) {
			return nil, err
		}
		if sleepErr := e.sleep(ctx, e.cfg.Retry.DelayFor(attempt)); sleepErr != nil {
			return nil, err
		}
	}
}

func (e *Engine) deadlinePassed(deadline time.Time) bool {
	return !deadline.IsZero() && !e.now().Before(deadline)
}

func (e *Engine) isNonFallback(err error) bool {
	for _, sentinel := range e.cfg.NonFallbackErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
