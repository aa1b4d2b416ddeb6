package reliability

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// CircuitOpenError is the synthetic failure returned when a breaker denies
// a request. The engine treats it as an immediate fallback signal: no retry
// is consumed and no request is sent.
type CircuitOpenError struct {
	Key string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("reliability: circuit open for %s", e.Key)
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// Errors is the failure count within Within that opens the circuit.
	Errors int
	// Within is the sliding window over which failures accumulate.
	Within time.Duration
	// Cooldown is how long an open circuit denies requests before
	// allowing a half-open trial.
	Cooldown time.Duration
}

// DefaultBreakerConfig opens after 5 failures in 60s and cools down for 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Errors: 5, Within: time.Minute, Cooldown: 30 * time.Second}
}

type breakerPhase int

const (
	phaseClosed breakerPhase = iota
	phaseOpen
	phaseHalfOpen
)

type breakerState struct {
	phase    breakerPhase
	failures []time.Time
	openedAt time.Time
	// trialGranted marks that the single half-open trial has been handed
	// out and no further request may pass until it resolves.
	trialGranted bool
}

// CircuitBreaker is a per-key failure-rate gate. State is per-process: each
// process learns about a failing target from its own traffic.
type CircuitBreaker struct {
	cfg    BreakerConfig
	mu     sync.Mutex
	states map[string]*breakerState
	now    func() time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock overrides the time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) { b.now = now }
}

// NewCircuitBreaker creates a breaker with the given thresholds.
func NewCircuitBreaker(cfg BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	if cfg.Errors <= 0 {
		cfg.Errors = DefaultBreakerConfig().Errors
	}
	if cfg.Within <= 0 {
		cfg.Within = DefaultBreakerConfig().Within
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}

	b := &CircuitBreaker{
		cfg:    cfg,
		states: make(map[string]*breakerState),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CircuitBreaker) stateLocked(key string) *breakerState {
	s, ok := b.states[key]
	if !ok {
		s = &breakerState{}
		b.states[key] = s
	}
	return s
}

// Allow reports whether a request to key may proceed. An open circuit
// transitions to half-open once the cooldown elapses and grants exactly one
// trial request; further requests are denied until the trial resolves.
func (b *CircuitBreaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stateLocked(key)
	switch s.phase {
	case phaseClosed:
		return true
	case phaseOpen:
		if b.now().Sub(s.openedAt) < b.cfg.Cooldown {
			return false
		}
		s.phase = phaseHalfOpen
		s.trialGranted = true
		return true
	case phaseHalfOpen:
		if s.trialGranted {
			return false
		}
		s.trialGranted = true
		return true
	}
	return true
}

// RecordSuccess notes a successful request. A half-open trial success closes
// the circuit and resets counters.
func (b *CircuitBreaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stateLocked(key)
	if s.phase == phaseHalfOpen {
		*s = breakerState{}
		return
	}
	// Successes do not clear the window in closed state: the threshold is
	// a failure count within the window, not a failure rate.
}

// RecordFailure notes a failed request. Failures older than the window are
// dropped before evaluating the threshold. A half-open trial failure reopens
// the circuit and restarts the cooldown.
func (b *CircuitBreaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	s := b.stateLocked(key)

	if s.phase == phaseHalfOpen {
		s.phase = phaseOpen
		s.openedAt = now
		s.trialGranted = false
		s.failures = nil
		return
	}
	if s.phase == phaseOpen {
		return
	}

	s.failures = append(s.failures, now)
	s.failures = lo.Filter(s.failures, func(t time.Time, _ int) bool {
		return now.Sub(t) <= b.cfg.Within
	})

	if len(s.failures) >= b.cfg.Errors {
		s.phase = phaseOpen
		s.openedAt = now
		s.failures = nil
	}
}
