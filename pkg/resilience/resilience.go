// Package resilience provides the retry and circuit-breaker middleware that
// sits between the messaging contract and every backend adapter.
//
// This package includes:
//   - Backoff: exponential/linear/constant/fibonacci delay strategies with jitter
//   - Retry: bounded-attempt executor with cancellation support
//   - CircuitBreaker: three-state breaker with a rolling failure window
package resilience

import (
	"context"
	"time"
)

// State represents the current state of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Strategy selects a backoff delay formula.
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyConstant    Strategy = "constant"
	StrategyFibonacci   Strategy = "fibonacci"
)

// Executor represents an operation retried/breaker-protected by this package.
type Executor func(ctx context.Context) error

// RetryConfig configures the retry engine.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt; total
	// attempts made is MaxRetries+1.
	MaxRetries int

	// Strategy selects the backoff formula. Defaults to StrategyExponential.
	Strategy Strategy

	// InitialDelay is the delay used at attempt n=1.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay regardless of strategy.
	MaxDelay time.Duration

	// Multiplier is the exponential base / linear step in milliseconds,
	// depending on Strategy.
	Multiplier float64

	// Jitter enables +/- JitterFactor randomization of the computed delay.
	Jitter bool

	// JitterFactor is the jitter half-width as a fraction of the delay (default 0.25).
	JitterFactor float64

	// RetryableErrors, if non-empty, is a case-insensitive substring
	// allow-list: only errors whose message contains one of these patterns
	// are retried, overriding the default predicate entirely.
	RetryableErrors []string

	// RetryIf overrides the default retryability predicate.
	RetryIf func(error) bool

	// OnRetry is invoked before each sleep with the attempt about to run
	// next (2, 3, ...), the configured max attempt count, the computed
	// delay, and the error that triggered the retry.
	OnRetry func(attempt, maxAttempts int, delay time.Duration, lastErr error)
}

// DefaultRetryConfig returns the spec defaults: 3 retries, 100ms initial
// delay, 10s cap, 2x exponential multiplier, jitter enabled.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		Strategy:     StrategyExponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Jitter:       true,
		JitterFactor: 0.25,
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this breaker in logs/metrics.
	Name string

	// Enabled gates the breaker; when false, Execute always delegates to the operation.
	Enabled bool

	// FailureThreshold is the failure count within FailureWindow that opens the circuit.
	FailureThreshold int

	// FailureWindow bounds how far back failures are counted.
	FailureWindow time.Duration

	// ResetTimeout is how long the circuit stays open before probing half-open.
	ResetTimeout time.Duration

	// SuccessThreshold is the half-open successes required to close the circuit.
	SuccessThreshold int

	// OnStateChange is called (in a new goroutine) whenever the state transitions.
	OnStateChange func(name string, from, to State)
}

// DefaultCircuitBreakerConfig returns the spec defaults: disabled,
// threshold 5 within a 60s window, 30s reset timeout, 2 half-open successes.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		Enabled:          false,
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}
