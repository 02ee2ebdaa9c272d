package resilience

import (
	"container/list"
	"context"
	"time"

	apperrors "github.com/sns45/anyq/pkg/errors"

	"github.com/sns45/anyq/pkg/concurrency"
)

// CircuitBreaker is a three-state breaker guarding a single protected
// operation. Unlike a consecutive-failure counter, it trips on the count of
// failures observed within a trailing FailureWindow: a single old failure
// that falls outside the window no longer counts against the threshold.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu              *concurrency.SmartRWMutex
	state           State
	failures        *list.List // of time.Time, oldest first
	halfOpenOK      int
	openedAt        time.Time
	halfOpenInFly   bool
	lastFailureTime time.Time
	totalRequests   int64
	totalFailures   int64
}

// NewCircuitBreaker constructs a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 60 * time.Second
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	return &CircuitBreaker{
		cfg:     cfg,
		mu:      concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "circuitbreaker:" + cfg.Name}),
		state:   StateClosed,
		failures: list.New(),
	}
}

// Execute runs fn under circuit breaker protection. If the circuit is open
// (and the reset timeout has not yet elapsed) fn is never invoked and
// CircuitOpenError is returned directly.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn Executor) error {
	if !cb.cfg.Enabled {
		return fn(ctx)
	}

	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenInFly = true
			return nil
		}
		return apperrors.CircuitOpenError()
	case StateHalfOpen:
		if cb.halfOpenInFly {
			return apperrors.CircuitOpenError()
		}
		cb.halfOpenInFly = true
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	if !success {
		cb.totalFailures++
		cb.lastFailureTime = time.Now()
	}

	switch cb.state {
	case StateClosed:
		if success {
			cb.pruneFailures(time.Now())
			return
		}
		now := time.Now()
		cb.failures.PushBack(now)
		cb.pruneFailures(now)
		if cb.failures.Len() >= cb.cfg.FailureThreshold {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.halfOpenInFly = false
		if success {
			cb.halfOpenOK++
			if cb.halfOpenOK >= cb.cfg.SuccessThreshold {
				cb.setState(StateClosed)
			}
		} else {
			cb.setState(StateOpen)
		}
	}
}

// pruneFailures drops failure timestamps that have aged out of the window.
func (cb *CircuitBreaker) pruneFailures(now time.Time) {
	for e := cb.failures.Front(); e != nil; {
		next := e.Next()
		if now.Sub(e.Value.(time.Time)) > cb.cfg.FailureWindow {
			cb.failures.Remove(e)
		}
		e = next
	}
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state
	cb.failures.Init()
	cb.halfOpenOK = 0
	cb.halfOpenInFly = false

	if state == StateOpen {
		cb.openedAt = time.Now()
	}

	if cb.cfg.OnStateChange != nil {
		name := cb.cfg.Name
		onChange := cb.cfg.OnStateChange
		go onChange(name, from, state)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the breaker's configured name.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// CircuitBreakerMetrics is a point-in-time snapshot of breaker state.
type CircuitBreakerMetrics struct {
	Name              string
	State             State
	FailuresInWindow  int
	HalfOpenSuccesses int
	LastFailureTime   time.Time
	TotalRequests     int64
	TotalFailures     int64
}

// Metrics returns a snapshot of the breaker's current counters.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitBreakerMetrics{
		Name:              cb.cfg.Name,
		State:             cb.state,
		FailuresInWindow:  cb.failures.Len(),
		HalfOpenSuccesses: cb.halfOpenOK,
		LastFailureTime:   cb.lastFailureTime,
		TotalRequests:     cb.totalRequests,
		TotalFailures:     cb.totalFailures,
	}
}

// Trip forces the breaker open regardless of its observed failure history.
func (cb *CircuitBreaker) Trip() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateOpen)
}

// Reset forces the breaker closed and clears its failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
