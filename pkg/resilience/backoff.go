package resilience

import (
	"math"
	"math/rand"
	"time"
)

// computeBackoff returns the delay before the given attempt (1-indexed: the
// delay before the *first* retry is attempt=1), per cfg.Strategy, capped at
// cfg.MaxDelay and randomized by cfg.JitterFactor when cfg.Jitter is set.
func computeBackoff(attempt int, cfg RetryConfig) time.Duration {
	initial := cfg.InitialDelay
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	var delay time.Duration
	switch cfg.Strategy {
	case StrategyLinear:
		// multiplier is reinterpreted as an additive step in milliseconds
		// here, not a ratio.
		delay = initial + time.Duration(multiplier*float64(time.Millisecond))*time.Duration(attempt-1)
	case StrategyConstant:
		delay = initial
	case StrategyFibonacci:
		delay = time.Duration(float64(initial) * float64(fibonacci(attempt)))
	case StrategyExponential, "":
		delay = time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	default:
		delay = time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt-1)))
	}

	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		delay = 0
	}

	if cfg.Jitter {
		factor := cfg.JitterFactor
		if factor <= 0 {
			factor = 0.25
		}
		jittered := 1.0 + (rand.Float64()*2-1)*factor
		delay = time.Duration(float64(delay) * jittered)
		if delay > maxDelay {
			delay = maxDelay
		}
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}

// fibonacci returns the n-th term (1-indexed, fib(1)=1, fib(2)=1, fib(3)=2, ...).
func fibonacci(n int) int64 {
	if n <= 0 {
		return 0
	}
	var a, b int64 = 0, 1
	for i := 0; i < n; i++ {
		a, b = b, a+b
	}
	return a
}
