package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sns45/anyq/pkg/resilience"
)

// BackoffSuite exercises Retry's effective delay schedule (computeBackoff is
// unexported, so these assert on it indirectly through OnRetry) with jitter
// disabled for deterministic values.
type BackoffSuite struct {
	suite.Suite
}

func (s *BackoffSuite) recordDelays(cfg resilience.RetryConfig) []time.Duration {
	var got []time.Duration
	cfg.OnRetry = func(attempt, maxAttempts int, delay time.Duration, lastErr error) {
		got = append(got, delay)
	}
	_ = resilience.Retry(context.Background(), cfg, func(context.Context) error {
		return errors.New("fail")
	})
	return got
}

func (s *BackoffSuite) TestExponential() {
	cfg := resilience.RetryConfig{
		MaxRetries:   3,
		Strategy:     resilience.StrategyExponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
	got := s.recordDelays(cfg)
	s.Equal([]time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}, got)
}

func (s *BackoffSuite) TestLinear() {
	cfg := resilience.RetryConfig{
		MaxRetries:   3,
		Strategy:     resilience.StrategyLinear,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   1,
	}
	got := s.recordDelays(cfg)
	s.Equal([]time.Duration{100 * time.Millisecond, 101 * time.Millisecond, 102 * time.Millisecond}, got)
}

func (s *BackoffSuite) TestConstant() {
	cfg := resilience.RetryConfig{
		MaxRetries:   3,
		Strategy:     resilience.StrategyConstant,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
	got := s.recordDelays(cfg)
	s.Equal([]time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}, got)
}

func (s *BackoffSuite) TestFibonacci() {
	cfg := resilience.RetryConfig{
		MaxRetries:   4,
		Strategy:     resilience.StrategyFibonacci,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
	got := s.recordDelays(cfg)
	s.Equal([]time.Duration{10 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, got)
}

func (s *BackoffSuite) TestCapAtMaxDelay() {
	cfg := resilience.RetryConfig{
		MaxRetries:   5,
		Strategy:     resilience.StrategyExponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     300 * time.Millisecond,
		Multiplier:   2,
	}
	got := s.recordDelays(cfg)
	for _, d := range got {
		s.LessOrEqual(d, 300*time.Millisecond)
	}
	s.Equal(300*time.Millisecond, got[len(got)-1])
}

func (s *BackoffSuite) TestJitterStaysWithinFactor() {
	cfg := resilience.RetryConfig{
		MaxRetries:   10,
		Strategy:     resilience.StrategyConstant,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Jitter:       true,
		JitterFactor: 0.25,
	}
	got := s.recordDelays(cfg)
	for _, d := range got {
		s.GreaterOrEqual(d, 74*time.Millisecond)
		s.LessOrEqual(d, 126*time.Millisecond)
	}
}

func TestBackoffSuite(t *testing.T) {
	suite.Run(t, new(BackoffSuite))
}
