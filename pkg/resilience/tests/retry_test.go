package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/resilience"
)

// RetrySuite tests resilience.Retry's attempt budget, predicate priority,
// and cancellation behavior.
type RetrySuite struct {
	suite.Suite
}

func fastCfg() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func (s *RetrySuite) TestSucceedsWithoutRetry() {
	calls := 0
	err := resilience.Retry(context.Background(), fastCfg(), func(context.Context) error {
		calls++
		return nil
	})
	s.NoError(err)
	s.Equal(1, calls)
}

func (s *RetrySuite) TestExhaustsMaxRetries() {
	cfg := fastCfg()
	cfg.MaxRetries = 3
	testErr := errors.New("connection reset by peer")

	calls := 0
	err := resilience.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return testErr
	})

	s.ErrorIs(err, testErr)
	s.Equal(4, calls, "MaxRetries=3 means 4 total attempts")
}

func (s *RetrySuite) TestDefaultPredicateSkipsNonTransientError() {
	cfg := fastCfg()
	cfg.MaxRetries = 3
	testErr := errors.New("invalid widget id")

	calls := 0
	err := resilience.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return testErr
	})

	s.ErrorIs(err, testErr)
	s.Equal(1, calls, "a plain error with no transient-looking substring must not be retried by default")
}

func (s *RetrySuite) TestDefaultPredicateRetriesTransientError() {
	cfg := fastCfg()
	cfg.MaxRetries = 3
	testErr := errors.New("dial tcp: connection refused")

	calls := 0
	err := resilience.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return testErr
	})

	s.ErrorIs(err, testErr)
	s.Equal(4, calls, "a connection-refused message must match the built-in transient pattern set")
}

func (s *RetrySuite) TestOnRetrySequence() {
	cfg := fastCfg()
	cfg.MaxRetries = 3
	var seen []int
	cfg.OnRetry = func(attempt, maxAttempts int, delay time.Duration, lastErr error) {
		seen = append(seen, attempt)
	}

	_ = resilience.Retry(context.Background(), cfg, func(context.Context) error {
		return errors.New("connection reset")
	})

	s.Equal([]int{2, 3, 4}, seen, "OnRetry fires with the attempt about to run next")
}

func (s *RetrySuite) TestNonRetryableErrorStopsImmediately() {
	cfg := fastCfg()
	cfg.MaxRetries = 5
	nonRetryable := apperrors.ConfigurationError("bad config", nil)

	calls := 0
	err := resilience.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return nonRetryable
	})

	s.Error(err)
	s.Equal(1, calls)
}

func (s *RetrySuite) TestRetryIfOverridesDefault() {
	cfg := fastCfg()
	cfg.MaxRetries = 2
	cfg.RetryIf = func(err error) bool { return false }

	calls := 0
	_ = resilience.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("would normally retry")
	})

	s.Equal(1, calls, "RetryIf returning false must stop after the first attempt")
}

func (s *RetrySuite) TestRetryableErrorsAllowList() {
	cfg := fastCfg()
	cfg.MaxRetries = 3
	cfg.RetryableErrors = []string{"timeout"}

	calls := 0
	err := resilience.Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		return errors.New("connection timeout")
	})

	s.Error(err)
	s.Equal(4, calls, "the allow-list matches \"timeout\" so every attempt retries")
}

func (s *RetrySuite) TestCancellationStopsRetryLoop() {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxRetries = 10
	cfg.InitialDelay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)

	go func() {
		done <- resilience.Retry(ctx, cfg, func(context.Context) error {
			calls++
			return errors.New("connection reset")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		s.True(apperrors.Is(err, apperrors.CodeCanceled))
	case <-time.After(time.Second):
		s.Fail("Retry did not return after context cancellation")
	}
}

func TestRetrySuite(t *testing.T) {
	suite.Run(t, new(RetrySuite))
}
