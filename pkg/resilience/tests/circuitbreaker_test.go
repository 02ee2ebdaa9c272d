package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/sns45/anyq/pkg/resilience"
)

// CircuitBreakerSuite tests resilience.CircuitBreaker's three-state machine.
type CircuitBreakerSuite struct {
	suite.Suite
}

func enabledCfg(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.Enabled = true
	return cfg
}

func (s *CircuitBreakerSuite) TestInitialStateClosed() {
	cb := resilience.NewCircuitBreaker(enabledCfg("test"))
	s.Equal(resilience.StateClosed, cb.State())
}

func (s *CircuitBreakerSuite) TestOpensAfterFailureThreshold() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 3
	cb := resilience.NewCircuitBreaker(cfg)

	testErr := errors.New("failure")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return testErr })
		s.Error(err)
	}

	s.Equal(resilience.StateOpen, cb.State())
}

func (s *CircuitBreakerSuite) TestOpenCircuitRejectsWithoutInvokingFn() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = 10 * time.Second
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})

	s.Error(err)
	s.False(called, "fn must not run while the circuit is open")
}

func (s *CircuitBreakerSuite) TestHalfOpenAfterResetTimeout() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = 20 * time.Millisecond
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	s.Equal(resilience.StateOpen, cb.State())

	time.Sleep(30 * time.Millisecond)

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	s.NoError(err)
}

func (s *CircuitBreakerSuite) TestClosesAfterSuccessThreshold() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.ResetTimeout = 10 * time.Millisecond
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return nil })
	}

	s.Equal(resilience.StateClosed, cb.State())
}

func (s *CircuitBreakerSuite) TestReopensOnHalfOpenFailure() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 1
	cfg.ResetTimeout = 10 * time.Millisecond
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(15 * time.Millisecond)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom again") })
	s.Equal(resilience.StateOpen, cb.State())
}

func (s *CircuitBreakerSuite) TestOldFailuresAgeOutOfWindow() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 3
	cfg.FailureWindow = 20 * time.Millisecond
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	time.Sleep(30 * time.Millisecond)
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	s.Equal(resilience.StateClosed, cb.State(), "the first two failures must have aged out of the window")
}

func (s *CircuitBreakerSuite) TestTripAndReset() {
	cb := resilience.NewCircuitBreaker(enabledCfg("test"))
	cb.Trip()
	s.Equal(resilience.StateOpen, cb.State())
	cb.Reset()
	s.Equal(resilience.StateClosed, cb.State())
}

func (s *CircuitBreakerSuite) TestDisabledBreakerAlwaysDelegates() {
	cfg := resilience.DefaultCircuitBreakerConfig("test")
	cfg.Enabled = false
	cfg.FailureThreshold = 1
	cb := resilience.NewCircuitBreaker(cfg)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	}
	s.Equal(resilience.StateClosed, cb.State())
}

func (s *CircuitBreakerSuite) TestOnStateChange() {
	changes := make(chan resilience.State, 4)
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 1
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		changes <- to
	}
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })

	select {
	case to := <-changes:
		s.Equal(resilience.StateOpen, to)
	case <-time.After(time.Second):
		s.Fail("OnStateChange was never called")
	}
}

func (s *CircuitBreakerSuite) TestMetricsTracksCumulativeCounters() {
	cfg := enabledCfg("test")
	cfg.FailureThreshold = 100
	cb := resilience.NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error { return nil })
	before := time.Now()
	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	after := time.Now()

	m := cb.Metrics()
	s.Equal("test", m.Name)
	s.EqualValues(2, m.TotalRequests)
	s.EqualValues(1, m.TotalFailures)
	s.False(m.LastFailureTime.Before(before))
	s.False(m.LastFailureTime.After(after))
}

func TestCircuitBreakerSuite(t *testing.T) {
	suite.Run(t, new(CircuitBreakerSuite))
}
