package messaging

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sns45/anyq/pkg/logger"
	"github.com/sns45/anyq/pkg/resilience"
	"github.com/sns45/anyq/pkg/serializer"
)

// BaseAdapter composes the concerns every backend adapter needs: a
// serializer, a circuit breaker, a retry policy, a logger, and an OTEL
// tracer. Concrete adapters embed BaseAdapter and call
// ExecuteWithResilience around their backend SDK calls.
type BaseAdapter struct {
	Name       string
	Serializer serializer.Serializer
	Breaker    *resilience.CircuitBreaker
	RetryCfg   resilience.RetryConfig
	Log        logger.Logger
	Tracer     trace.Tracer

	emitter *Emitter
	paused  bool
}

// NewBaseAdapter builds a BaseAdapter from a Config, defaulting the
// serializer to JSON and the logger to a no-op when logging is disabled.
func NewBaseAdapter(name string, cfg Config) *BaseAdapter {
	log := logger.Default()
	if !cfg.Logging.Enabled {
		log = logger.Noop()
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             name,
		Enabled:          cfg.CircuitBreaker.Enabled,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
		FailureWindow:    time.Duration(cfg.CircuitBreaker.FailureWindowMs) * time.Millisecond,
		ResetTimeout:     time.Duration(cfg.CircuitBreaker.ResetTimeoutMs) * time.Millisecond,
		SuccessThreshold: cfg.CircuitBreaker.SuccessThreshold,
	})

	retryCfg := resilience.RetryConfig{
		MaxRetries:      cfg.Retry.MaxRetries,
		Strategy:        resilience.StrategyExponential,
		InitialDelay:    time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:        time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
		Multiplier:      cfg.Retry.Multiplier,
		Jitter:          cfg.Retry.Jitter,
		RetryableErrors: cfg.Retry.RetryableErrors,
	}

	return &BaseAdapter{
		Name:       name,
		Serializer: serializer.Default(),
		Breaker:    breaker,
		RetryCfg:   retryCfg,
		Log:        log,
		Tracer:     otel.Tracer("github.com/sns45/anyq/pkg/messaging"),
		emitter:    NewEmitter(),
	}
}

// ExecuteWithResilience wraps fn with the circuit breaker outermost and the
// retry engine innermost, per spec: circuitBreaker.Execute(ctx, func(ctx)
// error { return retry.Retry(ctx, retryCfg, fn) }).
func (b *BaseAdapter) ExecuteWithResilience(ctx context.Context, fn resilience.Executor) error {
	return b.Breaker.Execute(ctx, func(ctx context.Context) error {
		return resilience.Retry(ctx, b.RetryCfg, fn)
	})
}

// Events returns the adapter's event emitter.
func (b *BaseAdapter) Events() *Emitter {
	return b.emitter
}

// Pause/Resume/IsPaused give concrete consumer adapters a shared paused
// flag; the consumer's delivery loop checks IsPaused at each iteration.
func (b *BaseAdapter) Pause() error {
	b.paused = true
	return nil
}

func (b *BaseAdapter) Resume() error {
	b.paused = false
	return nil
}

func (b *BaseAdapter) IsPaused() bool {
	return b.paused
}

// TraceOperation starts a span named "messaging.<name>.<op>" and returns a
// finish function that records err (if any) onto the span and logs it.
func (b *BaseAdapter) TraceOperation(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := b.Tracer.Start(ctx, "messaging."+b.Name+"."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
