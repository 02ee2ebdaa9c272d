// Package tests holds the backend-agnostic conformance suite every adapter
// is expected to satisfy: FIFO ordering, ack idempotence, delivery-attempt
// monotonicity, DLQ threshold behavior, and pause/resume. Adapters invoke
// RunContractSuite from their own _test.go file with factories that build a
// fresh Producer/Consumer bound to a unique queue/topic name.
package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sns45/anyq/pkg/messaging"
)

// Factories builds a Producer and a Consumer bound to the same destination
// name, and optionally names the adapter's dead-letter destination, which the
// DLQ cases drain with a second consumer (DLQName is nil if the backend under
// test has no DLQ support to probe).
type Factories struct {
	NewProducer func(t *testing.T, name string) messaging.Producer
	NewConsumer func(t *testing.T, name string) messaging.Consumer

	// DLQName, if non-nil, maps a queue name to the destination
	// RunContractSuite's DLQ cases drain to confirm dead-lettering happened.
	DLQName func(queueName string) string
}

// RunContractSuite runs every conformance case against f.
func RunContractSuite(t *testing.T, f Factories) {
	t.Run("FIFO", func(t *testing.T) { testFIFO(t, f) })
	t.Run("AckIdempotent", func(t *testing.T) { testAckIdempotent(t, f) })
	t.Run("DeliveryAttemptMonotonic", func(t *testing.T) { testDeliveryAttemptMonotonic(t, f) })
	t.Run("DeadLetterThreshold", func(t *testing.T) { testDeadLetterThreshold(t, f) })
	t.Run("DeadLetterOnCleanNackLoop", func(t *testing.T) { testDeadLetterOnCleanNackLoop(t, f) })
	t.Run("PauseResume", func(t *testing.T) { testPauseResume(t, f) })
}

func testFIFO(t *testing.T, f Factories) {
	ctx := context.Background()
	name := uniqueName(t, "fifo")

	p := f.NewProducer(t, name)
	require.NoError(t, p.Connect(ctx))
	defer p.Close()

	for i := 0; i < 5; i++ {
		_, err := p.Publish(ctx, []byte{byte(i)})
		require.NoError(t, err)
	}

	c := f.NewConsumer(t, name)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var mu sync.Mutex
	var got []byte
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		mu.Lock()
		got = append(got, env.Body[0])
		done := len(got) == 5
		mu.Unlock()
		if done {
			cancel()
		}
		return nil
	}, messaging.WithConcurrency(1))

	<-cctx.Done()
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 5)
	for i, b := range got {
		require.Equal(t, byte(i), b, "messages must be delivered in publish order")
	}
}

func testAckIdempotent(t *testing.T, f Factories) {
	ctx := context.Background()
	name := uniqueName(t, "ack-idem")

	p := f.NewProducer(t, name)
	require.NoError(t, p.Connect(ctx))
	defer p.Close()
	_, err := p.Publish(ctx, []byte("once"))
	require.NoError(t, err)

	c := f.NewConsumer(t, name)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	delivered := make(chan *messaging.Envelope, 1)
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		delivered <- env
		return nil
	}, messaging.WithAutoAck(false))

	var env *messaging.Envelope
	select {
	case env = <-delivered:
	case <-cctx.Done():
		t.Fatal("timed out waiting for delivery")
	}

	require.NoError(t, env.Ack(ctx))
	require.NoError(t, env.Ack(ctx), "second ack must be a no-op, not an error")
	require.True(t, env.IsSettled())
}

func testDeliveryAttemptMonotonic(t *testing.T, f Factories) {
	ctx := context.Background()
	name := uniqueName(t, "attempt")

	p := f.NewProducer(t, name)
	require.NoError(t, p.Connect(ctx))
	defer p.Close()
	_, err := p.Publish(ctx, []byte("retry-me"))
	require.NoError(t, err)

	c := f.NewConsumer(t, name)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var attempts []int
	var mu sync.Mutex
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		mu.Lock()
		attempts = append(attempts, env.DeliveryAttempt)
		n := len(attempts)
		mu.Unlock()
		if n >= 3 {
			cancel()
			return nil
		}
		return errRetryable
	}, messaging.WithAutoAck(true))

	<-cctx.Done()
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(attempts), 3)
	for i := 1; i < len(attempts); i++ {
		require.Greater(t, attempts[i], attempts[i-1], "delivery attempt must strictly increase across redeliveries")
	}
}

func testDeadLetterThreshold(t *testing.T, f Factories) {
	if f.DLQName == nil {
		t.Skip("backend does not expose a DLQ to probe")
	}
	ctx := context.Background()
	name := uniqueName(t, "dlq")

	p := f.NewProducer(t, name)
	require.NoError(t, p.Connect(ctx))
	defer p.Close()
	_, err := p.Publish(ctx, []byte("poison"))
	require.NoError(t, err)

	c := f.NewConsumer(t, name)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var attemptCount atomic.Int64
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		attemptCount.Add(1)
		return errRetryable
	}, messaging.WithAutoAck(true))

	dlqConsumer := f.NewConsumer(t, f.DLQName(name))
	require.NoError(t, dlqConsumer.Connect(ctx))
	defer dlqConsumer.Close()

	deadLettered := make(chan *messaging.Envelope, 1)
	go dlqConsumer.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		select {
		case deadLettered <- env:
		default:
		}
		cancel()
		return nil
	})

	select {
	case env := <-deadLettered:
		require.NotEmpty(t, env.Headers[messaging.HeaderOriginalQueue])
	case <-cctx.Done():
		t.Fatal("message was never dead-lettered within the timeout")
	}
}

// testDeadLetterOnCleanNackLoop covers the explicit-nack variant of the
// dead-letter threshold: a handler that nacks itself and returns nil (no
// handler error at all) must still dead-letter once the delivery-attempt
// budget is exhausted, the same as the handler-error path above.
func testDeadLetterOnCleanNackLoop(t *testing.T, f Factories) {
	if f.DLQName == nil {
		t.Skip("backend does not expose a DLQ to probe")
	}
	ctx := context.Background()
	name := uniqueName(t, "dlq-clean-nack")

	p := f.NewProducer(t, name)
	require.NoError(t, p.Connect(ctx))
	defer p.Close()
	_, err := p.Publish(ctx, []byte("poison"))
	require.NoError(t, err)

	c := f.NewConsumer(t, name)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		_ = env.Nack(ctx, true)
		return nil
	}, messaging.WithAutoAck(true))

	dlqConsumer := f.NewConsumer(t, f.DLQName(name))
	require.NoError(t, dlqConsumer.Connect(ctx))
	defer dlqConsumer.Close()

	deadLettered := make(chan *messaging.Envelope, 1)
	go dlqConsumer.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		select {
		case deadLettered <- env:
		default:
		}
		cancel()
		return nil
	})

	select {
	case env := <-deadLettered:
		require.NotEmpty(t, env.Headers[messaging.HeaderOriginalQueue])
	case <-cctx.Done():
		t.Fatal("clean nack loop never dead-lettered within the timeout")
	}
}

func testPauseResume(t *testing.T, f Factories) {
	ctx := context.Background()
	name := uniqueName(t, "pause")

	p := f.NewProducer(t, name)
	require.NoError(t, p.Connect(ctx))
	defer p.Close()

	c := f.NewConsumer(t, name)
	require.NoError(t, c.Connect(ctx))
	defer c.Close()
	require.NoError(t, c.Pause())
	require.True(t, c.IsPaused())

	_, err := p.Publish(ctx, []byte("while-paused"))
	require.NoError(t, err)

	var delivered atomic.Bool
	cctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		delivered.Store(true)
		return nil
	})
	<-cctx.Done()
	require.False(t, delivered.Load(), "a paused consumer must not dispatch to its handler")

	require.NoError(t, c.Resume())
	require.False(t, c.IsPaused())

	cctx2, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	go c.Subscribe(cctx2, func(ctx context.Context, env *messaging.Envelope) error {
		delivered.Store(true)
		cancel2()
		return nil
	})
	<-cctx2.Done()
	require.True(t, delivered.Load(), "resuming must re-enable dispatch")
}

var errRetryable = retryableError{}

type retryableError struct{}

func (retryableError) Error() string { return "retryable failure" }

func uniqueName(t *testing.T, prefix string) string {
	return prefix + "-" + t.Name()
}
