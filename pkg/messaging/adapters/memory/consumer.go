package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sns45/anyq/pkg/concurrency"
	"github.com/sns45/anyq/pkg/datastructures/queue/ring"
	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

const pollTick = 10 * time.Millisecond

// Consumer pulls from a single named in-memory queue.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	queue     *memQueue
	dlq       *memQueue
	connected atomic.Bool
}

// NewConsumer constructs a memory Consumer for cfg.Queue.
func NewConsumer(cfg Config) *Consumer {
	return &Consumer{
		BaseAdapter: messaging.NewBaseAdapter("memory", cfg.Base),
		cfg:         cfg,
	}
}

func (c *Consumer) Connect(ctx context.Context) error {
	c.queue = getOrCreateQueue(c.cfg.Queue, c.cfg.MaxMessages, c.cfg.MaxAge)
	if c.cfg.Base.DeadLetterQueue.Enabled {
		c.dlq = getOrCreateQueue(c.cfg.dlqName(), 0, 0)
	}
	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(context.Context) error {
	c.connected.Store(false)
	return nil
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func (c *Consumer) envelopeFor(msg *storedMessage) *messaging.Envelope {
	// Without a dead-letter queue there is no threshold: nack(requeue=true)
	// always requeues.
	maxAttempts := 0
	if c.dlq != nil {
		maxAttempts = c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts
	}
	env := messaging.NewEnvelope(msg.id, msg.body, messaging.Metadata{
		Provider: messaging.ProviderMemory,
		Memory:   &messaging.MemoryMetadata{Queue: c.cfg.Queue, ID: msg.id},
	}, memSettler{
		queue:       c.queue,
		id:          msg.id,
		dlq:         c.dlq,
		queueName:   c.cfg.Queue,
		maxAttempts: maxAttempts,
	})
	env.Key = msg.key
	env.Headers = msg.headers
	env.Timestamp = msg.timestamp
	env.DeliveryAttempt = msg.deliveryAttempt
	return env
}

// Subscribe runs a 10ms-tick pull loop, dispatching one message at a time
// per tick bounded by opts' Concurrency via a semaphore, until ctx is
// canceled.
func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	sem := concurrency.NewSemaphore(int64(o.Concurrency))
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.IsPaused() {
				continue
			}
			msg, ok := c.queue.dequeue()
			if !ok {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				// Shutting down: release the message back without attempting
				// the handler.
				c.queue.nack(msg.id, true)
				return nil
			}
			concurrency.SafeGo(ctx, func() {
				defer sem.Release(1)
				c.dispatch(ctx, msg, o.AutoAck, handler)
			})
		}
	}
}

// SubscribeBatch accumulates up to BatchSize messages within BatchTimeout,
// whichever comes first, and delivers them together. A background goroutine
// pulls from the queue into a bounded ring.Buffer prefetch so the batch
// accumulation loop below never blocks on queue contention while it waits
// out the remainder of BatchTimeout.
func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)

	prefetch := ring.New[*storedMessage](o.BatchSize * 2)
	prefetchCtx, stopPrefetch := context.WithCancel(ctx)
	defer stopPrefetch()

	concurrency.SafeGo(ctx, func() {
		ticker := time.NewTicker(pollTick)
		defer ticker.Stop()
		for {
			select {
			case <-prefetchCtx.Done():
				return
			case <-ticker.C:
				if c.IsPaused() {
					continue
				}
				msg, ok := c.queue.dequeue()
				if !ok {
					continue
				}
				if err := prefetch.TryEnqueue(msg); err != nil {
					// Prefetch buffer is full: the batch side is falling
					// behind, so put the message back rather than stall
					// this goroutine on a blocking Enqueue.
					c.queue.nack(msg.id, true)
				}
			}
		}
	})

	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	var batch []*storedMessage
	deadline := time.Now().Add(o.BatchTimeout)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.dispatchBatch(ctx, batch, o.AutoAck, handler)
		batch = nil
		deadline = time.Now().Add(o.BatchTimeout)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for len(batch) < o.BatchSize {
				msg, err := prefetch.TryDequeue()
				if err != nil {
					break
				}
				batch = append(batch, msg)
			}
			if len(batch) >= o.BatchSize || time.Now().After(deadline) {
				flush()
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg *storedMessage, autoAck bool, handler messaging.MessageHandler) {
	env := c.envelopeFor(msg)
	c.Events().Emit(messaging.EventMessage, env)
	err := handler(ctx, env)
	if err == nil {
		if autoAck {
			_ = env.Ack(ctx)
		}
		return
	}

	c.Events().Emit(messaging.EventError, err)
	c.handleFailure(ctx, env, msg, err)
}

func (c *Consumer) dispatchBatch(ctx context.Context, msgs []*storedMessage, autoAck bool, handler messaging.BatchMessageHandler) {
	envs := make([]*messaging.Envelope, len(msgs))
	for i, m := range msgs {
		envs[i] = c.envelopeFor(m)
		c.Events().Emit(messaging.EventMessage, envs[i])
	}

	err := handler(ctx, envs)
	if err == nil {
		if autoAck {
			for _, env := range envs {
				_ = env.Ack(ctx)
			}
		}
		return
	}

	c.Events().Emit(messaging.EventError, err)
	for i, env := range envs {
		c.handleFailure(ctx, env, msgs[i], err)
	}
}

// handleFailure dead-letters a message once it has exhausted its delivery
// attempt budget, otherwise nacks it with requeue.
func (c *Consumer) handleFailure(ctx context.Context, env *messaging.Envelope, msg *storedMessage, cause error) {
	maxAttempts := c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts
	if c.dlq != nil && maxAttempts > 0 && msg.deliveryAttempt >= maxAttempts {
		if _, ok := c.queue.deadLetter(msg.id); ok {
			reason := messaging.DeathReasonMaxRetries
			if c.cfg.Base.DeadLetterQueue.IncludeError && cause != nil {
				reason = cause.Error()
			}
			headers := headersWithDeathInfo(msg.headers, c.cfg.Queue, reason, msg.deliveryAttempt)
			c.dlq.enqueue(msg.body, msg.key, headers)
		}
		return
	}
	_ = env.Nack(ctx, true)
}

// Seek is not implemented: the in-memory backend has no positional cursor
// concept to reposition.
func (c *Consumer) Seek(context.Context, any) error {
	return apperrors.NotImplementedError("seek")
}

// GetLag reports the queue's current depth as a stand-in for consumer lag.
func (c *Consumer) GetLag(context.Context) (int64, error) {
	return int64(c.queue.size()), nil
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: c.connected.Load(), Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	c.connected.Store(false)
	return nil
}
