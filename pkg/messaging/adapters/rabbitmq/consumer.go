package rabbitmq

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sns45/anyq/pkg/concurrency"
	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Consumer pulls from a single RabbitMQ queue via a push-shape
// basic.consume channel, wrapped in the module's pull-shaped interface.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	conn      *amqp.Connection
	ch        *amqp.Channel
	connected atomic.Bool

	attemptsMu sync.Mutex
	attempts   map[string]int
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{
		BaseAdapter: messaging.NewBaseAdapter("rabbitmq", cfg.Base),
		cfg:         cfg,
		attempts:    make(map[string]int),
	}
}

func (c *Consumer) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return apperrors.ConnectionError(err)
	}

	args := amqp.Table{}
	if c.cfg.Base.DeadLetterQueue.Enabled {
		if err := ch.ExchangeDeclare(c.cfg.deadLetterExchange(), "fanout", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return apperrors.ConnectionError(err)
		}
		dlq, err := ch.QueueDeclare(c.cfg.deadLetterQueue(), true, false, false, false, nil)
		if err != nil {
			ch.Close()
			conn.Close()
			return apperrors.ConnectionError(err)
		}
		if err := ch.QueueBind(dlq.Name, "", c.cfg.deadLetterExchange(), false, nil); err != nil {
			ch.Close()
			conn.Close()
			return apperrors.ConnectionError(err)
		}
		args["x-dead-letter-exchange"] = c.cfg.deadLetterExchange()
	}

	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, args)
	if err != nil {
		ch.Close()
		conn.Close()
		return apperrors.ConnectionError(err)
	}
	if c.cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(c.cfg.Exchange, c.cfg.exchangeType(), true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return apperrors.ConnectionError(err)
		}
		if err := ch.QueueBind(q.Name, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return apperrors.ConnectionError(err)
		}
	}

	c.conn, c.ch = conn, ch
	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(context.Context) error {
	return c.Close()
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

// attemptKey hashes the body since redelivered messages get a fresh
// delivery tag each time and carry no broker-native attempt counter absent
// a dead-letter-loopback topology this adapter does not set up.
func attemptKey(d amqp.Delivery) string {
	h := fnv.New64a()
	h.Write(d.Body)
	h.Write([]byte(d.RoutingKey))
	return string(h.Sum(nil))
}

func (c *Consumer) nextAttempt(key string) int {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	c.attempts[key]++
	return c.attempts[key]
}

func (c *Consumer) forgetAttempt(key string) {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	delete(c.attempts, key)
}

func fromTable(t amqp.Table) map[string]string {
	if len(t) == 0 {
		return nil
	}
	headers := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}
	return headers
}

func (c *Consumer) envelopeFor(d amqp.Delivery, attempt int) *messaging.Envelope {
	env := messaging.NewEnvelope(d.MessageId, d.Body, messaging.Metadata{
		Provider: messaging.ProviderRabbitMQ,
		RabbitMQ: &messaging.RabbitMQMetadata{
			Exchange:    d.Exchange,
			RoutingKey:  d.RoutingKey,
			DeliveryTag: d.DeliveryTag,
			Redelivered: d.Redelivered,
		},
	}, amqpSettler{delivery: d})
	env.Headers = fromTable(d.Headers)
	env.Timestamp = d.Timestamp
	env.DeliveryAttempt = attempt
	env.Raw = d
	return env
}

func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	if err := c.ch.Qos(o.Concurrency, 0, false); err != nil {
		return apperrors.ConsumeError(err)
	}

	// Broker-side auto-ack stays off: dispatch acks or nacks each delivery
	// itself once the handler has returned.
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return apperrors.ConsumeError(err)
	}

	sem := concurrency.NewSemaphore(int64(o.Concurrency))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if c.IsPaused() {
				_ = d.Nack(false, true)
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				_ = d.Nack(false, true)
				return nil
			}
			d := d
			concurrency.SafeGo(ctx, func() {
				defer sem.Release(1)
				c.dispatch(ctx, d, o.AutoAck, handler)
			})
		}
	}
}

func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	if err := c.ch.Qos(o.BatchSize, 0, false); err != nil {
		return apperrors.ConsumeError(err)
	}
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return apperrors.ConsumeError(err)
	}

	var batch []amqp.Delivery
	timer := time.NewTimer(o.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		c.dispatchBatch(ctx, batch, o.AutoAck, handler)
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if c.IsPaused() {
				_ = d.Nack(false, true)
				continue
			}
			batch = append(batch, d)
			if len(batch) >= o.BatchSize {
				flush()
				timer.Reset(o.BatchTimeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(o.BatchTimeout)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, autoAck bool, handler messaging.MessageHandler) {
	key := attemptKey(d)
	attempt := c.nextAttempt(key)
	env := c.envelopeFor(d, attempt)
	c.Events().Emit(messaging.EventMessage, env)

	err := handler(ctx, env)
	if err == nil {
		if autoAck {
			_ = env.Ack(ctx)
		}
		c.forgetAttempt(key)
		return
	}

	c.Events().Emit(messaging.EventError, err)
	c.handleFailure(ctx, env, key, attempt)
}

func (c *Consumer) dispatchBatch(ctx context.Context, ds []amqp.Delivery, autoAck bool, handler messaging.BatchMessageHandler) {
	envs := make([]*messaging.Envelope, len(ds))
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = attemptKey(d)
		envs[i] = c.envelopeFor(d, c.nextAttempt(keys[i]))
		c.Events().Emit(messaging.EventMessage, envs[i])
	}

	err := handler(ctx, envs)
	if err == nil {
		for i, env := range envs {
			if autoAck {
				_ = env.Ack(ctx)
			}
			c.forgetAttempt(keys[i])
		}
		return
	}

	c.Events().Emit(messaging.EventError, err)
	for i, env := range envs {
		c.handleFailure(ctx, env, keys[i], env.DeliveryAttempt)
	}
}

// handleFailure nacks without requeue once the attempt budget is spent; the
// queue's x-dead-letter-exchange argument routes the rejected message to the
// DLQ natively, no app-level republish needed.
func (c *Consumer) handleFailure(ctx context.Context, env *messaging.Envelope, key string, attempt int) {
	maxAttempts := c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts
	if c.cfg.Base.DeadLetterQueue.Enabled && maxAttempts > 0 && attempt >= maxAttempts {
		_ = env.Nack(ctx, false)
		c.forgetAttempt(key)
		return
	}
	_ = env.Nack(ctx, true)
}

func (c *Consumer) Seek(ctx context.Context, position any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(ctx context.Context) (int64, error) {
	q, err := c.ch.QueueInspect(c.cfg.Queue)
	if err != nil {
		return 0, apperrors.ConsumeError(err)
	}
	return int64(q.Messages), nil
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	healthy := c.connected.Load() && !c.conn.IsClosed()
	return messaging.HealthCheck{Healthy: healthy, Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	_ = c.ch.Close()
	return c.conn.Close()
}
