package redis

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sns45/anyq/pkg/concurrency"
	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

const pollTick = 10 * time.Millisecond

// Consumer reads a Redis stream through a consumer group.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *goredis.Client
	connected atomic.Bool
	dlq       *Producer

	attemptsMu sync.Mutex
	attempts   map[string]int
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{
		BaseAdapter: messaging.NewBaseAdapter("redis", cfg.Base),
		cfg:         cfg,
		attempts:    make(map[string]int),
	}
}

func (c *Consumer) Connect(ctx context.Context) error {
	c.client = goredis.NewClient(&goredis.Options{Addr: c.cfg.Addr, Password: c.cfg.Password, DB: c.cfg.DB})
	if err := c.client.Ping(ctx).Err(); err != nil {
		return apperrors.ConnectionError(err)
	}

	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return apperrors.ConnectionError(err)
	}

	if c.cfg.Base.DeadLetterQueue.Enabled {
		dlqCfg := c.cfg
		dlqCfg.Stream = c.cfg.dlqStream()
		c.dlq = NewProducer(dlqCfg)
		if err := c.dlq.Connect(ctx); err != nil {
			return err
		}
	}

	c.connected.Store(true)
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (c *Consumer) Disconnect(context.Context) error {
	return c.Close()
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func (c *Consumer) nextAttempt(id string) int {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	c.attempts[id]++
	return c.attempts[id]
}

func (c *Consumer) forgetAttempt(id string) {
	c.attemptsMu.Lock()
	defer c.attemptsMu.Unlock()
	delete(c.attempts, id)
}

func (c *Consumer) envelopeFor(msg goredis.XMessage) *messaging.Envelope {
	body, _ := msg.Values[fieldBody].(string)
	key, _ := msg.Values[fieldKey].(string)
	headers := decodeHeaders(fieldString(msg.Values[fieldHeaders]))

	env := messaging.NewEnvelope(msg.ID, []byte(body), messaging.Metadata{
		Provider: messaging.ProviderRedis,
		Redis:    &messaging.RedisMetadata{Stream: c.cfg.Stream, Group: c.cfg.Group, EntryID: msg.ID},
	}, redisSettler{client: c.client, stream: c.cfg.Stream, group: c.cfg.Group, consumer: c.cfg.consumerName(), id: msg.ID})
	env.Key = []byte(key)
	env.Headers = headers
	env.DeliveryAttempt = c.nextAttempt(msg.ID)
	return env
}

func fieldString(v any) string {
	s, _ := v.(string)
	return s
}

// poll recovers abandoned pending entries via XAUTOCLAIM, then reads new
// entries via XREADGROUP, per the documented redis poll shape.
func (c *Consumer) poll(ctx context.Context, count int64) ([]goredis.XMessage, error) {
	claimed, _, err := c.client.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.consumerName(),
		MinIdle:  c.cfg.claimMinIdle(),
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil && err != goredis.Nil {
		return nil, err
	}
	if len(claimed) > 0 {
		return claimed, nil
	}

	streams, err := c.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.consumerName(),
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    count,
		Block:    0,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

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
			msgs, err := c.poll(ctx, 1)
			if err != nil {
				c.Events().Emit(messaging.EventError, err)
				continue
			}
			for _, msg := range msgs {
				msg := msg
				if err := sem.Acquire(ctx, 1); err != nil {
					return nil
				}
				concurrency.SafeGo(ctx, func() {
					defer sem.Release(1)
					c.dispatch(ctx, msg, o.AutoAck, handler)
				})
			}
		}
	}
}

func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	ticker := time.NewTicker(pollTick)
	defer ticker.Stop()

	var batch []goredis.XMessage
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
			if c.IsPaused() {
				continue
			}
			msgs, err := c.poll(ctx, int64(o.BatchSize-len(batch)))
			if err != nil {
				c.Events().Emit(messaging.EventError, err)
				continue
			}
			batch = append(batch, msgs...)
			if len(batch) >= o.BatchSize || time.Now().After(deadline) {
				flush()
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg goredis.XMessage, autoAck bool, handler messaging.MessageHandler) {
	env := c.envelopeFor(msg)
	c.Events().Emit(messaging.EventMessage, env)
	err := handler(ctx, env)
	if err == nil {
		if autoAck {
			_ = env.Ack(ctx)
		}
		c.forgetAttempt(msg.ID)
		return
	}
	c.Events().Emit(messaging.EventError, err)
	c.handleFailure(ctx, env, msg, err)
}

func (c *Consumer) dispatchBatch(ctx context.Context, msgs []goredis.XMessage, autoAck bool, handler messaging.BatchMessageHandler) {
	envs := make([]*messaging.Envelope, len(msgs))
	for i, m := range msgs {
		envs[i] = c.envelopeFor(m)
		c.Events().Emit(messaging.EventMessage, envs[i])
	}

	err := handler(ctx, envs)
	if err == nil {
		for i, env := range envs {
			if autoAck {
				_ = env.Ack(ctx)
			}
			c.forgetAttempt(msgs[i].ID)
		}
		return
	}
	c.Events().Emit(messaging.EventError, err)
	for i, env := range envs {
		c.handleFailure(ctx, env, msgs[i], err)
	}
}

func (c *Consumer) handleFailure(ctx context.Context, env *messaging.Envelope, msg goredis.XMessage, cause error) {
	maxAttempts := c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts
	attempt := env.DeliveryAttempt
	if c.dlq != nil && maxAttempts > 0 && attempt >= maxAttempts {
		reason := messaging.DeathReasonMaxRetries
		if c.cfg.Base.DeadLetterQueue.IncludeError {
			reason = cause.Error()
		}
		headers := headersWithDeathInfo(env.Headers, c.cfg.Stream, reason, attempt)
		_, _ = c.dlq.Publish(ctx, env.Body, messaging.WithKey(env.Key), messaging.WithHeaders(headers))
		_ = env.Ack(ctx)
		c.forgetAttempt(msg.ID)
		return
	}
	_ = env.Nack(ctx, true)
}

func headersWithDeathInfo(original map[string]string, originalStream, reason string, attempts int) map[string]string {
	h := make(map[string]string, len(original)+4)
	for k, v := range original {
		h[k] = v
	}
	h[messaging.HeaderOriginalQueue] = originalStream
	h[messaging.HeaderDeathReason] = reason
	h[messaging.HeaderDeathTime] = time.Now().UTC().Format(time.RFC3339Nano)
	h[messaging.HeaderDeliveryAttempts] = strconv.Itoa(attempts)
	return h
}

func (c *Consumer) Seek(ctx context.Context, position any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(ctx context.Context) (int64, error) {
	info, err := c.client.XPending(ctx, c.cfg.Stream, c.cfg.Group).Result()
	if err != nil {
		return 0, apperrors.ConsumeError(err)
	}
	return info.Count, nil
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: c.connected.Load(), Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	if c.dlq != nil {
		_ = c.dlq.Close()
	}
	return c.client.Close()
}
