package nats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Consumer pulls from a durable JetStream consumer bound to cfg.Subject.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	nc        *natsgo.Conn
	js        jetstream.JetStream
	consumer  jetstream.Consumer
	dlq       *Producer
	connected atomic.Bool
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{BaseAdapter: messaging.NewBaseAdapter("nats", cfg.Base), cfg: cfg}
}

func (c *Consumer) Connect(ctx context.Context) error {
	nc, err := natsgo.Connect(c.cfg.URL)
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return apperrors.ConnectionError(err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject, c.cfg.deadLetterSubject()},
	}); err != nil {
		nc.Close()
		return apperrors.ConnectionError(err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, c.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       c.cfg.Consumer,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.cfg.maxDeliver(),
	})
	if err != nil {
		nc.Close()
		return apperrors.ConnectionError(err)
	}

	if c.cfg.Base.DeadLetterQueue.Enabled {
		dlqCfg := c.cfg
		dlqCfg.Subject = c.cfg.deadLetterSubject()
		c.dlq = NewProducer(dlqCfg)
		if err := c.dlq.Connect(ctx); err != nil {
			nc.Close()
			return err
		}
	}

	c.nc, c.js, c.consumer = nc, js, consumer
	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(context.Context) error {
	return c.Close()
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func fromHeader(h natsgo.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	headers := make(map[string]string, len(h))
	for k := range h {
		headers[k] = h.Get(k)
	}
	return headers
}

func numDelivered(msg jetstream.Msg) int {
	meta, err := msg.Metadata()
	if err != nil || meta == nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (c *Consumer) envelopeFor(msg jetstream.Msg) *messaging.Envelope {
	var seq uint64
	if meta, err := msg.Metadata(); err == nil && meta != nil {
		seq = meta.Sequence.Stream
	}
	env := messaging.NewEnvelope(msg.Subject(), msg.Data(), messaging.Metadata{
		Provider: messaging.ProviderNATS,
		NATS: &messaging.NATSMetadata{
			Stream:        c.cfg.Stream,
			Consumer:      c.cfg.Consumer,
			Sequence:      seq,
			RedeliveryCnt: uint64(numDelivered(msg)) - 1,
		},
	}, jsSettler{msg: msg})
	env.Headers = fromHeader(msg.Headers())
	env.DeliveryAttempt = numDelivered(msg)
	return env
}

// Subscribe calls Consumer.Consume, which runs its own internal goroutine
// pool and blocks the returned ConsumeContext until Stop or ctx cancel.
func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)

	consCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		if c.IsPaused() {
			_ = msg.Nak()
			return
		}
		c.dispatch(ctx, msg, o.AutoAck, handler)
	})
	if err != nil {
		return apperrors.ConsumeError(err)
	}
	defer consCtx.Stop()

	<-ctx.Done()
	return nil
}

func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)

	var mu sync.Mutex
	var batch []*messaging.Envelope
	var raw []jetstream.Msg
	timer := time.NewTimer(o.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		mu.Lock()
		envs, msgs := batch, raw
		batch, raw = nil, nil
		mu.Unlock()
		if len(envs) == 0 {
			return
		}
		if err := handler(ctx, envs); err != nil {
			c.Events().Emit(messaging.EventError, err)
			for _, m := range msgs {
				_ = m.Nak()
			}
			return
		}
		if o.AutoAck {
			for _, m := range msgs {
				_ = m.Ack()
			}
		}
	}

	consCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		if c.IsPaused() {
			_ = msg.Nak()
			return
		}
		env := c.envelopeFor(msg)
		c.Events().Emit(messaging.EventMessage, env)

		mu.Lock()
		batch = append(batch, env)
		raw = append(raw, msg)
		full := len(batch) >= o.BatchSize
		mu.Unlock()
		if full {
			flush()
			timer.Reset(o.BatchTimeout)
		}
	})
	if err != nil {
		return apperrors.ConsumeError(err)
	}
	defer consCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			flush()
			timer.Reset(o.BatchTimeout)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg, autoAck bool, handler messaging.MessageHandler) {
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

// handleFailure terminates the message (stopping further redelivery) once
// its attempt budget is spent, first mirroring it onto the dead-letter
// subject so it is not silently dropped.
func (c *Consumer) handleFailure(ctx context.Context, env *messaging.Envelope, msg jetstream.Msg, cause error) {
	maxAttempts := c.cfg.maxDeliver()
	if c.dlq != nil && env.DeliveryAttempt >= maxAttempts {
		reason := messaging.DeathReasonMaxRetries
		if c.cfg.Base.DeadLetterQueue.IncludeError {
			reason = cause.Error()
		}
		headers := headersWithDeathInfo(env.Headers, c.cfg.Subject, reason, env.DeliveryAttempt)
		_, _ = c.dlq.Publish(ctx, env.Body, messaging.WithHeaders(headers))
		_ = env.Nack(ctx, false)
		return
	}
	_ = env.Nack(ctx, true)
}

func headersWithDeathInfo(original map[string]string, originalSubject, reason string, attempts int) map[string]string {
	h := make(map[string]string, len(original)+4)
	for k, v := range original {
		h[k] = v
	}
	h[messaging.HeaderOriginalQueue] = originalSubject
	h[messaging.HeaderDeathReason] = reason
	h[messaging.HeaderDeathTime] = time.Now().UTC().Format(time.RFC3339Nano)
	h[messaging.HeaderDeliveryAttempts] = itoaInt(attempts)
	return h
}

func itoaInt(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (c *Consumer) Seek(ctx context.Context, position any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(ctx context.Context) (int64, error) {
	info, err := c.consumer.Info(ctx)
	if err != nil {
		return 0, apperrors.ConsumeError(err)
	}
	return int64(info.NumPending), nil
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	healthy := c.connected.Load() && c.nc.IsConnected()
	return messaging.HealthCheck{Healthy: healthy, Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	if c.dlq != nil {
		_ = c.dlq.Close()
	}
	c.nc.Close()
	return nil
}
