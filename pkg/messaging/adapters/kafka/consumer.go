package kafka

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/sns45/anyq/pkg/concurrency"
	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// dlqForwardWorkers/dlqForwardQueueSize size the background WorkerPool that
// forwards dead-lettered messages so handleFailure never blocks ConsumeClaim
// on the dead-letter topic's publish latency.
const (
	dlqForwardWorkers   = 2
	dlqForwardQueueSize = 64
)

// Consumer is a Kafka consumer-group subscriber bound to a single topic.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	group     sarama.ConsumerGroup
	connected atomic.Bool
	dlq       *Producer

	dlqPool       *concurrency.WorkerPool
	dlqPoolCancel context.CancelFunc

	attemptsMu sync.Mutex
	attempts   map[string]int
}

// NewConsumer constructs a Kafka Consumer. Connect joins cfg.GroupID.
func NewConsumer(cfg Config) *Consumer {
	return &Consumer{
		BaseAdapter: messaging.NewBaseAdapter("kafka", cfg.Base),
		cfg:         cfg,
		attempts:    make(map[string]int),
	}
}

func (c *Consumer) Connect(ctx context.Context) error {
	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, saramaConfig(c.cfg))
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	c.group = group

	if c.cfg.Base.DeadLetterQueue.Enabled && c.cfg.Base.DeadLetterQueue.Destination != "" {
		dlqCfg := c.cfg
		dlqCfg.Topic = c.cfg.Base.DeadLetterQueue.Destination
		c.dlq = NewProducer(dlqCfg)
		if err := c.dlq.Connect(ctx); err != nil {
			return err
		}
		poolCtx, cancel := context.WithCancel(context.Background())
		c.dlqPoolCancel = cancel
		c.dlqPool = concurrency.NewWorkerPool(dlqForwardWorkers, dlqForwardQueueSize)
		c.dlqPool.Start(poolCtx)
	}

	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(context.Context) error {
	return c.Close()
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func attemptKey(topic string, partition int32, offset int64) string {
	return topic + "/" + strconv.FormatInt(int64(partition), 10) + "/" + strconv.FormatInt(offset, 10)
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

func (c *Consumer) envelopeFor(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage, attempt int) *messaging.Envelope {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[string(h.Key)] = string(h.Value)
	}
	env := messaging.NewEnvelope(attemptKey(msg.Topic, msg.Partition, msg.Offset), msg.Value, messaging.Metadata{
		Provider: messaging.ProviderKafka,
		Kafka:    &messaging.KafkaMetadata{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset},
	}, kafkaSettler{c: c, sess: sess, msg: msg, attempt: attempt})
	env.Key = msg.Key
	env.Headers = headers
	env.Timestamp = msg.Timestamp
	env.DeliveryAttempt = attempt
	env.Raw = msg
	return env
}

// groupHandler adapts a MessageHandler to sarama's ConsumerGroupHandler.
type groupHandler struct {
	c       *Consumer
	handler messaging.MessageHandler
	opts    messaging.SubscribeOptions
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		// Kafka has no per-message fetch-pause primitive the way
		// queue-backed brokers do; a paused consumer blocks here rather
		// than buffering unbounded messages in process memory.
		for h.c.IsPaused() {
			select {
			case <-sess.Context().Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
		}

		key := attemptKey(msg.Topic, msg.Partition, msg.Offset)
		attempt := h.c.nextAttempt(key)
		env := h.c.envelopeFor(sess, msg, attempt)
		h.c.Events().Emit(messaging.EventMessage, env)

		err := h.handler(sess.Context(), env)
		if err == nil {
			if h.opts.AutoAck {
				_ = env.Ack(sess.Context())
			}
			continue
		}

		h.c.Events().Emit(messaging.EventError, err)
		h.c.handleFailure(sess, msg, attempt, err)
	}
	return nil
}

// kafkaSettler binds an Envelope to the consumer-group session and message
// it was delivered on, so manual-ack mode (AutoAck=false) and an explicit
// nack loop both reach the same commit/dead-letter path as the handler-error
// case.
type kafkaSettler struct {
	c       *Consumer
	sess    sarama.ConsumerGroupSession
	msg     *sarama.ConsumerMessage
	attempt int
}

func (s kafkaSettler) ack(context.Context) error {
	s.sess.MarkMessage(s.msg, "")
	s.c.forgetAttempt(attemptKey(s.msg.Topic, s.msg.Partition, s.msg.Offset))
	return nil
}

// nack maps requeue=false onto a committed drop (the offset advances, the
// message is not redelivered) and requeue=true onto the same
// dead-letter-on-threshold decision the handler-error path uses.
func (s kafkaSettler) nack(ctx context.Context, requeue bool) error {
	if !requeue {
		s.sess.MarkMessage(s.msg, "")
		s.c.forgetAttempt(attemptKey(s.msg.Topic, s.msg.Partition, s.msg.Offset))
		return nil
	}
	s.c.handleFailure(s.sess, s.msg, s.attempt, nil)
	return nil
}

func (kafkaSettler) extendDeadline(context.Context, int) error {
	return apperrors.NotImplementedError("extendDeadline")
}

func (c *Consumer) handleFailure(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage, attempt int, cause error) {
	maxAttempts := c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts
	key := attemptKey(msg.Topic, msg.Partition, msg.Offset)
	if c.dlq != nil && maxAttempts > 0 && attempt >= maxAttempts {
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		reason := messaging.DeathReasonMaxRetries
		if c.cfg.Base.DeadLetterQueue.IncludeError && cause != nil {
			reason = cause.Error()
		}
		dlq := c.dlq
		body := append([]byte(nil), msg.Value...)
		msgKey := append([]byte(nil), msg.Key...)
		dlqHeaders := headersWithDeathInfo(headers, c.cfg.Topic, reason, attempt)
		c.dlqPool.Submit(func(ctx context.Context) {
			opts := []messaging.PublishOption{messaging.WithKey(msgKey), messaging.WithHeaders(dlqHeaders)}
			_, _ = dlq.Publish(ctx, body, opts...)
		})
		sess.MarkMessage(msg, "")
		c.forgetAttempt(key)
		return
	}
	// Kafka has no native nack: force the next fetch to re-read this offset.
	sess.ResetOffset(msg.Topic, msg.Partition, msg.Offset, "")
}

func headersWithDeathInfo(original map[string]string, originalTopic, reason string, attempts int) map[string]string {
	h := make(map[string]string, len(original)+4)
	for k, v := range original {
		h[k] = v
	}
	h[messaging.HeaderOriginalQueue] = originalTopic
	h[messaging.HeaderDeathReason] = reason
	h[messaging.HeaderDeathTime] = time.Now().UTC().Format(time.RFC3339Nano)
	h[messaging.HeaderDeliveryAttempts] = strconv.Itoa(attempts)
	return h
}

// Subscribe joins the consumer group and blocks, re-joining after rebalances,
// until ctx is canceled.
func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	h := &groupHandler{c: c, handler: handler, opts: o}

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.Events().Emit(messaging.EventRebalancing, nil)
		if err := c.group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Events().Emit(messaging.EventCrash, err)
			return apperrors.ConsumeError(err)
		}
		c.Events().Emit(messaging.EventRebalanced, nil)
	}
}

// batchEntry pairs an envelope waiting in a pending batch with the channel
// its eventual flush() outcome is delivered on, so the groupHandler call
// that produced it can block until the real batch result is known before
// deciding to ack or nack.
type batchEntry struct {
	env  *messaging.Envelope
	done chan error
}

// SubscribeBatch accumulates messages from the group's delivery loop up to
// BatchSize or BatchTimeout before invoking handler. Per spec, a failed
// batch handler must nack every message in the batch rather than commit any
// of their offsets — so the per-message call into groupHandler blocks until
// its batch has actually been flushed and reports the batch's real outcome,
// instead of acking eagerly the moment the message is buffered.
func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	var batch []batchEntry
	var mu sync.Mutex
	timer := time.NewTimer(o.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		mu.Lock()
		cur := batch
		batch = nil
		mu.Unlock()
		if len(cur) == 0 {
			return
		}
		envs := make([]*messaging.Envelope, len(cur))
		for i, e := range cur {
			envs[i] = e.env
		}
		err := handler(ctx, envs)
		if err != nil {
			c.Events().Emit(messaging.EventError, err)
		}
		for _, e := range cur {
			e.done <- err
		}
	}

	single := func(ctx context.Context, env *messaging.Envelope) error {
		done := make(chan error, 1)
		mu.Lock()
		batch = append(batch, batchEntry{env: env, done: done})
		full := len(batch) >= o.BatchSize
		mu.Unlock()
		if full {
			flush()
			timer.Reset(o.BatchTimeout)
		}
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				flush()
				timer.Reset(o.BatchTimeout)
			}
		}
	}()

	return c.Subscribe(ctx, single, opts...)
}

func (c *Consumer) Seek(ctx context.Context, position any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(ctx context.Context) (int64, error) {
	return 0, apperrors.NotImplementedError("getLag")
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: c.connected.Load(), Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	if c.dlqPool != nil {
		c.dlqPool.Stop()
		c.dlqPoolCancel()
	}
	if c.dlq != nil {
		_ = c.dlq.Close()
	}
	return c.group.Close()
}
