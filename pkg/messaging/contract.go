package messaging

import (
	"context"
	"time"
)

// MessageHandler processes one delivered envelope. Returning nil acks (when
// AutoAck is on); returning an error triggers the failure-accounting path
// (emit EventError, nack-or-deadletter) described in the Consumer contract.
type MessageHandler func(ctx context.Context, env *Envelope) error

// BatchMessageHandler processes a bounded batch of envelopes together. If it
// returns an error, every envelope in the batch is nacked — individual ack
// is never attempted for a failed batch.
type BatchMessageHandler func(ctx context.Context, envs []*Envelope) error

// OutgoingMessage is one entry of a PublishBatch call.
type OutgoingMessage struct {
	Body    []byte
	Options []PublishOption
}

// PublishOptions collects the per-publish options a backend may honor.
// Backends silently ignore options they do not support, per spec.
type PublishOptions struct {
	Key             []byte
	Headers         map[string]string
	Partition       *int32
	DelaySeconds    int64
	GroupID         string
	DeduplicationID string
	OrderingKey     string
	Priority        int
	TTL             time.Duration
	CorrelationID   string
	ReplyTo         string
}

// PublishOption configures a single publish/publishBatch entry.
type PublishOption func(*PublishOptions)

func WithKey(key []byte) PublishOption {
	return func(o *PublishOptions) { o.Key = key }
}

func WithHeaders(headers map[string]string) PublishOption {
	return func(o *PublishOptions) { o.Headers = headers }
}

func WithPartition(partition int32) PublishOption {
	return func(o *PublishOptions) { o.Partition = &partition }
}

// WithDelay sets a delivery delay. Honored by SQS, Azure Service Bus; the
// in-memory backend uses it to park the message in a delay queue.
func WithDelay(seconds int64) PublishOption {
	return func(o *PublishOptions) { o.DelaySeconds = seconds }
}

// WithMessageGroupID groups messages for FIFO ordering (SQS FIFO, Azure
// Service Bus sessions).
func WithMessageGroupID(groupID string) PublishOption {
	return func(o *PublishOptions) { o.GroupID = groupID }
}

// WithDeduplicationID prevents duplicate delivery (SQS FIFO).
func WithDeduplicationID(dedupID string) PublishOption {
	return func(o *PublishOptions) { o.DeduplicationID = dedupID }
}

// WithOrderingKey causes messages sharing it to be processed in publish
// order (Google Pub/Sub).
func WithOrderingKey(key string) PublishOption {
	return func(o *PublishOptions) { o.OrderingKey = key }
}

func WithPriority(priority int) PublishOption {
	return func(o *PublishOptions) { o.Priority = priority }
}

func WithTTL(ttl time.Duration) PublishOption {
	return func(o *PublishOptions) { o.TTL = ttl }
}

func WithCorrelationID(id string) PublishOption {
	return func(o *PublishOptions) { o.CorrelationID = id }
}

func WithReplyTo(replyTo string) PublishOption {
	return func(o *PublishOptions) { o.ReplyTo = replyTo }
}

// ResolvePublishOptions applies opts over the zero value.
func ResolvePublishOptions(opts []PublishOption) PublishOptions {
	var o PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SubscribeOptions collects the per-subscribe options a backend may honor.
type SubscribeOptions struct {
	FromBeginning bool
	FromTimestamp *time.Time
	Concurrency   int
	AutoAck       bool
	BatchSize     int
	BatchTimeout  time.Duration
}

// SubscribeOption configures a Subscribe/SubscribeBatch call.
type SubscribeOption func(*SubscribeOptions)

func WithFromBeginning() SubscribeOption {
	return func(o *SubscribeOptions) { o.FromBeginning = true }
}

func WithFromTimestamp(t time.Time) SubscribeOption {
	return func(o *SubscribeOptions) { o.FromTimestamp = &t }
}

// WithConcurrency bounds the number of envelopes in flight at once for this
// subscription (default 1).
func WithConcurrency(n int) SubscribeOption {
	return func(o *SubscribeOptions) { o.Concurrency = n }
}

// WithAutoAck controls whether the adapter acks automatically on a nil
// handler return (default true).
func WithAutoAck(autoAck bool) SubscribeOption {
	return func(o *SubscribeOptions) { o.AutoAck = autoAck }
}

func WithBatchSize(n int) SubscribeOption {
	return func(o *SubscribeOptions) { o.BatchSize = n }
}

func WithBatchTimeout(d time.Duration) SubscribeOption {
	return func(o *SubscribeOptions) { o.BatchTimeout = d }
}

// ResolveSubscribeOptions applies opts over the documented defaults.
func ResolveSubscribeOptions(opts []SubscribeOption) SubscribeOptions {
	o := SubscribeOptions{
		Concurrency:  1,
		AutoAck:      true,
		BatchSize:    10,
		BatchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// HealthCheck is the shape returned by a Producer or Consumer's health probe.
type HealthCheck struct {
	Healthy   bool
	Connected bool
	LatencyMs *int64
	Details   map[string]any
	Error     string
}

// Producer sends messages to a single destination (topic/queue/stream).
type Producer interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Publish serializes and sends body, returning a broker-assigned or
	// synthesized message ID. Routed through the adapter's resilience
	// wrapper: circuitBreaker.Execute(retry.Retry(send)).
	Publish(ctx context.Context, body []byte, opts ...PublishOption) (string, error)

	// PublishBatch preserves input order in the returned ID list.
	PublishBatch(ctx context.Context, messages []OutgoingMessage) ([]string, error)

	// Flush ensures buffered messages are sent. Default no-op for backends
	// without producer-side buffering.
	Flush(ctx context.Context) error

	HealthCheck(ctx context.Context) HealthCheck
	Close() error
}

// Consumer receives messages from a single destination.
type Consumer interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Subscribe starts a delivery loop and blocks until ctx is canceled or
	// Close/Disconnect is called.
	Subscribe(ctx context.Context, handler MessageHandler, opts ...SubscribeOption) error

	// SubscribeBatch delivers in groups bounded by BatchSize and
	// BatchTimeout, whichever triggers first.
	SubscribeBatch(ctx context.Context, handler BatchMessageHandler, opts ...SubscribeOption) error

	// Pause stops dispatching to the handler after the current call
	// returns. Resume re-enables dispatch.
	Pause() error
	Resume() error
	IsPaused() bool

	// Seek repositions the consumer, for backends that support it.
	Seek(ctx context.Context, position any) error
	// GetLag reports consumer lag, for backends that expose it.
	GetLag(ctx context.Context) (int64, error)

	HealthCheck(ctx context.Context) HealthCheck

	// Events exposes the typed listener registry for error/backpressure/
	// rebalancing/rebalanced/crash/message.
	Events() *Emitter

	Close() error
}
