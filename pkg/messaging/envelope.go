package messaging

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/sns45/anyq/pkg/errors"
)

// Provider identifies the backend that produced an envelope.
type Provider string

const (
	ProviderMemory   Provider = "memory"
	ProviderRedis    Provider = "redis"
	ProviderRabbitMQ Provider = "rabbitmq"
	ProviderSQS      Provider = "sqs"
	ProviderSNS      Provider = "sns"
	ProviderPubSub   Provider = "pubsub"
	ProviderKafka    Provider = "kafka"
	ProviderNATS     Provider = "nats"
	ProviderAzureSB  Provider = "azureservicebus"
)

// MemoryMetadata carries in-memory-backend-specific envelope fields.
type MemoryMetadata struct {
	Queue string
	ID    string
}

// RedisMetadata carries Redis Streams-specific envelope fields.
type RedisMetadata struct {
	Stream  string
	Group   string
	EntryID string
}

// RabbitMQMetadata carries AMQP-specific envelope fields.
type RabbitMQMetadata struct {
	Exchange    string
	RoutingKey  string
	DeliveryTag uint64
	Redelivered bool
}

// SQSMetadata carries AWS SQS-specific envelope fields.
type SQSMetadata struct {
	QueueURL              string
	ReceiptHandle         string
	ApproximateReceiveCnt int
}

// SNSMetadata carries AWS SNS-specific envelope fields. SNS has no consumer
// surface, and no adapter in this module populates this field.
type SNSMetadata struct {
	TopicARN  string
	MessageID string
}

// PubSubMetadata carries Google Pub/Sub-specific envelope fields.
type PubSubMetadata struct {
	Subscription string
	AckID        string
	OrderingKey  string
}

// KafkaMetadata carries Kafka-specific envelope fields.
type KafkaMetadata struct {
	Topic     string
	Partition int32
	Offset    int64
}

// NATSMetadata carries NATS JetStream-specific envelope fields.
type NATSMetadata struct {
	Stream        string
	Consumer      string
	Sequence      uint64
	RedeliveryCnt uint64
}

// AzureSBMetadata carries Azure Service Bus-specific envelope fields.
type AzureSBMetadata struct {
	Queue        string
	LockToken    string
	SessionID    string
	DeliveryCnt  int32
}

// Metadata is a tagged variant: Provider names which single pointer field,
// if any, is populated. Keeping this a concrete struct (rather than an
// interface{}) means adapters and callers alike can switch on Provider
// without a type assertion into adapter-private types.
type Metadata struct {
	Provider        Provider
	Memory          *MemoryMetadata
	Redis           *RedisMetadata
	RabbitMQ        *RabbitMQMetadata
	SQS             *SQSMetadata
	SNS             *SNSMetadata
	PubSub          *PubSubMetadata
	Kafka           *KafkaMetadata
	NATS            *NATSMetadata
	AzureServiceBus *AzureSBMetadata
}

// settler is the adapter-supplied dispatch target for envelope lifecycle
// operations. It is unexported and carries no mutable state of its own —
// per design note 9, the envelope does not close over adapter-mutable
// state, it merely holds a handle an adapter implements.
type settler interface {
	ack(ctx context.Context) error
	nack(ctx context.Context, requeue bool) error
	extendDeadline(ctx context.Context, seconds int) error
}

// noopSettler backs envelopes constructed without a live adapter connection
// (tests, dry decode paths) so Ack/Nack/ExtendDeadline never panic on a nil
// settler.
type noopSettler struct{}

func (noopSettler) ack(context.Context) error                     { return nil }
func (noopSettler) nack(context.Context, bool) error               { return nil }
func (noopSettler) extendDeadline(context.Context, int) error      { return nil }

// Envelope is the universal message record handed to a handler. It is
// immutable to the handler except for its lifecycle operations.
type Envelope struct {
	ID              string
	Body            []byte
	Key             []byte
	Headers         map[string]string
	Timestamp       time.Time
	DeliveryAttempt int
	Metadata        Metadata
	Raw             any

	settler    settler
	settleOnce sync.Once
	settled    bool
	settleMu   sync.Mutex
}

// NewEnvelope constructs an envelope bound to the given settler. Adapters
// call this when handing a delivered item to a handler.
func NewEnvelope(id string, body []byte, md Metadata, s settler) *Envelope {
	if s == nil {
		s = noopSettler{}
	}
	return &Envelope{
		ID:              id,
		Body:            body,
		DeliveryAttempt: 1,
		Metadata:        md,
		settler:         s,
	}
}

// Ack acknowledges successful processing. Idempotent: the second and later
// calls are no-ops that return nil.
func (e *Envelope) Ack(ctx context.Context) error {
	return e.settle(func() error { return e.settler.ack(ctx) })
}

// Nack signals failed processing. requeue controls whether the backend
// should attempt redelivery. Idempotent like Ack.
func (e *Envelope) Nack(ctx context.Context, requeue bool) error {
	return e.settle(func() error { return e.settler.nack(ctx, requeue) })
}

// ExtendDeadline lengthens the backend's lock/visibility window for this
// delivery. Not a settlement: may be called any number of times before
// Ack/Nack. Backends without a deadline concept return NotImplementedError.
func (e *Envelope) ExtendDeadline(ctx context.Context, seconds int) error {
	e.settleMu.Lock()
	settled := e.settled
	e.settleMu.Unlock()
	if settled {
		return nil
	}
	return e.settler.extendDeadline(ctx, seconds)
}

// IsSettled reports whether Ack or Nack has already fired for this envelope.
func (e *Envelope) IsSettled() bool {
	e.settleMu.Lock()
	defer e.settleMu.Unlock()
	return e.settled
}

func (e *Envelope) settle(fn func() error) error {
	var err error
	e.settleOnce.Do(func() {
		e.settleMu.Lock()
		e.settled = true
		e.settleMu.Unlock()
		err = fn()
	})
	return err
}

// validateMetadataProvider returns a ConfigurationError if the metadata field
// matching md.Provider is nil, checking the "metadata.provider must match the
// backend" invariant. It does not panic, and nothing in this module calls it.
func validateMetadataProvider(md Metadata) error {
	switch md.Provider {
	case ProviderMemory:
		if md.Memory == nil {
			return apperrors.ConfigurationError("memory metadata missing for memory provider", nil)
		}
	case ProviderRedis:
		if md.Redis == nil {
			return apperrors.ConfigurationError("redis metadata missing for redis provider", nil)
		}
	case ProviderRabbitMQ:
		if md.RabbitMQ == nil {
			return apperrors.ConfigurationError("rabbitmq metadata missing for rabbitmq provider", nil)
		}
	case ProviderSQS:
		if md.SQS == nil {
			return apperrors.ConfigurationError("sqs metadata missing for sqs provider", nil)
		}
	case ProviderSNS:
		if md.SNS == nil {
			return apperrors.ConfigurationError("sns metadata missing for sns provider", nil)
		}
	case ProviderPubSub:
		if md.PubSub == nil {
			return apperrors.ConfigurationError("pubsub metadata missing for pubsub provider", nil)
		}
	case ProviderKafka:
		if md.Kafka == nil {
			return apperrors.ConfigurationError("kafka metadata missing for kafka provider", nil)
		}
	case ProviderNATS:
		if md.NATS == nil {
			return apperrors.ConfigurationError("nats metadata missing for nats provider", nil)
		}
	case ProviderAzureSB:
		if md.AzureServiceBus == nil {
			return apperrors.ConfigurationError("azure service bus metadata missing for azureservicebus provider", nil)
		}
	}
	return nil
}
