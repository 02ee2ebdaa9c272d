package kafka

import "github.com/sns45/anyq/pkg/messaging"

// Config configures a Kafka Producer or Consumer.
type Config struct {
	Brokers []string `validate:"required,min=1"`
	Topic   string   `validate:"required"`

	// GroupID is the consumer group id. Required for Consumer, ignored by
	// Producer.
	GroupID string

	// Idempotent opts the sync producer into Kafka's idempotent-producer
	// mode (exactly-once per partition on the producer side).
	Idempotent bool

	Base messaging.Config
}
