package pubsub

import "github.com/sns45/anyq/pkg/messaging"

// Config configures a Pub/Sub Producer or Consumer.
type Config struct {
	ProjectID string
	Topic     string

	// Subscription names the Consumer's pull subscription. Created against
	// Topic on Connect if it does not already exist.
	Subscription string

	// DeadLetterTopic, combined with Base.DeadLetterQueue.MaxDeliveryAttempts,
	// configures the subscription's native deadLetterPolicy. Defaults to
	// Topic + ".dlq" when Base.DeadLetterQueue.Enabled and this is empty.
	DeadLetterTopic string

	Base messaging.Config
}

func (c Config) deadLetterTopic() string {
	if c.DeadLetterTopic != "" {
		return c.DeadLetterTopic
	}
	return c.Topic + ".dlq"
}
