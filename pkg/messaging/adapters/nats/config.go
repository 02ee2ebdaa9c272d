package nats

import "github.com/sns45/anyq/pkg/messaging"

// Config configures a NATS JetStream Producer or Consumer.
type Config struct {
	URL string

	Stream  string
	Subject string

	// Consumer names the durable pull consumer (Consumer only).
	Consumer string

	// DeadLetterSubject receives a copy of terminally-failed messages.
	// Defaults to Subject + ".dlq" when empty.
	DeadLetterSubject string

	Base messaging.Config
}

func (c Config) deadLetterSubject() string {
	if c.DeadLetterSubject != "" {
		return c.DeadLetterSubject
	}
	return c.Subject + ".dlq"
}

func (c Config) maxDeliver() int {
	if c.Base.DeadLetterQueue.MaxDeliveryAttempts > 0 {
		return c.Base.DeadLetterQueue.MaxDeliveryAttempts
	}
	return 3
}
