package rabbitmq

import "github.com/sns45/anyq/pkg/messaging"

// Config configures a RabbitMQ Producer or Consumer.
type Config struct {
	URL string

	Exchange   string
	ExchangeType string // defaults to "direct"
	RoutingKey string

	Queue string

	// DeadLetterExchange is declared as the queue's x-dead-letter-exchange
	// argument when Base.DeadLetterQueue.Enabled is set, so the broker itself
	// routes rejected/expired messages without app involvement. Defaults to
	// Exchange + ".dlx".
	DeadLetterExchange string
	DeadLetterQueue    string

	Base messaging.Config
}

func (c Config) exchangeType() string {
	if c.ExchangeType != "" {
		return c.ExchangeType
	}
	return "direct"
}

func (c Config) deadLetterExchange() string {
	if c.DeadLetterExchange != "" {
		return c.DeadLetterExchange
	}
	return c.Exchange + ".dlx"
}

func (c Config) deadLetterQueue() string {
	if c.DeadLetterQueue != "" {
		return c.DeadLetterQueue
	}
	return c.Queue + ".dlq"
}
