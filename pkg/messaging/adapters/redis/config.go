package redis

import (
	"time"

	"github.com/sns45/anyq/pkg/messaging"
)

// Config configures a Redis Streams Producer or Consumer.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Stream is the Redis Streams key.
	Stream string

	// Group is the consumer group name (Consumer only). Created with
	// XGROUP CREATE ... MKSTREAM on Connect if it does not already exist.
	Group string

	// Consumer names this process within Group. Defaults to Base.ClientID.
	Consumer string

	// ClaimMinIdle is how long a pending entry must sit unacknowledged
	// before XAUTOCLAIM recovers it to this consumer. Defaults to 30s.
	ClaimMinIdle time.Duration

	// DeadLetterStream names the stream dead-lettered entries are XADDed
	// onto. Defaults to Stream + ".dlq" when empty.
	DeadLetterStream string

	Base messaging.Config
}

func (c Config) claimMinIdle() time.Duration {
	if c.ClaimMinIdle > 0 {
		return c.ClaimMinIdle
	}
	return 30 * time.Second
}

func (c Config) dlqStream() string {
	if c.DeadLetterStream != "" {
		return c.DeadLetterStream
	}
	return c.Stream + ".dlq"
}

func (c Config) consumerName() string {
	if c.Consumer != "" {
		return c.Consumer
	}
	if c.Base.ClientID != "" {
		return c.Base.ClientID
	}
	return "consumer-1"
}
