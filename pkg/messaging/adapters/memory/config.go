package memory

import (
	"time"

	"github.com/sns45/anyq/pkg/messaging"
)

// Config configures a memory Producer or Consumer.
type Config struct {
	// Queue names the in-memory queue. Producers and consumers sharing a
	// name read and write the same registry entry.
	Queue string

	// DeadLetterQueue names the queue dead-lettered messages are enqueued
	// onto. Defaults to Queue + ".dlq" when empty and
	// Base.DeadLetterQueue.Enabled is true.
	DeadLetterQueue string

	// MaxMessages bounds the queue depth; 0 means unbounded. Overflow drops
	// the oldest (head) message.
	MaxMessages int

	// MaxAge evicts messages older than this on the next enqueue; 0 disables
	// age-based eviction.
	MaxAge time.Duration

	// Base carries the shared resilience/logging/DLQ settings every adapter
	// accepts.
	Base messaging.Config
}

func (c Config) dlqName() string {
	if c.DeadLetterQueue != "" {
		return c.DeadLetterQueue
	}
	return c.Queue + ".dlq"
}
