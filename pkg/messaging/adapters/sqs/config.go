package sqs

import "github.com/sns45/anyq/pkg/messaging"

// Config configures an SQS Producer or Consumer.
type Config struct {
	Region   string
	QueueURL string

	// WaitTimeSeconds bounds the long-poll ReceiveMessage call. Defaults to
	// 20 (the SQS maximum) when zero.
	WaitTimeSeconds int32

	// VisibilityTimeout is the seconds a received message stays hidden from
	// other consumers before SQS redelivers it. Defaults to 30 when zero.
	VisibilityTimeout int32

	Base messaging.Config
}

func (c Config) waitTimeSeconds() int32 {
	if c.WaitTimeSeconds > 0 {
		return c.WaitTimeSeconds
	}
	return 20
}

func (c Config) visibilityTimeout() int32 {
	if c.VisibilityTimeout > 0 {
		return c.VisibilityTimeout
	}
	return 30
}
