package azsb

import "github.com/sns45/anyq/pkg/messaging"

// Config configures an Azure Service Bus Producer or Consumer.
type Config struct {
	// ConnectionString, when set, is used instead of Namespace+credential.
	ConnectionString string

	// Namespace is the fully-qualified namespace host, e.g.
	// "myspace.servicebus.windows.net", used with DefaultAzureCredential
	// when ConnectionString is empty.
	Namespace string

	Queue string

	// MaxReceiveCount mirrors the queue's own dead-lettering policy so the
	// consumer's delivery-attempt bookkeeping matches what the broker will
	// actually do; it does not configure the queue itself.
	MaxReceiveCount int32

	Base messaging.Config
}

func (c Config) maxReceiveCount() int32 {
	if c.MaxReceiveCount > 0 {
		return c.MaxReceiveCount
	}
	if c.Base.DeadLetterQueue.MaxDeliveryAttempts > 0 {
		return int32(c.Base.DeadLetterQueue.MaxDeliveryAttempts)
	}
	return 10
}
