/*
Package messaging provides a broker-agnostic abstraction over message queue
backends: a caller writes against one Producer/Consumer contract and swaps
backends — in-memory, Redis Streams, RabbitMQ, AWS SQS, AWS SNS, Google
Pub/Sub, Kafka, NATS JetStream, Azure Service Bus — without rewriting
business code.

# Architecture

The package follows the adapter pattern with decoupled dependencies:
  - Core interfaces, the envelope, and resilience composition are defined
    here (zero backend SDK dependencies)
  - Each backend lives in its own sub-package (pkg/messaging/adapters/{driver})
  - Callers import only the adapter they need, pulling only that SDK

# Usage

	import (
	    "github.com/sns45/anyq/pkg/messaging"
	    "github.com/sns45/anyq/pkg/messaging/adapters/memory"
	)

	producer := memory.NewProducer(memory.Config{Queue: "orders"})
	_ = producer.Connect(ctx)
	id, err := producer.Publish(ctx, []byte(`{"orderId":"123"}`))

	consumer := memory.NewConsumer(memory.Config{Queue: "orders"})
	_ = consumer.Connect(ctx)
	err = consumer.Subscribe(ctx, func(ctx context.Context, env *messaging.Envelope) error {
	    return process(env.Body)
	})
*/
package messaging
