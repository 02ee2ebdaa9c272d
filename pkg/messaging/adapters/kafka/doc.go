// Package kafka adapts github.com/IBM/sarama's sync producer and consumer
// group APIs to the module's Producer/Consumer contract.
//
// Kafka has no native nack: Consumer.handleFailure resets the consumer-group
// session's offset back to the failed message rather than calling a
// broker-side requeue. Kafka also has no delivery-attempt counter of its
// own; Envelope.DeliveryAttempt is synthesized best-effort from an
// in-process per-offset counter and resets across consumer restarts.
package kafka
