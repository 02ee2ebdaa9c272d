// Package nats implements Producer/Consumer against NATS JetStream via
// nats-io/nats.go. Connect auto-creates the stream and a durable pull
// consumer if they do not already exist. Ack/Nack map onto
// jetstream.Msg.Ack()/Nak(). Once a message's JetStream-tracked delivery
// count reaches the configured MaxDeliver, the consumer mirrors it onto
// the dead-letter subject and calls msg.Term() to stop redelivery.
package nats
