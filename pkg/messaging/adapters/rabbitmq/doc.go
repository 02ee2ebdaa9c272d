// Package rabbitmq implements Producer/Consumer against RabbitMQ via
// amqp091-go. The producer opens its channel in confirm mode: Publish does
// not return until the broker has confirmed the message, and blocks for a
// channel-buffer-full drain the way a flow-controlled publisher must.
// Consumer delivery is push-shape (amqp091-go hands deliveries off a
// channel), wrapped in the module's pull-shaped Consumer interface by a
// dispatch loop over that channel. DLQ routing uses RabbitMQ's native
// x-dead-letter-exchange topology rather than an app-level republish.
package rabbitmq
