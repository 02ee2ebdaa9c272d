package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/sns45/anyq/pkg/errors"
)

// amqpSettler binds an Envelope to the delivery it was read from.
type amqpSettler struct {
	delivery amqp.Delivery
}

func (s amqpSettler) ack(context.Context) error {
	return s.delivery.Ack(false)
}

func (s amqpSettler) nack(_ context.Context, requeue bool) error {
	return s.delivery.Nack(false, requeue)
}

// extendDeadline has no RabbitMQ equivalent: a delivery's visibility is tied
// to its channel/connection, not a renewable lock.
func (amqpSettler) extendDeadline(context.Context, int) error {
	return apperrors.NotImplementedError("extendDeadline")
}
