package pubsub

import (
	"context"

	"cloud.google.com/go/pubsub/v2"

	apperrors "github.com/sns45/anyq/pkg/errors"
)

// pubsubSettler binds an Envelope to the delivered message it came from.
type pubsubSettler struct {
	msg *pubsub.Message
}

func (s pubsubSettler) ack(context.Context) error {
	s.msg.Ack()
	return nil
}

// nack always redelivers via Nack, whatever requeue says; Pub/Sub has no
// drop-without-redeliver primitive short of Ack'ing. The subscription's
// deadLetterPolicy decides when a repeatedly nacked message is dead-lettered.
func (s pubsubSettler) nack(context.Context, bool) error {
	s.msg.Nack()
	return nil
}

// extendDeadline is managed internally by the client library's streaming
// lease extension; there is no public per-message API to drive it directly.
func (pubsubSettler) extendDeadline(context.Context, int) error {
	return apperrors.NotImplementedError("extendDeadline")
}
