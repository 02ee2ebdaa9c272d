package azsb

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// sbSettler binds an Envelope to the receiver and message it was delivered
// on. Dead lettering goes through the queue's own sub-queue rather than an
// app-level republish.
type sbSettler struct {
	receiver *azservicebus.Receiver
	msg      *azservicebus.ReceivedMessage
	reason   string
}

func (s sbSettler) ack(ctx context.Context) error {
	return s.receiver.CompleteMessage(ctx, s.msg, nil)
}

// nack maps requeue=true onto AbandonMessage (returns to the queue for
// immediate redelivery) and requeue=false onto DeadLetterMessage (moves it
// to the queue's $DeadLetterQueue sub-queue).
func (s sbSettler) nack(ctx context.Context, requeue bool) error {
	if requeue {
		return s.receiver.AbandonMessage(ctx, s.msg, nil)
	}
	reason := s.reason
	return s.receiver.DeadLetterMessage(ctx, s.msg, &azservicebus.DeadLetterOptions{
		Reason: &reason,
	})
}

func (s sbSettler) extendDeadline(ctx context.Context, _ int) error {
	return s.receiver.RenewMessageLock(ctx, s.msg, nil)
}
