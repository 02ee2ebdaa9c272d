package nats

import (
	"context"

	"github.com/nats-io/nats.go/jetstream"
)

// jsSettler binds an Envelope to the JetStream message it was delivered on.
type jsSettler struct {
	msg jetstream.Msg
}

func (s jsSettler) ack(context.Context) error {
	return s.msg.Ack()
}

// nack maps requeue=true onto Nak (immediate redelivery) and requeue=false
// onto Term (stop redelivering this message entirely).
func (s jsSettler) nack(_ context.Context, requeue bool) error {
	if requeue {
		return s.msg.Nak()
	}
	return s.msg.Term()
}

// extendDeadline maps onto InProgress, JetStream's "I'm still working on
// this" signal that resets the ack-wait timer.
func (s jsSettler) extendDeadline(_ context.Context, _ int) error {
	return s.msg.InProgress()
}
