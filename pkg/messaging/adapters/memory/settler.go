package memory

import (
	"context"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// memSettler binds an Envelope to the queue and id it was dequeued from. The
// in-memory backend has no lock/visibility-timeout concept, so
// extendDeadline reports NotImplementedError rather than silently
// succeeding.
type memSettler struct {
	queue *memQueue
	id    string

	// dlq, queueName and maxAttempts let a clean nack(requeue=true) loop
	// dead-letter once it reaches the threshold, the same as the
	// handler-error path in consumer.go's handleFailure.
	dlq         *memQueue
	queueName   string
	maxAttempts int
}

func (s memSettler) ack(context.Context) error {
	s.queue.ack(s.id)
	return nil
}

func (s memSettler) nack(_ context.Context, requeue bool) error {
	msg, deadLettered, ok := s.queue.nackOrDeadLetter(s.id, requeue, s.maxAttempts)
	if !ok || !deadLettered || s.dlq == nil {
		return nil
	}
	headers := headersWithDeathInfo(msg.headers, s.queueName, messaging.DeathReasonMaxRetries, msg.deliveryAttempt)
	s.dlq.enqueue(msg.body, msg.key, headers)
	return nil
}

func (memSettler) extendDeadline(context.Context, int) error {
	return apperrors.NotImplementedError("extendDeadline")
}
