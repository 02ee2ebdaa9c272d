package sqs

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsSettler binds an Envelope to the receipt handle it was delivered with.
type sqsSettler struct {
	client        *sqs.Client
	queueURL      string
	receiptHandle string
}

func (s sqsSettler) ack(ctx context.Context) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: aws.String(s.receiptHandle),
	})
	return err
}

// nack resets the visibility timeout to zero on requeue, making the
// message immediately eligible for redelivery. Without requeue it leaves
// the message untouched: it becomes visible again when its visibility
// timeout expires, and the queue's redrive policy (if any) moves it to the
// dead-letter queue once its receive count passes maxReceiveCount.
func (s sqsSettler) nack(ctx context.Context, requeue bool) error {
	if !requeue {
		return nil
	}
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     aws.String(s.receiptHandle),
		VisibilityTimeout: 0,
	})
	return err
}

func (s sqsSettler) extendDeadline(ctx context.Context, seconds int) error {
	_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(s.queueURL),
		ReceiptHandle:     aws.String(s.receiptHandle),
		VisibilityTimeout: int32(seconds),
	})
	return err
}
