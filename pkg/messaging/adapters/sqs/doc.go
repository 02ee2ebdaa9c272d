// Package sqs implements Producer/Consumer against AWS SQS via
// aws-sdk-go-v2/service/sqs. Delivery uses long-poll ReceiveMessage;
// DeliveryAttempt is read straight off the ApproximateReceiveCount system
// attribute rather than an app-level counter, since SQS tracks it natively.
// Ack is DeleteMessage; nack(requeue=true) resets the visibility timeout to
// zero for immediate redelivery; ExtendDeadline changes it forward. DLQ
// routing rides the queue's own redrive policy: nack(requeue=false) leaves
// the message in place, so it reappears after its visibility timeout and
// SQS's native receive count decides when the redrive policy moves it,
// rather than the app republishing to a dead-letter queue itself.
package sqs
