package sqs

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/sns45/anyq/pkg/concurrency"
	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// pausedPoll bounds how long a paused consumer sleeps between checks,
// short enough to resume promptly without busy-spinning on IsPaused.
const pausedPoll = 50 * time.Millisecond

// Consumer long-polls a single SQS queue.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *sqs.Client
	connected atomic.Bool
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{BaseAdapter: messaging.NewBaseAdapter("sqs", cfg.Base), cfg: cfg}
}

func (c *Consumer) Connect(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.cfg.Region))
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	c.client = sqs.NewFromConfig(awsCfg)
	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(context.Context) error {
	c.connected.Store(false)
	return nil
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func receiveAttempt(msg types.Message) int {
	raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func fromMessageAttributes(attrs map[string]types.MessageAttributeValue) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	headers := make(map[string]string, len(attrs))
	for k, v := range attrs {
		headers[k] = aws.ToString(v.StringValue)
	}
	return headers
}

func (c *Consumer) envelopeFor(msg types.Message) *messaging.Envelope {
	env := messaging.NewEnvelope(aws.ToString(msg.MessageId), []byte(aws.ToString(msg.Body)), messaging.Metadata{
		Provider: messaging.ProviderSQS,
		SQS: &messaging.SQSMetadata{
			QueueURL:              c.cfg.QueueURL,
			ReceiptHandle:         aws.ToString(msg.ReceiptHandle),
			ApproximateReceiveCnt: receiveAttempt(msg),
		},
	}, sqsSettler{client: c.client, queueURL: c.cfg.QueueURL, receiptHandle: aws.ToString(msg.ReceiptHandle)})
	env.Headers = fromMessageAttributes(msg.MessageAttributes)
	env.DeliveryAttempt = receiveAttempt(msg)
	return env
}

func (c *Consumer) receive(ctx context.Context, max int32) ([]types.Message, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.cfg.QueueURL),
		MaxNumberOfMessages:   max,
		WaitTimeSeconds:       c.cfg.waitTimeSeconds(),
		VisibilityTimeout:     c.cfg.visibilityTimeout(),
		MessageAttributeNames: []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	sem := concurrency.NewSemaphore(int64(o.Concurrency))
	max := int32(o.Concurrency)
	if max > 10 {
		max = 10
	}
	if max < 1 {
		max = 1
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.IsPaused() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausedPoll):
			}
			continue
		}
		msgs, err := c.receive(ctx, max)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Events().Emit(messaging.EventError, err)
			continue
		}
		for _, msg := range msgs {
			msg := msg
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			concurrency.SafeGo(ctx, func() {
				defer sem.Release(1)
				c.dispatch(ctx, msg, o.AutoAck, handler)
			})
		}
	}
}

func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	max := int32(o.BatchSize)
	if max > 10 {
		max = 10
	}
	if max < 1 {
		max = 1
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.IsPaused() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausedPoll):
			}
			continue
		}
		msgs, err := c.receive(ctx, max)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Events().Emit(messaging.EventError, err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		c.dispatchBatch(ctx, msgs, o.AutoAck, handler)
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg types.Message, autoAck bool, handler messaging.MessageHandler) {
	env := c.envelopeFor(msg)
	c.Events().Emit(messaging.EventMessage, env)
	err := handler(ctx, env)
	if err == nil {
		if autoAck {
			_ = env.Ack(ctx)
		}
		return
	}
	c.Events().Emit(messaging.EventError, err)
	c.handleFailure(ctx, env, err)
}

func (c *Consumer) dispatchBatch(ctx context.Context, msgs []types.Message, autoAck bool, handler messaging.BatchMessageHandler) {
	envs := make([]*messaging.Envelope, len(msgs))
	for i, m := range msgs {
		envs[i] = c.envelopeFor(m)
		c.Events().Emit(messaging.EventMessage, envs[i])
	}

	err := handler(ctx, envs)
	if err == nil {
		if autoAck {
			for _, env := range envs {
				_ = env.Ack(ctx)
			}
		}
		return
	}
	c.Events().Emit(messaging.EventError, err)
	for _, env := range envs {
		c.handleFailure(ctx, env, err)
	}
}

// handleFailure nacks with requeue while the attempt budget remains; once
// spent it logs the reason and nacks without requeue, per the open question
// decided in DESIGN.md, leaving the message to the queue's own redrive
// policy; without one, SQS redelivers it after each visibility timeout.
func (c *Consumer) handleFailure(ctx context.Context, env *messaging.Envelope, cause error) {
	maxAttempts := c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts
	if maxAttempts > 0 && env.DeliveryAttempt >= maxAttempts {
		c.Log.ErrorContext(ctx, "sqs message exhausted delivery attempts",
			"message_id", env.ID, "attempts", env.DeliveryAttempt, "cause", cause)
		_ = env.Nack(ctx, false)
		return
	}
	_ = env.Nack(ctx, true)
}

func (c *Consumer) Seek(ctx context.Context, position any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(ctx context.Context) (int64, error) {
	out, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(c.cfg.QueueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, apperrors.ConsumeError(err)
	}
	raw := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n, nil
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: c.connected.Load(), Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	c.connected.Store(false)
	return nil
}
