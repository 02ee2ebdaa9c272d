package azsb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// pausedPoll bounds how often a paused consumer rechecks instead of
// spin-polling while no work is being dispatched.
const pausedPoll = 50 * time.Millisecond

// Consumer pulls from a single Service Bus queue.
type Consumer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *azservicebus.Client
	receiver  *azservicebus.Receiver
	connected atomic.Bool
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{BaseAdapter: messaging.NewBaseAdapter("azsb", cfg.Base), cfg: cfg}
}

func (c *Consumer) Connect(ctx context.Context) error {
	client, err := newClient(c.cfg)
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	receiver, err := client.NewReceiverForQueue(c.cfg.Queue, nil)
	if err != nil {
		_ = client.Close(ctx)
		return apperrors.ConnectionError(err)
	}
	c.client, c.receiver = client, receiver
	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(ctx context.Context) error {
	return c.Close()
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func fromApplicationProperties(props map[string]any) map[string]string {
	if len(props) == 0 {
		return nil
	}
	headers := make(map[string]string, len(props))
	for k, v := range props {
		headers[k] = fmt.Sprintf("%v", v)
	}
	return headers
}

func (c *Consumer) envelopeFor(msg *azservicebus.ReceivedMessage) *messaging.Envelope {
	var sessionID string
	if msg.SessionID != nil {
		sessionID = *msg.SessionID
	}
	env := messaging.NewEnvelope(msg.MessageID, msg.Body, messaging.Metadata{
		Provider: messaging.ProviderAzureSB,
		AzureServiceBus: &messaging.AzureSBMetadata{
			Queue:       c.cfg.Queue,
			LockToken:   fmt.Sprintf("%x", msg.LockToken),
			SessionID:   sessionID,
			DeliveryCnt: int32(msg.DeliveryCount),
		},
	}, sbSettler{receiver: c.receiver, msg: msg, reason: messaging.DeathReasonMaxRetries})
	env.Headers = fromApplicationProperties(msg.ApplicationProperties)
	env.DeliveryAttempt = int(msg.DeliveryCount)
	return env
}

func (c *Consumer) receive(ctx context.Context, max int) ([]*azservicebus.ReceivedMessage, error) {
	var msgs []*azservicebus.ReceivedMessage
	err := c.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		m, err := c.receiver.ReceiveMessages(ctx, max, nil)
		if err != nil {
			return apperrors.ConsumeError(err)
		}
		msgs = m
		return nil
	})
	return msgs, err
}

func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if c.IsPaused() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausedPoll):
			}
			continue
		}

		msgs, err := c.receive(ctx, o.Concurrency)
		if err != nil {
			c.Events().Emit(messaging.EventError, err)
			continue
		}
		for _, msg := range msgs {
			env := c.envelopeFor(msg)
			c.Events().Emit(messaging.EventMessage, env)

			if err := handler(ctx, env); err != nil {
				c.Events().Emit(messaging.EventError, err)
				c.handleFailure(ctx, env)
				continue
			}
			if o.AutoAck {
				_ = env.Ack(ctx)
			}
		}
	}
}

func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if c.IsPaused() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausedPoll):
			}
			continue
		}

		msgs, err := c.receive(ctx, o.BatchSize)
		if err != nil {
			c.Events().Emit(messaging.EventError, err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		envs := make([]*messaging.Envelope, len(msgs))
		for i, msg := range msgs {
			envs[i] = c.envelopeFor(msg)
			c.Events().Emit(messaging.EventMessage, envs[i])
		}

		if err := handler(ctx, envs); err != nil {
			c.Events().Emit(messaging.EventError, err)
			for _, env := range envs {
				c.handleFailure(ctx, env)
			}
			continue
		}
		if o.AutoAck {
			for _, env := range envs {
				_ = env.Ack(ctx)
			}
		}
	}
}

// handleFailure dead-letters once the broker's own delivery count reaches
// MaxReceiveCount, otherwise abandons for immediate redelivery.
func (c *Consumer) handleFailure(ctx context.Context, env *messaging.Envelope) {
	if int32(env.DeliveryAttempt) >= c.cfg.maxReceiveCount() {
		_ = env.Nack(ctx, false)
		return
	}
	_ = env.Nack(ctx, true)
}

func (c *Consumer) Seek(context.Context, any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(context.Context) (int64, error) {
	return 0, apperrors.NotImplementedError("get lag")
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: c.connected.Load(), Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	ctx := context.Background()
	_ = c.receiver.Close(ctx)
	return c.client.Close(ctx)
}
