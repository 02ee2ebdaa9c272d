package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Consumer pulls from a Pub/Sub subscription. Delivery is push-shape
// internally (Subscriber.Receive runs its own goroutine pool); Subscribe
// wraps it to present the module's blocking pull-shaped contract.
type Consumer struct {
	*messaging.BaseAdapter
	cfg        Config
	client     *pubsub.Client
	subscriber *pubsub.Subscriber
	connected  atomic.Bool
}

func NewConsumer(cfg Config) *Consumer {
	return &Consumer{BaseAdapter: messaging.NewBaseAdapter("pubsub", cfg.Base), cfg: cfg}
}

func (c *Consumer) Connect(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, c.cfg.ProjectID)
	if err != nil {
		return apperrors.ConnectionError(err)
	}

	subName := "projects/" + c.cfg.ProjectID + "/subscriptions/" + c.cfg.Subscription
	topicName := "projects/" + c.cfg.ProjectID + "/topics/" + c.cfg.Topic
	sub := &pubsubpb.Subscription{Name: subName, Topic: topicName}
	if c.cfg.Base.DeadLetterQueue.Enabled {
		dlqTopic := "projects/" + c.cfg.ProjectID + "/topics/" + c.cfg.deadLetterTopic()
		maxAttempts := int32(c.cfg.Base.DeadLetterQueue.MaxDeliveryAttempts)
		if maxAttempts < 5 {
			// Pub/Sub requires maxDeliveryAttempts in [5, 100].
			maxAttempts = 5
		}
		sub.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopic,
			MaxDeliveryAttempts: maxAttempts,
		}
	}

	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	if err != nil && !isAlreadyExists(err) {
		client.Close()
		return apperrors.ConnectionError(err)
	}

	c.client = client
	c.subscriber = client.Subscriber(c.cfg.Subscription)
	c.connected.Store(true)
	return nil
}

func (c *Consumer) Disconnect(context.Context) error {
	return c.Close()
}

func (c *Consumer) IsConnected() bool { return c.connected.Load() }

func deliveryAttempt(msg *pubsub.Message) int {
	if msg.DeliveryAttempt == nil {
		return 1
	}
	return *msg.DeliveryAttempt
}

func (c *Consumer) envelopeFor(msg *pubsub.Message) *messaging.Envelope {
	env := messaging.NewEnvelope(msg.ID, msg.Data, messaging.Metadata{
		Provider: messaging.ProviderPubSub,
		PubSub:   &messaging.PubSubMetadata{Subscription: c.cfg.Subscription, AckID: msg.ID, OrderingKey: msg.OrderingKey},
	}, pubsubSettler{msg: msg})
	env.Headers = msg.Attributes
	env.Timestamp = msg.PublishTime
	env.DeliveryAttempt = deliveryAttempt(msg)
	return env
}

// Subscribe calls Subscriber.Receive, which blocks and manages its own
// goroutine pool (ReceiveSettings.MaxOutstandingMessages bounds
// concurrency) until ctx is canceled.
func (c *Consumer) Subscribe(ctx context.Context, handler messaging.MessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	c.subscriber.ReceiveSettings.MaxOutstandingMessages = o.Concurrency

	err := c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.IsPaused() {
			msg.Nack()
			return
		}
		c.dispatch(ctx, msg, o.AutoAck, handler)
	})
	if err != nil && ctx.Err() == nil {
		c.Events().Emit(messaging.EventCrash, err)
		return apperrors.ConsumeError(err)
	}
	return nil
}

// SubscribeBatch accumulates envelopes from the push-shape callback up to
// BatchSize or BatchTimeout before invoking handler.
func (c *Consumer) SubscribeBatch(ctx context.Context, handler messaging.BatchMessageHandler, opts ...messaging.SubscribeOption) error {
	o := messaging.ResolveSubscribeOptions(opts)
	c.subscriber.ReceiveSettings.MaxOutstandingMessages = o.BatchSize

	var mu sync.Mutex
	var batch []*messaging.Envelope
	var raw []*pubsub.Message
	timer := time.NewTimer(o.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		mu.Lock()
		envs, msgs := batch, raw
		batch, raw = nil, nil
		mu.Unlock()
		if len(envs) == 0 {
			return
		}
		if err := handler(ctx, envs); err != nil {
			c.Events().Emit(messaging.EventError, err)
			for _, m := range msgs {
				m.Nack()
			}
			return
		}
		if o.AutoAck {
			for _, m := range msgs {
				m.Ack()
			}
		}
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				flush()
				timer.Reset(o.BatchTimeout)
			}
		}
	}()

	err := c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.IsPaused() {
			msg.Nack()
			return
		}
		env := c.envelopeFor(msg)
		c.Events().Emit(messaging.EventMessage, env)

		mu.Lock()
		batch = append(batch, env)
		raw = append(raw, msg)
		full := len(batch) >= o.BatchSize
		mu.Unlock()
		if full {
			flush()
			timer.Reset(o.BatchTimeout)
		}
	})
	if err != nil && ctx.Err() == nil {
		return apperrors.ConsumeError(err)
	}
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg *pubsub.Message, autoAck bool, handler messaging.MessageHandler) {
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
	// The subscription's own deadLetterPolicy (set at Connect) decides when
	// to stop redelivering; this adapter always nacks on failure.
	_ = env.Nack(ctx, true)
}

func (c *Consumer) Seek(ctx context.Context, position any) error {
	return apperrors.NotImplementedError("seek")
}

func (c *Consumer) GetLag(ctx context.Context) (int64, error) {
	return 0, apperrors.NotImplementedError("getLag")
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: c.connected.Load(), Connected: c.connected.Load()}
}

func (c *Consumer) Close() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	return c.client.Close()
}
