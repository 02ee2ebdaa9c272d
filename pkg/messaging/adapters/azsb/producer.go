package azsb

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Producer sends to a single Service Bus queue.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	connected atomic.Bool
}

func NewProducer(cfg Config) *Producer {
	return &Producer{BaseAdapter: messaging.NewBaseAdapter("azsb", cfg.Base), cfg: cfg}
}

func newClient(cfg Config) (*azservicebus.Client, error) {
	if cfg.ConnectionString != "" {
		return azservicebus.NewClientFromConnectionString(cfg.ConnectionString, nil)
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azservicebus.NewClient(cfg.Namespace, cred, nil)
}

func (p *Producer) Connect(ctx context.Context) error {
	client, err := newClient(p.cfg)
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	sender, err := client.NewSender(p.cfg.Queue, nil)
	if err != nil {
		_ = client.Close(ctx)
		return apperrors.ConnectionError(err)
	}
	p.client, p.sender = client, sender
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(ctx context.Context) error {
	return p.Close()
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func toMessage(body []byte, o messaging.PublishOptions) *azservicebus.Message {
	id := uuid.NewString()
	msg := &azservicebus.Message{
		Body:      body,
		MessageID: &id,
	}
	if len(o.Headers) > 0 {
		msg.ApplicationProperties = make(map[string]any, len(o.Headers))
		for k, v := range o.Headers {
			msg.ApplicationProperties[k] = v
		}
	}
	if o.GroupID != "" {
		msg.SessionID = &o.GroupID
	}
	if o.DeduplicationID != "" {
		msg.PartitionKey = &o.DeduplicationID
	}
	if o.CorrelationID != "" {
		msg.CorrelationID = &o.CorrelationID
	}
	if o.ReplyTo != "" {
		msg.ReplyTo = &o.ReplyTo
	}
	if o.TTL > 0 {
		ttl := o.TTL
		msg.TimeToLive = &ttl
	}
	if o.DelaySeconds > 0 {
		when := time.Now().Add(time.Duration(o.DelaySeconds) * time.Second)
		msg.ScheduledEnqueueTime = &when
	}
	return msg
}

func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)
	msg := toMessage(body, o)

	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
			return apperrors.PublishError(err)
		}
		return nil
	})
	return *msg.MessageID, err
}

func (p *Producer) PublishBatch(ctx context.Context, messages []messaging.OutgoingMessage) ([]string, error) {
	ids := make([]string, 0, len(messages))

	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		batch, err := p.sender.NewMessageBatch(ctx, nil)
		if err != nil {
			return apperrors.PublishError(err)
		}
		for _, m := range messages {
			o := messaging.ResolvePublishOptions(m.Options)
			msg := toMessage(m.Body, o)
			if ok, err := batch.AddMessage(msg, nil); err != nil {
				return apperrors.PublishError(err)
			} else if !ok {
				if err := p.sender.SendMessageBatch(ctx, batch, nil); err != nil {
					return apperrors.PublishError(err)
				}
				batch, err = p.sender.NewMessageBatch(ctx, nil)
				if err != nil {
					return apperrors.PublishError(err)
				}
				if _, err := batch.AddMessage(msg, nil); err != nil {
					return apperrors.PublishError(err)
				}
			}
			ids = append(ids, *msg.MessageID)
		}
		if batch.NumMessages() > 0 {
			if err := p.sender.SendMessageBatch(ctx, batch, nil); err != nil {
				return apperrors.PublishError(err)
			}
		}
		return nil
	})
	return ids, err
}

func (p *Producer) Flush(context.Context) error { return nil }

func (p *Producer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: p.connected.Load(), Connected: p.connected.Load()}
}

func (p *Producer) Close() error {
	if !p.connected.CompareAndSwap(true, false) {
		return nil
	}
	ctx := context.Background()
	_ = p.sender.Close(ctx)
	return p.client.Close(ctx)
}
