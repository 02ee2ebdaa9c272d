package rabbitmq

import (
	"context"
	"strconv"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Producer publishes to a RabbitMQ exchange/routing-key through a
// confirm-mode channel.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	conn      *amqp.Connection
	ch        *amqp.Channel
	connected atomic.Bool
}

func NewProducer(cfg Config) *Producer {
	return &Producer{BaseAdapter: messaging.NewBaseAdapter("rabbitmq", cfg.Base), cfg: cfg}
}

func (p *Producer) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return apperrors.ConnectionError(err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return apperrors.ConnectionError(err)
	}
	if p.cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(p.cfg.Exchange, p.cfg.exchangeType(), true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return apperrors.ConnectionError(err)
		}
	}

	p.conn, p.ch = conn, ch
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(context.Context) error {
	return p.Close()
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	t := make(amqp.Table, len(headers))
	for k, v := range headers {
		t[k] = v
	}
	return t
}

// Publish sends body on a confirm-mode channel and blocks until the broker
// acknowledges it, per the documented confirm-channel producer shape.
func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)
	routingKey := p.cfg.RoutingKey
	if o.GroupID != "" {
		routingKey = o.GroupID
	}

	var id string
	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.cfg.Exchange, routingKey, false, false, amqp.Publishing{
			Body:          body,
			Headers:       toTable(o.Headers),
			MessageId:     o.CorrelationID,
			CorrelationId: o.CorrelationID,
			ReplyTo:       o.ReplyTo,
			Priority:      uint8(o.Priority),
			Expiration:    ttlMillis(o),
		})
		if err != nil {
			return apperrors.PublishError(err)
		}
		ok, err := confirm.WaitContext(ctx)
		if err != nil {
			return apperrors.PublishError(err)
		}
		if !ok {
			return apperrors.PublishError(nil)
		}
		id = o.CorrelationID
		return nil
	})
	return id, err
}

func ttlMillis(o messaging.PublishOptions) string {
	if o.TTL <= 0 {
		return ""
	}
	return strconv.FormatInt(o.TTL.Milliseconds(), 10)
}

func (p *Producer) PublishBatch(ctx context.Context, messages []messaging.OutgoingMessage) ([]string, error) {
	ids := make([]string, len(messages))
	for i, m := range messages {
		id, err := p.Publish(ctx, m.Body, m.Options...)
		if err != nil {
			return ids, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Flush is a no-op: Publish already waits for the broker's confirm.
func (p *Producer) Flush(context.Context) error { return nil }

func (p *Producer) HealthCheck(context.Context) messaging.HealthCheck {
	healthy := p.connected.Load() && !p.conn.IsClosed()
	return messaging.HealthCheck{Healthy: healthy, Connected: p.connected.Load()}
}

func (p *Producer) Close() error {
	if !p.connected.CompareAndSwap(true, false) {
		return nil
	}
	_ = p.ch.Close()
	return p.conn.Close()
}
