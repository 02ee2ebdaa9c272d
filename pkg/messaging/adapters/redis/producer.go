package redis

import (
	"context"
	"encoding/json"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

const (
	fieldBody    = "body"
	fieldKey     = "key"
	fieldHeaders = "headers"
)

// Producer publishes to a single Redis stream via XADD.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *goredis.Client
	connected atomic.Bool
}

func NewProducer(cfg Config) *Producer {
	return &Producer{BaseAdapter: messaging.NewBaseAdapter("redis", cfg.Base), cfg: cfg}
}

func (p *Producer) Connect(ctx context.Context) error {
	p.client = goredis.NewClient(&goredis.Options{Addr: p.cfg.Addr, Password: p.cfg.Password, DB: p.cfg.DB})
	if err := p.client.Ping(ctx).Err(); err != nil {
		return apperrors.ConnectionError(err)
	}
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(context.Context) error {
	return p.Close()
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func encodeHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var headers map[string]string
	_ = json.Unmarshal([]byte(raw), &headers)
	return headers
}

func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)
	var id string
	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		res, err := p.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.cfg.Stream,
			Values: map[string]any{
				fieldBody:    body,
				fieldKey:     string(o.Key),
				fieldHeaders: encodeHeaders(o.Headers),
			},
		}).Result()
		if err != nil {
			return apperrors.PublishError(err)
		}
		id = res
		return nil
	})
	return id, err
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

func (p *Producer) Flush(context.Context) error { return nil }

func (p *Producer) HealthCheck(ctx context.Context) messaging.HealthCheck {
	if !p.connected.Load() {
		return messaging.HealthCheck{Healthy: false, Connected: false}
	}
	if err := p.client.Ping(ctx).Err(); err != nil {
		return messaging.HealthCheck{Healthy: false, Connected: true, Error: err.Error()}
	}
	return messaging.HealthCheck{Healthy: true, Connected: true}
}

func (p *Producer) Close() error {
	if !p.connected.CompareAndSwap(true, false) {
		return nil
	}
	return p.client.Close()
}
