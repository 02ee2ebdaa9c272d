package nats

import (
	"context"
	"strconv"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Producer publishes to a single JetStream subject.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	nc        *natsgo.Conn
	js        jetstream.JetStream
	connected atomic.Bool
}

func NewProducer(cfg Config) *Producer {
	return &Producer{BaseAdapter: messaging.NewBaseAdapter("nats", cfg.Base), cfg: cfg}
}

func (p *Producer) Connect(ctx context.Context) error {
	nc, err := natsgo.Connect(p.cfg.URL)
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return apperrors.ConnectionError(err)
	}
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     p.cfg.Stream,
		Subjects: []string{p.cfg.Subject, p.cfg.deadLetterSubject()},
	}); err != nil {
		nc.Close()
		return apperrors.ConnectionError(err)
	}

	p.nc, p.js = nc, js
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(context.Context) error {
	return p.Close()
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func toHeader(headers map[string]string) natsgo.Header {
	if len(headers) == 0 {
		return nil
	}
	h := natsgo.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}

func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)
	msg := &natsgo.Msg{Subject: p.cfg.Subject, Data: body, Header: toHeader(o.Headers)}

	var id string
	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		ack, err := p.js.PublishMsg(ctx, msg)
		if err != nil {
			return apperrors.PublishError(err)
		}
		id = ack.Stream + "-" + strconv.FormatUint(ack.Sequence, 10)
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

func (p *Producer) HealthCheck(context.Context) messaging.HealthCheck {
	healthy := p.connected.Load() && p.nc.IsConnected()
	return messaging.HealthCheck{Healthy: healthy, Connected: p.connected.Load()}
}

func (p *Producer) Close() error {
	if !p.connected.CompareAndSwap(true, false) {
		return nil
	}
	p.nc.Close()
	return nil
}
