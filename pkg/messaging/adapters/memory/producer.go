package memory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sns45/anyq/pkg/datastructures/queue/delay"
	"github.com/sns45/anyq/pkg/messaging"
)

// delayed is parked in the package-wide delay queue by Publish's WithDelay
// option and moved into its target memQueue by the mover goroutine once
// ready.
type delayed struct {
	queue   *memQueue
	body    []byte
	key     []byte
	headers map[string]string
}

var delayQueue = delay.New[delayed]()

func init() {
	go moveDelayed()
}

func moveDelayed() {
	ctx := context.Background()
	for {
		d, err := delayQueue.DequeueContext(ctx)
		if err != nil {
			return
		}
		d.queue.enqueue(d.body, d.key, d.headers)
	}
}

// Producer publishes to a single named in-memory queue.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	queue     *memQueue
	connected atomic.Bool
}

// NewProducer constructs a memory Producer for cfg.Queue. The underlying
// queue is created (or reused) lazily on Connect.
func NewProducer(cfg Config) *Producer {
	return &Producer{
		BaseAdapter: messaging.NewBaseAdapter("memory", cfg.Base),
		cfg:         cfg,
	}
}

func (p *Producer) Connect(ctx context.Context) error {
	p.queue = getOrCreateQueue(p.cfg.Queue, p.cfg.MaxMessages, p.cfg.MaxAge)
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(context.Context) error {
	p.connected.Store(false)
	return nil
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)

	var id string
	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		if o.DelaySeconds > 0 {
			delayQueue.Enqueue(delayed{queue: p.queue, body: body, key: o.Key, headers: o.Headers}, time.Duration(o.DelaySeconds)*time.Second)
			return nil
		}
		msg := p.queue.enqueue(body, o.Key, o.Headers)
		id = msg.id
		return nil
	})
	return id, err
}

func (p *Producer) PublishBatch(ctx context.Context, messages []messaging.OutgoingMessage) ([]string, error) {
	ids := make([]string, len(messages))
	for i, m := range messages {
		id, err := p.Publish(ctx, m.Body, m.Options...)
		if err != nil {
			return ids[:i], err
		}
		ids[i] = id
	}
	return ids, nil
}

// Flush is a no-op: the memory backend has no producer-side buffering.
func (p *Producer) Flush(context.Context) error { return nil }

func (p *Producer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: p.connected.Load(), Connected: p.connected.Load()}
}

func (p *Producer) Close() error {
	p.connected.Store(false)
	return nil
}
