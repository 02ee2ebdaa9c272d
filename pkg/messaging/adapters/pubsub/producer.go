package pubsub

import (
	"context"
	"sync/atomic"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Producer publishes to a single Pub/Sub topic.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *pubsub.Client
	publisher *pubsub.Publisher
	connected atomic.Bool
}

func NewProducer(cfg Config) *Producer {
	return &Producer{BaseAdapter: messaging.NewBaseAdapter("pubsub", cfg.Base), cfg: cfg}
}

// isAlreadyExists treats a gRPC AlreadyExists (code 6) as success: two
// producers racing to create the same topic is expected, not a fault.
func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func (p *Producer) Connect(ctx context.Context) error {
	client, err := pubsub.NewClient(ctx, p.cfg.ProjectID)
	if err != nil {
		return apperrors.ConnectionError(err)
	}

	topicName := "projects/" + p.cfg.ProjectID + "/topics/" + p.cfg.Topic
	_, err = client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	if err != nil && !isAlreadyExists(err) {
		client.Close()
		return apperrors.ConnectionError(err)
	}

	p.client = client
	p.publisher = client.Publisher(p.cfg.Topic)
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(context.Context) error {
	return p.Close()
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)

	var id string
	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		result := p.publisher.Publish(ctx, &pubsub.Message{
			Data:        body,
			Attributes:  o.Headers,
			OrderingKey: o.OrderingKey,
		})
		msgID, err := result.Get(ctx)
		if err != nil {
			return apperrors.PublishError(err)
		}
		id = msgID
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

// Flush blocks until every outstanding publish on this topic has been sent,
// then stops the publisher: later Publish calls on this Producer fail.
func (p *Producer) Flush(context.Context) error {
	p.publisher.Stop()
	return nil
}

func (p *Producer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: p.connected.Load(), Connected: p.connected.Load()}
}

func (p *Producer) Close() error {
	if !p.connected.CompareAndSwap(true, false) {
		return nil
	}
	p.publisher.Stop()
	return p.client.Close()
}
