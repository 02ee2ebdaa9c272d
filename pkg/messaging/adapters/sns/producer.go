package sns

import (
	"context"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/sns45/anyq/pkg/concurrency"
	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Producer publishes to a single SNS topic.
type Producer struct {
	*messaging.BaseAdapter
	cfg       Config
	client    *sns.Client
	connected atomic.Bool
}

func NewProducer(cfg Config) *Producer {
	return &Producer{BaseAdapter: messaging.NewBaseAdapter("sns", cfg.Base), cfg: cfg}
}

func (p *Producer) Connect(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return apperrors.ConnectionError(err)
	}
	p.client = sns.NewFromConfig(awsCfg)
	p.connected.Store(true)
	return nil
}

func (p *Producer) Disconnect(context.Context) error {
	p.connected.Store(false)
	return nil
}

func (p *Producer) IsConnected() bool { return p.connected.Load() }

func toMessageAttributes(headers map[string]string) map[string]types.MessageAttributeValue {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]types.MessageAttributeValue, len(headers))
	for k, v := range headers {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	return attrs
}

func (p *Producer) Publish(ctx context.Context, body []byte, opts ...messaging.PublishOption) (string, error) {
	o := messaging.ResolvePublishOptions(opts)

	input := &sns.PublishInput{
		TopicArn:          aws.String(p.cfg.TopicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: toMessageAttributes(o.Headers),
	}
	if o.GroupID != "" {
		input.MessageGroupId = aws.String(o.GroupID)
	}
	if o.DeduplicationID != "" {
		input.MessageDeduplicationId = aws.String(o.DeduplicationID)
	}

	var id string
	err := p.ExecuteWithResilience(ctx, func(ctx context.Context) error {
		out, err := p.client.Publish(ctx, input)
		if err != nil {
			return apperrors.PublishError(err)
		}
		id = aws.ToString(out.MessageId)
		return nil
	})
	return id, err
}

// PublishBatch fans each message out to its own Publish call concurrently:
// each is an independent HTTP round trip to SNS with no cross-message
// ordering guarantee on a standard (non-FIFO) topic, so there is nothing to
// lose by not serializing them. A FIFO topic relying on MessageGroupId
// ordering should use sequential Publish calls within a group instead.
func (p *Producer) PublishBatch(ctx context.Context, messages []messaging.OutgoingMessage) ([]string, error) {
	ids := make([]string, len(messages))
	errs := make([]error, len(messages))
	concurrency.FanOut(ctx, len(messages), func(i int) {
		id, err := p.Publish(ctx, messages[i].Body, messages[i].Options...)
		ids[i] = id
		errs[i] = err
	})
	for _, err := range errs {
		if err != nil {
			return ids, err
		}
	}
	return ids, nil
}

func (p *Producer) Flush(context.Context) error { return nil }

func (p *Producer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: p.connected.Load(), Connected: p.connected.Load()}
}

func (p *Producer) Close() error {
	p.connected.Store(false)
	return nil
}
