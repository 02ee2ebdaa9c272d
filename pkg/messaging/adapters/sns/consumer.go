package sns

import (
	"context"

	apperrors "github.com/sns45/anyq/pkg/errors"
	"github.com/sns45/anyq/pkg/messaging"
)

// Consumer satisfies messaging.Consumer for API symmetry but every receiving
// method returns NotImplementedError (Disconnect, Close and the status
// accessors return normally): SNS has no pull surface of its own, per the
// compatibility matrix's Ack "n/a" entry for this backend. Subscribers that
// need a pull interface should front the topic with an SQS subscription and
// use the sqs adapter instead.
type Consumer struct {
	emitter *messaging.Emitter
}

func NewConsumer(Config) *Consumer {
	return &Consumer{emitter: messaging.NewEmitter()}
}

func (c *Consumer) Connect(context.Context) error    { return apperrors.NotImplementedError("connect") }
func (c *Consumer) Disconnect(context.Context) error { return nil }
func (c *Consumer) IsConnected() bool                { return false }

func (c *Consumer) Subscribe(context.Context, messaging.MessageHandler, ...messaging.SubscribeOption) error {
	return apperrors.NotImplementedError("subscribe")
}

func (c *Consumer) SubscribeBatch(context.Context, messaging.BatchMessageHandler, ...messaging.SubscribeOption) error {
	return apperrors.NotImplementedError("subscribeBatch")
}

func (c *Consumer) Pause() error     { return apperrors.NotImplementedError("pause") }
func (c *Consumer) Resume() error    { return apperrors.NotImplementedError("resume") }
func (c *Consumer) IsPaused() bool   { return false }

func (c *Consumer) Seek(context.Context, any) error { return apperrors.NotImplementedError("seek") }
func (c *Consumer) GetLag(context.Context) (int64, error) {
	return 0, apperrors.NotImplementedError("getLag")
}

func (c *Consumer) HealthCheck(context.Context) messaging.HealthCheck {
	return messaging.HealthCheck{Healthy: false, Connected: false, Error: "sns has no consumer surface"}
}

func (c *Consumer) Events() *messaging.Emitter { return c.emitter }

func (c *Consumer) Close() error { return nil }
