package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
)

// redisSettler binds an Envelope to the consumer group entry it was read
// from. Redis has no negative-acknowledgement primitive: nack(requeue=true)
// is a no-op, leaving the entry in the group's pending-entries list for the
// next XAUTOCLAIM to recover; nack(requeue=false) XACKs it to drop it.
type redisSettler struct {
	client   *goredis.Client
	stream   string
	group    string
	consumer string
	id       string
}

func (s redisSettler) ack(ctx context.Context) error {
	return s.client.XAck(ctx, s.stream, s.group, s.id).Err()
}

func (s redisSettler) nack(ctx context.Context, requeue bool) error {
	if requeue {
		return nil
	}
	return s.client.XAck(ctx, s.stream, s.group, s.id).Err()
}

// extendDeadline reclaims the entry to this consumer with MinIdle 0, which
// resets its pending idle time the same way a visibility-timeout extension
// would on a lock-based backend.
func (s redisSettler) extendDeadline(ctx context.Context, _ int) error {
	_, err := s.client.XClaimJustID(ctx, &goredis.XClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  0,
		Messages: []string{s.id},
	}).Result()
	return err
}
