//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/sns45/anyq/pkg/messaging"
	"github.com/sns45/anyq/pkg/messaging/adapters/redis"
	"github.com/sns45/anyq/pkg/messaging/tests"
)

// These tests spin up a real Redis container via testcontainers-go and run
// the shared conformance suite against the Streams adapter. Run with
// `go test -tags=integration ./...`; skipped otherwise since they need a
// working Docker daemon.
func TestRedisContractSuite(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "docker.io/redis:7")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	cfg := func(stream string) redis.Config {
		return redis.Config{
			Addr:   addr,
			Stream: stream,
			Group:  "cg-" + stream,
			Base: messaging.Config{
				DeadLetterQueue: messaging.DLQConfig{Enabled: true, MaxDeliveryAttempts: 2},
			},
		}
	}

	tests.RunContractSuite(t, tests.Factories{
		NewProducer: func(t *testing.T, name string) messaging.Producer {
			p := redis.NewProducer(cfg(name))
			require.NoError(t, p.Connect(ctx))
			t.Cleanup(func() { _ = p.Close() })
			return p
		},
		NewConsumer: func(t *testing.T, name string) messaging.Consumer {
			c := redis.NewConsumer(cfg(name))
			require.NoError(t, c.Connect(ctx))
			t.Cleanup(func() { _ = c.Close() })
			return c
		},
		DLQName: func(queueName string) string { return queueName + ".dlq" },
	})
}
