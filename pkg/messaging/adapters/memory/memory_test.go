package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sns45/anyq/pkg/messaging"
	"github.com/sns45/anyq/pkg/messaging/adapters/memory"
	mtests "github.com/sns45/anyq/pkg/messaging/tests"
)

func baseConfig() messaging.Config {
	cfg := messaging.DefaultConfig()
	cfg.Logging.Enabled = false
	cfg.DeadLetterQueue.Enabled = true
	cfg.DeadLetterQueue.MaxDeliveryAttempts = 2
	return cfg
}

func TestMemoryAdapterContract(t *testing.T) {
	mtests.RunContractSuite(t, mtests.Factories{
		NewProducer: func(t *testing.T, name string) messaging.Producer {
			return memory.NewProducer(memory.Config{Queue: name, Base: baseConfig()})
		},
		NewConsumer: func(t *testing.T, name string) messaging.Consumer {
			return memory.NewConsumer(memory.Config{Queue: name, Base: baseConfig()})
		},
		DLQName: func(queueName string) string { return queueName + ".dlq" },
	})
}

func TestMemoryProducerOverflowDropsOldest(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig()
	name := t.Name()

	p := memory.NewProducer(memory.Config{Queue: name, MaxMessages: 2, Base: cfg})
	require.NoError(t, p.Connect(ctx))
	defer p.Close()

	_, err := p.Publish(ctx, []byte{1})
	require.NoError(t, err)
	_, err = p.Publish(ctx, []byte{2})
	require.NoError(t, err)
	_, err = p.Publish(ctx, []byte{3})
	require.NoError(t, err)

	c := memory.NewConsumer(memory.Config{Queue: name, Base: cfg})
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var got []byte
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	go c.Subscribe(cctx, func(ctx context.Context, env *messaging.Envelope) error {
		got = append(got, env.Body[0])
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	<-cctx.Done()

	require.Equal(t, []byte{2, 3}, got, "overflow must drop the oldest (head) message")
}

func TestMemoryRegistryStats(t *testing.T) {
	ctx := context.Background()
	cfg := baseConfig()
	name := t.Name()

	p := memory.NewProducer(memory.Config{Queue: name, Base: cfg})
	require.NoError(t, p.Connect(ctx))
	defer p.Close()
	_, err := p.Publish(ctx, []byte("x"))
	require.NoError(t, err)

	found := false
	for _, s := range memory.GetQueueStats() {
		if s.Name == name {
			found = true
			require.Equal(t, 1, s.Size)
		}
	}
	require.True(t, found, "published queue must appear in GetQueueStats")

	memory.ClearAllQueues()
	require.Empty(t, memory.GetQueueStats())
}
