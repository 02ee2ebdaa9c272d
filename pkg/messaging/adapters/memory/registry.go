package memory

import (
	"time"

	"github.com/sns45/anyq/pkg/datastructures/concurrentmap"
)

// registry is the process-wide name→queue map every memory Producer/Consumer
// shares. Queues are created lazily on first use of a given name.
var registry = concurrentmap.New[string, *memQueue](16)

// getOrCreateQueue returns the named queue, creating it with the given
// limits if it does not already exist. Limits supplied by a later caller for
// an already-existing queue are ignored — the first caller to touch a queue
// name owns its limits, matching the spec's "queues are created lazily"
// lifecycle.
func getOrCreateQueue(name string, maxMessages int, maxAge time.Duration) *memQueue {
	if q, ok := registry.Get(name); ok {
		return q
	}
	q := newMemQueue(name, maxMessages, maxAge)
	registry.Set(name, q)
	if existing, ok := registry.Get(name); ok {
		return existing
	}
	return q
}

// QueueStats reports a single queue's depth and in-flight count.
type QueueStats struct {
	Name            string
	Size            int
	ProcessingCount int
}

// GetQueueStats returns stats for every queue currently registered.
func GetQueueStats() []QueueStats {
	var out []QueueStats
	registry.Range(func(name string, q *memQueue) {
		out = append(out, QueueStats{
			Name:            name,
			Size:            q.size(),
			ProcessingCount: q.processingCount(),
		})
	})
	return out
}

// ClearAllQueues empties and unregisters every queue. Intended for tests and
// admin tooling only — never called from a production code path.
func ClearAllQueues() {
	var names []string
	registry.Range(func(name string, q *memQueue) {
		q.clear()
		names = append(names, name)
	})
	for _, name := range names {
		registry.Delete(name)
	}
}
