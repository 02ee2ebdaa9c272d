// Package pubsub implements Producer/Consumer against Google Cloud Pub/Sub
// via cloud.google.com/go/pubsub/v2. Topology (topic, subscription, and its
// deadLetterPolicy) is created idempotently on Connect: a CreateTopic/
// CreateSubscription call that fails with a gRPC AlreadyExists (code 6) is
// treated as success rather than surfaced as a connection error, since two
// producers racing to create the same topic is an expected startup
// condition, not a fault. Delivery is push-shape: Subscriber.Receive runs
// its own callback goroutines, which this package's Subscribe/SubscribeBatch
// wrap to present the module's pull-shaped Consumer interface.
package pubsub
