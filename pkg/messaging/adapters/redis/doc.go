// Package redis implements Producer/Consumer against Redis Streams via
// go-redis/v9. Publish is a plain XADD; delivery uses a consumer group so
// multiple consumer processes share one stream's backlog.
//
// Redis has no native negative-acknowledgement primitive: a nacked entry is
// simply left in the group's pending-entries list (PEL), where the next
// XAUTOCLAIM recovers it for redelivery once its idle time passes
// cfg.ClaimMinIdle. Headers travel as a single JSON-encoded stream field
// since XADD fields are flat strings, not nested maps.
//
//	p := redis.NewProducer(redis.Config{Stream: "orders", Addr: "localhost:6379"})
//	c := redis.NewConsumer(redis.Config{Stream: "orders", Group: "workers", Addr: "localhost:6379"})
package redis
