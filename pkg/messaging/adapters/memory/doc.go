// Package memory implements the in-memory reference backend: a process-wide
// registry of named FIFO queues with an in-flight map, used for local
// development and as the conformance baseline every external adapter is
// tested against.
//
// Usage:
//
//	p := memory.NewProducer(memory.Config{Queue: "orders", Base: messaging.DefaultConfig()})
//	c := memory.NewConsumer(memory.Config{Queue: "orders", Base: messaging.DefaultConfig()})
package memory
