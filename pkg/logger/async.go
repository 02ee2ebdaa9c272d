package logger

import (
	"context"
	"log/slog"
)

// AsyncHandler buffers records through a channel and hands them to next on
// a single background goroutine, so Handle never blocks the caller on I/O.
// When the buffer is full, the incoming record is dropped rather than
// applying backpressure to the hot path — a logging handler must never be
// the reason a message producer/consumer stalls.
type AsyncHandler struct {
	next       slog.Handler
	ch         chan slog.Record
	dropNewest bool
}

// NewAsyncHandler starts the background drain goroutine and returns the
// wrapping handler. bufferSize bounds the channel. dropNewest is stored but
// does not change behaviour: with either value a full buffer drops the
// incoming record.
func NewAsyncHandler(next slog.Handler, bufferSize int, dropNewest bool) *AsyncHandler {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	h := &AsyncHandler{
		next:       next,
		ch:         make(chan slog.Record, bufferSize),
		dropNewest: dropNewest,
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	for r := range h.ch {
		_ = h.next.Handle(context.Background(), r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	select {
	case h.ch <- r.Clone():
	default:
		// buffer full: drop rather than block the caller.
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), ch: h.ch, dropNewest: h.dropNewest}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), ch: h.ch, dropNewest: h.dropNewest}
}
