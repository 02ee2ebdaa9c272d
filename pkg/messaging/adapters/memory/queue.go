package memory

import (
	"container/list"
	"sync/atomic"
	"time"

	"github.com/sns45/anyq/pkg/concurrency"
	"github.com/sns45/anyq/pkg/messaging"
)

// storedMessage is the in-memory backend's internal record. Unlike an
// Envelope it has no settler of its own — the queue that holds it is the
// settler, looked up by ID.
type storedMessage struct {
	id              string
	body            []byte
	key             []byte
	headers         map[string]string
	timestamp       time.Time
	deliveryAttempt int
}

var idSeq atomic.Uint64

func nextID() string {
	n := idSeq.Add(1)
	return "mem-" + time.Now().UTC().Format("20060102T150405.000000000") + "-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// memQueue is a single named FIFO queue: a sequence list plus an in-flight
// map of messages dequeued but not yet settled. Every mutation of seq and
// inFlight happens under mu, per the "serialized relative to one another"
// resource-model requirement. enqueue, dequeue, ack, deadLetter and clear
// hold mu for their whole duration; nack and nackOrDeadLetter release it
// after the in-flight removal and take it again in enqueueFront to requeue.
type memQueue struct {
	name string
	mu   *concurrency.SmartMutex

	seq      *list.List // of *storedMessage, FIFO order
	inFlight map[string]*storedMessage

	maxMessages int
	maxAge      time.Duration
}

func newMemQueue(name string, maxMessages int, maxAge time.Duration) *memQueue {
	return &memQueue{
		name:        name,
		mu:          concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "memQueue:" + name}),
		seq:         list.New(),
		inFlight:    make(map[string]*storedMessage),
		maxMessages: maxMessages,
		maxAge:      maxAge,
	}
}

// enqueue appends a new message to the tail, evicting aged-out and (on
// overflow) head entries first.
func (q *memQueue) enqueue(body, key []byte, headers map[string]string) *storedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.evictAgedLocked()

	msg := &storedMessage{
		id:        nextID(),
		body:      body,
		key:       key,
		headers:   headers,
		timestamp: time.Now(),
	}
	q.seq.PushBack(msg)

	if q.maxMessages > 0 {
		for q.seq.Len() > q.maxMessages {
			q.seq.Remove(q.seq.Front())
		}
	}
	return msg
}

// enqueueFront re-inserts a message at the head (used by nack requeue).
func (q *memQueue) enqueueFront(msg *storedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.PushFront(msg)
}

func (q *memQueue) evictAgedLocked() {
	if q.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-q.maxAge)
	for e := q.seq.Front(); e != nil; {
		next := e.Next()
		msg := e.Value.(*storedMessage)
		if msg.timestamp.Before(cutoff) {
			q.seq.Remove(e)
		} else {
			break
		}
		e = next
	}
}

// dequeue removes the head message, moves it to the in-flight map with an
// incremented delivery attempt, and returns it.
func (q *memQueue) dequeue() (*storedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.seq.Front()
	if front == nil {
		return nil, false
	}
	msg := q.seq.Remove(front).(*storedMessage)
	msg.deliveryAttempt++
	q.inFlight[msg.id] = msg
	return msg, true
}

// dequeueBatch dequeues up to n messages, stopping early if the queue empties.
func (q *memQueue) dequeueBatch(n int) []*storedMessage {
	out := make([]*storedMessage, 0, n)
	for i := 0; i < n; i++ {
		msg, ok := q.dequeue()
		if !ok {
			break
		}
		out = append(out, msg)
	}
	return out
}

// ack removes id from the in-flight map, reporting whether it was present.
func (q *memQueue) ack(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inFlight[id]; !ok {
		return false
	}
	delete(q.inFlight, id)
	return true
}

// nack removes id from the in-flight map; if requeue, it pushes the message
// back to the queue's head via enqueueFront (called after mu is released,
// since enqueueFront takes mu itself). The removed message is returned.
func (q *memQueue) nack(id string, requeue bool) (*storedMessage, bool) {
	q.mu.Lock()
	msg, ok := q.inFlight[id]
	if !ok {
		q.mu.Unlock()
		return nil, false
	}
	delete(q.inFlight, id)
	q.mu.Unlock()

	if requeue {
		q.enqueueFront(msg)
	}
	return msg, true
}

// nackOrDeadLetter is nack's dead-letter-aware variant: when requeue is true
// but the message's delivery attempt has already reached maxAttempts, it is
// dead-lettered instead of requeued — a clean nack loop that reaches the
// threshold dead-letters the same as a handler-error loop does. maxAttempts
// <= 0 disables the check (requeue behaves like plain nack).
func (q *memQueue) nackOrDeadLetter(id string, requeue bool, maxAttempts int) (msg *storedMessage, deadLettered bool, ok bool) {
	q.mu.Lock()
	m, present := q.inFlight[id]
	if !present {
		q.mu.Unlock()
		return nil, false, false
	}
	delete(q.inFlight, id)
	deadLettered = requeue && maxAttempts > 0 && m.deliveryAttempt >= maxAttempts
	q.mu.Unlock()

	if requeue && !deadLettered {
		q.enqueueFront(m)
	}
	return m, deadLettered, true
}

// deadLetter removes id from the in-flight map and returns the message for
// the caller to enqueue onto the DLQ with augmented headers.
func (q *memQueue) deadLetter(id string) (*storedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.inFlight[id]
	if !ok {
		return nil, false
	}
	delete(q.inFlight, id)
	return msg, true
}

func (q *memQueue) clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq.Init()
	q.inFlight = make(map[string]*storedMessage)
}

func (q *memQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq.Len()
}

func (q *memQueue) processingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

func (q *memQueue) isEmpty() bool {
	return q.size() == 0
}

// headersWithDeathInfo builds the augmented header set a dead-lettered
// message carries onto its DLQ, per messaging.Header* constants.
func headersWithDeathInfo(original map[string]string, originalQueue, reason string, attempts int) map[string]string {
	h := make(map[string]string, len(original)+4)
	for k, v := range original {
		h[k] = v
	}
	h[messaging.HeaderOriginalQueue] = originalQueue
	h[messaging.HeaderDeathReason] = reason
	h[messaging.HeaderDeathTime] = time.Now().UTC().Format(time.RFC3339Nano)
	h[messaging.HeaderDeliveryAttempts] = itoa(uint64(attempts))
	return h
}
