package offline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/lingobridge/backend/internal/model/translation"
)

const (
	// DefaultCapacity bounds the buffer; beyond it the oldest pending event
	// is evicted and explicitly failed, never silently lost.
	DefaultCapacity = 100

	// DefaultAckTimeout is the per-entry wait for relay acknowledgment
	// during replay before the entry is retried.
	DefaultAckTimeout = 10 * time.Second
)

var ErrFlushInProgress = errors.New("flush already in progress")

// Sender replays one event to the relay and returns once the relay has
// acknowledged it.
type Sender interface {
	Send(ctx context.Context, event translation.Event) error
}

// QueuedEvent pairs a captured event with its insertion sequence number.
type QueuedEvent struct {
	Seq   uint64
	Event translation.Event
}

// Queue buffers outgoing translation events while the relay is unreachable
// and replays them in strict insertion order once it is back. Held only in
// memory: replay across a process restart is best-effort, and Durable
// advertises that to callers.
type Queue struct {
	mu         sync.Mutex
	entries    []QueuedEvent
	nextSeq    uint64
	capacity   int
	ackTimeout time.Duration
	flushing   bool
	onEvict    func(translation.Event)
}

// Options tune queue behavior; zero values take defaults.
type Options struct {
	Capacity   int
	AckTimeout time.Duration

	// OnEvict observes events dropped by capacity overflow, already marked
	// failed. Clients surface these to the user.
	OnEvict func(translation.Event)
}

// NewQueue builds an empty queue.
func NewQueue(opts Options) *Queue {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	ackTimeout := opts.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	return &Queue{
		capacity:   capacity,
		ackTimeout: ackTimeout,
		onEvict:    opts.OnEvict,
	}
}

// Durable reports whether queued events survive a process restart.
func (q *Queue) Durable() bool { return false }

// Len returns how many events await replay.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending returns a copy of the not-yet-replayed events in order.
func (q *Queue) Pending() []QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedEvent, len(q.entries))
	copy(out, q.entries)
	return out
}

// Enqueue appends an event with the next sequence number. On overflow the
// oldest pending event is evicted, marked failed, and handed to OnEvict.
func (q *Queue) Enqueue(event translation.Event) uint64 {
	q.mu.Lock()

	event.State = translation.StatePending
	seq := q.nextSeq
	q.nextSeq++
	q.entries = append(q.entries, QueuedEvent{Seq: seq, Event: event})

	var evicted *translation.Event
	if len(q.entries) > q.capacity {
		oldest := q.entries[0]
		q.entries = q.entries[1:]
		oldest.Event.State = translation.StateFailed
		evicted = &oldest.Event
	}
	onEvict := q.onEvict
	q.mu.Unlock()

	if evicted != nil {
		log.Printf("[offline] capacity exceeded, failed oldest message=%s", evicted.ID)
		if onEvict != nil {
			onEvict(*evicted)
		}
	}
	return seq
}

// Flush replays every queued event to the relay in sequence order, waiting
// for acknowledgment of each before sending the next. An entry that times
// out is retried, not abandoned; the whole flush stops only when the context
// is cancelled. Call once per offline-to-online transition.
func (q *Queue) Flush(ctx context.Context, sender Sender) error {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return ErrFlushInProgress
	}
	q.flushing = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return nil
		}
		head := q.entries[0]
		q.mu.Unlock()

		if err := q.sendWithRetry(ctx, sender, head); err != nil {
			return err
		}

		// Acknowledged: drop the head so it is never replayed again.
		q.mu.Lock()
		if len(q.entries) > 0 && q.entries[0].Seq == head.Seq {
			q.entries = q.entries[1:]
		}
		q.mu.Unlock()
	}
}

func (q *Queue) sendWithRetry(ctx context.Context, sender Sender, entry QueuedEvent) error {
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, q.ackTimeout)
		err := sender.Send(attemptCtx, entry.Event)
		if err == nil {
			cancel()
			return nil
		}
		if ctx.Err() != nil {
			cancel()
			return ctx.Err()
		}
		log.Printf("[offline] replay attempt failed seq=%d message=%s, retrying: %v", entry.Seq, entry.Event.ID, err)

		// A fast failure still consumes the rest of its attempt window, so a
		// dead link retries once per ack timeout instead of spinning.
		<-attemptCtx.Done()
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
