package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"tradecore/internal/schema"
)

var (
	ErrQueueFull  = errors.New("event queue full")
	ErrBusClosed  = errors.New("event bus closed")
	ErrBusStarted = errors.New("event bus already started")
)

// Handler consumes a dispatched event. Handlers for one event kind are
// invoked sequentially; a returned error is logged and does not stop the
// dispatch loop.
type Handler func(ctx context.Context, event schema.Event) error

// queue is one kind's bounded channel. The lock covers the closed flag and
// every send: a publisher holds the read side for the whole send, so Stop's
// write lock cannot close the channel under a publisher mid-send.
type queue struct {
	ch   chan schema.Event
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Bus is a typed publish/dispatch mechanism with one bounded FIFO queue per
// event kind. Handlers for a single event complete before the next event of
// that kind is dispatched, so an event derived while handling another is
// always queued after its cause finished dispatching.
type Bus struct {
	capacity int
	queues   map[schema.EventKind]*queue
	handlers map[schema.EventKind][]Handler

	started uint32
	stopped uint32
}

// New allocates a bus whose per-kind queues hold capacity events.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	queues := make(map[schema.EventKind]*queue, len(schema.Kinds()))
	for _, kind := range schema.Kinds() {
		queues[kind] = &queue{
			ch:   make(chan schema.Event, capacity),
			done: make(chan struct{}),
		}
	}
	return &Bus{
		capacity: capacity,
		queues:   queues,
		handlers: make(map[schema.EventKind][]Handler),
	}
}

// Subscribe registers a handler for an event kind. Registration must happen
// before Start.
func (b *Bus) Subscribe(kind schema.EventKind, handler Handler) {
	if atomic.LoadUint32(&b.started) != 0 {
		panic("bus: subscribe after start")
	}
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish enqueues an event for dispatch. When the target queue is full the
// caller is suspended until space frees or the context is cancelled.
func (b *Bus) Publish(ctx context.Context, event schema.Event) error {
	q, ok := b.queues[event.Kind()]
	if !ok {
		return ErrBusClosed
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrBusClosed
	}
	select {
	case q.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues an event without blocking.
func (b *Bus) TryPublish(event schema.Event) error {
	q, ok := b.queues[event.Kind()]
	if !ok {
		return ErrBusClosed
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrBusClosed
	}
	select {
	case q.ch <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches one dispatch goroutine per event kind.
func (b *Bus) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&b.started, 0, 1) {
		return ErrBusStarted
	}
	for kind, q := range b.queues {
		handlers := b.handlers[kind]
		go func(kind schema.EventKind, q *queue, handlers []Handler) {
			defer close(q.done)
			b.dispatch(ctx, kind, q.ch, handlers)
		}(kind, q, handlers)
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, kind schema.EventKind, q chan schema.Event, handlers []Handler) {
	for event := range q {
		for _, handler := range handlers {
			if err := handler(ctx, event); err != nil {
				logs.Errorf("dispatch %s event, err: %+v", kind, err)
			}
		}
	}
}

// Drain closes one kind's queue and waits until its dispatcher finished the
// remaining events. Other kinds stay open, so handlers and external workers
// can still publish downstream events before the full Stop.
func (b *Bus) Drain(kind schema.EventKind) {
	b.stopKind(kind)
}

// Stop shuts the queues down in causal order: each kind is closed and fully
// drained before the next kind closes, so events a handler derives near the
// end of a run still reach their downstream queue.
func (b *Bus) Stop() {
	if !atomic.CompareAndSwapUint32(&b.stopped, 0, 1) {
		return
	}
	for _, kind := range schema.Kinds() {
		b.stopKind(kind)
	}
}

// stopKind closes a kind's channel behind its write lock, which waits out
// any publisher blocked on that queue; the publisher's send completes
// against the still-running dispatcher before the channel closes.
func (b *Bus) stopKind(kind schema.EventKind) {
	q, ok := b.queues[kind]
	if !ok {
		return
	}
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	if atomic.LoadUint32(&b.started) != 0 {
		<-q.done
	}
}

// Depth reports the number of queued events for a kind.
func (b *Bus) Depth(kind schema.EventKind) int {
	if q, ok := b.queues[kind]; ok {
		return len(q.ch)
	}
	return 0
}

// Capacity reports the per-kind queue capacity.
func (b *Bus) Capacity() int {
	return b.capacity
}
