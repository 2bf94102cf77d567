// Package dispatch owns the one logical thread of the client. Server pushes
// arrive on transport-owned goroutines; everything consumer-visible runs on
// the bus's single drain goroutine, in arrival order. That loop is the only
// code allowed to mutate synchronized state (lobby, game, friends), which is
// what lets those components skip locking entirely.
package dispatch

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/loteria-online/client/internal/protocol"
)

// Handler consumes one decoded event payload. Handlers never run
// concurrently with each other or with functions passed to Do.
type Handler func(payload interface{})

// Subscription identifies one registered handler for later removal.
type Subscription struct {
	eventType protocol.EventType
	id        uint64
}

type task struct {
	eventType protocol.EventType
	payload   interface{}
	fn        func()
}

type subEntry struct {
	id      uint64
	handler Handler
}

// Bus is a process-scoped broadcast bus with a single-consumer queue.
// Publish and Do may be called from any goroutine; the queue is unbounded,
// so producers never block and no notification is ever dropped.
type Bus struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool

	subs   map[protocol.EventType][]subEntry
	nextID uint64

	done chan struct{}
}

// NewBus creates the bus and starts its drain loop.
func NewBus() *Bus {
	b := &Bus{
		subs: make(map[protocol.EventType][]subEntry),
		done: make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.drain()
	return b
}

// Subscribe registers handler for eventType. Any number of handlers may be
// registered per type.
func (b *Bus) Subscribe(eventType protocol.EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[eventType] = append(b.subs[eventType], subEntry{id: id, handler: handler})
	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered handler. Removing an already
// removed subscription is a no-op. Safe to call from inside a handler.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.subs[sub.eventType]
	for i, e := range entries {
		if e.id == sub.id {
			b.subs[sub.eventType] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.eventType]) == 0 {
		delete(b.subs, sub.eventType)
	}
}

// Publish enqueues an event for delivery to all current subscribers of its
// type. Delivery with zero subscribers is a no-op. Fire-and-forget: there is
// no per-event cancellation or retry once accepted.
func (b *Bus) Publish(eventType protocol.EventType, payload interface{}) {
	b.enqueue(task{eventType: eventType, payload: payload})
}

// Do marshals fn onto the drain loop. Timer callbacks use this so that a
// tick and a push notification can never interleave mid-mutation.
func (b *Bus) Do(fn func()) {
	b.enqueue(task{fn: fn})
}

func (b *Bus) enqueue(t task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		log.Warn().Str("event_type", string(t.eventType)).Msg("publish on closed bus dropped")
		return
	}
	b.queue = append(b.queue, t)
	b.cond.Signal()
}

// Close stops the drain loop after the already-queued work finishes and
// waits for it to exit. Further Publish/Do calls are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) drain() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		t := b.queue[0]
		b.queue = b.queue[1:]

		// Snapshot subscribers under the lock, invoke outside it so
		// handlers can subscribe/unsubscribe reentrantly.
		var handlers []Handler
		if t.fn == nil {
			for _, e := range b.subs[t.eventType] {
				handlers = append(handlers, e.handler)
			}
		}
		b.mu.Unlock()

		if t.fn != nil {
			t.fn()
			continue
		}
		for _, h := range handlers {
			h(t.payload)
		}
	}
}
