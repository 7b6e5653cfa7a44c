// Package eventbus implements a synchronous, kind-indexed publish/subscribe
// registry. Handlers for a kind run in subscription order on the goroutine
// that calls Publish.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
)

// Kind identifies the exact shape of an event. A handler subscribed to a
// kind only ever receives events reporting that kind.
type Kind string

// Event is anything that can travel over the bus.
type Event interface {
	Kind() Kind
}

// Handler receives a published event.
type Handler func(Event)

// Subscription identifies one registered handler. The zero value is never
// returned by Subscribe.
type Subscription struct {
	kind Kind
	id   uint64
}

// Kind returns the event kind the subscription listens to.
func (s Subscription) Kind() Kind {
	return s.kind
}

// Valid reports whether the subscription came from Subscribe.
func (s Subscription) Valid() bool {
	return s.id != 0
}

type entry struct {
	id      uint64
	handler Handler
}

// Bus is safe for concurrent use. The handler registry is guarded by a
// single mutex; handlers are invoked outside of it, so a handler may
// subscribe, unsubscribe or publish re-entrantly.
type Bus struct {
	mu       sync.Mutex
	handlers map[Kind][]entry
	nextID   uint64
	logger   *slog.Logger
}

// New creates an empty bus. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers: make(map[Kind][]entry),
		logger:   logger,
	}
}

// Subscribe registers handler for events of the given kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) Subscription {
	if handler == nil {
		return Subscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.handlers[kind] = append(b.handlers[kind], entry{id: b.nextID, handler: handler})
	return Subscription{kind: kind, id: b.nextID}
}

// Unsubscribe removes a handler. Unknown or already removed subscriptions
// are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	if !sub.Valid() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[sub.kind]
	for i, e := range list {
		if e.id != sub.id {
			continue
		}
		// Copy so that in-flight dispatch snapshots are never mutated.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, sub.kind)
		} else {
			b.handlers[sub.kind] = next
		}
		return
	}
}

// Publish delivers ev to every handler subscribed to ev.Kind() at the time
// of the call. Handlers added during dispatch are not invoked for this
// event. A panicking handler is logged and skipped. Nil events are ignored.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}

	b.mu.Lock()
	snapshot := b.handlers[ev.Kind()]
	b.mu.Unlock()

	for _, e := range snapshot {
		b.invoke(e, ev)
	}
}

// HandlerCount returns the number of handlers registered for kind.
func (b *Bus) HandlerCount(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[kind])
}

func (b *Bus) invoke(e entry, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				"event_kind", ev.Kind(),
				"subscription_id", e.id,
				"panic", fmt.Sprint(r))
		}
	}()
	e.handler(ev)
}
