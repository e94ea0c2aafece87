package store

import (
	"log/slog"
	"sync"
)

// Kind is the lifecycle phase an event announces.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event is one bus delivery: entity type, lifecycle kind, the record id
// and a snapshot of the record as it was persisted.
type Event struct {
	EntityType string
	Kind       Kind
	RecordID   string
	Record     any
}

// Handler receives events synchronously on the publisher's goroutine.
type Handler func(Event)

// Bus is the per-store publish/subscribe registry. Delivery is
// synchronous, best-effort and in-process only: no durability, no
// replay, no cross-process fan-out. Each store instance (each tab, in
// the browser-hosted deployment) has its own subscriber set.
type Bus struct {
	log *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]Handler
}

// NewBus builds an empty bus. log may be nil.
func NewBus(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, subs: map[string]map[int]Handler{}}
}

// Subscribe registers fn for one entity type and returns its
// unsubscribe handle. Safe for concurrent use.
func (b *Bus) Subscribe(entityType string, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.subs[entityType] == nil {
		b.subs[entityType] = map[int]Handler{}
	}
	b.subs[entityType][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[entityType], id)
	}
}

// Publish delivers e to every subscriber of its entity type. A
// panicking subscriber is isolated and logged; the remaining
// subscribers still get the event.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[e.EntityType]))
	for _, fn := range b.subs[e.EntityType] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		b.deliver(fn, e)
	}
}

func (b *Bus) deliver(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event subscriber panicked", "entity", e.EntityType, "kind", e.Kind, "panic", r)
		}
	}()
	fn(e)
}
