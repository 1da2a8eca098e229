// Package events provides the store-change notification bus. The
// ingestion engine publishes a StoreChange after every successful
// non-empty batch; consumers subscribe, debounce and re-run queries.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rainhead/lifelight-go/internal/logging"
)

// StoreChange signals that the local store was mutated. The payload is
// the mutation timestamp only; no description of what changed is
// carried. Delivery is at-least-once and order is not guaranteed to
// match ingestion order.
type StoreChange struct {
	At time.Time
}

// Bus is a process-wide publish point for store changes. Publish never
// blocks: events to a subscriber whose buffer is full are dropped,
// which is acceptable because consumers re-query the whole store on
// any change.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan StoreChange
	nextID int
	logger *slog.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int]chan StoreChange),
		logger: logging.ForService("events"),
	}
}

// Subscribe registers a consumer and returns its event channel along
// with an unsubscribe function. The unsubscribe function closes the
// channel and is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan StoreChange, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan StoreChange, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to all current subscribers without
// blocking the caller.
func (b *Bus) Publish(ev StoreChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("dropping store change for slow subscriber", "subscriber", id)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
