package services

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Schepie/CityExplorer-sub000/internal/lib/navigation"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity
const DefaultSubscriberBuffer = 64

// EventBus fans navigation events out to subscribers. Publishing never
// blocks; a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan navigation.Event
	nextID int
	buffer int
	closed bool
	logger *zap.SugaredLogger
}

// NewEventBus creates a bus. buffer <= 0 selects DefaultSubscriberBuffer.
func NewEventBus(buffer int, logger *zap.SugaredLogger) *EventBus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EventBus{
		subs:   make(map[int]chan navigation.Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel func
// unregisters it and closes the channel.
func (b *EventBus) Subscribe() (<-chan navigation.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan navigation.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers events in order to every subscriber
func (b *EventBus) Publish(events ...navigation.Event) {
	if len(events) == 0 {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ev := range events {
		for id, ch := range b.subs {
			select {
			case ch <- ev:
			default:
				b.logger.Warnw("Dropping event for slow subscriber", "subscriber", id, "kind", ev.Kind)
			}
		}
	}
}

// Subscribers returns the number of active subscribers
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel; later subscriptions receive a closed channel
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
