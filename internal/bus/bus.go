// Package bus provides an internal event bus for component communication
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// EventType identifies different event types
type EventType string

// Event types for meetavatar
const (
	// Audio events
	EventTypeAudioLevelChanged EventType = "audio.level_changed"

	// Avatar lifecycle events
	EventTypeAvatarBound            EventType = "avatar.bound"
	EventTypeAvatarUnbound          EventType = "avatar.unbound"
	EventTypeAvatarAnimationStarted EventType = "avatar.animation_started"
	EventTypeAvatarAnimationStopped EventType = "avatar.animation_stopped"

	// Session events
	EventTypeSessionOpened EventType = "session.opened"
	EventTypeSessionClosed EventType = "session.closed"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// SubscriptionID identifies one subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
	active  atomic.Bool
}

// EventBus is a simple pub/sub event bus.
//
// Publish delivers on the caller's goroutine in subscription order, so
// events from a single publisher reach every handler in emission order.
// Unsubscribe is synchronous: a Publish that starts after it returns never
// reaches the removed handler, and a Publish already iterating skips it
// unless the handler had been selected before the removal.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]*subscription
	nextID   atomic.Uint64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]*subscription),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) SubscriptionID {
	sub := &subscription{
		id:      SubscriptionID(b.nextID.Add(1)),
		handler: handler,
	}
	sub.active.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], sub)

	return sub.id
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) []SubscriptionID {
	ids := make([]SubscriptionID, 0, len(eventTypes))
	for _, et := range eventTypes {
		ids = append(ids, b.Subscribe(et, handler))
	}
	return ids
}

// Unsubscribe removes a subscription. It returns an error if the id is not
// subscribed to eventType.
func (b *EventBus) Unsubscribe(eventType EventType, id SubscriptionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		sub.active.Store(false)

		// Copy so in-flight Publish snapshots keep a consistent slice.
		next := make([]*subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, eventType)
		} else {
			b.handlers[eventType] = next
		}
		return nil
	}
	return fmt.Errorf("subscription %d not found for %s", id, eventType)
}

// Publish sends an event to all subscribed handlers synchronously
func (b *EventBus) Publish(event Event) {
	for _, sub := range b.snapshot(event.Type) {
		if sub.active.Load() {
			sub.handler(event)
		}
	}
}

// Count returns the number of live subscriptions for an event type
func (b *EventBus) Count(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.handlers {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	b.handlers = make(map[EventType][]*subscription)
}

func (b *EventBus) snapshot(eventType EventType) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handlers[eventType]
}
