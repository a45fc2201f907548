// Package event provides a small synchronous pub-sub bus used to broadcast
// task lifecycle changes to interested parties (the native-messaging bridge,
// the MCP surface, logging) without coupling them to the task controller.
package event

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler is a function that handles an event.
type Handler func(Event)

// PanicHandler is invoked when a subscriber panics while handling an event.
type PanicHandler func(eventType string, recovered any, stack []byte)

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus. It is safe for concurrent use.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string][]subscription // eventType -> subscriptions ("*" for all)
	nextID        atomic.Uint64
	onPanic       PanicHandler
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscriptions: make(map[string][]subscription),
	}
}

// SetPanicHandler installs a hook that receives recovered subscriber panics.
// Without one, panics are recovered and dropped.
func (b *Bus) SetPanicHandler(h PanicHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = h
}

// Subscribe registers a handler for a specific event type and returns a
// subscription ID that can be passed to Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := "sub-" + strconv.FormatUint(b.nextID.Add(1), 10)
	b.subscriptions[eventType] = append(b.subscriptions[eventType], subscription{
		id:      id,
		handler: handler,
	})
	return id
}

// SubscribeAll registers a handler for every published event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe("*", handler)
}

// Unsubscribe removes a subscription by ID.
// Returns true if the subscription was found and removed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			rest := make([]subscription, 0, len(subs)-1)
			rest = append(rest, subs[:i]...)
			rest = append(rest, subs[i+1:]...)
			b.subscriptions[eventType] = rest
			return true
		}
	}
	return false
}

// Publish dispatches an event to all registered handlers. Handlers for the
// specific event type run first, then wildcard handlers, each group in
// registration order. A panicking handler does not stop delivery.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	eventType := e.EventType()
	specific := append([]subscription(nil), b.subscriptions[eventType]...)
	wildcard := append([]subscription(nil), b.subscriptions["*"]...)
	onPanic := b.onPanic
	b.mu.RUnlock()

	for _, sub := range specific {
		safeCall(sub.handler, e, onPanic)
	}
	for _, sub := range wildcard {
		safeCall(sub.handler, e, onPanic)
	}
}

func safeCall(handler Handler, e Event, onPanic PanicHandler) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(e.EventType(), r, debug.Stack())
		}
	}()
	handler(e)
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = make(map[string][]subscription)
}

// SubscriptionCount returns the total number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, subs := range b.subscriptions {
		count += len(subs)
	}
	return count
}

// String implements fmt.Stringer for debugging output.
func (b *Bus) String() string {
	return fmt.Sprintf("event.Bus{subscriptions: %d}", b.SubscriptionCount())
}
