// Package bus provides a generic typed event bus.
//
// The bus is a registry of channels keyed by event type. Each Subscribe call
// creates an independent FIFO channel; Publish fans out to every live
// subscriber of the event's type. Publishing never blocks: each subscriber
// channel is bounded, and an event that would overflow a lagging subscriber
// is dropped for that subscriber with a logged warning.
//
// Request/response convention: requests and responses are ordinary events
// whose types implement Correlated. A caller publishes a request carrying a
// fresh correlation id and waits on its response subscription with Await;
// a background worker started with Serve consumes requests one at a time and
// publishes exactly one response per request.
package bus

import (
	"log/slog"
	"reflect"
	"sync"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Correlated is implemented by request and response events that participate
// in the request/response convention.
type Correlated interface {
	Correlation() string
}

// subscriber is the untyped half of a subscription kept in the registry.
type subscriber struct {
	ch chan any
}

// Bus is a typed pub/sub registry. The zero value is not usable; use New.
type Bus struct {
	mu     sync.RWMutex
	topics map[reflect.Type][]*subscriber
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[reflect.Type][]*subscriber)}
}

// Close shuts the bus down: all subscriber channels are closed and further
// publishes are rejected. Consumers blocked in Recv observe Disconnected.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.topics {
		for _, s := range subs {
			close(s.ch)
		}
	}
	b.topics = make(map[reflect.Type][]*subscriber)
}

// Closed reports whether the bus has been shut down.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// remove drops one subscriber for the given type and closes its channel.
func (b *Bus) remove(t reflect.Type, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	subs := b.topics[t]
	for i, s := range subs {
		if s == target {
			b.topics[t] = append(subs[:i], subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

// typeOf returns the registry key for event type T.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Publish delivers event to every live subscriber of type T.
// Never blocks; returns false if the bus is closed.
func Publish[T any](b *Bus, event T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}
	for _, s := range b.topics[typeOf[T]()] {
		select {
		case s.ch <- event:
		default:
			// Lagging subscriber; dropping preserves the no-block guarantee.
			slog.Warn("event dropped for slow subscriber", "type", typeOf[T]().String())
		}
	}
	return true
}

// Subscribe registers a new consumer for events of type T.
// Returns nil if the bus is already closed.
func Subscribe[T any](b *Bus) *Consumer[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	s := &subscriber{ch: make(chan any, DefaultBuffer)}
	t := typeOf[T]()
	b.topics[t] = append(b.topics[t], s)
	return &Consumer[T]{bus: b, sub: s, t: t}
}
