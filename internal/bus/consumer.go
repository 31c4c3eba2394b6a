package bus

import (
	"reflect"
	"time"

	"github.com/roach88/lattice/internal/fault"
)

// Consumer is a typed subscription handle.
//
// Recv and Poll may be called from any goroutine, but events are delivered
// in publish order to each consumer (FIFO per subscriber per event type).
type Consumer[T any] struct {
	bus *Bus
	sub *subscriber
	t   reflect.Type
}

// Recv blocks until an event arrives or timeout elapses.
// A closed bus yields a Disconnected fault; an elapsed wait yields Timeout.
func (c *Consumer[T]) Recv(timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case raw, ok := <-c.sub.ch:
		if !ok {
			return zero, fault.New(fault.CodeDisconnected, "subscription closed")
		}
		return raw.(T), nil
	case <-timer.C:
		return zero, fault.New(fault.CodeTimeout, "no %s event within %v", c.t.String(), timeout)
	}
}

// Poll returns the next event without blocking.
// The third value is false when the subscription has been closed.
func (c *Consumer[T]) Poll() (T, bool, bool) {
	var zero T
	select {
	case raw, ok := <-c.sub.ch:
		if !ok {
			return zero, false, false
		}
		return raw.(T), true, true
	default:
		return zero, false, true
	}
}

// Close unsubscribes the consumer. Pending undelivered events are dropped.
func (c *Consumer[T]) Close() {
	c.bus.remove(c.t, c.sub)
}
