package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/lattice/internal/fault"
)

// Await polls the consumer until a response with the wanted correlation id
// arrives or the overall timeout elapses. Responses bearing a different
// correlation id are discarded, never returned: a waiter for C only ever
// accepts C's response.
//
// poll bounds each individual receive so the loop can re-check the deadline;
// ~100ms is the conventional value. Timeout is a distinct fault from any
// business failure carried inside an accepted response.
func Await[T Correlated](c *Consumer[T], correlation string, timeout, poll time.Duration) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, fault.New(fault.CodeTimeout, "no response for correlation %s within %v", correlation, timeout)
		}
		if poll < remaining {
			remaining = poll
		}

		event, err := c.Recv(remaining)
		if err != nil {
			if fault.IsTimeout(err) {
				continue
			}
			return zero, err
		}
		if event.Correlation() == correlation {
			return event, nil
		}
		// Response for some other caller's request; not ours to consume.
		slog.Debug("discarding response with foreign correlation id",
			"want", correlation, "got", event.Correlation())
	}
}

// Serve runs one background worker consuming Req events and publishing one
// Resp per request. The handler runs requests strictly in arrival order.
//
// The worker exits when ctx is cancelled or the bus is closed. Serve returns
// after the worker goroutine has been started.
func Serve[Req, Resp any](ctx context.Context, b *Bus, handler func(Req) Resp) {
	consumer := Subscribe[Req](b)
	if consumer == nil {
		return
	}

	go func() {
		defer consumer.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-consumer.sub.ch:
				if !ok {
					return
				}
				resp := handler(raw.(Req))
				if !Publish(b, resp) {
					return
				}
			}
		}
	}()
}
