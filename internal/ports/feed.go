package ports

import (
	"context"

	"candleView/internal/domain"
)

// TickHandler receives every decoded ticker message, regardless of product.
// Handlers run on the stream's read goroutine; ticks arrive strictly in
// wire order.
type TickHandler func(tick domain.Tick)

// StateHandler is notified on every feed state transition. cause is non-nil
// only when the transition was forced by an error.
type StateHandler func(state domain.FeedState, cause error)

// TickStream owns a live market-data subscription: connect, subscribe,
// reconnect after unexpected closure, teardown.
type TickStream interface {
	// Stream opens the connection and subscribes to the ticker channel for
	// the given products. It returns a doneCh closed when the stream has
	// shut down for good and a stopCh the caller closes to request a
	// user-initiated teardown (no reconnect). At most one stream per
	// TickStream instance may be active at a time.
	Stream(ctx context.Context, products []string, onTick TickHandler, onState StateHandler) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
