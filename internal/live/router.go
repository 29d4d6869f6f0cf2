// Package live multiplexes the process's single status bus subscription to
// many per-order subscribers.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// handleBuffer is the per-handle event buffer. A handle whose consumer falls
// this far behind loses events rather than blocking the dispatch loop.
const handleBuffer = 16

// Handle is one subscriber's registration for a single order id. Events
// arrive on Events until the handle is detached, at which point the channel
// is closed.
type Handle struct {
	orderID string
	ch      chan domain.StatusEvent
	close   sync.Once
}

// OrderID returns the order id this handle watches.
func (h *Handle) OrderID() string { return h.orderID }

// Events yields status events for the handle's order id, in publish order.
func (h *Handle) Events() <-chan domain.StatusEvent { return h.ch }

func (h *Handle) shutdown() {
	h.close.Do(func() { close(h.ch) })
}

// Router fans the status bus out to per-order handles. It keeps exactly one
// upstream subscription open for its lifetime; each incoming event is
// delivered only to the handles attached to its order id, so dispatch cost
// scales with matching handles rather than all handles.
type Router struct {
	bus    domain.StatusBus
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]map[*Handle]struct{}
	closed  bool
}

// NewRouter creates a Router over the given bus. Call Run to start
// dispatching.
func NewRouter(bus domain.StatusBus, logger *slog.Logger) *Router {
	return &Router{
		bus:     bus,
		logger:  logger.With(slog.String("component", "live_router")),
		handles: make(map[string]map[*Handle]struct{}),
	}
}

// Run opens the upstream subscription and dispatches events until ctx is
// cancelled, then closes every remaining handle.
func (r *Router) Run(ctx context.Context) error {
	events, err := r.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "live router subscribed")

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				r.shutdown()
				return ctx.Err()
			}
			r.dispatch(ev)
		}
	}
}

// dispatch delivers one event to the handles watching its order id. A slow
// handle has its event dropped; other handles are unaffected.
func (r *Router) dispatch(ev domain.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for h := range r.handles[ev.OrderID] {
		select {
		case h.ch <- ev:
		default:
			r.logger.Warn("dropping event for slow subscriber",
				slog.String("order_id", ev.OrderID),
				slog.String("status", string(ev.Status)),
			)
		}
	}
}

// Attach registers interest in one order id. The caller owns the returned
// handle and must Detach it on teardown; a handle that is never detached
// leaks its slot until the router shuts down.
func (r *Router) Attach(orderID string) *Handle {
	h := &Handle{
		orderID: orderID,
		ch:      make(chan domain.StatusEvent, handleBuffer),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		// Router already shut down; hand back a closed handle so the caller
		// observes immediate end-of-stream instead of a hang.
		h.shutdown()
		return h
	}

	set, ok := r.handles[orderID]
	if !ok {
		set = make(map[*Handle]struct{})
		r.handles[orderID] = set
	}
	set[h] = struct{}{}
	return h
}

// Detach stops delivery to the handle and closes its channel. Detaching an
// already-detached handle is a no-op.
func (r *Router) Detach(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	if set, ok := r.handles[h.orderID]; ok {
		delete(set, h)
		if len(set) == 0 {
			delete(r.handles, h.orderID)
		}
	}
	r.mu.Unlock()

	h.shutdown()
}

// shutdown closes all handles and refuses further attaches.
func (r *Router) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, set := range r.handles {
		for h := range set {
			h.shutdown()
		}
	}
	r.handles = make(map[string]map[*Handle]struct{})
}
