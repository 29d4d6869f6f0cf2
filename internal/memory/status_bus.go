package memory

import (
	"context"
	"sync"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind starts losing events, matching the bus's best-effort
// delivery contract.
const subscriberBuffer = 128

// StatusBus implements domain.StatusBus with in-process channel fan-out.
type StatusBus struct {
	mu     sync.Mutex
	subs   map[int]chan domain.StatusEvent
	nextID int
}

// NewStatusBus creates an empty in-memory StatusBus.
func NewStatusBus() *StatusBus {
	return &StatusBus{subs: make(map[int]chan domain.StatusEvent)}
}

// Publish delivers the event to every current subscriber. Subscribers with
// full buffers are skipped rather than blocking the publisher.
func (b *StatusBus) Publish(_ context.Context, ev domain.StatusEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned channel is closed when
// ctx is cancelled.
func (b *StatusBus) Subscribe(ctx context.Context) (<-chan domain.StatusEvent, error) {
	ch := make(chan domain.StatusEvent, subscriberBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()

		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()

		// Safe: Publish only sends while the subscriber is registered, and
		// both paths hold the mutex.
		close(ch)
	}()

	return ch, nil
}

// Compile-time interface check.
var _ domain.StatusBus = (*StatusBus)(nil)
