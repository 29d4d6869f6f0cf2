// Package memory provides in-process implementations of the order store,
// status bus, and job queue. They are used for single-process runs without
// external services and by tests. Nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// OrderStore implements domain.OrderStore backed by a map. All methods are
// safe for concurrent use. It enforces the same terminal-status guard as the
// PostgreSQL implementation.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty in-memory OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

// InsertPending inserts a new order with status pending.
func (s *OrderStore) InsertPending(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}

	now := time.Now().UTC()
	o.Status = domain.OrderStatusPending
	o.CreatedAt = now
	o.UpdatedAt = now
	s.orders[o.ID] = o
	return nil
}

// UpdateStatus moves a non-terminal order to the given status.
func (s *OrderStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	return s.update(id, func(o *domain.Order) {
		o.Status = status
	})
}

// MarkConfirmed moves an order to confirmed with its settlement reference.
func (s *OrderStore) MarkConfirmed(_ context.Context, id, txHash string) error {
	return s.update(id, func(o *domain.Order) {
		o.Status = domain.OrderStatusConfirmed
		o.TxHash = txHash
	})
}

// MarkFailed moves an order to failed with the terminal error.
func (s *OrderStore) MarkFailed(_ context.Context, id, errMsg string) error {
	return s.update(id, func(o *domain.Order) {
		o.Status = domain.OrderStatusFailed
		o.LastError = errMsg
	})
}

func (s *OrderStore) update(id string, mutate func(*domain.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status.Terminal() {
		return domain.ErrTerminalState
	}

	mutate(&o)
	o.UpdatedAt = time.Now().UTC()
	s.orders[id] = o
	return nil
}

// GetByID retrieves a single order by ID.
func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

// ListRecent returns orders newest-first with pagination.
func (s *OrderStore) ListRecent(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.RLock()
	all := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, o)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []domain.Order{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
