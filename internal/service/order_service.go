// Package service contains the intake-side application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// SubmitRequest is the validated shape of a new order submission.
type SubmitRequest struct {
	Type   domain.OrderType `json:"type"`
	Side   domain.OrderSide `json:"side"`
	Amount float64          `json:"amount"`
}

// OrderService handles order intake and reads. Submission inserts a pending
// row and enqueues the execution job; everything after that belongs to the
// worker pool.
type OrderService struct {
	store  domain.OrderStore
	queue  domain.JobQueue
	bus    domain.StatusBus
	policy domain.RetryPolicy
	logger *slog.Logger
}

// NewOrderService creates an OrderService. policy is the retry policy
// attached to every enqueued job.
func NewOrderService(
	store domain.OrderStore,
	queue domain.JobQueue,
	bus domain.StatusBus,
	policy domain.RetryPolicy,
	logger *slog.Logger,
) *OrderService {
	if policy.MaxAttempts < 1 {
		policy = domain.DefaultRetryPolicy()
	}
	return &OrderService{
		store:  store,
		queue:  queue,
		bus:    bus,
		policy: policy,
		logger: logger.With(slog.String("component", "order_service")),
	}
}

// Submit validates the request, mints an order id, persists the pending row,
// and queues the execution job. It returns as soon as the job is queued;
// execution happens asynchronously.
func (s *OrderService) Submit(ctx context.Context, req SubmitRequest) (domain.Order, error) {
	if err := validate(req); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Side:      req.Side,
		Amount:    req.Amount,
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.InsertPending(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("service: insert order: %w", err)
	}

	// Best-effort: a watcher attached before submission sees the pending
	// event; losing it only costs that one notification.
	if err := s.bus.Publish(ctx, domain.NewPendingEvent(order.ID)); err != nil {
		s.logger.WarnContext(ctx, "publish pending event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	job := domain.ExecutionJob{
		OrderID: order.ID,
		Type:    order.Type,
		Side:    order.Side,
		Amount:  order.Amount,
	}
	if err := s.queue.Enqueue(ctx, job, s.policy); err != nil {
		return domain.Order{}, fmt.Errorf("service: enqueue order %s: %w", order.ID, err)
	}

	s.logger.InfoContext(ctx, "order queued",
		slog.String("order_id", order.ID),
		slog.String("type", string(order.Type)),
		slog.String("side", string(order.Side)),
		slog.Float64("amount", order.Amount),
	)
	return order, nil
}

// Get returns a single order by id.
func (s *OrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.store.GetByID(ctx, id)
}

// List returns recent orders, newest first.
func (s *OrderService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	return s.store.ListRecent(ctx, opts)
}

func validate(req SubmitRequest) error {
	if !domain.ValidOrderType(req.Type) {
		return fmt.Errorf("%w: type %q", domain.ErrInvalidOrder, req.Type)
	}
	if !domain.ValidOrderSide(req.Side) {
		return fmt.Errorf("%w: side %q", domain.ErrInvalidOrder, req.Side)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidOrder)
	}
	return nil
}
