// Package worker drives queued orders through their execution state machine
// against the configured venues.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dexpipe/dexpipe/internal/domain"
	"github.com/dexpipe/dexpipe/internal/venue"
)

// Pool consumes the job queue with a fixed concurrency ceiling and executes
// each order:
//
//	routing -> quotes from all venues -> submitted -> settle -> confirmed
//
// Any error during an attempt is returned to the queue untouched so that
// retry and backoff accounting stays in one place. The pool itself never
// marks an order failed mid-attempt; only the queue's permanent-failure
// callback does that, after the final attempt.
type Pool struct {
	queue       domain.JobQueue
	store       domain.OrderStore
	bus         domain.StatusBus
	venues      []domain.Venue
	byName      map[string]domain.Venue
	concurrency int
	logger      *slog.Logger
}

// NewPool creates a Pool and registers its permanent-failure hook on the
// queue. The venue slice order is the tie-break order for equal quotes.
func NewPool(
	queue domain.JobQueue,
	store domain.OrderStore,
	bus domain.StatusBus,
	venues []domain.Venue,
	concurrency int,
	logger *slog.Logger,
) *Pool {
	if concurrency < 1 {
		concurrency = 10
	}

	byName := make(map[string]domain.Venue, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}

	p := &Pool{
		queue:       queue,
		store:       store,
		bus:         bus,
		venues:      venues,
		byName:      byName,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "worker")),
	}
	queue.SetFailureHandler(p.onPermanentFailure)
	return p
}

// Run consumes the queue until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "worker pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Int("venues", len(p.venues)),
	)
	return p.queue.Consume(ctx, p.concurrency, p.execute)
}

// execute runs a single attempt for one order.
func (p *Pool) execute(ctx context.Context, job domain.ExecutionJob, attempt int) error {
	log := p.logger.With(
		slog.String("order_id", job.OrderID),
		slog.Int("attempt", attempt),
	)
	log.InfoContext(ctx, "processing order")

	// Phase 1: routing. Quotes come from every venue concurrently; one slow
	// venue delays the attempt, one failed venue fails it.
	if err := p.setStatus(ctx, job.OrderID, domain.NewRoutingEvent(job.OrderID)); err != nil {
		return err
	}

	quotes, err := venue.QuoteAll(ctx, p.venues, job.Amount)
	if err != nil {
		return err
	}

	best, ok := domain.SelectBest(quotes)
	if !ok {
		return fmt.Errorf("worker: no venues configured")
	}
	log.InfoContext(ctx, "best route selected",
		slog.String("venue", best.Venue),
		slog.Float64("price", best.Price),
	)

	// Phase 2: submitted, execution in flight on the chosen venue.
	if err := p.setStatus(ctx, job.OrderID, domain.NewSubmittedEvent(job.OrderID, best.Venue)); err != nil {
		return err
	}

	chosen := p.byName[best.Venue]
	txHash, err := chosen.Settle(ctx, job.Amount)
	if err != nil {
		return err
	}

	// Phase 3: confirmed. Store first, then bus: the store is the source of
	// truth and the bus is best-effort.
	if err := p.store.MarkConfirmed(ctx, job.OrderID, txHash); err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, domain.NewConfirmedEvent(job.OrderID, txHash)); err != nil {
		return err
	}

	log.InfoContext(ctx, "order confirmed", slog.String("tx_hash", txHash))
	return nil
}

// setStatus persists an intermediate status and publishes the matching
// event. The two writes are not transactional; on a crash in between, the
// store wins and subscribers miss the event.
func (p *Pool) setStatus(ctx context.Context, orderID string, ev domain.StatusEvent) error {
	if err := p.store.UpdateStatus(ctx, orderID, ev.Status); err != nil {
		return err
	}
	return p.bus.Publish(ctx, ev)
}

// onPermanentFailure is the queue's callback after the final attempt fails.
// It is the only path that moves an order to failed, and it runs exactly
// once per job. The store update and the terminal event must both happen
// even during shutdown, so the writes use a non-cancellable context.
func (p *Pool) onPermanentFailure(ctx context.Context, job domain.ExecutionJob, lastErr error) {
	ctx = context.WithoutCancel(ctx)

	p.logger.ErrorContext(ctx, "order failed permanently",
		slog.String("order_id", job.OrderID),
		slog.String("error", lastErr.Error()),
	)

	if err := p.store.MarkFailed(ctx, job.OrderID, lastErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "mark failed order",
			slog.String("order_id", job.OrderID),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.Publish(ctx, domain.NewFailedEvent(job.OrderID, lastErr.Error())); err != nil {
		p.logger.ErrorContext(ctx, "publish failed event",
			slog.String("order_id", job.OrderID),
			slog.String("error", err.Error()),
		)
	}
}
