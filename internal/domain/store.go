package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderStore persists orders. The core only ever inserts a pending row and
// advances its status; rows are never deleted here (retention is an
// external concern).
type OrderStore interface {
	InsertPending(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	MarkConfirmed(ctx context.Context, id, txHash string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Order, error)
}

// StatusBus is the broadcast stream of order status events. Delivery is
// best-effort and at-most-once per subscriber: there is no replay and no
// durability. The returned channel is closed when the context is cancelled.
type StatusBus interface {
	Publish(ctx context.Context, ev StatusEvent) error
	Subscribe(ctx context.Context) (<-chan StatusEvent, error)
}

// JobHandler processes one delivery attempt for a job. attempt starts at 1.
// Returning an error triggers redelivery per the job's retry policy.
type JobHandler func(ctx context.Context, job ExecutionJob, attempt int) error

// FailureHandler is invoked exactly once per job after its final attempt
// fails, with the error from that last attempt.
type FailureHandler func(ctx context.Context, job ExecutionJob, err error)

// JobQueue accepts execution jobs and delivers each one to exactly one
// consumer at a time. Attempts for the same job are strictly sequential; a
// job leaves the queue only on success or permanent failure. Ordering across
// distinct jobs is not guaranteed.
type JobQueue interface {
	// Enqueue accepts a job for asynchronous execution. It returns as soon
	// as the job is queued; it never waits for execution.
	Enqueue(ctx context.Context, job ExecutionJob, policy RetryPolicy) error

	// SetFailureHandler registers the permanent-failure callback. Must be
	// called before Consume.
	SetFailureHandler(fn FailureHandler)

	// Consume delivers jobs to handler with at most concurrency in-flight
	// attempts. It blocks until ctx is cancelled, then waits for in-flight
	// handlers to return.
	Consume(ctx context.Context, concurrency int, handler JobHandler) error
}

// Venue is a simulated liquidity source. Quote prices an amount; Settle
// executes against the venue and returns a settlement reference.
type Venue interface {
	Name() string
	Quote(ctx context.Context, amount float64) (Quote, error)
	Settle(ctx context.Context, amount float64) (string, error)
}
