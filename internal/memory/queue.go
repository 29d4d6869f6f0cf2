package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// queueCapacity bounds the ready buffer. Enqueue fails rather than blocks
// when the buffer is full.
const queueCapacity = 1024

// queuedJob is one job plus its retry bookkeeping.
type queuedJob struct {
	job     domain.ExecutionJob
	policy  domain.RetryPolicy
	attempt int
}

// Queue implements domain.JobQueue in process memory. Redelivery after a
// failed attempt is driven by a per-job timer, so retry timing for one job
// never blocks another. Jobs do not survive a restart; the redis queue is
// the durable implementation.
type Queue struct {
	ready     chan queuedJob
	onFailure domain.FailureHandler
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// NewQueue creates an empty in-memory Queue.
func NewQueue(logger *slog.Logger) *Queue {
	return &Queue{
		ready:  make(chan queuedJob, queueCapacity),
		logger: logger.With(slog.String("component", "queue"), slog.String("queue", "memory")),
		timers: make(map[*time.Timer]struct{}),
	}
}

// SetFailureHandler registers the permanent-failure callback. Must be called
// before Consume.
func (q *Queue) SetFailureHandler(fn domain.FailureHandler) {
	q.onFailure = fn
}

// Enqueue accepts a job for its first attempt. It never blocks; a full
// queue is reported as an error.
func (q *Queue) Enqueue(_ context.Context, job domain.ExecutionJob, policy domain.RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		policy = domain.DefaultRetryPolicy()
	}

	select {
	case q.ready <- queuedJob{job: job, policy: policy, attempt: 1}:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Consume runs concurrency consumer goroutines until ctx is cancelled, then
// waits for in-flight handlers to return. Pending retry timers are stopped
// on shutdown.
func (q *Queue) Consume(ctx context.Context, concurrency int, handler domain.JobHandler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case qj := <-q.ready:
					q.runAttempt(ctx, qj, handler)
				}
			}
		})
	}

	err := g.Wait()

	q.mu.Lock()
	for t := range q.timers {
		t.Stop()
	}
	q.timers = make(map[*time.Timer]struct{})
	q.mu.Unlock()

	return err
}

// runAttempt executes one attempt and either finishes the job, arms a retry
// timer, or reports permanent failure. The retry timer only re-queues the
// job after this attempt's handler has returned, preserving the
// single-active-attempt guarantee.
func (q *Queue) runAttempt(ctx context.Context, qj queuedJob, handler domain.JobHandler) {
	err := handler(ctx, qj.job, qj.attempt)
	if err == nil {
		return
	}

	if qj.attempt >= qj.policy.MaxAttempts {
		q.logger.Warn("job failed permanently",
			slog.String("order_id", qj.job.OrderID),
			slog.Int("attempts", qj.attempt),
			slog.String("error", err.Error()),
		)
		if q.onFailure != nil {
			q.onFailure(ctx, qj.job, err)
		}
		return
	}

	delay := qj.policy.Delay(qj.attempt)
	next := queuedJob{job: qj.job, policy: qj.policy, attempt: qj.attempt + 1}

	q.logger.Info("attempt failed, retry scheduled",
		slog.String("order_id", qj.job.OrderID),
		slog.Int("attempt", qj.attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)

	lastErr := err

	// Arm and register under one lock. The callback takes the same lock
	// before touching the map, so a zero-delay timer cannot fire before it is
	// registered.
	var t *time.Timer
	q.mu.Lock()
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, t)
		q.mu.Unlock()

		select {
		case q.ready <- next:
		default:
			// No room to redeliver. The job must still reach a terminal
			// outcome, so a full buffer counts as the final failure.
			q.logger.Error("ready buffer full, failing job",
				slog.String("order_id", next.job.OrderID),
				slog.Int("attempt", qj.attempt),
			)
			if q.onFailure != nil {
				q.onFailure(ctx, next.job,
					fmt.Errorf("queue: redeliver job %s: %w (last attempt: %v)",
						next.job.OrderID, domain.ErrQueueFull, lastErr))
			}
		}
	})
	q.timers[t] = struct{}{}
	q.mu.Unlock()
}

// Compile-time interface check.
var _ domain.JobQueue = (*Queue)(nil)
