package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// promoteLua atomically moves due entries from the delayed set to the ready
// list. Removing each member before pushing it guarantees a job is claimed
// by exactly one promoter even when several worker processes poll at once.
const promoteLua = `
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for i = 1, #due do
    redis.call('ZREM', KEYS[1], due[i])
    redis.call('RPUSH', KEYS[2], due[i])
end
return #due
`

// popBlock is how long a single BLPOP call waits before the consumer loop
// re-checks its context.
const popBlock = time.Second

// envelope is the wire form of a queued job: the job payload plus the retry
// bookkeeping that travels with it between attempts.
type envelope struct {
	ID      string              `json:"id"`
	Job     domain.ExecutionJob `json:"job"`
	Policy  domain.RetryPolicy  `json:"policy"`
	Attempt int                 `json:"attempt"`
}

// Queue implements domain.JobQueue on Redis. Ready jobs live in a list
// consumed with BLPOP; jobs awaiting a retry live in a sorted set scored by
// their redelivery time and are promoted back onto the list by a polling
// Lua script. A job is held by exactly one consumer from BLPOP until its
// handler returns, so attempts for the same job are strictly sequential.
//
// Delivery is at-least-once: a consumer crash mid-handler loses the claim
// and the enqueue path must be repeated by the operator. The permanent
// failure callback runs in whichever consumer process executed the final
// attempt, exactly once per job.
type Queue struct {
	rdb          *redis.Client
	promoteSc    *redis.Script
	readyKey     string
	delayedKey   string
	pollInterval time.Duration
	onFailure    domain.FailureHandler
	logger       *slog.Logger
}

// NewQueue creates a Queue with the given name. The name namespaces the
// Redis keys, so distinct queues can share one Redis database.
func NewQueue(c *Client, name string, pollInterval time.Duration, logger *slog.Logger) *Queue {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Queue{
		rdb:          c.Underlying(),
		promoteSc:    redis.NewScript(promoteLua),
		readyKey:     "queue:" + name + ":ready",
		delayedKey:   "queue:" + name + ":delayed",
		pollInterval: pollInterval,
		logger:       logger.With(slog.String("component", "queue"), slog.String("queue", name)),
	}
}

// SetFailureHandler registers the permanent-failure callback. Must be called
// before Consume.
func (q *Queue) SetFailureHandler(fn domain.FailureHandler) {
	q.onFailure = fn
}

// Enqueue pushes a job onto the ready list for its first attempt.
func (q *Queue) Enqueue(ctx context.Context, job domain.ExecutionJob, policy domain.RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		policy = domain.DefaultRetryPolicy()
	}

	env := envelope{
		ID:      uuid.New().String(),
		Job:     job,
		Policy:  policy,
		Attempt: 1,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("redis: marshal job %s: %w", job.OrderID, err)
	}

	if err := q.rdb.RPush(ctx, q.readyKey, payload).Err(); err != nil {
		return fmt.Errorf("redis: enqueue job %s: %w", job.OrderID, err)
	}
	return nil
}

// Consume runs the promoter and concurrency consumer goroutines until ctx is
// cancelled, then waits for in-flight handlers to return.
func (q *Queue) Consume(ctx context.Context, concurrency int, handler domain.JobHandler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return q.promoteLoop(ctx)
	})
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			return q.consumeLoop(ctx, handler)
		})
	}

	return g.Wait()
}

// promoteLoop periodically moves due delayed jobs back onto the ready list.
func (q *Queue) promoteLoop(ctx context.Context) error {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UnixMilli()
			err := q.promoteSc.Run(ctx, q.rdb,
				[]string{q.delayedKey, q.readyKey}, now,
			).Err()
			if err != nil && err != redis.Nil && ctx.Err() == nil {
				q.logger.Error("promote delayed jobs failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// consumeLoop pops ready jobs and runs the handler, scheduling retries on
// failure.
func (q *Queue) consumeLoop(ctx context.Context, handler domain.JobHandler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := q.rdb.BLPop(ctx, popBlock, q.readyKey).Result()
		if err == redis.Nil {
			continue // timed out, re-check context
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.Error("pop job failed", slog.String("error", err.Error()))
			continue
		}
		if len(res) != 2 {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			q.logger.Error("dropping undecodable job payload",
				slog.String("error", err.Error()),
			)
			continue
		}

		q.runAttempt(ctx, env, handler)
	}
}

// runAttempt executes one attempt and either finishes the job, schedules a
// redelivery, or reports permanent failure.
func (q *Queue) runAttempt(ctx context.Context, env envelope, handler domain.JobHandler) {
	err := handler(ctx, env.Job, env.Attempt)
	if err == nil {
		return
	}

	if env.Attempt >= env.Policy.MaxAttempts {
		q.logger.Warn("job failed permanently",
			slog.String("order_id", env.Job.OrderID),
			slog.Int("attempts", env.Attempt),
			slog.String("error", err.Error()),
		)
		if q.onFailure != nil {
			q.onFailure(ctx, env.Job, err)
		}
		return
	}

	delay := env.Policy.Delay(env.Attempt)
	env.Attempt++

	payload, mErr := json.Marshal(env)
	if mErr != nil {
		q.logger.Error("marshal retry envelope failed",
			slog.String("order_id", env.Job.OrderID),
			slog.String("error", mErr.Error()),
		)
		return
	}

	// Schedule with a background-capable context so a shutdown between the
	// attempt and the reschedule does not strand the job.
	zErr := q.rdb.ZAdd(context.WithoutCancel(ctx), q.delayedKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMilli()),
		Member: payload,
	}).Err()
	if zErr != nil {
		q.logger.Error("schedule retry failed",
			slog.String("order_id", env.Job.OrderID),
			slog.String("error", zErr.Error()),
		)
		return
	}

	q.logger.Info("attempt failed, retry scheduled",
		slog.String("order_id", env.Job.OrderID),
		slog.Int("attempt", env.Attempt-1),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// Compile-time interface check.
var _ domain.JobQueue = (*Queue)(nil)
