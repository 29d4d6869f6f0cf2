package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// StatusBus implements domain.StatusBus using Redis Pub/Sub. Events are
// serialized as JSON on a single channel; delivery is fire-and-forget, so a
// subscriber that connects after a publish never sees that event.
type StatusBus struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger
}

// NewStatusBus creates a StatusBus backed by the given Client, publishing on
// the named pub/sub channel.
func NewStatusBus(c *Client, channel string, logger *slog.Logger) *StatusBus {
	return &StatusBus{
		rdb:     c.Underlying(),
		channel: channel,
		logger:  logger.With(slog.String("component", "status_bus")),
	}
}

// Publish sends a status event to the bus channel.
func (b *StatusBus) Publish(ctx context.Context, ev domain.StatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal status event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of decoded status events. The subscription is closed when the
// context is cancelled; the returned channel is closed at that point as
// well. Payloads that do not decode as status events are dropped.
func (b *StatusBus) Subscribe(ctx context.Context) (<-chan domain.StatusEvent, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}

	out := make(chan domain.StatusEvent, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}

				var ev domain.StatusEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping undecodable status event",
						slog.String("error", err.Error()),
					)
					continue
				}

				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.StatusBus = (*StatusBus)(nil)
