package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexpipe/dexpipe/internal/domain"
	"github.com/dexpipe/dexpipe/internal/memory"
	"github.com/dexpipe/dexpipe/internal/venue"
)

// failingVenue quotes fine but always fails to settle.
type failingVenue struct {
	name string
}

func (v *failingVenue) Name() string { return v.name }

func (v *failingVenue) Quote(context.Context, float64) (domain.Quote, error) {
	return domain.Quote{Venue: v.name, Price: 1}, nil
}

func (v *failingVenue) Settle(context.Context, float64) (string, error) {
	return "", errors.New("settlement rejected")
}

type poolFixture struct {
	store *memory.OrderStore
	queue *memory.Queue
	bus   *memory.StatusBus
	pool  *Pool
}

func newPoolFixture(t *testing.T, venues []domain.Venue) (*poolFixture, context.CancelFunc) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	f := &poolFixture{
		store: memory.NewOrderStore(),
		queue: memory.NewQueue(logger),
		bus:   memory.NewStatusBus(),
	}
	f.pool = NewPool(f.queue, f.store, f.bus, venues, 4, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.pool.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return f, cancel
}

func fastSim(name string, basePrice float64) *venue.Sim {
	return venue.NewSim(venue.SimConfig{
		Name:       name,
		BasePrice:  basePrice,
		PriceFloor: 1,
		FeeBps:     30,
		Rand:       func() float64 { return 0 },
	})
}

func submit(t *testing.T, f *poolFixture, id string, policy domain.RetryPolicy) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.store.InsertPending(ctx, domain.Order{
		ID:     id,
		Type:   domain.OrderTypeMarket,
		Side:   domain.OrderSideBuy,
		Amount: 2,
	}))
	require.NoError(t, f.queue.Enqueue(ctx, domain.ExecutionJob{
		OrderID: id,
		Type:    domain.OrderTypeMarket,
		Side:    domain.OrderSideBuy,
		Amount:  2,
	}, policy))
}

func collectStatuses(events <-chan domain.StatusEvent, until domain.OrderStatus, timeout time.Duration) []domain.StatusEvent {
	var got []domain.StatusEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Status == until {
				return got
			}
		case <-deadline:
			return got
		}
	}
}

func TestPoolConfirmsOrderOnCheapestVenue(t *testing.T) {
	venues := []domain.Venue{
		fastSim("Raydium", 150),
		fastSim("Meteora", 140),
	}
	f, _ := newPoolFixture(t, venues)

	events, err := f.bus.Subscribe(context.Background())
	require.NoError(t, err)

	submit(t, f, "ord-1", domain.DefaultRetryPolicy())

	got := collectStatuses(events, domain.OrderStatusConfirmed, 2*time.Second)
	require.NotEmpty(t, got)

	statuses := make([]domain.OrderStatus, len(got))
	for i, ev := range got {
		require.Equal(t, "ord-1", ev.OrderID)
		statuses[i] = ev.Status
	}
	require.Equal(t, []domain.OrderStatus{
		domain.OrderStatusRouting,
		domain.OrderStatusSubmitted,
		domain.OrderStatusConfirmed,
	}, statuses)

	// The submitted event names the cheaper venue.
	require.Equal(t, "Meteora", got[1].Venue)
	require.NotEmpty(t, got[2].TxHash)

	order, err := f.store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.Equal(t, got[2].TxHash, order.TxHash)
}

func TestPoolFailsAfterRetriesExhausted(t *testing.T) {
	f, _ := newPoolFixture(t, []domain.Venue{&failingVenue{name: "Raydium"}})

	events, err := f.bus.Subscribe(context.Background())
	require.NoError(t, err)

	policy := domain.RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      20 * time.Millisecond,
		BackoffMultiplier: 1,
	}
	submit(t, f, "ord-1", policy)

	got := collectStatuses(events, domain.OrderStatusFailed, 2*time.Second)
	require.NotEmpty(t, got)

	var failed []domain.StatusEvent
	routingCount := 0
	for _, ev := range got {
		switch ev.Status {
		case domain.OrderStatusRouting:
			routingCount++
		case domain.OrderStatusFailed:
			failed = append(failed, ev)
		}
	}

	// One routing event per attempt, one terminal failed event total.
	require.Equal(t, 3, routingCount)
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].Error, "settlement rejected")

	order, err := f.store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFailed, order.Status)
	require.Contains(t, order.LastError, "settlement rejected")
	require.Empty(t, order.TxHash)

	// No late writes: the order stays failed.
	time.Sleep(100 * time.Millisecond)
	order, err = f.store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFailed, order.Status)
}

func TestPoolRecoversOnLaterAttempt(t *testing.T) {
	flaky := &flakyVenue{failUntil: 2}
	f, _ := newPoolFixture(t, []domain.Venue{flaky})

	events, err := f.bus.Subscribe(context.Background())
	require.NoError(t, err)

	policy := domain.RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      20 * time.Millisecond,
		BackoffMultiplier: 1,
	}
	submit(t, f, "ord-1", policy)

	got := collectStatuses(events, domain.OrderStatusConfirmed, 2*time.Second)
	require.NotEmpty(t, got)
	require.Equal(t, domain.OrderStatusConfirmed, got[len(got)-1].Status)

	order, err := f.store.GetByID(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, order.Status)
	require.NotEmpty(t, order.TxHash)
}

// flakyVenue fails settlement until the configured call count is reached.
type flakyVenue struct {
	failUntil int
	calls     int
}

func (v *flakyVenue) Name() string { return "Raydium" }

func (v *flakyVenue) Quote(context.Context, float64) (domain.Quote, error) {
	return domain.Quote{Venue: "Raydium", Price: 1}, nil
}

func (v *flakyVenue) Settle(context.Context, float64) (string, error) {
	v.calls++
	if v.calls < v.failUntil {
		return "", errors.New("venue congested")
	}
	return "sol_tx_recovered00", nil
}
