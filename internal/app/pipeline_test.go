package app

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexpipe/dexpipe/internal/domain"
	"github.com/dexpipe/dexpipe/internal/live"
	"github.com/dexpipe/dexpipe/internal/memory"
	"github.com/dexpipe/dexpipe/internal/service"
	"github.com/dexpipe/dexpipe/internal/venue"
	"github.com/dexpipe/dexpipe/internal/worker"
)

// holdFirstPublish wraps a status bus and pauses the first Publish until the
// test has attached a live handle for the freshly minted order id. Later
// publishes pass straight through.
type holdFirstPublish struct {
	domain.StatusBus
	once    sync.Once
	firstID chan string
	release chan struct{}
}

func (b *holdFirstPublish) Publish(ctx context.Context, ev domain.StatusEvent) error {
	b.once.Do(func() {
		b.firstID <- ev.OrderID
		<-b.release
	})
	return b.StatusBus.Publish(ctx, ev)
}

// TestOrderFlowsSubmitToConfirmed runs the whole in-process pipeline: the
// order service takes the submission, the worker pool executes it against a
// simulated venue, and a live handle watching the order sees every status
// along the way.
func TestOrderFlowsSubmitToConfirmed(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	store := memory.NewOrderStore()
	queue := memory.NewQueue(logger)
	bus := memory.NewStatusBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := live.NewRouter(bus, logger)
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		_ = router.Run(ctx)
	}()

	// Wait for the router's upstream subscription before submitting.
	require.Eventually(t, func() bool {
		h := router.Attach("warmup")
		defer router.Detach(h)
		if err := bus.Publish(ctx, domain.NewPendingEvent("warmup")); err != nil {
			return false
		}
		select {
		case <-h.Events():
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)

	venues := []domain.Venue{
		venue.NewSim(venue.SimConfig{
			Name:       "Raydium",
			BasePrice:  150,
			PriceFloor: 1,
			FeeBps:     30,
			Rand:       func() float64 { return 0 },
		}),
	}
	pool := worker.NewPool(queue, store, bus, venues, 4, logger)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		_ = pool.Run(ctx)
	}()

	gate := &holdFirstPublish{
		StatusBus: bus,
		firstID:   make(chan string, 1),
		release:   make(chan struct{}),
	}
	svc := service.NewOrderService(store, queue, gate, domain.DefaultRetryPolicy(), logger)

	type submitResult struct {
		order domain.Order
		err   error
	}
	results := make(chan submitResult, 1)
	go func() {
		order, err := svc.Submit(ctx, service.SubmitRequest{
			Type:   domain.OrderTypeMarket,
			Side:   domain.OrderSideBuy,
			Amount: 2,
		})
		results <- submitResult{order, err}
	}()

	// Attach the handle before the pending event reaches the bus, so the
	// watcher observes the full lifecycle from the first status on.
	var orderID string
	select {
	case orderID = <-gate.firstID:
	case <-time.After(time.Second):
		t.Fatal("submission never published an event")
	}
	h := router.Attach(orderID)
	defer router.Detach(h)
	close(gate.release)

	res := <-results
	require.NoError(t, res.err)
	require.Equal(t, orderID, res.order.ID)

	var statuses []domain.OrderStatus
	deadline := time.After(2 * time.Second)
collect:
	for {
		select {
		case ev := <-h.Events():
			require.Equal(t, orderID, ev.OrderID)
			statuses = append(statuses, ev.Status)
			switch ev.Status {
			case domain.OrderStatusSubmitted:
				require.Equal(t, "Raydium", ev.Venue)
			case domain.OrderStatusConfirmed:
				require.NotEmpty(t, ev.TxHash)
				break collect
			}
		case <-deadline:
			t.Fatalf("order never confirmed; saw %v", statuses)
		}
	}

	require.Equal(t, []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusRouting,
		domain.OrderStatusSubmitted,
		domain.OrderStatusConfirmed,
	}, statuses)

	stored, err := store.GetByID(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, stored.Status)
	require.NotEmpty(t, stored.TxHash)

	cancel()
	<-routerDone
	<-poolDone
}
