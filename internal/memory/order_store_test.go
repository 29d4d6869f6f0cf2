package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexpipe/dexpipe/internal/domain"
)

func TestOrderStoreInsertAndGet(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	order := domain.Order{
		ID:     "ord-1",
		Type:   domain.OrderTypeMarket,
		Side:   domain.OrderSideBuy,
		Amount: 10,
	}
	require.NoError(t, s.InsertPending(ctx, order))

	got, err := s.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.False(t, got.CreatedAt.IsZero())

	require.ErrorIs(t, s.InsertPending(ctx, order), domain.ErrAlreadyExists)

	_, err = s.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderStoreLifecycle(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	require.NoError(t, s.InsertPending(ctx, domain.Order{ID: "ord-1", Amount: 1}))

	require.NoError(t, s.UpdateStatus(ctx, "ord-1", domain.OrderStatusRouting))
	require.NoError(t, s.UpdateStatus(ctx, "ord-1", domain.OrderStatusSubmitted))
	require.NoError(t, s.MarkConfirmed(ctx, "ord-1", "sol_tx_abc"))

	got, err := s.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, got.Status)
	require.Equal(t, "sol_tx_abc", got.TxHash)
}

func TestOrderStoreTerminalIsImmutable(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	require.NoError(t, s.InsertPending(ctx, domain.Order{ID: "ord-1", Amount: 1}))
	require.NoError(t, s.MarkFailed(ctx, "ord-1", "retries exhausted"))

	require.ErrorIs(t, s.UpdateStatus(ctx, "ord-1", domain.OrderStatusRouting), domain.ErrTerminalState)
	require.ErrorIs(t, s.MarkConfirmed(ctx, "ord-1", "sol_tx_late"), domain.ErrTerminalState)
	require.ErrorIs(t, s.MarkFailed(ctx, "ord-1", "again"), domain.ErrTerminalState)

	got, err := s.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFailed, got.Status)
	require.Equal(t, "retries exhausted", got.LastError)
	require.Empty(t, got.TxHash)
}

func TestOrderStoreUpdateMissing(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	require.ErrorIs(t, s.UpdateStatus(ctx, "nope", domain.OrderStatusRouting), domain.ErrNotFound)
	require.ErrorIs(t, s.MarkConfirmed(ctx, "nope", "tx"), domain.ErrNotFound)
	require.ErrorIs(t, s.MarkFailed(ctx, "nope", "err"), domain.ErrNotFound)
}

func TestOrderStoreListRecent(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertPending(ctx, domain.Order{
			ID:     fmt.Sprintf("ord-%d", i),
			Amount: 1,
		}))
		time.Sleep(time.Millisecond) // distinct CreatedAt for ordering
	}

	all, err := s.ListRecent(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "ord-4", all[0].ID) // newest first
	require.Equal(t, "ord-0", all[4].ID)

	page, err := s.ListRecent(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "ord-3", page[0].ID)

	empty, err := s.ListRecent(ctx, domain.ListOpts{Offset: 99})
	require.NoError(t, err)
	require.Empty(t, empty)

	// A negative offset is clamped to the start rather than panicking.
	clamped, err := s.ListRecent(ctx, domain.ListOpts{Offset: -3})
	require.NoError(t, err)
	require.Len(t, clamped, 5)
	require.Equal(t, "ord-4", clamped[0].ID)
}
