package venue

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// fixedRand returns a Rand that always yields v.
func fixedRand(v float64) func() float64 {
	return func() float64 { return v }
}

func TestSimQuoteDeterministic(t *testing.T) {
	s := NewSim(SimConfig{
		Name:       "Raydium",
		BasePrice:  150,
		PriceFloor: 0.98,
		PriceBand:  0.04,
		FeeBps:     30,
		Rand:       fixedRand(0.5),
	})

	q, err := s.Quote(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, "Raydium", q.Venue)
	// unit = 150 * (0.98 + 0.5*0.04) = 150, total = 1500
	require.InDelta(t, 1500, q.Price, 1e-9)
	// fee = 10 * 30 / 10000 = 0.03
	require.InDelta(t, 0.03, q.Fee, 1e-9)
}

func TestSimQuotePriceBounds(t *testing.T) {
	cfg := SimConfig{
		Name:       "Meteora",
		BasePrice:  150,
		PriceFloor: 0.97,
		PriceBand:  0.05,
		FeeBps:     20,
	}

	low, err := NewSim(func() SimConfig { c := cfg; c.Rand = fixedRand(0); return c }()).Quote(context.Background(), 1)
	require.NoError(t, err)
	require.InDelta(t, 150*0.97, low.Price, 1e-9)

	high, err := NewSim(func() SimConfig { c := cfg; c.Rand = fixedRand(0.999); return c }()).Quote(context.Background(), 1)
	require.NoError(t, err)
	require.Less(t, high.Price, 150*1.02)
}

func TestSimQuoteCancelled(t *testing.T) {
	s := NewSim(SimConfig{
		Name:       "Raydium",
		BasePrice:  150,
		QuoteDelay: time.Minute,
		Rand:       fixedRand(0.5),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Quote(ctx, 1)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSimSettle(t *testing.T) {
	s := NewSim(SimConfig{
		Name: "Raydium",
		Rand: fixedRand(0.5),
	})

	tx, err := s.Settle(context.Background(), 5)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tx, "sol_tx_"))
	require.Len(t, tx, len("sol_tx_")+12)

	tx2, err := s.Settle(context.Background(), 5)
	require.NoError(t, err)
	require.NotEqual(t, tx, tx2)
}

func TestQuoteAllPreservesVenueOrder(t *testing.T) {
	venues := []domain.Venue{
		NewSim(SimConfig{Name: "Raydium", BasePrice: 150, PriceFloor: 1, Rand: fixedRand(0)}),
		NewSim(SimConfig{Name: "Meteora", BasePrice: 140, PriceFloor: 1, Rand: fixedRand(0)}),
	}

	quotes, err := QuoteAll(context.Background(), venues, 2)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	require.Equal(t, "Raydium", quotes[0].Venue)
	require.Equal(t, "Meteora", quotes[1].Venue)
	require.InDelta(t, 300, quotes[0].Price, 1e-9)
	require.InDelta(t, 280, quotes[1].Price, 1e-9)
}

func TestQuoteAllFailsWhenAnyVenueFails(t *testing.T) {
	venues := []domain.Venue{
		NewSim(SimConfig{Name: "Raydium", BasePrice: 150, PriceFloor: 1, Rand: fixedRand(0)}),
		NewSim(SimConfig{Name: "Meteora", BasePrice: 140, PriceFloor: 1, QuoteDelay: time.Minute, Rand: fixedRand(0)}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := QuoteAll(ctx, venues, 1)
	require.Error(t, err)
}
