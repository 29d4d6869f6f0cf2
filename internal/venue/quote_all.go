package venue

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// QuoteAll fetches a quote from every venue concurrently and returns them in
// the same order as venues, so downstream tie-breaking stays deterministic.
// If any venue fails the whole call fails; there is no partial-venue
// routing.
func QuoteAll(ctx context.Context, venues []domain.Venue, amount float64) ([]domain.Quote, error) {
	quotes := make([]domain.Quote, len(venues))

	g, ctx := errgroup.WithContext(ctx)
	for i, v := range venues {
		g.Go(func() error {
			q, err := v.Quote(ctx, amount)
			if err != nil {
				return err
			}
			quotes[i] = q
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}
