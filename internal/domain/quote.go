package domain

// Quote is a priced offer from one venue for a specific amount. Quotes are
// ephemeral: produced fresh per execution attempt and never cached across
// attempts or orders.
type Quote struct {
	Venue string
	Price float64 // total price for the requested amount
	Fee   float64
}

// SelectBest returns the quote with the lowest total price. Ties resolve to
// the earliest quote in the slice, so callers that pass quotes in a fixed
// venue order get a reproducible decision. ok is false for an empty slice.
func SelectBest(quotes []Quote) (best Quote, ok bool) {
	if len(quotes) == 0 {
		return Quote{}, false
	}
	best = quotes[0]
	for _, q := range quotes[1:] {
		if q.Price < best.Price {
			best = q
		}
	}
	return best, true
}
