// Package venue provides simulated liquidity venues and helpers for pricing
// an amount across all of them.
package venue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dexpipe/dexpipe/internal/domain"
)

// SimConfig describes one simulated venue. Quote prices per unit are drawn
// uniformly from BasePrice * [PriceFloor, PriceFloor+PriceBand). Rand may be
// injected for deterministic tests; when nil a seeded source is used.
type SimConfig struct {
	Name       string
	BasePrice  float64
	PriceFloor float64
	PriceBand  float64
	FeeBps     int
	QuoteDelay time.Duration
	SettleMin  time.Duration
	SettleMax  time.Duration
	Rand       func() float64
}

// Sim is a simulated venue. Both Quote and Settle sleep to imitate network
// latency and honour context cancellation while doing so.
type Sim struct {
	cfg SimConfig

	mu  sync.Mutex
	rnd func() float64
}

// NewSim creates a simulated venue from cfg.
func NewSim(cfg SimConfig) *Sim {
	rnd := cfg.Rand
	if rnd == nil {
		src := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		rnd = src.Float64
	}
	return &Sim{cfg: cfg, rnd: rnd}
}

// Name returns the venue name.
func (s *Sim) Name() string { return s.cfg.Name }

// Quote prices the amount after the configured latency. Quotes are produced
// fresh on every call; nothing is cached between attempts.
func (s *Sim) Quote(ctx context.Context, amount float64) (domain.Quote, error) {
	if err := sleep(ctx, s.cfg.QuoteDelay); err != nil {
		return domain.Quote{}, fmt.Errorf("venue %s: quote: %w", s.cfg.Name, err)
	}

	unit := s.cfg.BasePrice * (s.cfg.PriceFloor + s.random()*s.cfg.PriceBand)
	return domain.Quote{
		Venue: s.cfg.Name,
		Price: unit * amount,
		Fee:   amount * float64(s.cfg.FeeBps) / 10_000,
	}, nil
}

// Settle executes the trade after a randomized settlement latency and
// returns the settlement reference.
func (s *Sim) Settle(ctx context.Context, amount float64) (string, error) {
	_ = amount // the simulation settles any amount

	delay := s.cfg.SettleMin
	if spread := s.cfg.SettleMax - s.cfg.SettleMin; spread > 0 {
		delay += time.Duration(s.random() * float64(spread))
	}
	if err := sleep(ctx, delay); err != nil {
		return "", fmt.Errorf("venue %s: settle: %w", s.cfg.Name, err)
	}

	ref := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return "sol_tx_" + ref, nil
}

func (s *Sim) random() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd()
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time interface check.
var _ domain.Venue = (*Sim)(nil)
