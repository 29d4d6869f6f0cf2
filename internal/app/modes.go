package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dexpipe/dexpipe/internal/domain"
	"github.com/dexpipe/dexpipe/internal/live"
	"github.com/dexpipe/dexpipe/internal/server"
	"github.com/dexpipe/dexpipe/internal/server/handler"
	"github.com/dexpipe/dexpipe/internal/server/ws"
	"github.com/dexpipe/dexpipe/internal/service"
	"github.com/dexpipe/dexpipe/internal/venue"
	"github.com/dexpipe/dexpipe/internal/worker"
)

// shutdownTimeout bounds how long the HTTP server waits for in-flight
// requests during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// APIMode runs order intake, the live update router, and the HTTP server.
// Execution is expected to run in a separate worker process sharing the same
// Redis.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startAPI(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs only the execution worker pool.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, deps)
	return g.Wait()
}

// FullMode runs intake, worker pool, and live updates in one process, the
// way the system is deployed by default.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWorker(ctx, g, deps)
	a.startAPI(ctx, g, deps)
	return g.Wait()
}

// startWorker launches the execution worker pool on the group.
func (a *App) startWorker(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	venues := make([]domain.Venue, 0, len(a.cfg.Venues))
	for _, vc := range a.cfg.Venues {
		venues = append(venues, venue.NewSim(venue.SimConfig{
			Name:       vc.Name,
			BasePrice:  vc.BasePrice,
			PriceFloor: vc.PriceFloor,
			PriceBand:  vc.PriceBand,
			FeeBps:     vc.FeeBps,
			QuoteDelay: vc.QuoteDelay.Duration,
			SettleMin:  vc.SettleMin.Duration,
			SettleMax:  vc.SettleMax.Duration,
		}))
	}

	pool := worker.NewPool(
		deps.Queue, deps.Store, deps.Bus,
		venues, a.cfg.Queue.Concurrency, a.logger,
	)
	g.Go(func() error {
		return pool.Run(ctx)
	})
}

// startAPI launches the live router and HTTP server on the group.
func (a *App) startAPI(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	router := live.NewRouter(deps.Bus, a.logger)
	g.Go(func() error {
		return router.Run(ctx)
	})

	orderSvc := service.NewOrderService(
		deps.Store, deps.Queue, deps.Bus, retryPolicy(a.cfg), a.logger,
	)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(),
			Orders: handler.NewOrderHandler(orderSvc, a.logger),
		},
		ws.NewLiveHandler(router, a.logger),
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	})
}
