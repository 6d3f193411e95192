package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictify/engine/internal/notify"
	"github.com/predictify/engine/internal/reentrancy"
	"github.com/predictify/engine/internal/server"
	"github.com/predictify/engine/internal/server/handler"
	"github.com/predictify/engine/internal/server/ws"
	"github.com/predictify/engine/internal/service"
)

// services bundles the engine service layer. All mutating services share
// one reentrancy guard so a market is protected across operation kinds.
type services struct {
	markets    *service.MarketService
	votes      *service.VoteService
	oracle     *service.OracleService
	resolution *service.ResolutionService
	disputes   *service.DisputeService
	fees       *service.FeeService
	admin      *service.AdminService
}

func (a *App) buildServices(deps *Dependencies) *services {
	guard := reentrancy.NewGuard()
	return &services{
		markets: service.NewMarketService(
			deps.Markets, deps.MarketCache, deps.Ledger, deps.SysConfig,
			deps.Bus, deps.Locks, guard, a.logger,
		),
		votes: service.NewVoteService(
			deps.Markets, deps.MarketCache, deps.Ledger, deps.SysConfig,
			deps.Bus, deps.Locks, guard, a.logger,
		),
		oracle: service.NewOracleService(
			deps.Markets, deps.MarketCache, deps.Resolutions, deps.Oracle,
			deps.Bus, deps.Locks, guard, a.logger,
		),
		resolution: service.NewResolutionService(
			deps.Markets, deps.MarketCache, deps.Resolutions, deps.SysConfig,
			deps.Bus, a.logger,
		),
		disputes: service.NewDisputeService(
			deps.Markets, deps.Disputes, deps.Resolutions, deps.MarketCache,
			deps.Ledger, deps.SysConfig, deps.Bus, deps.Locks, guard, a.logger,
		),
		fees: service.NewFeeService(
			deps.Markets, deps.MarketCache, deps.Ledger, deps.FeeAudit,
			deps.SysConfig, deps.Bus, deps.Locks, guard, a.logger,
		),
		admin: service.NewAdminService(deps.SysConfig, a.logger),
	}
}

// ServeMode runs the HTTP + WebSocket API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// WorkerMode runs the background workers: the market archiver and the
// notification watcher.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	g, ctx := errgroup.WithContext(ctx)
	if !a.startWorkers(ctx, g, deps) {
		a.logger.WarnContext(ctx, "worker mode: no workers configured (enable s3 or a notify channel)")
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	return g.Wait()
}

// FullMode runs the API and the background workers in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startWorkers(ctx, g, deps)
	return g.Wait()
}

// startServer adds the API server and WebSocket hub goroutines to the
// group. The server is shut down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	svcs := a.buildServices(deps)

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			AuthEnabled: a.cfg.Server.AuthEnabled,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(deps.PG, deps.Redis, a.logger),
			Markets:    handler.NewMarketHandler(svcs.markets, a.logger),
			Votes:      handler.NewVoteHandler(svcs.votes, a.logger),
			Resolution: handler.NewResolutionHandler(svcs.oracle, svcs.resolution, a.logger),
			Disputes:   handler.NewDisputeHandler(svcs.disputes, a.logger),
			Fees:       handler.NewFeeHandler(svcs.fees, a.logger),
			Admin:      handler.NewAdminHandler(svcs.admin, a.logger),
			Events:     handler.NewEventHandler(deps.Bus, a.logger),
		},
		hub,
		deps.Limiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startWorkers adds the archiver and notification watcher goroutines to
// the group. It reports whether at least one worker was started.
func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies) bool {
	started := false

	if deps.Archiver != nil {
		interval := a.cfg.Engine.ArchiveInterval.Duration
		g.Go(func() error {
			return deps.Archiver.Run(ctx, interval)
		})
		started = true
	}

	if deps.NotifyEnabled {
		watcher := notify.NewWatcher(deps.Notifier, deps.Bus, a.logger)
		g.Go(func() error {
			return watcher.Run(ctx)
		})
		started = true
	}

	return started
}
