package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketglass/marketglass/internal/book"
	"github.com/marketglass/marketglass/internal/domain"
	"github.com/marketglass/marketglass/internal/feed"
	"github.com/marketglass/marketglass/internal/server"
	"github.com/marketglass/marketglass/internal/server/handler"
	"github.com/marketglass/marketglass/internal/server/ws"
	"github.com/marketglass/marketglass/internal/service"
)

const (
	// maxTrackedBooks caps how many outcome tokens the feed subscribes to.
	maxTrackedBooks = 100

	// trackRefreshInterval is how often the tracked token set is rebuilt
	// from the market catalog.
	trackRefreshInterval = time.Minute

	// marketSyncInterval is how often market metadata is pulled from the
	// discovery API.
	marketSyncInterval = 30 * time.Minute

	// fillSyncInterval is how often open orders are reconciled against the
	// exchange in full mode.
	fillSyncInterval = 30 * time.Second

	// archiveLockTTL bounds how long a single archive run may hold the
	// cross-instance lock.
	archiveLockTTL = 10 * time.Minute
)

// ServeMode runs the read-only web stack: the book feed, the HTTP API, and
// the WebSocket hub. Order placement is disabled because no signer is wired.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode (read-only)")
	return a.runStack(ctx, deps, true)
}

// MonitorMode runs the book feed and spread alerts without Postgres or the
// HTTP server. It is the lightest deployment shape.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runStack(ctx, deps, false)
}

// FullMode runs everything serve mode runs plus order signing and fill
// reconciliation. The signer is wired by Wire before this is reached.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runStack(ctx, deps, true)
}

// runStack starts the goroutines shared by all modes and, when serveHTTP is
// set, the HTTP + WebSocket API on top.
func (a *App) runStack(ctx context.Context, deps *Dependencies, serveHTTP bool) error {
	g, ctx := errgroup.WithContext(ctx)

	agg := book.NewAggregator(a.logger)
	bookSvc := service.NewBookService(
		agg,
		deps.BookCache,
		deps.SignalBus,
		deps.OrderStore,
		deps.MarketStore,
		deps.Notifier,
		a.cfg.Book.DepthLimit,
		a.cfg.Book.SpreadAlertCents,
		a.logger,
	)

	bookFeed := feed.NewBookFeed(
		deps.WS,
		deps.Clob,
		bookSvc.HandleBookUpdate,
		a.cfg.Book.PollInterval.Duration,
		a.cfg.Book.MaxStale.Duration,
		a.logger,
	)

	g.Go(func() error {
		defer bookFeed.Close()
		return bookFeed.Run(ctx)
	})

	g.Go(func() error {
		return a.trackBooks(ctx, deps, bookFeed)
	})

	// Market metadata sync needs both the catalog store and the discovery API.
	var marketSvc *service.MarketService
	if deps.MarketStore != nil {
		marketSvc = service.NewMarketService(deps.MarketStore, deps.WatchlistStore, deps.Gamma, a.logger)
		g.Go(func() error {
			return a.syncMarkets(ctx, marketSvc)
		})
	}

	var orderSvc *service.OrderService
	if deps.OrderStore != nil {
		var signer service.Signer
		if deps.Signer != nil {
			signer = deps.Signer
		}
		orderSvc = service.NewOrderService(
			deps.OrderStore,
			deps.RateLimiter,
			deps.SignalBus,
			signer,
			deps.Clob,
			deps.Notifier,
			a.logger,
		)
	}

	if deps.Signer != nil && orderSvc != nil {
		g.Go(func() error {
			return a.syncFills(ctx, deps, orderSvc)
		})
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveBooks(ctx, deps)
		})
	}

	if serveHTTP && a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, bookSvc, marketSvc, orderSvc)
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	bookSvc *service.BookService,
	marketSvc *service.MarketService,
	orderSvc *service.OrderService,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger, deps.HealthChecks...),
		Books:   handler.NewBookHandler(bookSvc, a.logger),
		Markets: handler.NewMarketHandler(marketSvc, a.logger),
		Orders:  handler.NewOrderHandler(orderSvc, a.logger),
	}
	if deps.BlobReader != nil {
		archiveSvc := service.NewArchiveService(deps.BlobReader, a.logger)
		handlers.Archives = handler.NewArchiveHandler(archiveSvc, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIToken:        a.cfg.Server.APIToken,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// trackBooks keeps the feed's subscription set aligned with the most active
// markets. With Postgres wired it reads the local catalog; in monitor mode it
// falls back to the discovery API.
func (a *App) trackBooks(ctx context.Context, deps *Dependencies, bookFeed *feed.BookFeed) error {
	refresh := func() {
		markets, err := a.activeMarkets(ctx, deps)
		if err != nil {
			a.logger.WarnContext(ctx, "track refresh failed",
				slog.String("error", err.Error()),
			)
			return
		}

		want := make(map[string]bool, len(markets)*2)
		for _, m := range markets {
			for _, tokenID := range m.TokenIDs {
				if tokenID == "" || len(want) >= maxTrackedBooks {
					continue
				}
				want[tokenID] = true
			}
		}

		for _, tokenID := range bookFeed.Tracked() {
			if !want[tokenID] {
				bookFeed.Untrack(ctx, tokenID)
			}
			delete(want, tokenID)
		}
		for tokenID := range want {
			if err := bookFeed.Track(ctx, tokenID); err != nil {
				a.logger.WarnContext(ctx, "track token failed",
					slog.String("token_id", tokenID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	refresh()

	ticker := time.NewTicker(trackRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			refresh()
		}
	}
}

// activeMarkets returns the markets whose books should be tracked, highest
// volume first.
func (a *App) activeMarkets(ctx context.Context, deps *Dependencies) ([]domain.Market, error) {
	if deps.MarketStore != nil {
		return deps.MarketStore.ListActive(ctx, domain.ListOpts{Limit: maxTrackedBooks / 2})
	}
	return deps.Gamma.GetMarkets(ctx, maxTrackedBooks/2, 0)
}

// syncMarkets refreshes market metadata from the discovery API on a fixed
// interval, starting with an immediate sync so the catalog is never empty.
func (a *App) syncMarkets(ctx context.Context, marketSvc *service.MarketService) error {
	sync := func() {
		n, err := marketSvc.Sync(ctx, 500)
		if err != nil {
			a.logger.WarnContext(ctx, "market sync failed",
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "market sync complete", slog.Int("count", n))
	}

	sync()

	ticker := time.NewTicker(marketSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sync()
		}
	}
}

// syncFills drives order reconciliation on a fixed interval so the
// user-order overlay stays accurate.
func (a *App) syncFills(ctx context.Context, deps *Dependencies, orderSvc *service.OrderService) error {
	wallet := deps.Signer.Address().Hex()

	ticker := time.NewTicker(fillSyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := orderSvc.SyncFills(ctx, wallet); err != nil {
			a.logger.WarnContext(ctx, "fill sync failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// archiveBooks periodically snapshots all cached books to object storage and
// prunes expired archives. A distributed lock keeps concurrent instances from
// writing the same archive.
func (a *App) archiveBooks(ctx context.Context, deps *Dependencies) error {
	run := func() {
		unlock, err := deps.LockManager.Acquire(ctx, "archive:books", archiveLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.DebugContext(ctx, "archive skipped, lock held elsewhere")
			} else {
				a.logger.WarnContext(ctx, "archive lock failed",
					slog.String("error", err.Error()),
				)
			}
			return
		}
		defer unlock()

		now := time.Now().UTC()
		n, err := deps.Archiver.ArchiveBooks(ctx, now)
		if err != nil {
			a.logger.WarnContext(ctx, "archive run failed",
				slog.String("error", err.Error()),
			)
			_ = deps.Notifier.Error(ctx, "snapshot archive", err)
			return
		}
		a.logger.InfoContext(ctx, "archive run complete", slog.Int64("books", n))

		if days := a.cfg.Archive.RetentionDays; days > 0 {
			if _, err := deps.Archiver.Prune(ctx, now.AddDate(0, 0, -days)); err != nil {
				a.logger.WarnContext(ctx, "archive prune failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}
