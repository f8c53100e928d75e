package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marketglass/marketglass/internal/domain"
)

// MarketDirectory is the slice of the Gamma client the market service needs.
type MarketDirectory interface {
	GetMarkets(ctx context.Context, limit, offset int) ([]domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	SearchMarkets(ctx context.Context, query string, limit int) ([]domain.Market, error)
}

// MarketService handles market discovery, metadata sync, and watchlists.
type MarketService struct {
	markets   domain.MarketStore
	watchlist domain.WatchlistStore
	directory MarketDirectory
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. directory may be nil, in which
// case reads are served from the store only.
func NewMarketService(
	markets domain.MarketStore,
	watchlist domain.WatchlistStore,
	directory MarketDirectory,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets:   markets,
		watchlist: watchlist,
		directory: directory,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// Sync pulls up to limit markets from the discovery API and upserts them.
// It returns the number of markets synced.
func (s *MarketService) Sync(ctx context.Context, limit int) (int, error) {
	if s.directory == nil {
		return 0, nil
	}

	const pageSize = 100
	synced := 0

	for offset := 0; limit <= 0 || synced < limit; offset += pageSize {
		page, err := s.directory.GetMarkets(ctx, pageSize, offset)
		if err != nil {
			return synced, fmt.Errorf("market_service: sync page at %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		if err := s.markets.UpsertBatch(ctx, page); err != nil {
			return synced, fmt.Errorf("market_service: sync upsert: %w", err)
		}
		synced += len(page)

		if len(page) < pageSize {
			break
		}
	}

	s.logger.InfoContext(ctx, "markets synced", slog.Int("count", synced))
	return synced, nil
}

// Get returns a market by ID, reading through to the discovery API on a
// store miss and persisting the result.
func (s *MarketService) Get(ctx context.Context, id string) (domain.Market, error) {
	m, err := s.markets.GetByID(ctx, id)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, domain.ErrNotFound) || s.directory == nil {
		return domain.Market{}, err
	}

	m, err = s.directory.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %s: %w", id, err)
	}

	if upErr := s.markets.Upsert(ctx, m); upErr != nil {
		s.logger.WarnContext(ctx, "market upsert after read-through failed",
			slog.String("market_id", id),
			slog.String("error", upErr.Error()),
		)
	}
	return m, nil
}

// List returns active markets from the store.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list: %w", err)
	}
	return markets, nil
}

// Count returns the total number of stored markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	return s.markets.Count(ctx)
}

// Search queries the discovery API by free text.
func (s *MarketService) Search(ctx context.Context, query string, limit int) ([]domain.Market, error) {
	if s.directory == nil {
		return nil, nil
	}
	markets, err := s.directory.SearchMarkets(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: search %q: %w", query, err)
	}
	return markets, nil
}

// Watch bookmarks a market for a wallet.
func (s *MarketService) Watch(ctx context.Context, wallet, marketID string) error {
	if _, err := s.Get(ctx, marketID); err != nil {
		return fmt.Errorf("market_service: watch %s: %w", marketID, err)
	}
	if err := s.watchlist.Add(ctx, wallet, marketID); err != nil {
		return fmt.Errorf("market_service: watch %s: %w", marketID, err)
	}
	return nil
}

// Unwatch removes a bookmark.
func (s *MarketService) Unwatch(ctx context.Context, wallet, marketID string) error {
	if err := s.watchlist.Remove(ctx, wallet, marketID); err != nil {
		return fmt.Errorf("market_service: unwatch %s: %w", marketID, err)
	}
	return nil
}

// Watchlist returns the wallet's bookmarked markets, resolved to full market
// records. Bookmarks whose market is missing from the store are skipped.
func (s *MarketService) Watchlist(ctx context.Context, wallet string) ([]domain.Market, error) {
	entries, err := s.watchlist.List(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("market_service: watchlist: %w", err)
	}

	markets := make([]domain.Market, 0, len(entries))
	for _, e := range entries {
		m, err := s.markets.GetByID(ctx, e.MarketID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("market_service: watchlist resolve %s: %w", e.MarketID, err)
		}
		markets = append(markets, m)
	}
	return markets, nil
}
