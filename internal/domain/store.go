package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata scraped from the discovery API.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	GetByTokenID(ctx context.Context, tokenID string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// OrderStore persists orders placed through this gateway. It backs the
// portfolio and activity views.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	UpdateFill(ctx context.Context, id string, filledSize float64) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListOpen(ctx context.Context, wallet string) ([]Order, error)
	ListOpenByToken(ctx context.Context, wallet, tokenID string) ([]Order, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Order, error)
}

// WatchlistStore persists per-wallet market bookmarks.
type WatchlistStore interface {
	Add(ctx context.Context, wallet, marketID string) error
	Remove(ctx context.Context, wallet, marketID string) error
	List(ctx context.Context, wallet string) ([]WatchlistEntry, error)
}
