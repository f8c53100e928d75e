package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketglass/marketglass/internal/domain"
)

// WatchlistStore implements domain.WatchlistStore using PostgreSQL.
type WatchlistStore struct {
	pool *pgxpool.Pool
}

// NewWatchlistStore creates a new WatchlistStore backed by the given
// connection pool.
func NewWatchlistStore(pool *pgxpool.Pool) *WatchlistStore {
	return &WatchlistStore{pool: pool}
}

// Add bookmarks a market for a wallet. It returns domain.ErrAlreadyExists
// when the bookmark is already present.
func (s *WatchlistStore) Add(ctx context.Context, wallet, marketID string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO watchlist (wallet, market_id) VALUES ($1, $2)
		 ON CONFLICT (wallet, market_id) DO NOTHING`, wallet, marketID)
	if err != nil {
		return fmt.Errorf("postgres: add watchlist %s/%s: %w", wallet, marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Remove deletes a bookmark. It returns domain.ErrNotFound when the bookmark
// does not exist.
func (s *WatchlistStore) Remove(ctx context.Context, wallet, marketID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM watchlist WHERE wallet = $1 AND market_id = $2`, wallet, marketID)
	if err != nil {
		return fmt.Errorf("postgres: remove watchlist %s/%s: %w", wallet, marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns a wallet's bookmarks, newest first.
func (s *WatchlistStore) List(ctx context.Context, wallet string) ([]domain.WatchlistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT wallet, market_id, created_at FROM watchlist
		 WHERE wallet = $1 ORDER BY created_at DESC`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list watchlist %s: %w", wallet, err)
	}
	defer rows.Close()

	var entries []domain.WatchlistEntry
	for rows.Next() {
		var e domain.WatchlistEntry
		if err := rows.Scan(&e.Wallet, &e.MarketID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan watchlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list watchlist %s: %w", wallet, err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ domain.WatchlistStore = (*WatchlistStore)(nil)
