package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marketglass/marketglass/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BookCache implements domain.BookCache using Redis string values with
// JSON-serialized snapshots and a set-based index of tracked tokens.
//
// Key schema:
//
//	book:{tokenID} - JSON BookSnapshot, expires after the configured TTL
//	book:index     - set of all token IDs that have ever been cached
type BookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookCache creates a BookCache backed by the given Client. Snapshots
// expire after ttl; the index entry is pruned lazily by ListTokenIDs.
func NewBookCache(c *Client, ttl time.Duration) *BookCache {
	return &BookCache{rdb: c.Underlying(), ttl: ttl}
}

const bookIndexKey = "book:index"

func bookKey(tokenID string) string {
	return "book:" + tokenID
}

// SetSnapshot stores the latest snapshot for a token and records the token in
// the index set.
func (bc *BookCache) SetSnapshot(ctx context.Context, tokenID string, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", tokenID, err)
	}

	pipe := bc.rdb.TxPipeline()
	pipe.Set(ctx, bookKey(tokenID), data, bc.ttl)
	pipe.SAdd(ctx, bookIndexKey, tokenID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set book %s: %w", tokenID, err)
	}
	return nil
}

// GetSnapshot retrieves the cached snapshot for a token. It returns
// domain.ErrNotFound when no snapshot is cached or the entry has expired.
func (bc *BookCache) GetSnapshot(ctx context.Context, tokenID string) (domain.BookSnapshot, error) {
	data, err := bc.rdb.Get(ctx, bookKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.BookSnapshot{}, domain.ErrNotFound
		}
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: %w", tokenID, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: unmarshal book %s: %w", tokenID, err)
	}
	return snap, nil
}

// ListTokenIDs returns the token IDs with a live cached snapshot. Index
// entries whose snapshot has expired are removed as a side effect.
func (bc *BookCache) ListTokenIDs(ctx context.Context) ([]string, error) {
	members, err := bc.rdb.SMembers(ctx, bookIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list books: %w", err)
	}

	live := make([]string, 0, len(members))
	var stale []interface{}
	for _, tokenID := range members {
		n, err := bc.rdb.Exists(ctx, bookKey(tokenID)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: list books: %w", err)
		}
		if n > 0 {
			live = append(live, tokenID)
		} else {
			stale = append(stale, tokenID)
		}
	}

	if len(stale) > 0 {
		_ = bc.rdb.SRem(ctx, bookIndexKey, stale...).Err()
	}

	return live, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
