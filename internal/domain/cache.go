package domain

import (
	"context"
	"time"
)

// BookCache stores the latest display-ready book snapshot per outcome token.
type BookCache interface {
	SetSnapshot(ctx context.Context, tokenID string, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, tokenID string) (BookSnapshot, error)
	ListTokenIDs(ctx context.Context) ([]string, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed mutual exclusion. Acquire returns an
// unlock function on success and ErrLockHeld when another party holds the
// lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Signal is a single pub/sub message. Channel carries the concrete channel
// name, which differs from the subscribed pattern for wildcard subscriptions.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus provides pub/sub fan-out between the feed pipeline and the
// server-side WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan Signal, error)
}
