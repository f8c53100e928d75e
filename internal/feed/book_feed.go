// Package feed delivers raw order-book updates for tracked outcome tokens.
// The WebSocket feed is the primary source; a REST poller refetches any book
// that has gone stale, so consumers keep rendering through disconnects.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marketglass/marketglass/internal/domain"
	"github.com/marketglass/marketglass/internal/platform/polymarket"
)

// BookUpdateHandler is called with the raw book every time a tracked token's
// book changes, regardless of whether the update arrived over WebSocket or
// REST.
type BookUpdateHandler func(ctx context.Context, tokenID string, raw domain.RawBook)

// BookSource is the slice of the CLOB REST client the poller needs.
type BookSource interface {
	GetBook(ctx context.Context, tokenID string) (polymarket.BookSummary, error)
	GetBooks(ctx context.Context, tokenIDs []string) ([]polymarket.BookSummary, error)
}

// wsChannels are the market-data channels every tracked token subscribes to.
var wsChannels = []string{"book", "price_change", "last_trade_price"}

// BookFeed tracks a dynamic set of outcome tokens and pushes their raw books
// to a handler.
type BookFeed struct {
	ws      *polymarket.WSClient
	clob    BookSource
	handler BookUpdateHandler
	logger  *slog.Logger

	pollInterval time.Duration
	maxStale     time.Duration

	mu        sync.Mutex
	tracked   map[string]time.Time // tokenID -> last update time
	lastTrade map[string]string    // tokenID -> last trade price (decimal string)

	closeOnce sync.Once
	done      chan struct{}
}

// NewBookFeed creates a feed. pollInterval controls how often stale books are
// refetched over REST; maxStale is the age at which a book counts as stale.
func NewBookFeed(
	ws *polymarket.WSClient,
	clob BookSource,
	handler BookUpdateHandler,
	pollInterval, maxStale time.Duration,
	logger *slog.Logger,
) *BookFeed {
	return &BookFeed{
		ws:           ws,
		clob:         clob,
		handler:      handler,
		logger:       logger.With(slog.String("component", "book_feed")),
		pollInterval: pollInterval,
		maxStale:     maxStale,
		tracked:      make(map[string]time.Time),
		lastTrade:    make(map[string]string),
		done:         make(chan struct{}),
	}
}

// Track subscribes a token and fetches its book immediately so the first
// render never waits for a WebSocket push.
func (f *BookFeed) Track(ctx context.Context, tokenID string) error {
	f.mu.Lock()
	_, already := f.tracked[tokenID]
	if !already {
		f.tracked[tokenID] = time.Time{}
	}
	f.mu.Unlock()

	if already {
		return nil
	}

	if err := f.ws.Subscribe(ctx, wsChannels, []string{tokenID}); err != nil {
		f.logger.Warn("ws subscribe failed, poller will cover",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}

	f.refetch(ctx, tokenID)
	return nil
}

// Untrack unsubscribes a token and stops polling it.
func (f *BookFeed) Untrack(ctx context.Context, tokenID string) {
	f.mu.Lock()
	_, ok := f.tracked[tokenID]
	delete(f.tracked, tokenID)
	delete(f.lastTrade, tokenID)
	f.mu.Unlock()

	if !ok {
		return
	}

	if err := f.ws.Unsubscribe(ctx, wsChannels, []string{tokenID}); err != nil {
		f.logger.Warn("ws unsubscribe failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
}

// Tracked returns the currently tracked token IDs.
func (f *BookFeed) Tracked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.tracked))
	for id := range f.tracked {
		ids = append(ids, id)
	}
	return ids
}

// Run connects the WebSocket, registers handlers, and drives the staleness
// poller until ctx is cancelled or Close is called.
func (f *BookFeed) Run(ctx context.Context) error {
	f.ws.OnBook(func(tokenID string, raw domain.RawBook) {
		f.deliver(ctx, tokenID, raw)
	})
	f.ws.OnPriceChange(func(tokenID string) {
		// Level deltas are not applied incrementally; a change just means the
		// cached summary is out of date.
		f.refetch(ctx, tokenID)
	})
	f.ws.OnLastTrade(func(tokenID, price string) {
		f.mu.Lock()
		f.lastTrade[tokenID] = price
		f.mu.Unlock()
	})

	if err := f.ws.Connect(ctx); err != nil {
		f.logger.Warn("initial ws connect failed, running on poller only",
			slog.String("error", err.Error()),
		)
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-ticker.C:
			f.pollStale(ctx)
		}
	}
}

// Close stops the feed.
func (f *BookFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// pollStale refetches every tracked book older than maxStale. Multiple
// stale books go out as one batched REST call.
func (f *BookFeed) pollStale(ctx context.Context) {
	now := time.Now()

	f.mu.Lock()
	var stale []string
	for tokenID, last := range f.tracked {
		if now.Sub(last) >= f.maxStale {
			stale = append(stale, tokenID)
		}
	}
	f.mu.Unlock()

	switch len(stale) {
	case 0:
	case 1:
		f.refetch(ctx, stale[0])
	default:
		f.refetchBatch(ctx, stale)
	}
}

// refetchBatch pulls several book summaries in one call, falling back to
// per-token fetches when the batch endpoint fails.
func (f *BookFeed) refetchBatch(ctx context.Context, tokenIDs []string) {
	summaries, err := f.clob.GetBooks(ctx, tokenIDs)
	if err != nil {
		f.logger.Warn("batched book refetch failed, retrying per token",
			slog.Int("count", len(tokenIDs)),
			slog.String("error", err.Error()),
		)
		for _, tokenID := range tokenIDs {
			f.refetch(ctx, tokenID)
		}
		return
	}

	for _, summary := range summaries {
		if summary.AssetID == "" {
			continue
		}
		f.deliver(ctx, summary.AssetID, summary.ToRawBook())
	}
}

// refetch pulls the full book summary over REST and delivers it.
func (f *BookFeed) refetch(ctx context.Context, tokenID string) {
	summary, err := f.clob.GetBook(ctx, tokenID)
	if err != nil {
		f.logger.Warn("book refetch failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return
	}
	f.deliver(ctx, tokenID, summary.ToRawBook())
}

// deliver stamps the update time, patches in the latest trade price when the
// update lacks one, and invokes the handler.
func (f *BookFeed) deliver(ctx context.Context, tokenID string, raw domain.RawBook) {
	f.mu.Lock()
	if _, ok := f.tracked[tokenID]; !ok {
		// Late message for an untracked token.
		f.mu.Unlock()
		return
	}
	f.tracked[tokenID] = time.Now()
	if raw.LastTradePrice == "" {
		raw.LastTradePrice = f.lastTrade[tokenID]
	} else {
		f.lastTrade[tokenID] = raw.LastTradePrice
	}
	f.mu.Unlock()

	if f.handler != nil {
		f.handler(ctx, tokenID, raw)
	}
}
