package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/book"
	"github.com/marketglass/marketglass/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testRawBook() domain.RawBook {
	return domain.RawBook{
		Asks: []domain.RawLevel{
			{Price: "0.55", Size: "100"},
			{Price: "0.60", Size: "50"},
		},
		Bids: []domain.RawLevel{
			{Price: "0.50", Size: "80"},
			{Price: "0.45", Size: "40"},
		},
		LastTradePrice: "0.52",
	}
}

func newTestBookService(t *testing.T, alerter Alerter, depthLimit, spreadAlertCents int) (*BookService, *memBookCache, *memBus, *memOrderStore, *memMarketStore) {
	t.Helper()
	cache := newMemBookCache()
	bus := newMemBus()
	orders := newMemOrderStore()
	markets := newMemMarketStore()
	svc := NewBookService(
		book.NewAggregator(discardLogger()),
		cache, bus, orders, markets, alerter,
		depthLimit, spreadAlertCents,
		discardLogger(),
	)
	return svc, cache, bus, orders, markets
}

func TestHandleBookUpdateCachesAndPublishes(t *testing.T) {
	svc, cache, bus, _, markets := newTestBookService(t, nil, 0, 0)
	ctx := context.Background()

	require.NoError(t, markets.Upsert(ctx, domain.Market{
		ID:       "m1",
		Question: "Will it rain tomorrow?",
		Outcomes: [2]string{"Yes", "No"},
		TokenIDs: [2]string{"tok-yes", "tok-no"},
		Status:   domain.MarketStatusActive,
	}))

	svc.HandleBookUpdate(ctx, "tok-yes", testRawBook())

	snap, err := cache.GetSnapshot(ctx, "tok-yes")
	require.NoError(t, err)
	assert.Equal(t, "tok-yes", snap.TokenID)
	assert.Equal(t, "Yes", snap.Outcome)
	require.Len(t, snap.Asks, 2)
	require.Len(t, snap.Bids, 2)
	require.NotNil(t, snap.Spread)
	assert.InDelta(t, 0.05, *snap.Spread, 1e-9)

	msgs := bus.published[BookChannel+"tok-yes"]
	require.Len(t, msgs, 1)
	var published domain.BookSnapshot
	require.NoError(t, json.Unmarshal(msgs[0], &published))
	assert.Equal(t, snap.TokenID, published.TokenID)
}

func TestHandleBookUpdateDepthLimit(t *testing.T) {
	svc, cache, _, _, _ := newTestBookService(t, nil, 1, 0)
	ctx := context.Background()

	svc.HandleBookUpdate(ctx, "tok", testRawBook())

	snap, err := cache.GetSnapshot(ctx, "tok")
	require.NoError(t, err)
	assert.Len(t, snap.Asks, 1)
	assert.Len(t, snap.Bids, 1)
	// MaxTotal recomputed over the kept levels only.
	assert.InDelta(t, 100, snap.MaxTotal, 1e-9)
}

func TestGetBookViewOverlaysUserOrders(t *testing.T) {
	svc, _, _, orders, _ := newTestBookService(t, nil, 0, 0)
	ctx := context.Background()

	svc.HandleBookUpdate(ctx, "tok", testRawBook())

	require.NoError(t, orders.Create(ctx, domain.Order{
		ID:         "o1",
		TokenID:    "tok",
		Wallet:     "0xabc",
		Side:       domain.OrderSideBuy,
		PriceTicks: 480_000, // 48¢
		SizeUnits:  20_000_000,
		Status:     domain.OrderStatusOpen,
	}))
	require.NoError(t, orders.Create(ctx, domain.Order{
		ID:         "o2",
		TokenID:    "tok",
		Wallet:     "0xabc",
		Side:       domain.OrderSideBuy,
		PriceTicks: 470_000,
		SizeUnits:  10_000_000,
		FilledSize: 10, // fully filled, must be reconciled away
		Status:     domain.OrderStatusOpen,
	}))

	view, err := svc.GetBookView(ctx, "tok", "0xabc")
	require.NoError(t, err)
	require.Len(t, view.UserOrders, 1)
	assert.Equal(t, "o1", view.UserOrders[0].ID)
	assert.Equal(t, 48, view.UserOrders[0].PriceCents)

	// The overlay never merges into the aggregated levels.
	for _, lvl := range view.Bids {
		assert.NotEqual(t, 48, lvl.PriceCents)
	}

	// Anonymous viewers get no overlay.
	anon, err := svc.GetBookView(ctx, "tok", "")
	require.NoError(t, err)
	assert.Empty(t, anon.UserOrders)
}

func TestGetBookViewUncachedToken(t *testing.T) {
	svc, _, _, _, _ := newTestBookService(t, nil, 0, 0)

	_, err := svc.GetBookView(context.Background(), "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSpreadAlertFiresOnce(t *testing.T) {
	alerter := &recordingAlerter{}
	svc, _, _, _, _ := newTestBookService(t, alerter, 0, 5)
	ctx := context.Background()

	// Spread 5¢ >= threshold 5¢: fires.
	svc.HandleBookUpdate(ctx, "tok", testRawBook())
	require.Len(t, alerter.spreads, 1)
	assert.Equal(t, 5, alerter.spreads[0])

	// Same wide spread again: armed, no repeat.
	svc.HandleBookUpdate(ctx, "tok", testRawBook())
	assert.Len(t, alerter.spreads, 1)

	// Narrow spread re-arms.
	narrow := testRawBook()
	narrow.Asks[0].Price = "0.51"
	svc.HandleBookUpdate(ctx, "tok", narrow)
	assert.Len(t, alerter.spreads, 1)

	// Wide again: fires again.
	svc.HandleBookUpdate(ctx, "tok", testRawBook())
	assert.Len(t, alerter.spreads, 2)
}

func TestEstimateFillFromCache(t *testing.T) {
	svc, _, _, _, _ := newTestBookService(t, nil, 0, 0)
	ctx := context.Background()

	svc.HandleBookUpdate(ctx, "tok", testRawBook())

	est, err := svc.EstimateFill(ctx, "tok", domain.OrderSideBuy, 120)
	require.NoError(t, err)
	assert.InDelta(t, 120, est.FillableShares, 1e-9)
	assert.Equal(t, 60, est.WorstPriceCents)
}
