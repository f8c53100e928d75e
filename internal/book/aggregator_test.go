package book

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/domain"
)

func newTestAggregator() *Aggregator {
	return NewAggregator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func rawLevels(pairs ...string) []domain.RawLevel {
	levels := make([]domain.RawLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		levels = append(levels, domain.RawLevel{Price: pairs[i], Size: pairs[i+1]})
	}
	return levels
}

func TestNormalizeLevelsSortingAndOrdering(t *testing.T) {
	agg := newTestAggregator()

	raw := rawLevels(
		"0.55", "100",
		"0.40", "50",
		"0.48", "25",
	)

	asks := agg.NormalizeLevels(raw, domain.SideAsk)
	require.Len(t, asks, 3)
	assert.Equal(t, []int{40, 48, 55}, centsOf(asks), "asks ascending, best first")

	bids := agg.NormalizeLevels(raw, domain.SideBid)
	require.Len(t, bids, 3)
	assert.Equal(t, []int{55, 48, 40}, centsOf(bids), "bids descending, best first")

	for _, lvl := range asks {
		assert.Equal(t, domain.SideAsk, lvl.Side)
		assert.Greater(t, lvl.Shares, 0.0)
	}
}

func TestNormalizeLevelsNoDuplicateCents(t *testing.T) {
	agg := newTestAggregator()

	raw := rawLevels(
		"0.501", "10",
		"0.502", "20",
		"0.499", "30",
		"0.503", "5",
	)

	for _, side := range []domain.Side{domain.SideAsk, domain.SideBid} {
		out := agg.NormalizeLevels(raw, side)
		seen := map[int]bool{}
		for _, lvl := range out {
			assert.False(t, seen[lvl.PriceCents], "duplicate cents bucket %d", lvl.PriceCents)
			seen[lvl.PriceCents] = true
		}
	}
}

func TestNormalizeLevelsRoundingCollisionMerge(t *testing.T) {
	agg := newTestAggregator()

	// 0.415*100 = 41.5 rounds half-up to 42; 0.4195*100 = 41.95 rounds to 42.
	raw := rawLevels(
		"0.415", "10",
		"0.4195", "5",
	)

	out := agg.NormalizeLevels(raw, domain.SideAsk)
	require.Len(t, out, 1)
	assert.Equal(t, 42, out[0].PriceCents)
	assert.InDelta(t, 15.0, out[0].Shares, 1e-12)
	assert.InDelta(t, 15.0, out[0].CumulativeShares, 1e-12)
}

func TestNormalizeLevelsRoundHalfUpNotBankers(t *testing.T) {
	agg := newTestAggregator()

	// Under round-half-to-even 0.125 would land on 12; the displayed price
	// rule requires 13.
	out := agg.NormalizeLevels(rawLevels("0.125", "1"), domain.SideBid)
	require.Len(t, out, 1)
	assert.Equal(t, 13, out[0].PriceCents)

	out = agg.NormalizeLevels(rawLevels("0.135", "1"), domain.SideBid)
	require.Len(t, out, 1)
	assert.Equal(t, 14, out[0].PriceCents)
}

func TestNormalizeLevelsBoundaryExclusion(t *testing.T) {
	agg := newTestAggregator()

	raw := rawLevels(
		"0", "100",
		"1", "100",
		"0.0", "100",
		"1.00", "100",
		"0.50", "10",
	)

	out := agg.NormalizeLevels(raw, domain.SideAsk)
	require.Len(t, out, 1)
	assert.Equal(t, 50, out[0].PriceCents)
}

func TestNormalizeLevelsClampsExtremeTradablePrices(t *testing.T) {
	agg := newTestAggregator()

	out := agg.NormalizeLevels(rawLevels("0.001", "10", "0.999", "20"), domain.SideAsk)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].PriceCents)
	assert.Equal(t, 99, out[1].PriceCents)
}

func TestNormalizeLevelsDropsMalformed(t *testing.T) {
	agg := newTestAggregator()

	raw := []domain.RawLevel{
		{Price: "abc", Size: "10"},
		{Price: "0.5", Size: "xyz"},
		{Price: "", Size: "10"},
		{Price: "0.5", Size: ""},
		{Price: "0.5", Size: "0"},
		{Price: "0.5", Size: "-3"},
		{Price: "-0.2", Size: "10"},
		{Price: "1.5", Size: "10"},
		{Price: "0.62", Size: "40"},
	}

	out := agg.NormalizeLevels(raw, domain.SideBid)
	require.Len(t, out, 1)
	assert.Equal(t, 62, out[0].PriceCents)
	assert.InDelta(t, 40.0, out[0].Shares, 1e-12)
}

func TestNormalizeLevelsCumulativeDepth(t *testing.T) {
	agg := newTestAggregator()

	raw := rawLevels(
		"0.30", "10",
		"0.31", "20",
		"0.32", "30",
	)

	asks := agg.NormalizeLevels(raw, domain.SideAsk)
	require.Len(t, asks, 3)

	var sum float64
	prev := 0.0
	for _, lvl := range asks {
		sum += lvl.Shares
		assert.GreaterOrEqual(t, lvl.CumulativeShares, prev, "cumulative must be non-decreasing")
		prev = lvl.CumulativeShares
	}
	assert.InDelta(t, sum, asks[len(asks)-1].CumulativeShares, 1e-12)

	bids := agg.NormalizeLevels(raw, domain.SideBid)
	require.Len(t, bids, 3)
	assert.Equal(t, 32, bids[0].PriceCents)
	assert.InDelta(t, 30.0, bids[0].CumulativeShares, 1e-12)
	assert.InDelta(t, 60.0, bids[2].CumulativeShares, 1e-12)
}

func TestBuildSnapshotEmptyBook(t *testing.T) {
	agg := newTestAggregator()

	view := agg.BuildSnapshot(domain.RawBook{}, nil, "tok-1", "Yes")

	assert.Empty(t, view.Asks)
	assert.Empty(t, view.Bids)
	assert.Nil(t, view.LastPrice)
	assert.Nil(t, view.Spread)
	assert.Zero(t, view.MaxTotal)
	assert.Equal(t, "Yes", view.Outcome)
	assert.Equal(t, "tok-1", view.TokenID)
	assert.Empty(t, view.UserOrders)
}

func TestBuildSnapshotMissingSideIsEmptyNotError(t *testing.T) {
	agg := newTestAggregator()

	view := agg.BuildSnapshot(domain.RawBook{
		Bids: rawLevels("0.50", "100"),
	}, nil, "tok-1", "No")

	assert.Empty(t, view.Asks)
	require.Len(t, view.Bids, 1)
	assert.Nil(t, view.Spread, "spread is nil when one side is empty")
}

func TestBuildSnapshotSpread(t *testing.T) {
	agg := newTestAggregator()

	view := agg.BuildSnapshot(domain.RawBook{
		Asks: rawLevels("0.55", "10", "0.60", "10"),
		Bids: rawLevels("0.50", "10", "0.45", "10"),
	}, nil, "tok-1", "Yes")

	require.NotNil(t, view.Spread)
	assert.InDelta(t, 0.05, *view.Spread, 1e-9)

	best, ok := view.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 55, best.PriceCents)
	best, ok = view.BestBid()
	require.True(t, ok)
	assert.Equal(t, 50, best.PriceCents)
}

func TestBuildSnapshotLastPrice(t *testing.T) {
	agg := newTestAggregator()

	view := agg.BuildSnapshot(domain.RawBook{
		Asks:           rawLevels("0.55", "10"),
		LastTradePrice: "0.54",
	}, nil, "tok-1", "Yes")
	require.NotNil(t, view.LastPrice)
	assert.InDelta(t, 0.54, *view.LastPrice, 1e-9)

	view = agg.BuildSnapshot(domain.RawBook{
		Asks:           rawLevels("0.55", "10"),
		LastTradePrice: "garbage",
	}, nil, "tok-1", "Yes")
	assert.Nil(t, view.LastPrice)
}

func TestBuildSnapshotMaxTotal(t *testing.T) {
	agg := newTestAggregator()

	view := agg.BuildSnapshot(domain.RawBook{
		Asks: rawLevels("0.50", "100"), // total 50
		Bids: rawLevels("0.40", "200"), // total 80
	}, nil, "tok-1", "Yes")

	assert.InDelta(t, 80.0, view.MaxTotal, 1e-9)
}

func TestBuildSnapshotIdempotent(t *testing.T) {
	agg := newTestAggregator()

	raw := domain.RawBook{
		Asks: rawLevels(
			"0.55", "100",
			"0.551", "50",
			"0.60", "10",
			"bogus", "1",
		),
		Bids: rawLevels(
			"0.50", "75",
			"0.495", "25",
		),
		LastTradePrice: "0.52",
	}
	orders := []domain.UserOrder{
		{ID: "o1", PriceCents: 55, TotalShares: 10, FilledShares: 4, Side: domain.SideAsk},
	}

	first := agg.BuildSnapshot(raw, orders, "tok-1", "Yes")
	second := agg.BuildSnapshot(raw, orders, "tok-1", "Yes")

	require.Equal(t, first, second, "identical input must produce identical output")
}

func TestReconcileUserOrders(t *testing.T) {
	agg := newTestAggregator()

	orders := []domain.UserOrder{
		{ID: "full", TotalShares: 10, FilledShares: 10, Side: domain.SideBid, PriceCents: 40},
		{ID: "partial", TotalShares: 10, FilledShares: 4, Side: domain.SideBid, PriceCents: 41},
		{ID: "untouched", TotalShares: 5, FilledShares: 0, Side: domain.SideAsk, PriceCents: 60},
		{ID: "overfilled", TotalShares: 5, FilledShares: 7, Side: domain.SideAsk, PriceCents: 61},
	}

	resting := agg.ReconcileUserOrders(orders)
	require.Len(t, resting, 2)
	assert.Equal(t, "partial", resting[0].ID)
	assert.InDelta(t, 6.0, resting[0].RemainingShares(), 1e-12)
	assert.Equal(t, "untouched", resting[1].ID)
}

func centsOf(levels []domain.BookLevel) []int {
	out := make([]int, len(levels))
	for i, lvl := range levels {
		out[i] = lvl.PriceCents
	}
	return out
}
