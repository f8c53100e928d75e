package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/domain"
)

func testSnapshot(t *testing.T) domain.BookSnapshot {
	t.Helper()
	agg := newTestAggregator()
	view := agg.BuildSnapshot(domain.RawBook{
		Asks: rawLevels(
			"0.50", "100",
			"0.52", "50",
			"0.60", "200",
		),
		Bids: rawLevels(
			"0.48", "80",
			"0.45", "120",
		),
	}, nil, "tok-1", "Yes")
	return view.BookSnapshot
}

func TestEstimateFillSingleLevel(t *testing.T) {
	est, err := EstimateFill(testSnapshot(t), domain.OrderSideBuy, 40)
	require.NoError(t, err)

	assert.InDelta(t, 40.0, est.FillableShares, 1e-12)
	assert.InDelta(t, 0.50, est.AvgPrice, 1e-12)
	assert.Equal(t, 50, est.WorstPriceCents)
	assert.InDelta(t, 20.0, est.Cost, 1e-12)
}

func TestEstimateFillSweepsLevels(t *testing.T) {
	// 100 @ 0.50 + 50 @ 0.52 + 10 @ 0.60 = 160 shares costing 82.
	est, err := EstimateFill(testSnapshot(t), domain.OrderSideBuy, 160)
	require.NoError(t, err)

	assert.InDelta(t, 160.0, est.FillableShares, 1e-12)
	assert.InDelta(t, 82.0, est.Cost, 1e-12)
	assert.InDelta(t, 82.0/160.0, est.AvgPrice, 1e-12)
	assert.Equal(t, 60, est.WorstPriceCents)
}

func TestEstimateFillShallowBook(t *testing.T) {
	est, err := EstimateFill(testSnapshot(t), domain.OrderSideSell, 500)
	require.NoError(t, err)

	assert.InDelta(t, 200.0, est.FillableShares, 1e-12, "only 200 shares of bid depth exist")
	assert.InDelta(t, 500.0, est.RequestedShares, 1e-12)
	assert.Equal(t, 45, est.WorstPriceCents)
}

func TestEstimateFillSellWalksBids(t *testing.T) {
	est, err := EstimateFill(testSnapshot(t), domain.OrderSideSell, 80)
	require.NoError(t, err)

	assert.InDelta(t, 0.48, est.AvgPrice, 1e-12)
	assert.Equal(t, 48, est.WorstPriceCents)
}

func TestEstimateFillErrors(t *testing.T) {
	_, err := EstimateFill(domain.BookSnapshot{}, domain.OrderSideBuy, 10)
	assert.ErrorIs(t, err, domain.ErrEmptyBook)

	_, err = EstimateFill(testSnapshot(t), domain.OrderSideBuy, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	_, err = EstimateFill(testSnapshot(t), domain.OrderSideBuy, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}
