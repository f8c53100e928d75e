package book

import (
	"github.com/shopspring/decimal"

	"github.com/marketglass/marketglass/internal/domain"
)

// FillEstimate is the projected outcome of sweeping resting liquidity for a
// desired share quantity.
type FillEstimate struct {
	// RequestedShares is the quantity the caller asked to fill.
	RequestedShares float64 `json:"requested_shares"`
	// FillableShares is the quantity the book can actually satisfy. Equal to
	// RequestedShares unless the side is too shallow.
	FillableShares float64 `json:"fillable_shares"`
	// AvgPrice is the share-weighted average price across the swept levels.
	AvgPrice float64 `json:"avg_price"`
	// WorstPriceCents is the cents bucket of the deepest level touched.
	WorstPriceCents int `json:"worst_price_cents"`
	// Cost is the total notional (shares * price summed per level).
	Cost float64 `json:"cost"`
}

// EstimateFill walks cumulative depth from the best price outward and
// computes the average price to fill the requested share quantity. Buying an
// outcome sweeps the ask side, selling sweeps the bids. It returns
// domain.ErrEmptyBook when the relevant side has no levels, and
// domain.ErrInvalidOrder when shares is not positive.
func EstimateFill(snap domain.BookSnapshot, side domain.OrderSide, shares float64) (FillEstimate, error) {
	if shares <= 0 {
		return FillEstimate{}, domain.ErrInvalidOrder
	}

	levels := snap.Asks
	if side == domain.OrderSideSell {
		levels = snap.Bids
	}
	if len(levels) == 0 {
		return FillEstimate{}, domain.ErrEmptyBook
	}

	want := decimal.NewFromFloat(shares)
	remaining := want
	cost := decimal.Zero
	filled := decimal.Zero
	worst := levels[0].PriceCents

	for _, lvl := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		take := decimal.NewFromFloat(lvl.Shares)
		if take.Cmp(remaining) > 0 {
			take = remaining
		}
		price := decimal.NewFromInt(int64(lvl.PriceCents)).Div(decHundred)
		cost = cost.Add(take.Mul(price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
		worst = lvl.PriceCents
	}

	est := FillEstimate{
		RequestedShares: shares,
		FillableShares:  filled.InexactFloat64(),
		WorstPriceCents: worst,
		Cost:            cost.InexactFloat64(),
	}
	if filled.Sign() > 0 {
		est.AvgPrice = cost.Div(filled).InexactFloat64()
	}
	return est, nil
}
