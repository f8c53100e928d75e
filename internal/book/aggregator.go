// Package book converts raw CLOB book summaries into display-ready,
// cumulative-depth snapshots priced in integer cents. The aggregator is a
// pure transformation: it owns no state, performs no I/O beyond debug
// logging, and is safe to call concurrently.
package book

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/marketglass/marketglass/internal/domain"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// Aggregator normalizes raw remote book data and merges in the viewing
// user's resting orders as a separate overlay.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. The logger is only used at debug
// level for dropped malformed levels.
func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{
		logger: logger.With(slog.String("component", "book_aggregator")),
	}
}

// bucket accumulates shares for one cents price level. Sums are kept in
// decimal until the very end so repeated float addition cannot drift across
// platforms.
type bucket struct {
	shares decimal.Decimal
}

// NormalizeLevels parses one side of a raw book into sorted, de-duplicated
// cents buckets with cumulative depth.
//
// Entries that fail to parse, have a price outside (0,1), or a size <= 0 are
// dropped. Raw prices that round to the same cent are merged by summing
// shares. Asks come back sorted ascending by price, bids descending, so the
// first element of either side is always the best price; CumulativeShares
// accumulates in that display order.
func (a *Aggregator) NormalizeLevels(raw []domain.RawLevel, side domain.Side) []domain.BookLevel {
	buckets := make(map[int]*bucket, len(raw))

	for _, lvl := range raw {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			a.dropLevel(lvl, "unparseable price")
			continue
		}
		size, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			a.dropLevel(lvl, "unparseable size")
			continue
		}
		// Prices at exactly 0 or 1 are settled/invalid states, not resting
		// liquidity. They are excluded outright, never clamped.
		if price.Sign() <= 0 || price.Cmp(decOne) >= 0 {
			a.dropLevel(lvl, "price out of (0,1)")
			continue
		}
		if size.Sign() <= 0 {
			a.dropLevel(lvl, "non-positive size")
			continue
		}

		cents := centsBucket(price)
		b, ok := buckets[cents]
		if !ok {
			b = &bucket{}
			buckets[cents] = b
		}
		b.shares = b.shares.Add(size)
	}

	cents := make([]int, 0, len(buckets))
	for c := range buckets {
		cents = append(cents, c)
	}
	if side == domain.SideAsk {
		sort.Ints(cents)
	} else {
		sort.Sort(sort.Reverse(sort.IntSlice(cents)))
	}

	out := make([]domain.BookLevel, 0, len(cents))
	cumulative := decimal.Zero
	for _, c := range cents {
		b := buckets[c]
		cumulative = cumulative.Add(b.shares)

		price := decimal.NewFromInt(int64(c)).Div(decHundred)
		out = append(out, domain.BookLevel{
			Side:             side,
			RawPrice:         price.InexactFloat64(),
			PriceCents:       c,
			Shares:           b.shares.InexactFloat64(),
			Total:            b.shares.Mul(price).InexactFloat64(),
			CumulativeShares: cumulative.InexactFloat64(),
		})
	}
	return out
}

// BuildSnapshot normalizes both sides of a raw book and derives last price,
// spread, and the depth-bar scale. It never fails: malformed pieces degrade
// to an empty side or nil field, and the result is deterministic for
// identical input so pollers can re-render without flicker.
//
// User orders are deliberately NOT folded into the level list; they come
// back as a separate overlay (via ReconcileUserOrders) so "my order" stays
// distinguishable from aggregate market depth.
func (a *Aggregator) BuildSnapshot(raw domain.RawBook, userOrders []domain.UserOrder, tokenID, outcome string) domain.BookView {
	snap := domain.BookSnapshot{
		TokenID: tokenID,
		Outcome: outcome,
		Asks:    a.NormalizeLevels(raw.Asks, domain.SideAsk),
		Bids:    a.NormalizeLevels(raw.Bids, domain.SideBid),
	}

	if raw.LastTradePrice != "" {
		if last, err := decimal.NewFromString(raw.LastTradePrice); err == nil {
			f := last.InexactFloat64()
			snap.LastPrice = &f
		}
	}

	if len(snap.Asks) > 0 && len(snap.Bids) > 0 {
		spread := snap.Asks[0].RawPrice - snap.Bids[0].RawPrice
		snap.Spread = &spread
	}

	for _, lvl := range snap.Asks {
		if lvl.Total > snap.MaxTotal {
			snap.MaxTotal = lvl.Total
		}
	}
	for _, lvl := range snap.Bids {
		if lvl.Total > snap.MaxTotal {
			snap.MaxTotal = lvl.Total
		}
	}

	return domain.BookView{
		BookSnapshot: snap,
		UserOrders:   a.ReconcileUserOrders(userOrders),
	}
}

// ReconcileUserOrders filters the viewer's orders down to those still
// resting in the book. Fully filled or empty orders are not resting and must
// not display as open book entries. The snapshot itself is never mutated;
// callers cross-reference PriceCents for row highlighting.
func (a *Aggregator) ReconcileUserOrders(orders []domain.UserOrder) []domain.UserOrder {
	resting := make([]domain.UserOrder, 0, len(orders))
	for _, o := range orders {
		if o.RemainingShares() > 0 {
			resting = append(resting, o)
		}
	}
	return resting
}

// centsBucket converts a decimal price in (0,1) to its integer cents bucket
// using round-half-up (ties at .5 go to the higher cent, matching the price
// displayed elsewhere). Results are clamped to [1,99]: a price like 0.004
// still represents tradable liquidity and lands on the nearest valid cent.
func centsBucket(price decimal.Decimal) int {
	// decimal.Round rounds half away from zero, which for positive prices is
	// exactly round-half-up. Do not substitute a round-half-to-even here.
	cents := int(price.Mul(decHundred).Round(0).IntPart())
	if cents < 1 {
		cents = 1
	}
	if cents > 99 {
		cents = 99
	}
	return cents
}

func (a *Aggregator) dropLevel(lvl domain.RawLevel, reason string) {
	a.logger.Debug("dropping malformed book level",
		slog.String("price", lvl.Price),
		slog.String("size", lvl.Size),
		slog.String("reason", reason),
	)
}
