package domain

// Side identifies which half of the book a level belongs to.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// RawLevel is a single untrusted price+size pair as delivered by the CLOB
// book summary endpoint. Both fields are decimal strings; either may be
// empty, malformed, or out of domain and must be validated before use.
type RawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// RawBook is the unnormalized book summary for one outcome token as
// received from the venue. Either side may be nil when the venue omits it.
type RawBook struct {
	Bids           []RawLevel `json:"bids"`
	Asks           []RawLevel `json:"asks"`
	LastTradePrice string     `json:"last_trade_price"`
}

// BookLevel is a normalized, display-ready price level. Levels are bucketed
// to integer cents so equal displayed prices always collapse into one row.
type BookLevel struct {
	Side       Side    `json:"side"`
	RawPrice   float64 `json:"raw_price"`   // in (0,1)
	PriceCents int     `json:"price_cents"` // round-half-up of RawPrice*100, always 1..99
	Shares     float64 `json:"shares"`
	Total      float64 `json:"total"` // Shares * RawPrice, used for depth bars
	// CumulativeShares is the running share sum from the best price outward:
	// ascending price for asks, descending for bids.
	CumulativeShares float64 `json:"cumulative_shares"`
}

// BookSnapshot is the display-ready book for one outcome token. It is
// immutable once built and replaced wholesale on every recomputation.
type BookSnapshot struct {
	TokenID string      `json:"token_id"`
	Outcome string      `json:"outcome"`
	Asks    []BookLevel `json:"asks"` // ascending by PriceCents
	Bids    []BookLevel `json:"bids"` // descending by PriceCents

	// LastPrice is the most recent trade price, nil when the venue has not
	// reported one or the reported value failed to parse.
	LastPrice *float64 `json:"last_price"`

	// Spread is best ask minus best bid, nil when either side is empty.
	Spread *float64 `json:"spread"`

	// MaxTotal is the largest Total across both sides; zero for an empty
	// book. Renderers scale depth bars against it and must not divide by it
	// when it is zero.
	MaxTotal float64 `json:"max_total"`
}

// BestAsk returns the lowest ask level, or false when the ask side is empty.
func (s BookSnapshot) BestAsk() (BookLevel, bool) {
	if len(s.Asks) == 0 {
		return BookLevel{}, false
	}
	return s.Asks[0], true
}

// BestBid returns the highest bid level, or false when the bid side is empty.
func (s BookSnapshot) BestBid() (BookLevel, bool) {
	if len(s.Bids) == 0 {
		return BookLevel{}, false
	}
	return s.Bids[0], true
}

// BookView pairs the aggregate snapshot with the viewer's resting orders.
// The overlay is kept out of the level list so a highlighted "my order" row
// never destroys the aggregate depth it contributes to.
type BookView struct {
	BookSnapshot
	UserOrders []UserOrder `json:"user_orders"`
}

// UserOrder is one of the viewing user's resting orders, kept separate from
// the aggregate levels so the UI can highlight the user's own liquidity
// without losing the distinction between "my order" and "market depth".
type UserOrder struct {
	ID           string  `json:"id"`
	TokenID      string  `json:"token_id"`
	Side         Side    `json:"side"`
	PriceCents   int     `json:"price_cents"`
	TotalShares  float64 `json:"total_shares"`
	FilledShares float64 `json:"filled_shares"`
}

// RemainingShares returns the unfilled share count, never negative.
func (o UserOrder) RemainingShares() float64 {
	rem := o.TotalShares - o.FilledShares
	if rem < 0 {
		return 0
	}
	return rem
}
