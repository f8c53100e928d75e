package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive  MarketStatus = "active"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// Market represents a binary prediction market whose outcome tokens trade on
// the CLOB.
type Market struct {
	ID          string
	Question    string
	Slug        string
	Description string
	Outcomes    [2]string // e.g. ["Yes","No"]
	TokenIDs    [2]string // ERC-1155 token IDs (76-digit strings)
	ConditionID string
	NegRisk     bool
	Volume      float64
	Status      MarketStatus
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutcomeForToken returns the outcome label for the given token ID, or ""
// when the token does not belong to this market.
func (m Market) OutcomeForToken(tokenID string) string {
	for i, id := range m.TokenIDs {
		if id == tokenID {
			return m.Outcomes[i]
		}
	}
	return ""
}

// WatchlistEntry is a market a user has bookmarked for their watch view.
type WatchlistEntry struct {
	Wallet    string
	MarketID  string
	CreatedAt time.Time
}
