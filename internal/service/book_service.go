// Package service contains the application services that sit between the
// transport layer (HTTP/WS) and the platform, cache, and store adapters.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marketglass/marketglass/internal/book"
	"github.com/marketglass/marketglass/internal/domain"
)

// Alerter delivers operator notifications. Satisfied by *notify.Notifier.
type Alerter interface {
	SpreadAlert(ctx context.Context, question, outcome string, spreadCents int) error
	OrderFilled(ctx context.Context, orderID, outcome string, priceCents int, shares float64) error
}

// BookChannel is the signal-bus channel prefix for aggregated snapshots.
// The full channel name is "books:"+tokenID.
const BookChannel = "books:"

// BookService turns raw book updates into display-ready snapshots, caches
// them, fans them out on the signal bus, and answers book view reads.
type BookService struct {
	agg     *book.Aggregator
	cache   domain.BookCache
	bus     domain.SignalBus
	orders  domain.OrderStore
	markets domain.MarketStore
	alerter Alerter
	logger  *slog.Logger

	depthLimit       int
	spreadAlertCents int

	mu      sync.Mutex
	alerted map[string]bool // tokenID -> spread alert already fired
}

// NewBookService creates a BookService. orders and markets may be nil in
// monitor mode; alerter may be nil when notifications are not configured.
func NewBookService(
	agg *book.Aggregator,
	cache domain.BookCache,
	bus domain.SignalBus,
	orders domain.OrderStore,
	markets domain.MarketStore,
	alerter Alerter,
	depthLimit, spreadAlertCents int,
	logger *slog.Logger,
) *BookService {
	return &BookService{
		agg:              agg,
		cache:            cache,
		bus:              bus,
		orders:           orders,
		markets:          markets,
		alerter:          alerter,
		logger:           logger.With(slog.String("component", "book_service")),
		depthLimit:       depthLimit,
		spreadAlertCents: spreadAlertCents,
		alerted:          make(map[string]bool),
	}
}

// HandleBookUpdate aggregates a raw book into a snapshot, caches it, and
// publishes it. It is the feed's BookUpdateHandler.
func (s *BookService) HandleBookUpdate(ctx context.Context, tokenID string, raw domain.RawBook) {
	outcome := s.outcomeFor(ctx, tokenID)

	view := s.agg.BuildSnapshot(raw, nil, tokenID, outcome)
	snap := view.BookSnapshot
	s.applyDepthLimit(&snap)

	if err := s.cache.SetSnapshot(ctx, tokenID, snap); err != nil {
		s.logger.WarnContext(ctx, "snapshot cache write failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		s.logger.ErrorContext(ctx, "snapshot marshal failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, BookChannel+tokenID, payload); err != nil {
		s.logger.WarnContext(ctx, "snapshot publish failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}

	s.checkSpread(ctx, tokenID, snap)
}

// GetBookView returns the cached snapshot for a token with the viewer's open
// orders overlaid. wallet may be empty for anonymous viewers. It returns
// domain.ErrNotFound when the token's book has not been cached yet.
func (s *BookService) GetBookView(ctx context.Context, tokenID, wallet string) (domain.BookView, error) {
	snap, err := s.cache.GetSnapshot(ctx, tokenID)
	if err != nil {
		return domain.BookView{}, fmt.Errorf("book_service: get snapshot %s: %w", tokenID, err)
	}

	view := domain.BookView{BookSnapshot: snap}
	if wallet == "" || s.orders == nil {
		return view, nil
	}

	open, err := s.orders.ListOpenByToken(ctx, wallet, tokenID)
	if err != nil {
		return domain.BookView{}, fmt.Errorf("book_service: list open orders: %w", err)
	}

	userOrders := make([]domain.UserOrder, 0, len(open))
	for _, o := range open {
		userOrders = append(userOrders, o.ToUserOrder())
	}
	view.UserOrders = s.agg.ReconcileUserOrders(userOrders)

	return view, nil
}

// EstimateFill walks the cached book and reports how much of a hypothetical
// market order would fill and at what cost.
func (s *BookService) EstimateFill(ctx context.Context, tokenID string, side domain.OrderSide, shares float64) (book.FillEstimate, error) {
	snap, err := s.cache.GetSnapshot(ctx, tokenID)
	if err != nil {
		return book.FillEstimate{}, fmt.Errorf("book_service: get snapshot %s: %w", tokenID, err)
	}
	return book.EstimateFill(snap, side, shares)
}

// outcomeFor resolves the outcome label for a token. Unknown tokens get an
// empty label rather than an error so rendering never blocks on metadata.
func (s *BookService) outcomeFor(ctx context.Context, tokenID string) string {
	if s.markets == nil {
		return ""
	}
	m, err := s.markets.GetByTokenID(ctx, tokenID)
	if err != nil {
		return ""
	}
	return m.OutcomeForToken(tokenID)
}

// applyDepthLimit truncates each side to the configured number of levels.
// Cumulative depth totals are already monotone so truncation keeps them valid.
func (s *BookService) applyDepthLimit(snap *domain.BookSnapshot) {
	if s.depthLimit <= 0 {
		return
	}
	if len(snap.Asks) > s.depthLimit {
		snap.Asks = snap.Asks[:s.depthLimit]
	}
	if len(snap.Bids) > s.depthLimit {
		snap.Bids = snap.Bids[:s.depthLimit]
	}
	snap.MaxTotal = 0
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
}

// checkSpread fires a one-shot alert when the spread crosses the configured
// threshold, re-arming once it narrows again.
func (s *BookService) checkSpread(ctx context.Context, tokenID string, snap domain.BookSnapshot) {
	if s.alerter == nil || s.spreadAlertCents <= 0 || snap.Spread == nil {
		return
	}

	spreadCents := int(*snap.Spread*100 + 0.5)
	wide := spreadCents >= s.spreadAlertCents

	s.mu.Lock()
	already := s.alerted[tokenID]
	s.alerted[tokenID] = wide
	s.mu.Unlock()

	if !wide || already {
		return
	}

	question := snap.Outcome
	if s.markets != nil {
		if m, err := s.markets.GetByTokenID(ctx, tokenID); err == nil {
			question = m.Question
		}
	}

	if err := s.alerter.SpreadAlert(ctx, question, snap.Outcome, spreadCents); err != nil {
		s.logger.WarnContext(ctx, "spread alert failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
}
