package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marketglass/marketglass/internal/domain"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Get(ctx context.Context, id string) (domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string, limit int) ([]domain.Market, error)
	Sync(ctx context.Context, limit int) (int, error)
	Watch(ctx context.Context, wallet, marketID string) error
	Unwatch(ctx context.Context, wallet, marketID string) error
	Watchlist(ctx context.Context, wallet string) ([]domain.Market, error)
}

// MarketHandler serves market and watchlist HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns active markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get market failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get market")
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// SearchMarkets queries markets by free text against the discovery API.
// GET /api/markets/search?q=election&limit=20
func (h *MarketHandler) SearchMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q query parameter required")
		return
	}

	limit := 20
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	markets, err := h.markets.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: search markets failed",
			slog.String("query", query),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to search markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// SyncMarkets triggers a metadata sync from the discovery API.
// POST /api/markets/sync?limit=500
func (h *MarketHandler) SyncMarkets(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	synced, err := h.markets.Sync(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: market sync failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to sync markets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "synced",
		"count":  synced,
	})
}

// GetWatchlist returns the markets a wallet has bookmarked.
// GET /api/watchlist?wallet=0x...
func (h *MarketHandler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	markets, err := h.markets.Watchlist(r.Context(), wallet)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get watchlist failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get watchlist")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// AddToWatchlist bookmarks a market for a wallet.
// PUT /api/watchlist/{marketID}?wallet=0x...
func (h *MarketHandler) AddToWatchlist(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "marketID")
	wallet := r.URL.Query().Get("wallet")
	if marketID == "" || wallet == "" {
		writeError(w, http.StatusBadRequest, "market id and wallet are required")
		return
	}

	if err := h.markets.Watch(r.Context(), wallet, marketID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "market not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: watch market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update watchlist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "watching",
		"market_id": marketID,
	})
}

// RemoveFromWatchlist removes a market from a wallet's watchlist.
// DELETE /api/watchlist/{marketID}?wallet=0x...
func (h *MarketHandler) RemoveFromWatchlist(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "marketID")
	wallet := r.URL.Query().Get("wallet")
	if marketID == "" || wallet == "" {
		writeError(w, http.StatusBadRequest, "market id and wallet are required")
		return
	}

	if err := h.markets.Unwatch(r.Context(), wallet, marketID); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: unwatch market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update watchlist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "removed",
		"market_id": marketID,
	})
}
