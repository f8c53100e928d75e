package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/marketglass/marketglass/internal/domain"
	"github.com/marketglass/marketglass/internal/service"
)

// OrderService defines the methods that the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	OpenOrders(ctx context.Context, wallet string) ([]domain.Order, error)
	History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error)
}

// OrderHandler serves order-related HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// placeOrderRequest is the JSON body for order placement.
type placeOrderRequest struct {
	MarketID   string  `json:"market_id"`
	TokenID    string  `json:"token_id"`
	Side       string  `json:"side"`
	Type       string  `json:"type,omitempty"`
	PriceCents int     `json:"price_cents"`
	Shares     float64 `json:"shares"`
}

// orderResponse is the JSON shape returned for a single order.
type orderResponse struct {
	ID           string  `json:"id"`
	MarketID     string  `json:"market_id"`
	TokenID      string  `json:"token_id"`
	Side         string  `json:"side"`
	Type         string  `json:"type"`
	PriceCents   int     `json:"price_cents"`
	TotalShares  float64 `json:"total_shares"`
	FilledShares float64 `json:"filled_shares"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	u := o.ToUserOrder()
	return orderResponse{
		ID:           o.ID,
		MarketID:     o.MarketID,
		TokenID:      o.TokenID,
		Side:         string(o.Side),
		Type:         string(o.Type),
		PriceCents:   u.PriceCents,
		TotalShares:  u.TotalShares,
		FilledShares: u.FilledShares,
		Status:       string(o.Status),
		CreatedAt:    o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ListOrders returns open orders for a wallet, or the wallet's order history
// when history=true.
// GET /api/orders?wallet=0x...&history=true&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet := q.Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet query parameter required")
		return
	}

	var orders []domain.Order
	var err error

	if q.Get("history") == "true" {
		orders, err = h.orders.History(r.Context(), wallet, parseListOpts(r))
	} else {
		orders, err = h.orders.OpenOrders(r.Context(), wallet)
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

// PlaceOrder creates, signs, and submits a new limit order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.MarketID == "" || body.TokenID == "" {
		writeError(w, http.StatusBadRequest, "market_id and token_id are required")
		return
	}

	result, err := h.orders.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		MarketID:   body.MarketID,
		TokenID:    body.TokenID,
		Side:       domain.OrderSide(body.Side),
		Type:       domain.OrderType(body.Type),
		PriceCents: body.PriceCents,
		Shares:     body.Shares,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrRateLimited):
			writeError(w, http.StatusTooManyRequests, "rate limited")
		case errors.Is(err, domain.ErrSigningFailed):
			writeError(w, http.StatusServiceUnavailable, "order signing unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to place order")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id": result.OrderID,
		"status":   string(result.Status),
		"message":  result.Message,
	})
}

// CancelOrder cancels an existing order by its ID.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}
