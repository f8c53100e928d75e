package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/marketglass/marketglass/internal/book"
	"github.com/marketglass/marketglass/internal/domain"
)

// BookService defines the methods that the book handler requires from the
// service layer.
type BookService interface {
	GetBookView(ctx context.Context, tokenID, wallet string) (domain.BookView, error)
	EstimateFill(ctx context.Context, tokenID string, side domain.OrderSide, shares float64) (book.FillEstimate, error)
}

// BookHandler serves order book HTTP endpoints.
type BookHandler struct {
	books  BookService
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler with the given service and logger.
func NewBookHandler(books BookService, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		books:  books,
		logger: logger,
	}
}

// GetBook returns the aggregated order book for a token, with the caller's
// open orders overlaid when a wallet is supplied.
// GET /api/books/{tokenID}?wallet=0x...
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	tokenID := pathParam(r, "tokenID")
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return
	}
	wallet := r.URL.Query().Get("wallet")

	view, err := h.books.GetBookView(r.Context(), tokenID, wallet)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get book failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get book")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// EstimateFill walks the book and reports the average price and cost of a
// hypothetical market order.
// GET /api/books/{tokenID}/estimate?side=buy&shares=100
func (h *BookHandler) EstimateFill(w http.ResponseWriter, r *http.Request) {
	tokenID := pathParam(r, "tokenID")
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return
	}

	q := r.URL.Query()
	side := domain.OrderSide(q.Get("side"))
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		writeError(w, http.StatusBadRequest, "side must be buy or sell")
		return
	}

	shares, err := strconv.ParseFloat(q.Get("shares"), 64)
	if err != nil || shares <= 0 {
		writeError(w, http.StatusBadRequest, "shares must be a positive number")
		return
	}

	est, err := h.books.EstimateFill(r.Context(), tokenID, side, shares)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: estimate fill failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to estimate fill")
		return
	}

	writeJSON(w, http.StatusOK, est)
}
