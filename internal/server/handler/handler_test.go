package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/book"
	"github.com/marketglass/marketglass/internal/domain"
	"github.com/marketglass/marketglass/internal/service"
)

type fakeBookService struct {
	view domain.BookView
	est  book.FillEstimate
	err  error
}

func (f *fakeBookService) GetBookView(_ context.Context, tokenID, wallet string) (domain.BookView, error) {
	return f.view, f.err
}

func (f *fakeBookService) EstimateFill(_ context.Context, tokenID string, side domain.OrderSide, shares float64) (book.FillEstimate, error) {
	return f.est, f.err
}

type fakeOrderService struct {
	placed    []service.PlaceOrderRequest
	result    domain.OrderResult
	placeErr  error
	cancelErr error
	open      []domain.Order
}

func (f *fakeOrderService) PlaceOrder(_ context.Context, req service.PlaceOrderRequest) (domain.OrderResult, error) {
	f.placed = append(f.placed, req)
	return f.result, f.placeErr
}

func (f *fakeOrderService) CancelOrder(context.Context, string) error { return f.cancelErr }

func (f *fakeOrderService) OpenOrders(context.Context, string) ([]domain.Order, error) {
	return f.open, nil
}

func (f *fakeOrderService) History(context.Context, string, domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&strings.Builder{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newBookRequest(t *testing.T, target, tokenID string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.SetPathValue("tokenID", tokenID)
	return r
}

func TestGetBookMissingToken(t *testing.T) {
	h := NewBookHandler(&fakeBookService{}, discard())

	rec := httptest.NewRecorder()
	h.GetBook(rec, newBookRequest(t, "/api/books/", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetBookNotFound(t *testing.T) {
	h := NewBookHandler(&fakeBookService{err: domain.ErrNotFound}, discard())

	rec := httptest.NewRecorder()
	h.GetBook(rec, newBookRequest(t, "/api/books/tok1", "tok1"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetBookReturnsView(t *testing.T) {
	svc := &fakeBookService{
		view: domain.BookView{
			BookSnapshot: domain.BookSnapshot{
				TokenID: "tok1",
				Outcome: "Yes",
				Asks: []domain.BookLevel{
					{Side: domain.SideAsk, PriceCents: 55, Shares: 100, CumulativeShares: 100},
				},
			},
			UserOrders: []domain.UserOrder{
				{ID: "o1", TokenID: "tok1", PriceCents: 54, TotalShares: 10},
			},
		},
	}
	h := NewBookHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.GetBook(rec, newBookRequest(t, "/api/books/tok1?wallet=0xabc", "tok1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.BookView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tok1", got.TokenID)
	assert.Len(t, got.Asks, 1)
	assert.Len(t, got.UserOrders, 1)
}

func TestEstimateFillValidation(t *testing.T) {
	h := NewBookHandler(&fakeBookService{}, discard())

	tests := []struct {
		name   string
		target string
	}{
		{"missing side", "/api/books/tok1/estimate?shares=10"},
		{"bad side", "/api/books/tok1/estimate?side=hold&shares=10"},
		{"missing shares", "/api/books/tok1/estimate?side=buy"},
		{"negative shares", "/api/books/tok1/estimate?side=buy&shares=-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.EstimateFill(rec, newBookRequest(t, tt.target, "tok1"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestEstimateFillOK(t *testing.T) {
	svc := &fakeBookService{
		est: book.FillEstimate{
			RequestedShares: 100,
			FillableShares:  100,
			AvgPrice:        0.55,
			WorstPriceCents: 56,
			Cost:            55,
		},
	}
	h := NewBookHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.EstimateFill(rec, newBookRequest(t, "/api/books/tok1/estimate?side=buy&shares=100", "tok1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var got book.FillEstimate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 56, got.WorstPriceCents)
	assert.InDelta(t, 55.0, got.Cost, 1e-9)
}

func TestPlaceOrderDecodesBody(t *testing.T) {
	svc := &fakeOrderService{
		result: domain.OrderResult{Success: true, OrderID: "o1", Status: domain.OrderStatusPending},
	}
	h := NewOrderHandler(svc, discard())

	body := `{"market_id":"m1","token_id":"tok1","side":"buy","price_cents":55,"shares":20}`
	r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PlaceOrder(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.placed, 1)
	assert.Equal(t, domain.OrderSideBuy, svc.placed[0].Side)
	assert.Equal(t, 55, svc.placed[0].PriceCents)
	assert.Equal(t, 20.0, svc.placed[0].Shares)
}

func TestPlaceOrderErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid order", domain.ErrInvalidOrder, http.StatusBadRequest},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"no signer", domain.ErrSigningFailed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOrderHandler(&fakeOrderService{placeErr: tt.err}, discard())

			body := `{"market_id":"m1","token_id":"tok1","side":"buy","price_cents":55,"shares":20}`
			r := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.PlaceOrder(rec, r)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestListOrdersRequiresWallet(t *testing.T) {
	h := NewOrderHandler(&fakeOrderService{}, discard())

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersConvertsFixedPoint(t *testing.T) {
	svc := &fakeOrderService{
		open: []domain.Order{
			{
				ID:         "o1",
				TokenID:    "tok1",
				Side:       domain.OrderSideBuy,
				Type:       domain.OrderTypeGTC,
				PriceTicks: 550_000,
				SizeUnits:  20_000_000,
				Status:     domain.OrderStatusOpen,
			},
		},
	}
	h := NewOrderHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/orders?wallet=0xabc", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Orders []orderResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Orders, 1)
	assert.Equal(t, 55, got.Orders[0].PriceCents)
	assert.Equal(t, 20.0, got.Orders[0].TotalShares)
}
