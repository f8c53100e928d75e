package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketglass/marketglass/internal/domain"
)

func newTestOrderService(t *testing.T, signer Signer, limiter domain.RateLimiter) (*OrderService, *memOrderStore, *memBus) {
	t.Helper()
	orders := newMemOrderStore()
	bus := newMemBus()
	svc := NewOrderService(orders, limiter, bus, signer, nil, nil, discardLogger())
	return svc, orders, bus
}

func TestPlaceOrderValidation(t *testing.T) {
	svc, _, _ := newTestOrderService(t, fakeSigner{}, allowAllLimiter{allowed: true})
	ctx := context.Background()

	cases := []struct {
		name string
		req  PlaceOrderRequest
	}{
		{"price too low", PlaceOrderRequest{TokenID: "tok", Side: domain.OrderSideBuy, PriceCents: 0, Shares: 10}},
		{"price too high", PlaceOrderRequest{TokenID: "tok", Side: domain.OrderSideBuy, PriceCents: 100, Shares: 10}},
		{"zero shares", PlaceOrderRequest{TokenID: "tok", Side: domain.OrderSideBuy, PriceCents: 50, Shares: 0}},
		{"negative shares", PlaceOrderRequest{TokenID: "tok", Side: domain.OrderSideBuy, PriceCents: 50, Shares: -5}},
		{"missing token", PlaceOrderRequest{Side: domain.OrderSideBuy, PriceCents: 50, Shares: 10}},
		{"bad side", PlaceOrderRequest{TokenID: "tok", Side: "hold", PriceCents: 50, Shares: 10}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, tc.req)
			assert.ErrorIs(t, err, domain.ErrInvalidOrder)
		})
	}
}

func TestPlaceOrderPersistsAndSigns(t *testing.T) {
	svc, orders, bus := newTestOrderService(t, fakeSigner{}, allowAllLimiter{allowed: true})
	ctx := context.Background()

	result, err := svc.PlaceOrder(ctx, PlaceOrderRequest{
		MarketID:   "m1",
		TokenID:    "tok",
		Side:       domain.OrderSideBuy,
		PriceCents: 55,
		Shares:     20,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotEmpty(t, result.OrderID)

	stored, err := orders.GetByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "0xsigned", stored.Signature)
	assert.Equal(t, int64(550_000), stored.PriceTicks)
	assert.Equal(t, int64(20_000_000), stored.SizeUnits)
	assert.InDelta(t, 0.55, stored.Price(), 1e-9)
	assert.InDelta(t, 20, stored.Size(), 1e-9)

	// Buy: maker pays USDC notional, taker receives shares.
	require.NotNil(t, stored.MakerAmount)
	require.NotNil(t, stored.TakerAmount)
	assert.Equal(t, "11000000", stored.MakerAmount.String()) // 0.55 * 20 in micro-USDC
	assert.Equal(t, "20000000", stored.TakerAmount.String())

	assert.Len(t, bus.published["orders"], 1)
}

func TestPlaceOrderSellSwapsAmounts(t *testing.T) {
	svc, orders, _ := newTestOrderService(t, fakeSigner{}, allowAllLimiter{allowed: true})

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:    "tok",
		Side:       domain.OrderSideSell,
		PriceCents: 40,
		Shares:     10,
	})
	require.NoError(t, err)

	stored, err := orders.GetByID(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "10000000", stored.MakerAmount.String()) // shares out
	assert.Equal(t, "4000000", stored.TakerAmount.String())  // USDC in
}

func TestPlaceOrderRateLimited(t *testing.T) {
	svc, orders, _ := newTestOrderService(t, fakeSigner{}, allowAllLimiter{allowed: false})

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:    "tok",
		Side:       domain.OrderSideBuy,
		PriceCents: 50,
		Shares:     10,
	})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, result.ShouldRetry)
	assert.Empty(t, orders.orders)
}

func TestPlaceOrderWithoutSigner(t *testing.T) {
	svc, _, _ := newTestOrderService(t, nil, allowAllLimiter{allowed: true})

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		TokenID:    "tok",
		Side:       domain.OrderSideBuy,
		PriceCents: 50,
		Shares:     10,
	})
	assert.ErrorIs(t, err, domain.ErrSigningFailed)
}

func TestCancelOrder(t *testing.T) {
	svc, orders, bus := newTestOrderService(t, fakeSigner{}, allowAllLimiter{allowed: true})
	ctx := context.Background()

	result, err := svc.PlaceOrder(ctx, PlaceOrderRequest{
		TokenID:    "tok",
		Side:       domain.OrderSideBuy,
		PriceCents: 50,
		Shares:     10,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelOrder(ctx, result.OrderID))

	stored, err := orders.GetByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
	assert.Len(t, bus.published["orders"], 2) // placed + cancelled

	assert.ErrorIs(t, svc.CancelOrder(ctx, "missing"), domain.ErrNotFound)
}

func TestRecordFillNotifiesOnCompletion(t *testing.T) {
	orders := newMemOrderStore()
	bus := newMemBus()
	alerter := &recordingAlerter{}
	svc := NewOrderService(orders, allowAllLimiter{allowed: true}, bus, fakeSigner{}, nil, alerter, discardLogger())
	ctx := context.Background()

	result, err := svc.PlaceOrder(ctx, PlaceOrderRequest{
		TokenID:    "tok",
		Side:       domain.OrderSideBuy,
		PriceCents: 50,
		Shares:     10,
	})
	require.NoError(t, err)

	// Partial fill: no notification.
	require.NoError(t, svc.RecordFill(ctx, result.OrderID, 4))
	assert.Empty(t, alerter.fills)

	// Complete fill: notified.
	require.NoError(t, svc.RecordFill(ctx, result.OrderID, 10))
	assert.Equal(t, []string{result.OrderID}, alerter.fills)
}

type fakeClobGateway struct {
	remote  map[string]domain.Order
	lookups []string
}

func (f *fakeClobGateway) PostOrder(_ context.Context, o domain.Order) (domain.OrderResult, error) {
	return domain.OrderResult{Success: true, OrderID: o.ID}, nil
}

func (f *fakeClobGateway) CancelOrder(context.Context, string) error { return nil }

func (f *fakeClobGateway) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	f.lookups = append(f.lookups, orderID)
	o, ok := f.remote[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (f *fakeClobGateway) GetOpenOrders(context.Context, string) ([]domain.Order, error) {
	return nil, nil
}

type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.waits++
	return nil
}

func TestSyncFillsRecordsProgress(t *testing.T) {
	orders := newMemOrderStore()
	bus := newMemBus()
	limiter := &countingLimiter{}
	clob := &fakeClobGateway{remote: map[string]domain.Order{}}
	svc := NewOrderService(orders, limiter, bus, fakeSigner{}, clob, nil, discardLogger())
	ctx := context.Background()

	wallet := "0xabc"
	require.NoError(t, orders.Create(ctx, domain.Order{
		ID: "ord-1", Wallet: wallet, TokenID: "tok",
		Status: domain.OrderStatusOpen, SizeUnits: 100_000_000, FilledSize: 10,
	}))
	require.NoError(t, orders.Create(ctx, domain.Order{
		ID: "ord-2", Wallet: wallet, TokenID: "tok",
		Status: domain.OrderStatusOpen, SizeUnits: 50_000_000, FilledSize: 50,
	}))
	clob.remote["ord-1"] = domain.Order{ID: "ord-1", SizeUnits: 100_000_000, FilledSize: 40}
	clob.remote["ord-2"] = domain.Order{ID: "ord-2", SizeUnits: 50_000_000, FilledSize: 50}

	require.NoError(t, svc.SyncFills(ctx, wallet))

	assert.Equal(t, 2, limiter.waits, "every exchange poll goes through the limiter")

	updated, err := orders.GetByID(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, updated.FilledSize)

	unchanged, err := orders.GetByID(ctx, "ord-2")
	require.NoError(t, err)
	assert.Equal(t, 50.0, unchanged.FilledSize)
}

func TestSyncFillsToleratesLookupFailures(t *testing.T) {
	orders := newMemOrderStore()
	limiter := &countingLimiter{}
	clob := &fakeClobGateway{remote: map[string]domain.Order{}}
	svc := NewOrderService(orders, limiter, newMemBus(), fakeSigner{}, clob, nil, discardLogger())
	ctx := context.Background()

	require.NoError(t, orders.Create(ctx, domain.Order{
		ID: "ord-gone", Wallet: "0xabc", TokenID: "tok",
		Status: domain.OrderStatusOpen, SizeUnits: 10_000_000,
	}))

	require.NoError(t, svc.SyncFills(ctx, "0xabc"))
	assert.Equal(t, []string{"ord-gone"}, clob.lookups)
}

func TestSyncFillsNoGatewayIsNoop(t *testing.T) {
	svc, orders, _ := newTestOrderService(t, fakeSigner{}, allowAllLimiter{allowed: true})
	ctx := context.Background()

	require.NoError(t, orders.Create(ctx, domain.Order{
		ID: "ord-1", Wallet: "0xabc", Status: domain.OrderStatusOpen, SizeUnits: 10_000_000,
	}))
	require.NoError(t, svc.SyncFills(ctx, "0xabc"))
}
