package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/marketglass/marketglass/internal/crypto"
	"github.com/marketglass/marketglass/internal/domain"
)

// Signer abstracts EIP-712 order signing so the service layer never depends
// on concrete key-management implementations.
type Signer interface {
	SignOrder(payload crypto.OrderPayload) (string, error)
	Address() common.Address
}

// ClobGateway is the slice of the CLOB client the order service needs.
type ClobGateway interface {
	PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOpenOrders(ctx context.Context, tokenID string) ([]domain.Order, error)
}

// PlaceOrderRequest captures a limit order as entered in the trade panel:
// a whole-cent price and a share quantity.
type PlaceOrderRequest struct {
	MarketID   string
	TokenID    string
	Side       domain.OrderSide
	Type       domain.OrderType
	PriceCents int
	Shares     float64
}

// OrderService handles the order lifecycle: validate, sign, submit, persist.
type OrderService struct {
	orders  domain.OrderStore
	limiter domain.RateLimiter
	bus     domain.SignalBus
	signer  Signer
	clob    ClobGateway
	alerter Alerter
	logger  *slog.Logger
}

// NewOrderService creates an OrderService. signer may be nil for read-only
// deployments; PlaceOrder then fails with domain.ErrSigningFailed.
func NewOrderService(
	orders domain.OrderStore,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	signer Signer,
	clob ClobGateway,
	alerter Alerter,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:  orders,
		limiter: limiter,
		bus:     bus,
		signer:  signer,
		clob:    clob,
		alerter: alerter,
		logger:  logger.With(slog.String("component", "order_service")),
	}
}

// PlaceOrder validates, signs, persists, and submits a limit order. When no
// CLOB gateway is configured the order is persisted locally only (paper
// trading).
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (domain.OrderResult, error) {
	if req.PriceCents < 1 || req.PriceCents > 99 {
		return domain.OrderResult{}, fmt.Errorf("order_service: price %d¢ out of range: %w", req.PriceCents, domain.ErrInvalidOrder)
	}
	if req.Shares <= 0 {
		return domain.OrderResult{}, fmt.Errorf("order_service: size %f must be positive: %w", req.Shares, domain.ErrInvalidOrder)
	}
	if req.TokenID == "" {
		return domain.OrderResult{}, fmt.Errorf("order_service: missing token id: %w", domain.ErrInvalidOrder)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return domain.OrderResult{}, fmt.Errorf("order_service: unknown side %q: %w", req.Side, domain.ErrInvalidOrder)
	}
	if s.signer == nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: no wallet configured: %w", domain.ErrSigningFailed)
	}

	wallet := s.signer.Address().Hex()

	// Rate limit per wallet.
	allowed, err := s.limiter.Allow(ctx, "orders:"+wallet, 10, time.Second)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("order_service: rate limiter: %w", err)
	}
	if !allowed {
		return domain.OrderResult{
			Success:     false,
			Message:     "rate limited",
			ShouldRetry: true,
		}, domain.ErrRateLimited
	}

	orderType := req.Type
	if orderType == "" {
		orderType = domain.OrderTypeGTC
	}

	// Fixed-point conversion: price in cents -> ticks (1e6 per dollar),
	// shares -> micro-shares.
	priceTicks := int64(req.PriceCents) * 10_000
	sizeUnits := int64(req.Shares * 1e6)

	// Exchange amounts in micro-units. A buy spends USDC (price * size) for
	// shares; a sell is the reverse.
	notional := new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(priceTicks), big.NewInt(sizeUnits)),
		big.NewInt(1_000_000),
	)
	shares := big.NewInt(sizeUnits)

	makerAmount, takerAmount := notional, shares
	sideInt := 0
	if req.Side == domain.OrderSideSell {
		makerAmount, takerAmount = shares, notional
		sideInt = 1
	}

	order := domain.Order{
		ID:          uuid.New().String(),
		MarketID:    req.MarketID,
		TokenID:     req.TokenID,
		Wallet:      wallet,
		Side:        req.Side,
		Type:        orderType,
		PriceTicks:  priceTicks,
		SizeUnits:   sizeUnits,
		MakerAmount: makerAmount,
		TakerAmount: takerAmount,
		Status:      domain.OrderStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	payload := crypto.OrderPayload{
		Salt:          fmt.Sprintf("%d", time.Now().UnixNano()),
		Maker:         wallet,
		Signer:        wallet,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       req.TokenID,
		MakerAmount:   makerAmount.String(),
		TakerAmount:   takerAmount.String(),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          sideInt,
		SignatureType: 0,
	}

	signature, err := s.signer.SignOrder(payload)
	if err != nil {
		return domain.OrderResult{
			Success: false,
			Message: "signing failed",
		}, fmt.Errorf("order_service: sign order: %w", err)
	}
	order.Signature = signature

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.OrderResult{
			Success: false,
			Message: "persist failed",
		}, fmt.Errorf("order_service: create order: %w", err)
	}

	result := domain.OrderResult{
		Success: true,
		OrderID: order.ID,
		Status:  domain.OrderStatusPending,
		Message: "order placed",
	}

	if s.clob != nil {
		clobResult, clobErr := s.clob.PostOrder(ctx, order)
		if clobErr != nil {
			_ = s.orders.UpdateStatus(ctx, order.ID, domain.OrderStatusFailed)
			return domain.OrderResult{
				Success: false,
				OrderID: order.ID,
				Message: clobErr.Error(),
			}, fmt.Errorf("order_service: clob post order: %w", clobErr)
		}
		if clobResult.Status != "" {
			_ = s.orders.UpdateStatus(ctx, order.ID, clobResult.Status)
			result.Status = clobResult.Status
		}
		if clobResult.OrderID != "" {
			result.OrderID = clobResult.OrderID
		}
	}

	s.publishEvent(ctx, "order_placed", order, result)

	s.logger.InfoContext(ctx, "order placed",
		slog.String("order_id", result.OrderID),
		slog.String("token_id", order.TokenID),
		slog.String("side", string(order.Side)),
		slog.Int("price_cents", req.PriceCents),
		slog.Float64("shares", req.Shares),
		slog.String("status", string(result.Status)),
	)

	return result, nil
}

// CancelOrder cancels an order on the exchange and marks it locally.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order_service: cancel %s: %w", orderID, err)
	}

	if s.clob != nil {
		if err := s.clob.CancelOrder(ctx, orderID); err != nil {
			return fmt.Errorf("order_service: clob cancel %s: %w", orderID, err)
		}
	}

	if err := s.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		return fmt.Errorf("order_service: mark cancelled %s: %w", orderID, err)
	}

	s.publishEvent(ctx, "order_cancelled", order, domain.OrderResult{
		OrderID: orderID,
		Status:  domain.OrderStatusCancelled,
	})

	s.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", orderID),
	)
	return nil
}

// RecordFill updates fill progress reported by the exchange and notifies on
// completion.
func (s *OrderService) RecordFill(ctx context.Context, orderID string, filledSize float64) error {
	if err := s.orders.UpdateFill(ctx, orderID, filledSize); err != nil {
		return fmt.Errorf("order_service: record fill %s: %w", orderID, err)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("order_service: record fill reload %s: %w", orderID, err)
	}

	if order.Status == domain.OrderStatusMatched && s.alerter != nil {
		user := order.ToUserOrder()
		if err := s.alerter.OrderFilled(ctx, order.ID, "", user.PriceCents, order.Size()); err != nil {
			s.logger.WarnContext(ctx, "fill notification failed",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// OpenOrders returns the wallet's open orders, for the portfolio view.
func (s *OrderService) OpenOrders(ctx context.Context, wallet string) ([]domain.Order, error) {
	orders, err := s.orders.ListOpen(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("order_service: open orders: %w", err)
	}
	return orders, nil
}

// History returns the wallet's order history with pagination.
func (s *OrderService) History(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: history: %w", err)
	}
	return orders, nil
}

// SyncFills reconciles the wallet's open orders against the exchange and
// records any fill progress. Exchange polls go through Wait on the shared
// rate limiter so reconciliation cannot burn the CLOB request budget that
// interactive order placement draws from.
func (s *OrderService) SyncFills(ctx context.Context, wallet string) error {
	if s.clob == nil {
		return nil
	}

	open, err := s.orders.ListOpen(ctx, wallet)
	if err != nil {
		return fmt.Errorf("order_service: sync fills list: %w", err)
	}

	for _, local := range open {
		if err := s.limiter.Wait(ctx, "clob:order-poll"); err != nil {
			return fmt.Errorf("order_service: sync fills: %w", err)
		}

		remote, err := s.clob.GetOrder(ctx, local.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "fill sync lookup failed",
				slog.String("order_id", local.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if remote.FilledSize > local.FilledSize {
			if err := s.RecordFill(ctx, local.ID, remote.FilledSize); err != nil {
				s.logger.WarnContext(ctx, "fill sync record failed",
					slog.String("order_id", local.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}

// publishEvent emits a lifecycle event on the orders channel. Publish
// failures are logged but never fail the order operation.
func (s *OrderService) publishEvent(ctx context.Context, event string, order domain.Order, result domain.OrderResult) {
	evt, _ := json.Marshal(map[string]string{
		"event":    event,
		"order_id": result.OrderID,
		"token_id": order.TokenID,
		"side":     string(order.Side),
		"status":   string(result.Status),
	})
	if err := s.bus.Publish(ctx, "orders", evt); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("event", event),
			slog.String("order_id", result.OrderID),
			slog.String("error", err.Error()),
		)
	}
}
