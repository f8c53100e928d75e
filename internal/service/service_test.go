package service

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/marketglass/marketglass/internal/crypto"
	"github.com/marketglass/marketglass/internal/domain"
)

// In-memory fakes shared by the service tests.

type memBookCache struct {
	mu    sync.Mutex
	books map[string]domain.BookSnapshot
}

func newMemBookCache() *memBookCache {
	return &memBookCache{books: make(map[string]domain.BookSnapshot)}
}

func (c *memBookCache) SetSnapshot(_ context.Context, tokenID string, snap domain.BookSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[tokenID] = snap
	return nil
}

func (c *memBookCache) GetSnapshot(_ context.Context, tokenID string) (domain.BookSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.books[tokenID]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *memBookCache) ListTokenIDs(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.books))
	for id := range c.books {
		ids = append(ids, id)
	}
	return ids, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan domain.Signal, error) {
	ch := make(chan domain.Signal)
	close(ch)
	return ch, nil
}

type memOrderStore struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[string]domain.Order)}
}

func (s *memOrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.orders[o.ID] = o
	return nil
}

func (s *memOrderStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *memOrderStore) UpdateFill(_ context.Context, id string, filledSize float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.FilledSize = filledSize
	if filledSize >= o.Size() {
		o.Status = domain.OrderStatusMatched
	}
	s.orders[id] = o
	return nil
}

func (s *memOrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOrderStore) ListOpen(_ context.Context, wallet string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Wallet == wallet && (o.Status == domain.OrderStatusPending || o.Status == domain.OrderStatusOpen) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListOpenByToken(_ context.Context, wallet, tokenID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Wallet == wallet && o.TokenID == tokenID &&
			(o.Status == domain.OrderStatusPending || o.Status == domain.OrderStatusOpen) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOrderStore) ListByWallet(_ context.Context, wallet string, _ domain.ListOpts) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Wallet == wallet {
			out = append(out, o)
		}
	}
	return out, nil
}

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func (s *memMarketStore) Upsert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	for _, m := range markets {
		if err := s.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *memMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) GetByTokenID(_ context.Context, tokenID string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.TokenIDs[0] == tokenID || m.TokenIDs[1] == tokenID {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memMarketStore) ListActive(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMarketStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type allowAllLimiter struct{ allowed bool }

func (l allowAllLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allowed, nil
}

func (l allowAllLimiter) Wait(context.Context, string) error { return nil }

type fakeSigner struct{}

func (fakeSigner) SignOrder(crypto.OrderPayload) (string, error) {
	return "0xsigned", nil
}

func (fakeSigner) Address() common.Address {
	return common.HexToAddress("0x9d8A62f656a8d1615C1294fd71e9CFb3E4855A4F")
}

type recordingAlerter struct {
	mu      sync.Mutex
	spreads []int
	fills   []string
}

func (a *recordingAlerter) SpreadAlert(_ context.Context, _, _ string, spreadCents int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spreads = append(a.spreads, spreadCents)
	return nil
}

func (a *recordingAlerter) OrderFilled(_ context.Context, orderID, _ string, _ int, _ float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fills = append(a.fills, orderID)
	return nil
}
