package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marketglass/marketglass/internal/domain"
)

const (
	// writeWait bounds each outgoing frame write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the upstream
	// connection as dead. pingPeriod must stay under it.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Reconnect backoff starts at reconnectDelay and doubles up to
	// maxReconnectDelay.
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called with the raw book whenever a full snapshot arrives
// on the "book" channel.
type BookHandler func(assetID string, raw domain.RawBook)

// PriceChangeHandler is called when a level changed for an asset. The viewer
// treats this as a staleness signal and refetches the full summary rather
// than patching levels incrementally.
type PriceChangeHandler func(assetID string)

// LastTradeHandler is called with the decimal-string price of the most
// recent trade for an asset.
type LastTradeHandler func(assetID, price string)

// WSClient is a WebSocket client for the CLOB real-time market data feed.
// It manages the connection lifecycle, subscriptions, and dispatches
// messages to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// subscriptions is everything replayed after a reconnect so the feed
	// resumes where it left off.
	subscriptions []WSCommand

	handlerMu         sync.RWMutex
	bookHandlers      []BookHandler
	priceHandlers     []PriceChangeHandler
	lastTradeHandlers []LastTradeHandler

	// done is closed once by Close.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client for the given endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. Previously registered subscriptions are restored.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe asks the upstream for updates on the given channels ("book",
// "price_change", "last_trade_price") for the listed asset IDs.
func (w *WSClient) Subscribe(ctx context.Context, channels []string, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	for _, ch := range channels {
		cmd := WSCommand{
			Type:    "subscribe",
			Channel: ch,
			Assets:  assetIDs,
		}

		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("polymarket/ws: subscribe to %s: %w", ch, err)
		}

		w.subscriptions = append(w.subscriptions, cmd)
	}

	return nil
}

// Unsubscribe unsubscribes from the given channels for the specified asset
// IDs, e.g. when the viewed outcome changes and the old token's updates are
// no longer needed.
func (w *WSClient) Unsubscribe(ctx context.Context, channels []string, assetIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("polymarket/ws: not connected")
	}

	for _, ch := range channels {
		cmd := WSCommand{
			Type:    "unsubscribe",
			Channel: ch,
			Assets:  assetIDs,
		}

		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("polymarket/ws: unsubscribe from %s: %w", ch, err)
		}
	}

	// Drop the removed assets from the replay list. Subscriptions left with
	// no assets disappear entirely.
	for i := range w.subscriptions {
		sub := &w.subscriptions[i]
		if slices.Contains(channels, sub.Channel) {
			sub.Assets = slices.DeleteFunc(sub.Assets, func(a string) bool {
				return slices.Contains(assetIDs, a)
			})
		}
	}
	w.subscriptions = slices.DeleteFunc(w.subscriptions, func(c WSCommand) bool {
		return len(c.Assets) == 0
	})

	return nil
}

// Close tears down the connection and stops the read and ping loops.
// Safe to call more than once.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnBook registers a handler for full book snapshots.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// OnPriceChange registers a handler for incremental level updates.
func (w *WSClient) OnPriceChange(handler PriceChangeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.priceHandlers = append(w.priceHandlers, handler)
}

// OnLastTrade registers a handler for last trade price messages.
func (w *WSClient) OnLastTrade(handler LastTradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.lastTradeHandlers = append(w.lastTradeHandlers, handler)
}

// sendCommand writes cmd as a JSON text frame. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop drains upstream frames into handleMessage. When the read fails
// and the client was not closed, it hands off to reconnect and exits; the
// reconnect path starts a fresh loop via Connect.
func (w *WSClient) readLoop() {
	defer func() {
		if conn := w.currentConn(); conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		conn := w.currentConn()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

func (w *WSClient) currentConn() *websocket.Conn {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn
}

// pingLoop keeps the upstream connection alive between market updates.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn := w.currentConn()
			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes one upstream frame to the registered handlers.
// Malformed frames are dropped; a bad message must never kill the feed.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope struct {
		MsgType string `json:"msg_type"`
		Event   string `json:"event_type"`
	}

	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	msgType := envelope.MsgType
	if msgType == "" {
		msgType = envelope.Event
	}

	switch msgType {
	case "book":
		var book BookMessage
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(book.AssetID, book.ToRawBook())
		}

	case "price_change":
		var pc struct {
			AssetID string `json:"asset_id"`
		}
		if err := json.Unmarshal(raw, &pc); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.priceHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(pc.AssetID)
		}

	case "last_trade_price":
		var ltp PriceMessage
		if err := json.Unmarshal(raw, &ltp); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.lastTradeHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(ltp.AssetID, ltp.Price)
		}
	}
}

// reconnect redials with exponential backoff until it succeeds or the
// client is closed.
func (w *WSClient) reconnect() {
	for delay := reconnectDelay; ; delay = min(delay*2, maxReconnectDelay) {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
	}
}
