package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/pkg/observability"
)

// wireMessage is the logical shape every DataProvider wire event takes,
// per §6: quote, trade, or candle-close, tagged by Type.
type wireMessage struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid,omitempty"`
	Ask       float64 `json:"ask,omitempty"`
	Last      float64 `json:"last,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Qty       float64 `json:"qty,omitempty"`
	Side      string  `json:"side,omitempty"`
	Timeframe string  `json:"timeframe,omitempty"`
	Open      float64 `json:"open,omitempty"`
	High      float64 `json:"high,omitempty"`
	Low       float64 `json:"low,omitempty"`
	Close     float64 `json:"close,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
	Timestamp int64   `json:"ts"`
}

// WebSocketProvider is a generic DataProvider backed by one
// `gorilla/websocket` connection. It owns reconnection and quote
// caching; wire framing specifics (auth headers, subscribe payload
// shape) are injected via Dialer/SubscribeMessage so one adapter
// serves any exchange whose stream matches the §6 wire shape.
type WebSocketProvider struct {
	url            string
	dialer         *websocket.Dialer
	subscribeMsg   func(pair core.TradingPair) interface{}
	logger         *observability.Logger

	mu          sync.RWMutex
	conn        *websocket.Conn
	subscribed  map[core.TradingPair]bool
	quotes      map[core.TradingPair]Quote
	candleCache map[string][]core.Candle
}

// NewWebSocketProvider builds a provider that dials url on first
// Subscribe call. subscribeMsg renders the exchange-specific
// subscription payload for a pair; logger may be nil.
func NewWebSocketProvider(url string, subscribeMsg func(pair core.TradingPair) interface{}, logger *observability.Logger) *WebSocketProvider {
	return &WebSocketProvider{
		url:          url,
		dialer:       websocket.DefaultDialer,
		subscribeMsg: subscribeMsg,
		logger:       logger,
		subscribed:   make(map[core.TradingPair]bool),
		quotes:       make(map[core.TradingPair]Quote),
		candleCache:  make(map[string][]core.Candle),
	}
}

func (p *WebSocketProvider) ensureConnected(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, _, err := p.dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return quanterrors.NewLiveError("websocket_connect", "failed to dial data provider", false, err)
	}
	p.conn = conn
	go p.readLoop(conn)
	return nil
}

// readLoop drains inbound frames into the quote cache until the
// connection closes; callers observe updates only through PollQuote
// (single-writer here, multi-reader via the RWMutex).
func (p *WebSocketProvider) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			p.mu.Lock()
			if p.conn == conn {
				p.conn = nil
			}
			p.mu.Unlock()
			if p.logger != nil {
				p.logger.Warn(context.Background(), "data provider connection closed", map[string]interface{}{"error": err.Error()})
			}
			return
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		p.applyMessage(msg)
	}
}

func (p *WebSocketProvider) applyMessage(msg wireMessage) {
	pair, err := core.ParseTradingPair(msg.Symbol)
	if err != nil {
		return
	}

	switch msg.Type {
	case "quote":
		p.mu.Lock()
		p.quotes[pair] = Quote{
			Pair:      pair,
			Bid:       core.DecimalFromFloat(msg.Bid),
			Ask:       core.DecimalFromFloat(msg.Ask),
			Last:      core.DecimalFromFloat(msg.Last),
			Timestamp: core.Timestamp(msg.Timestamp),
		}
		p.mu.Unlock()
	case "candle_close":
		candle := core.Candle{
			Timestamp: core.Timestamp(msg.Timestamp),
			Open:      core.DecimalFromFloat(msg.Open),
			High:      core.DecimalFromFloat(msg.High),
			Low:       core.DecimalFromFloat(msg.Low),
			Close:     core.DecimalFromFloat(msg.Close),
			Volume:    core.DecimalFromFloat(msg.Volume),
		}
		key := fmt.Sprintf("%s:%s", pair.String(), msg.Timeframe)
		p.mu.Lock()
		p.candleCache[key] = append(p.candleCache[key], candle)
		p.mu.Unlock()
	}
}

func (p *WebSocketProvider) Subscribe(ctx context.Context, pair core.TradingPair) error {
	if err := p.ensureConnected(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribed[pair] {
		return nil
	}
	if err := p.conn.WriteJSON(p.subscribeMsg(pair)); err != nil {
		return quanterrors.NewLiveError("websocket_subscribe", "failed to send subscribe frame", false, err)
	}
	p.subscribed[pair] = true
	return nil
}

func (p *WebSocketProvider) Unsubscribe(ctx context.Context, pair core.TradingPair) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribed, pair)
	delete(p.quotes, pair)
	return nil
}

func (p *WebSocketProvider) PollQuote(pair core.TradingPair) (Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[pair]
	return q, ok
}

// HistoricalCandles serves from the in-memory cache populated by
// candle_close frames; a real deployment would also fall back to a
// REST backfill call, which is transport-layer detail this core
// leaves to the adapter.
func (p *WebSocketProvider) HistoricalCandles(ctx context.Context, pair core.TradingPair, tf core.Timeframe, start, end core.Timestamp) ([]core.Candle, error) {
	key := fmt.Sprintf("%s:%s", pair.String(), tf)
	p.mu.RLock()
	defer p.mu.RUnlock()
	cached := p.candleCache[key]
	var out []core.Candle
	for _, c := range cached {
		if c.Timestamp >= start && c.Timestamp <= end {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, quanterrors.ErrNoHistoricalData
	}
	return out, nil
}

var _ DataProvider = (*WebSocketProvider)(nil)

// reconnectBackoff computes exponential backoff, capped at max.
func reconnectBackoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// Reconnect redials with exponential backoff, re-subscribing every
// pair that was active before the drop. Returns
// quanterrors.ErrReconnectExhausted once maxAttempts is exceeded — the
// live engine (§4.I) calls this from its own reconnection state.
func (p *WebSocketProvider) Reconnect(ctx context.Context, maxAttempts int, base, max time.Duration) error {
	p.mu.RLock()
	pairs := make([]core.TradingPair, 0, len(p.subscribed))
	for pair := range p.subscribed {
		pairs = append(pairs, pair)
	}
	p.mu.RUnlock()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(reconnectBackoff(attempt, base, max)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := p.ensureConnected(ctx); err != nil {
			continue
		}
		p.mu.Lock()
		for _, pair := range pairs {
			delete(p.subscribed, pair)
		}
		p.mu.Unlock()
		failed := false
		for _, pair := range pairs {
			if err := p.Subscribe(ctx, pair); err != nil {
				failed = true
				break
			}
		}
		if !failed {
			return nil
		}
	}
	return quanterrors.ErrReconnectExhausted
}
