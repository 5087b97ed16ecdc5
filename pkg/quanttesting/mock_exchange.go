// Package quanttesting provides in-memory fakes for the exchange
// capability interfaces (DataProvider, ExecutionClient), for use by
// tests across internal/live, internal/runner, and internal/recovery
// that need a scriptable exchange without a real network dependency.
package quanttesting

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/quanterrors"
)

// MockDataProvider is a programmable exchange.DataProvider: tests push
// quotes and historical candles in directly rather than the provider
// discovering them over a transport.
type MockDataProvider struct {
	mu sync.RWMutex

	subscribed map[core.TradingPair]bool
	quotes     map[core.TradingPair]exchange.Quote
	history    map[historyKey][]core.Candle
}

type historyKey struct {
	pair core.TradingPair
	tf   core.Timeframe
}

// NewMockDataProvider builds an empty provider; use SetQuote and
// SetHistoricalCandles to script it before handing it to the code
// under test.
func NewMockDataProvider() *MockDataProvider {
	return &MockDataProvider{
		subscribed: make(map[core.TradingPair]bool),
		quotes:     make(map[core.TradingPair]exchange.Quote),
		history:    make(map[historyKey][]core.Candle),
	}
}

func (p *MockDataProvider) Subscribe(ctx context.Context, pair core.TradingPair) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribed[pair] = true
	return nil
}

func (p *MockDataProvider) Unsubscribe(ctx context.Context, pair core.TradingPair) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribed, pair)
	return nil
}

// SetQuote scripts the quote PollQuote returns for pair from now on.
func (p *MockDataProvider) SetQuote(pair core.TradingPair, q exchange.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[pair] = q
}

func (p *MockDataProvider) PollQuote(pair core.TradingPair) (exchange.Quote, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[pair]
	return q, ok
}

// SetHistoricalCandles scripts the candles HistoricalCandles returns
// for pair/tf, ignoring the requested [start, end] window — tests
// scope the window by only setting the candles they want visible.
func (p *MockDataProvider) SetHistoricalCandles(pair core.TradingPair, tf core.Timeframe, candles []core.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[historyKey{pair, tf}] = candles
}

func (p *MockDataProvider) HistoricalCandles(ctx context.Context, pair core.TradingPair, tf core.Timeframe, start, end core.Timestamp) ([]core.Candle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	candles, ok := p.history[historyKey{pair, tf}]
	if !ok || len(candles) == 0 {
		return nil, quanterrors.ErrNoHistoricalData
	}
	out := make([]core.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

var _ exchange.DataProvider = (*MockDataProvider)(nil)

// MockExecutionClientConfig tunes the simulated fill behavior, mirroring
// the fee/slippage/failure-rate knobs a paper-trading exchange needs.
type MockExecutionClientConfig struct {
	TakerFeeRate core.Decimal
	SlippageRate core.Decimal
	FailureRate  float64 // fraction of submissions rejected outright
	Seed         int64
}

// MockExecutionClient is an in-memory exchange.ExecutionClient: every
// submitted order fills immediately (no partials, no resting book) at
// the requested price adjusted for configured slippage, less the
// configured taker fee, unless the configured FailureRate randomly
// rejects it first. Positions and balance update accordingly.
type MockExecutionClient struct {
	mu sync.Mutex

	cfg MockExecutionClientConfig
	rng *rand.Rand

	balance   core.Balance
	positions map[core.TradingPair]core.Position
	orders    map[string]core.OpenOrder

	leverageUnsupported bool
}

// NewMockExecutionClient builds a client seeded with the given starting
// balance. A zero-value cfg behaves as a frictionless, always-accepting
// paper exchange.
func NewMockExecutionClient(cfg MockExecutionClientConfig, startingBalance core.Balance) *MockExecutionClient {
	return &MockExecutionClient{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		balance:   startingBalance,
		positions: make(map[core.TradingPair]core.Position),
		orders:    make(map[string]core.OpenOrder),
	}
}

// DisableLeverage makes SetLeverage return ErrUnsupportedCapability,
// for exercising the capability-negotiation path in callers.
func (c *MockExecutionClient) DisableLeverage() { c.leverageUnsupported = true }

func (c *MockExecutionClient) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := core.Timestamp(time.Now().UnixMilli())

	if c.cfg.FailureRate > 0 && c.rng.Float64() < c.cfg.FailureRate {
		return core.OrderResult{
			Success:      false,
			Timestamp:    now,
			ErrorCode:    "simulated_rejection",
			ErrorMessage: "mock execution client simulated a rejection",
		}, nil
	}

	fillPrice := c.fillPrice(req)
	exchangeOrderID := uuid.NewString()

	c.applyFill(req, fillPrice)

	return core.OrderResult{
		Success:         true,
		ExchangeOrderID: exchangeOrderID,
		FilledQuantity:  req.Quantity,
		AvgFillPrice:    &fillPrice,
		Timestamp:       now,
	}, nil
}

// fillPrice applies the configured slippage against the requested (or
// reference) price: buys fill worse (higher), sells fill worse (lower).
func (c *MockExecutionClient) fillPrice(req core.OrderRequest) core.Decimal {
	base := core.ZeroDecimal
	if req.Price != nil {
		base = *req.Price
	}
	if c.cfg.SlippageRate.IsZero() {
		return base
	}
	adj := base.Mul(c.cfg.SlippageRate)
	if req.Side == core.OrderSideBuy {
		return base.Add(adj)
	}
	return base.Sub(adj)
}

func (c *MockExecutionClient) applyFill(req core.OrderRequest, fillPrice core.Decimal) {
	notional := fillPrice.Mul(req.Quantity)
	fee := notional.Mul(c.cfg.TakerFeeRate)

	pos := c.positions[req.Pair]
	if pos.Pair == (core.TradingPair{}) {
		pos.Pair = req.Pair
		pos.Side = core.PositionLong
	}

	sameSide := (req.Side == core.OrderSideBuy && pos.Side == core.PositionLong) ||
		(req.Side == core.OrderSideSell && pos.Side == core.PositionShort)

	switch {
	case pos.Size.IsZero():
		pos.Side = sideToPositionSide(req.Side)
		pos.Size = req.Quantity
		pos.EntryPrice = fillPrice
	case sameSide:
		totalCost := pos.EntryPrice.Mul(pos.Size).Add(fillPrice.Mul(req.Quantity))
		pos.Size = pos.Size.Add(req.Quantity)
		pos.EntryPrice = totalCost.Div(pos.Size)
	default:
		if req.Quantity.GreaterThanOrEqual(pos.Size) {
			remainder := req.Quantity.Sub(pos.Size)
			pos.Side = sideToPositionSide(req.Side)
			pos.Size = remainder
			pos.EntryPrice = fillPrice
		} else {
			pos.Size = pos.Size.Sub(req.Quantity)
		}
	}
	pos.OpenedAt = core.Timestamp(time.Now().UnixMilli())
	c.positions[req.Pair] = pos

	c.balance.Available = c.balance.Available.Sub(fee)
	c.balance.Total = c.balance.Total.Sub(fee)
}

func sideToPositionSide(side core.OrderSide) core.PositionSide {
	if side == core.OrderSideBuy {
		return core.PositionLong
	}
	return core.PositionShort
}

// PushOpenOrder seeds a resting order directly, bypassing SubmitOrder's
// immediate-fill behavior — for tests that need an order the reconciler
// sees as "open" without simulating its fill.
func (c *MockExecutionClient) PushOpenOrder(o core.OpenOrder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[o.ExchangeOrderID] = o
}

// PushPosition seeds a position directly, for scripting reconciliation
// scenarios without going through SubmitOrder.
func (c *MockExecutionClient) PushPosition(p core.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[p.Pair] = p
}

func (c *MockExecutionClient) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.orders, exchangeOrderID)
	return nil
}

func (c *MockExecutionClient) CancelAll(ctx context.Context, pair *core.TradingPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pair == nil {
		c.orders = make(map[string]core.OpenOrder)
		return nil
	}
	for id, o := range c.orders {
		if o.Pair == *pair {
			delete(c.orders, id)
		}
	}
	return nil
}

func (c *MockExecutionClient) OpenOrders(ctx context.Context, pair *core.TradingPair) ([]core.OpenOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.OpenOrder, 0, len(c.orders))
	for _, o := range c.orders {
		if pair == nil || o.Pair == *pair {
			out = append(out, o)
		}
	}
	return out, nil
}

func (c *MockExecutionClient) Positions(ctx context.Context) ([]core.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Position, 0, len(c.positions))
	for _, p := range c.positions {
		if p.Size.IsPositive() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *MockExecutionClient) Balance(ctx context.Context) (core.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

func (c *MockExecutionClient) SetLeverage(ctx context.Context, pair core.TradingPair, multiplier float64, cross bool) error {
	if c.leverageUnsupported {
		return quanterrors.ErrUnsupportedCapability
	}
	return nil
}

var _ exchange.ExecutionClient = (*MockExecutionClient)(nil)
