// Package exchange defines the two capability contracts the live
// engine and recovery manager depend on — DataProvider and
// ExecutionClient — plus the wire-level quote/trade/candle shapes
// they exchange. Concrete adapters (REST/WebSocket framing, exchange-
// specific auth) live outside this core; only the narrow interface
// surface does not.
package exchange

import (
	"context"

	"github.com/quantcore/engine/internal/core"
)

// Quote is a point-in-time best bid/ask/last snapshot for a symbol.
type Quote struct {
	Pair      core.TradingPair
	Bid       core.Decimal
	Ask       core.Decimal
	Last      core.Decimal
	Timestamp core.Timestamp
}

// TradeTick is a single executed trade on the exchange's tape.
type TradeTick struct {
	Pair      core.TradingPair
	Price     core.Decimal
	Quantity  core.Decimal
	Side      core.OrderSide
	Timestamp core.Timestamp
}

// CandleClose is a closed-bar event for one symbol/timeframe.
type CandleClose struct {
	Pair      core.TradingPair
	Timeframe core.Timeframe
	Candle    core.Candle
}

// DataProvider is the market-data capability the live engine drives.
// Implementations own their own transport (WebSocket, polling REST,
// replay-from-file for tests); this core only consumes the shape.
type DataProvider interface {
	// Subscribe begins streaming quote/trade/candle updates for pair.
	// Idempotent: subscribing to an already-subscribed pair is a no-op.
	Subscribe(ctx context.Context, pair core.TradingPair) error

	// Unsubscribe stops streaming updates for pair.
	Unsubscribe(ctx context.Context, pair core.TradingPair) error

	// PollQuote returns the most recently cached quote for pair, or
	// ok=false if none has arrived yet.
	PollQuote(pair core.TradingPair) (Quote, bool)

	// HistoricalCandles returns closed candles for pair/timeframe over
	// [start, end], oldest first. Returns quanterrors.ErrNoHistoricalData
	// if the provider has nothing in range.
	HistoricalCandles(ctx context.Context, pair core.TradingPair, tf core.Timeframe, start, end core.Timestamp) ([]core.Candle, error)
}

// ExecutionClient is the order-execution capability the live engine
// and recovery manager drive.
type ExecutionClient interface {
	// SubmitOrder places req and returns the exchange's immediate
	// response (not necessarily a fill — see OrderResult.Success).
	SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderResult, error)

	// CancelOrder cancels a single resting order by exchange ID.
	CancelOrder(ctx context.Context, exchangeOrderID string) error

	// CancelAll cancels every resting order, optionally scoped to one
	// pair (nil pair cancels across all pairs).
	CancelAll(ctx context.Context, pair *core.TradingPair) error

	// OpenOrders lists resting orders, optionally scoped to one pair.
	OpenOrders(ctx context.Context, pair *core.TradingPair) ([]core.OpenOrder, error)

	// Positions lists all currently open positions.
	Positions(ctx context.Context) ([]core.Position, error)

	// Balance returns the account's aggregate balance view.
	Balance(ctx context.Context) (core.Balance, error)

	// SetLeverage is an optional capability: implementations that
	// don't support leverage return ErrUnsupportedCapability rather
	// than failing the caller's whole flow.
	SetLeverage(ctx context.Context, pair core.TradingPair, multiplier float64, cross bool) error
}
