package core

// SignalType is the strategy's directive for a single bar.
type SignalType string

const (
	SignalEntryLong  SignalType = "entry_long"
	SignalEntryShort SignalType = "entry_short"
	SignalExitLong   SignalType = "exit_long"
	SignalExitShort  SignalType = "exit_short"
	SignalHold       SignalType = "hold"
)

// Signal is the output of a strategy's entry/exit evaluation for one bar.
// Size/StopLoss/TakeProfit are optional (nil pointer = not specified, let
// the caller apply its default sizing/risk rule).
type Signal struct {
	Type       SignalType
	Price      Decimal
	Size       *Decimal
	StopLoss   *Decimal
	TakeProfit *Decimal
}

// OrderSide is buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType distinguishes market and limit orders.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce is optional on a limit order.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// OrderRequest is what the core submits to an ExecutionClient.
type OrderRequest struct {
	Pair          TradingPair
	Side          OrderSide
	OrderType     OrderType
	Quantity      Decimal
	Price         *Decimal
	TimeInForce   *TimeInForce
	ReduceOnly    bool
	ClientOrderID string
}

// OrderResult is the ExecutionClient's response to a submission.
type OrderResult struct {
	Success        bool
	ExchangeOrderID string
	FilledQuantity Decimal
	AvgFillPrice   *Decimal
	Timestamp      Timestamp
	ErrorCode      string
	ErrorMessage   string
}

// PositionSide is long or short; Position.Size is always positive and
// carries magnitude only, with Side carrying direction.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// Position is an open holding in one trading pair.
type Position struct {
	Pair          TradingPair
	Side          PositionSide
	Size          Decimal
	EntryPrice    Decimal
	OpenedAt      Timestamp
	UnrealizedPnL Decimal
	MarkPrice     *Decimal
}

// Trade is a closed round-trip: entry + exit prices/times + realized PnL.
// Emitted by the backtest engine on each exit.
type Trade struct {
	Pair         TradingPair
	Side         PositionSide
	EntryPrice   Decimal
	ExitPrice    Decimal
	Size         Decimal
	EntryTime    Timestamp
	ExitTime     Timestamp
	RealizedPnL  Decimal
	Commission   Decimal
}

// OpenOrder mirrors an order still resting on the exchange, as reported by
// ExecutionClient.OpenOrders / used for recovery reconciliation.
type OpenOrder struct {
	ExchangeOrderID string
	Pair            TradingPair
	Side            OrderSide
	OrderType       OrderType
	Quantity        Decimal
	Price           Decimal
	SubmittedAt     Timestamp
}

// Balance is the account's aggregate balance view.
type Balance struct {
	Total     Decimal
	Available Decimal
	Locked    Decimal
}
