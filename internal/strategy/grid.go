package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
)

// GridOrder is a single standing buy or sell at a grid level.
type GridOrder struct {
	Side  core.OrderSide
	Price core.Decimal
	Size  core.Decimal
}

// GridLevel is one rung of the ladder. BuyOrder stands ready to open a
// long at Price; SellOrder (when present) closes that long at a take-
// profit markup, still anchored to this level so a later fill re-arms
// the same rung. ShortEntryOrder/ShortCoverOrder mirror the same pattern
// for the optional short side.
type GridLevel struct {
	Index int
	Price core.Decimal

	BuyOrder  *GridOrder
	SellOrder *GridOrder

	ShortEntryOrder *GridOrder
	ShortCoverOrder *GridOrder
}

// GridFill records one order fill processed during a ProcessPrice call,
// for callers (paper-mode driver, live-mode poller) that need to know
// what happened.
type GridFill struct {
	LevelIndex  int
	Side        core.OrderSide
	Price       core.Decimal
	Size        core.Decimal
	RealizedPnL core.Decimal
}

// GridStrategy is the grid-trading state machine of a fixed ladder of
// GridCount+1 price levels, each holding at most one outstanding buy and
// one outstanding sell. Guarded by mu: paper/live drivers call ProcessPrice
// from a single goroutine at a time, but stats accessors may be called
// concurrently.
type GridStrategy struct {
	mu sync.Mutex

	UpperPrice    core.Decimal
	LowerPrice    core.Decimal
	GridCount     int
	OrderSize     core.Decimal
	TakeProfitPct core.Decimal
	EnableLong    bool
	EnableShort   bool
	MaxPosition   core.Decimal

	levels []GridLevel

	longPosition  core.Decimal
	shortPosition core.Decimal
	realizedPnL   core.Decimal
}

// GridConfig is the validated constructor input, matching §6's grid
// parameter names.
type GridConfig struct {
	UpperPrice    core.Decimal
	LowerPrice    core.Decimal
	GridCount     int
	OrderSize     core.Decimal
	TakeProfitPct core.Decimal
	EnableLong    bool
	EnableShort   bool
	MaxPosition   core.Decimal
}

// NewGridStrategy validates cfg per §4.D's grid invariants and builds the
// level ladder.
func NewGridStrategy(cfg GridConfig) (*GridStrategy, error) {
	if !cfg.UpperPrice.GreaterThan(cfg.LowerPrice) {
		return nil, quanterrors.NewConfigError("upper_price", "upper_price must be greater than lower_price", nil)
	}
	if cfg.GridCount < 2 || cfg.GridCount > 100 {
		return nil, quanterrors.NewConfigError("grid_count", "grid_count must be in [2,100]", nil)
	}
	if !cfg.OrderSize.IsPositive() {
		return nil, quanterrors.NewConfigError("order_size", "order_size must be positive", nil)
	}
	tpFloat := core.DecimalToFloat(cfg.TakeProfitPct)
	if tpFloat <= 0 || tpFloat > 100 {
		return nil, quanterrors.NewConfigError("take_profit_pct", "take_profit_pct must be in (0,100]", nil)
	}

	g := &GridStrategy{
		UpperPrice:    cfg.UpperPrice,
		LowerPrice:    cfg.LowerPrice,
		GridCount:     cfg.GridCount,
		OrderSize:     cfg.OrderSize,
		TakeProfitPct: cfg.TakeProfitPct,
		EnableLong:    cfg.EnableLong,
		EnableShort:   cfg.EnableShort,
		MaxPosition:   cfg.MaxPosition,
		longPosition:  core.ZeroDecimal,
		shortPosition: core.ZeroDecimal,
		realizedPnL:   core.ZeroDecimal,
	}
	g.buildLevels()
	return g, nil
}

func (g *GridStrategy) buildLevels() {
	span := g.UpperPrice.Sub(g.LowerPrice)
	step := span.Div(core.DecimalFromInt(int64(g.GridCount)))
	g.levels = make([]GridLevel, g.GridCount+1)
	for i := 0; i <= g.GridCount; i++ {
		price := g.LowerPrice.Add(step.Mul(core.DecimalFromInt(int64(i))))
		if i == g.GridCount {
			price = g.UpperPrice
		}
		g.levels[i] = GridLevel{Index: i, Price: price}
	}
}

func (g *GridStrategy) Name() string { return "grid" }

// tpUpMultiplier returns 1 + take_profit_pct/100.
func (g *GridStrategy) tpUpMultiplier() core.Decimal {
	hundred := core.DecimalFromInt(100)
	return core.OneDecimal.Add(g.TakeProfitPct.Div(hundred))
}

func (g *GridStrategy) tpDownMultiplier() core.Decimal {
	hundred := core.DecimalFromInt(100)
	return core.OneDecimal.Sub(g.TakeProfitPct.Div(hundred))
}

// ProcessPrice advances the grid's state machine against one observed
// market price: it first checks existing orders for fills (processing
// levels lowest price to highest, per the tie-break policy), then arms
// any standing buy/sell orders that should now exist. Returns every fill
// that occurred.
func (g *GridStrategy) ProcessPrice(price core.Decimal) []GridFill {
	g.mu.Lock()
	defer g.mu.Unlock()

	order := make([]int, len(g.levels))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return g.levels[order[a]].Price.LessThan(g.levels[order[b]].Price)
	})

	var fills []GridFill
	for _, idx := range order {
		fills = append(fills, g.processLevelFills(&g.levels[idx], price)...)
	}
	for _, idx := range order {
		g.armLevel(&g.levels[idx], price)
	}
	return fills
}

func (g *GridStrategy) processLevelFills(lvl *GridLevel, price core.Decimal) []GridFill {
	var fills []GridFill

	if lvl.BuyOrder != nil && price.LessThanOrEqual(lvl.BuyOrder.Price) {
		size := lvl.BuyOrder.Size
		g.longPosition = g.longPosition.Add(size)
		lvl.BuyOrder = nil
		lvl.SellOrder = &GridOrder{Side: core.OrderSideSell, Price: lvl.Price.Mul(g.tpUpMultiplier()), Size: size}
		fills = append(fills, GridFill{LevelIndex: lvl.Index, Side: core.OrderSideBuy, Price: price, Size: size})
	}

	if lvl.SellOrder != nil && price.GreaterThanOrEqual(lvl.SellOrder.Price) {
		size := lvl.SellOrder.Size
		pnl := lvl.SellOrder.Price.Sub(lvl.Price).Mul(size)
		g.realizedPnL = g.realizedPnL.Add(pnl)
		g.longPosition = g.longPosition.Sub(size)
		lvl.SellOrder = nil
		fills = append(fills, GridFill{LevelIndex: lvl.Index, Side: core.OrderSideSell, Price: price, Size: size, RealizedPnL: pnl})
	}

	if lvl.ShortEntryOrder != nil && price.GreaterThanOrEqual(lvl.ShortEntryOrder.Price) {
		size := lvl.ShortEntryOrder.Size
		g.shortPosition = g.shortPosition.Add(size)
		lvl.ShortEntryOrder = nil
		lvl.ShortCoverOrder = &GridOrder{Side: core.OrderSideBuy, Price: lvl.Price.Mul(g.tpDownMultiplier()), Size: size}
		fills = append(fills, GridFill{LevelIndex: lvl.Index, Side: core.OrderSideSell, Price: price, Size: size})
	}

	if lvl.ShortCoverOrder != nil && price.LessThanOrEqual(lvl.ShortCoverOrder.Price) {
		size := lvl.ShortCoverOrder.Size
		pnl := lvl.Price.Sub(lvl.ShortCoverOrder.Price).Mul(size)
		g.realizedPnL = g.realizedPnL.Add(pnl)
		g.shortPosition = g.shortPosition.Sub(size)
		lvl.ShortCoverOrder = nil
		fills = append(fills, GridFill{LevelIndex: lvl.Index, Side: core.OrderSideBuy, Price: price, Size: size, RealizedPnL: pnl})
	}

	return fills
}

func (g *GridStrategy) armLevel(lvl *GridLevel, price core.Decimal) {
	totalPosition := g.longPosition.Add(g.shortPosition)
	withinCap := totalPosition.Add(g.OrderSize).LessThanOrEqual(g.MaxPosition) || g.MaxPosition.IsZero()

	if g.EnableLong && lvl.BuyOrder == nil && lvl.SellOrder == nil && lvl.Price.LessThanOrEqual(price) && withinCap {
		lvl.BuyOrder = &GridOrder{Side: core.OrderSideBuy, Price: lvl.Price, Size: g.OrderSize}
	}
	if g.EnableShort && lvl.ShortEntryOrder == nil && lvl.ShortCoverOrder == nil && lvl.Price.GreaterThanOrEqual(price) && withinCap {
		lvl.ShortEntryOrder = &GridOrder{Side: core.OrderSideSell, Price: lvl.Price, Size: g.OrderSize}
	}
}

// RealizedPnL returns the grid's cumulative realized PnL across all
// completed round trips.
func (g *GridStrategy) RealizedPnL() core.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.realizedPnL
}

// OutstandingCounts returns the number of standing buy and sell orders
// across all levels, for the invariant
// outstanding_buys + outstanding_sells <= grid_count + 1.
func (g *GridStrategy) OutstandingCounts() (buys, sells int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, lvl := range g.levels {
		if lvl.BuyOrder != nil {
			buys++
		}
		if lvl.ShortEntryOrder != nil {
			sells++
		}
		if lvl.SellOrder != nil {
			sells++
		}
		if lvl.ShortCoverOrder != nil {
			buys++
		}
	}
	return buys, sells
}

// Levels returns a snapshot copy of the ladder for inspection/tests.
func (g *GridStrategy) Levels() []GridLevel {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GridLevel, len(g.levels))
	copy(out, g.levels)
	return out
}

// PopulateIndicators is a no-op: the grid has no technical indicators, it
// reacts purely to price.
func (g *GridStrategy) PopulateIndicators(buf *core.CandleBuffer) error { return nil }

// EntrySignal drives the grid off the latest close price and reports the
// most urgent standing buy as an entry — the generic single-position
// engines (backtest/live) use this to stay compatible with a grid
// strategy, while paper/live grid drivers should prefer ProcessPrice
// directly for full ladder fidelity.
func (g *GridStrategy) EntrySignal(buf *core.CandleBuffer, i int) (*core.Signal, error) {
	if buf.Len() == 0 {
		return nil, nil
	}
	price := buf.Get(i).Close
	fills := g.ProcessPrice(price)
	for _, f := range fills {
		if f.Side == core.OrderSideBuy && f.RealizedPnL.IsZero() {
			return &core.Signal{Type: core.SignalEntryLong, Price: f.Price, Size: &f.Size}, nil
		}
	}
	return nil, nil
}

// ExitSignal reports a TP sell fill as an exit for the generic engine
// harness.
func (g *GridStrategy) ExitSignal(buf *core.CandleBuffer, i int, pos core.Position) (*core.Signal, error) {
	if buf.Len() == 0 {
		return nil, nil
	}
	price := buf.Get(i).Close
	fills := g.ProcessPrice(price)
	for _, f := range fills {
		if f.Side == core.OrderSideSell && !f.RealizedPnL.IsZero() {
			return &core.Signal{Type: core.SignalExitLong, Price: f.Price, Size: &f.Size}, nil
		}
	}
	return nil, nil
}

func (g *GridStrategy) Deinit() {}

func newGridFromParams(params map[string]interface{}) (Strategy, error) {
	p := newParamSet(params)
	upper, err := p.decimal("upper_price")
	if err != nil {
		return nil, err
	}
	lower, err := p.decimal("lower_price")
	if err != nil {
		return nil, err
	}
	count, err := p.int("grid_count")
	if err != nil {
		return nil, err
	}
	size, err := p.decimal("order_size")
	if err != nil {
		return nil, err
	}
	tp, err := p.decimal("take_profit_pct")
	if err != nil {
		return nil, err
	}
	maxPos, err := p.decimal("max_position")
	if err != nil {
		maxPos = core.ZeroDecimal
	}

	cfg := GridConfig{
		UpperPrice:    upper,
		LowerPrice:    lower,
		GridCount:     count,
		OrderSize:     size,
		TakeProfitPct: tp,
		EnableLong:    p.boolOr("enable_long", true),
		EnableShort:   p.boolOr("enable_short", false),
		MaxPosition:   maxPos,
	}
	strat, err := NewGridStrategy(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", quanterrors.ErrInvalidStrategyConfig, err)
	}
	return strat, nil
}
