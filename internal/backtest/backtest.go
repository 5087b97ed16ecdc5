// Package backtest implements the deterministic bar-by-bar backtest
// engine: a pure function of (strategy, config, candle data) producing a
// BacktestResult. No wall-clock reads, no randomness — see Engine.Run
// for the full algorithm.
package backtest

import (
	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/internal/strategy"
)

// defaultRiskFraction is the fraction of current equity risked per entry
// when the strategy's signal doesn't specify a size.
const defaultRiskFraction = 0.02

// Engine runs a single strategy against a pre-loaded candle buffer. It
// holds no mutable cross-run state; Run is safe to call
// repeatedly (and concurrently, from separate Engine values) with
// different strategies and configs — exactly what the optimizer's worker
// pool relies on.
type Engine struct{}

// NewEngine returns a ready-to-use backtest engine.
func NewEngine() *Engine { return &Engine{} }

// openPosition is the engine's internal bookkeeping for a position under
// simulation; distinct from core.Position, which is the read-only view
// handed to a strategy's ExitSignal.
type openPosition struct {
	side            core.PositionSide
	size            core.Decimal
	entryPrice      core.Decimal
	entryCommission core.Decimal
	openedAt        core.Timestamp
}

// Run executes strat over buf according to cfg, producing a
// BacktestResult. buf must already contain every candle in
// [cfg.StartTime, cfg.EndTime] in strictly increasing timestamp order —
// loading candles from a file or provider is the caller's job (§4.H is
// deliberately excluded from this package).
func (e *Engine) Run(strat strategy.Strategy, cfg core.BacktestConfig, buf *core.CandleBuffer) (*core.BacktestResult, error) {
	result := &core.BacktestResult{
		Config:       cfg,
		StrategyName: strat.Name(),
	}

	if buf.Len() == 0 {
		return result, nil
	}

	if err := strat.PopulateIndicators(buf); err != nil {
		return nil, quanterrors.NewBacktestError("populate_indicators", "strategy failed to populate indicators", err)
	}

	cash := cfg.InitialCapital
	var pos *openPosition

	startIdx := firstFullyDefinedIndex(buf)

	for i := startIdx; i < buf.Len(); i++ {
		candle := buf.Get(i)

		if pos == nil {
			sig, err := strat.EntrySignal(buf, i)
			if err != nil {
				return nil, quanterrors.NewBacktestError("entry_signal", "strategy entry_signal failed", err)
			}
			if sig != nil && isEntry(sig.Type) {
				opened, newCash, ok := e.openPosition(sig, candle, cfg, cash)
				if ok {
					pos = opened
					cash = newCash
				} else {
					result.RejectedEntries++
				}
			}
		} else {
			posView := e.positionView(pos, candle)
			sig, err := strat.ExitSignal(buf, i, posView)
			if err != nil {
				return nil, quanterrors.NewBacktestError("exit_signal", "strategy exit_signal failed", err)
			}
			if sig != nil && isExit(sig.Type) {
				trade, newCash := e.closePosition(pos, candle, cfg, cash)
				result.Trades = append(result.Trades, trade)
				cash = newCash
				pos = nil
			}
		}

		equity := cash
		if pos != nil {
			equity = cash.Add(markToMarket(pos, candle.Close))
		}
		result.EquityCurve = append(result.EquityCurve, core.EquityPoint{Timestamp: candle.Timestamp, Equity: equity})
	}

	if pos != nil {
		last := buf.Get(buf.Len() - 1)
		trade, newCash := e.closePosition(pos, last, cfg, cash)
		result.Trades = append(result.Trades, trade)
		cash = newCash
		if len(result.EquityCurve) > 0 {
			result.EquityCurve[len(result.EquityCurve)-1].Equity = cash
		}
	}

	computeAggregates(result)
	return result, nil
}

// firstFullyDefinedIndex is a conservative start point: index 0. Strategies
// report "not yet defined" per-indicator via CandleBuffer's warm-up
// tracking, so entry/exit signals naturally return nil during warm-up
// without the engine needing to know any strategy's specific period.
func firstFullyDefinedIndex(buf *core.CandleBuffer) int {
	return 0
}

func isEntry(t core.SignalType) bool {
	return t == core.SignalEntryLong || t == core.SignalEntryShort
}

func isExit(t core.SignalType) bool {
	return t == core.SignalExitLong || t == core.SignalExitShort
}

// openPosition applies slippage and commission to the signal's price,
// sizes the position (signal size, or the 2%-of-equity default), and
// debits cash. Returns ok=false (and leaves cash untouched) if the
// notional exceeds available cash — the spec's documented silent-skip
// policy.
func (e *Engine) openPosition(sig *core.Signal, candle core.Candle, cfg core.BacktestConfig, cash core.Decimal) (*openPosition, core.Decimal, bool) {
	side := core.PositionLong
	if sig.Type == core.SignalEntryShort {
		side = core.PositionShort
	}

	execPrice := applySlippage(candle.Close, cfg.Slippage, side, true)

	size := cash.Mul(core.DecimalFromFloat(defaultRiskFraction)).Div(execPrice)
	if sig.Size != nil {
		size = *sig.Size
	}
	if !size.IsPositive() {
		return nil, cash, false
	}

	notional := size.Mul(execPrice)
	commission := notional.Mul(cfg.CommissionRate)

	pos := &openPosition{side: side, size: size, entryPrice: execPrice, entryCommission: commission, openedAt: candle.Timestamp}

	if side == core.PositionLong {
		totalCost := notional.Add(commission)
		if totalCost.GreaterThan(cash) {
			return nil, cash, false
		}
		return pos, cash.Sub(totalCost), true
	}

	// Opening a short credits the sale proceeds (margin/collateral
	// accounting is out of scope for this simplified model); only the
	// commission needs to be covered up front.
	if commission.GreaterThan(cash) {
		return nil, cash, false
	}
	return pos, cash.Add(notional).Sub(commission), true
}

// closePosition applies slippage/commission to the exit price, realizes
// PnL, and returns the closed Trade plus updated cash.
func (e *Engine) closePosition(pos *openPosition, candle core.Candle, cfg core.BacktestConfig, cash core.Decimal) (core.Trade, core.Decimal) {
	execPrice := applySlippage(candle.Close, cfg.Slippage, pos.side, false)
	notional := pos.size.Mul(execPrice)
	commission := notional.Mul(cfg.CommissionRate)

	var grossPnl core.Decimal
	if pos.side == core.PositionLong {
		grossPnl = execPrice.Sub(pos.entryPrice).Mul(pos.size)
	} else {
		grossPnl = pos.entryPrice.Sub(execPrice).Mul(pos.size)
	}
	pnl := grossPnl.Sub(commission).Sub(pos.entryCommission)

	var proceeds core.Decimal
	if pos.side == core.PositionLong {
		// Selling to close a long: cash increases by the sale proceeds.
		proceeds = notional.Sub(commission)
	} else {
		// Buying back to cover a short: cash decreases by the cost.
		proceeds = notional.Add(commission).Neg()
	}

	trade := core.Trade{
		Side:        pos.side,
		EntryPrice:  pos.entryPrice,
		ExitPrice:   execPrice,
		Size:        pos.size,
		EntryTime:   pos.openedAt,
		ExitTime:    candle.Timestamp,
		RealizedPnL: pnl,
		Commission:  commission.Add(pos.entryCommission),
	}

	return trade, cash.Add(proceeds)
}

// applySlippage penalizes the execution price: buys pay more, sells
// receive less. isEntry distinguishes which side of the trade this fill
// represents (an entry's side IS its position side; an exit is the
// opposite action — selling to close a long, buying to close a short).
func applySlippage(price core.Decimal, slippage core.Decimal, side core.PositionSide, isEntry bool) core.Decimal {
	buys := (side == core.PositionLong && isEntry) || (side == core.PositionShort && !isEntry)
	adj := price.Mul(slippage)
	if buys {
		return price.Add(adj)
	}
	return price.Sub(adj)
}

func markToMarket(pos *openPosition, markPrice core.Decimal) core.Decimal {
	if pos.side == core.PositionLong {
		return markPrice.Sub(pos.entryPrice).Mul(pos.size).Add(pos.entryPrice.Mul(pos.size))
	}
	return pos.entryPrice.Sub(markPrice).Mul(pos.size).Add(pos.entryPrice.Mul(pos.size))
}

func (e *Engine) positionView(pos *openPosition, candle core.Candle) core.Position {
	mark := candle.Close
	unrealized := markToMarket(pos, mark).Sub(pos.entryPrice.Mul(pos.size))
	return core.Position{
		Side:          pos.side,
		Size:          pos.size,
		EntryPrice:    pos.entryPrice,
		OpenedAt:      pos.openedAt,
		UnrealizedPnL: unrealized,
		MarkPrice:     &mark,
	}
}

// largeFiniteSentinel stands in for "infinite" profit_factor (wins with
// zero losses) — the spec leaves the exact magnitude unspecified, this
// engine's documented choice.
const largeFiniteSentinel = 1_000_000.0

func computeAggregates(result *core.BacktestResult) {
	grossProfit := core.ZeroDecimal
	grossLoss := core.ZeroDecimal
	for _, tr := range result.Trades {
		if tr.RealizedPnL.IsPositive() {
			grossProfit = grossProfit.Add(tr.RealizedPnL)
			result.WinCount++
		} else if tr.RealizedPnL.IsNegative() {
			grossLoss = grossLoss.Add(tr.RealizedPnL.Neg())
			result.LossCount++
		}
	}

	result.GrossProfit = grossProfit
	result.GrossLoss = grossLoss
	result.NetProfit = grossProfit.Sub(grossLoss)

	switch {
	case grossLoss.IsZero() && grossProfit.IsZero():
		result.ProfitFactor = 0
	case grossLoss.IsZero():
		result.ProfitFactor = largeFiniteSentinel
	default:
		result.ProfitFactor = core.DecimalToFloat(grossProfit) / core.DecimalToFloat(grossLoss)
	}

	totalTrades := result.WinCount + result.LossCount
	if totalTrades > 0 {
		result.WinRate = float64(result.WinCount) / float64(totalTrades)
	}
}
