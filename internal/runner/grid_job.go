package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/strategy"
)

// GridMode selects where a GridJob's price observations come from.
type GridMode string

const (
	// GridModePaper drives the ladder with a bounded random walk
	// constrained to the grid envelope, per §4.J.
	GridModePaper GridMode = "paper"
	// GridModeLive drives the ladder with real quotes from a
	// DataProvider. Fills are still produced by the strategy's own
	// ProcessPrice simulation rather than polled from resting
	// exchange orders — a real limit-order-book ladder is the kind
	// of exchange-specific order-book matching this core's Non-goals
	// explicitly exclude, so the ladder's fill bookkeeping stays
	// internal even when the price feed is real.
	GridModeLive GridMode = "live"
)

// GridJob drives a GridStrategy one price observation per tick.
type GridJob struct {
	strat    *strategy.GridStrategy
	mode     GridMode
	provider exchange.DataProvider
	pair     core.TradingPair

	rng       *rand.Rand
	lastPrice core.Decimal
	stepPct   float64
}

// NewGridJob builds a grid-trading Job. In paper mode, startPrice seeds
// the walk and stepPct bounds each step's magnitude as a fraction of the
// current price (e.g. 0.005 = up to 0.5% per tick); in live mode those
// two are ignored and provider/pair supply real quotes.
func NewGridJob(strat *strategy.GridStrategy, mode GridMode, provider exchange.DataProvider, pair core.TradingPair, startPrice core.Decimal, stepPct float64, seed int64) func(*Runner) Job {
	return func(r *Runner) Job {
		return &GridJob{
			strat:     strat,
			mode:      mode,
			provider:  provider,
			pair:      pair,
			rng:       rand.New(rand.NewSource(seed)),
			lastPrice: startPrice,
			stepPct:   stepPct,
		}
	}
}

func (j *GridJob) Tick(ctx context.Context) (TickReport, error) {
	price, ok := j.nextPrice()
	if !ok {
		return TickReport{}, nil
	}

	fills := j.strat.ProcessPrice(price)
	if len(fills) == 0 {
		return TickReport{}, nil
	}

	now := core.Timestamp(time.Now().UnixMilli())
	report := TickReport{RealizedPnLDelta: core.ZeroDecimal, VolumeDelta: core.ZeroDecimal}
	for _, f := range fills {
		size := f.Size
		sig := core.Signal{Type: fillSignalType(f), Price: f.Price, Size: &size}
		report.Signals = append(report.Signals, SignalEvent{Signal: sig, Timestamp: now})
		report.RealizedPnLDelta = report.RealizedPnLDelta.Add(f.RealizedPnL)
		report.VolumeDelta = report.VolumeDelta.Add(f.Size)
	}
	return report, nil
}

// fillSignalType maps a GridFill to the signal vocabulary the rest of
// the core shares: a buy with no realized PnL opens a long; a buy that
// realizes PnL is covering a short; symmetric for sells.
func fillSignalType(f strategy.GridFill) core.SignalType {
	if f.Side == core.OrderSideBuy {
		if f.RealizedPnL.IsZero() {
			return core.SignalEntryLong
		}
		return core.SignalExitShort
	}
	if f.RealizedPnL.IsZero() {
		return core.SignalEntryShort
	}
	return core.SignalExitLong
}

func (j *GridJob) nextPrice() (core.Decimal, bool) {
	if j.mode == GridModeLive {
		if j.provider == nil {
			return core.ZeroDecimal, false
		}
		q, ok := j.provider.PollQuote(j.pair)
		if !ok {
			return core.ZeroDecimal, false
		}
		j.lastPrice = q.Last
		return q.Last, true
	}

	delta := (j.rng.Float64()*2 - 1) * j.stepPct
	next := j.lastPrice.Mul(core.DecimalFromFloat(1 + delta))
	if next.LessThan(j.strat.LowerPrice) {
		next = j.strat.LowerPrice
	}
	if next.GreaterThan(j.strat.UpperPrice) {
		next = j.strat.UpperPrice
	}
	j.lastPrice = next
	return next, true
}

func (j *GridJob) Cleanup(ctx context.Context) error { return nil }

var _ Job = (*GridJob)(nil)
