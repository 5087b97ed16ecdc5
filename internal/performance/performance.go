// Package performance computes the standard risk/return metrics set
// from a completed BacktestResult: pure post-processing, no mutation
// of its input, no I/O.
package performance

import (
	"math"
	"sort"

	"github.com/quantcore/engine/internal/core"
)

// epsilon is the "effectively zero" threshold used by every documented
// fallback below.
const epsilon = 1e-9

// fallbackMultiplier is the documented scaling factor applied to
// total_return when a ratio's denominator collapses to ~zero.
const fallbackMultiplier = 10.0

// Metrics is the full risk/return report for one backtest run.
type Metrics struct {
	TotalReturn  float64
	SharpeRatio  float64
	SortinoRatio float64
	CalmarRatio  float64
	OmegaRatio   float64
	TailRatio    float64
	StabilityR2  float64
	MaxDrawdown  float64
	WinRate      float64
	ProfitFactor float64
	NetProfit    core.Decimal
	AvgTradePnL  core.Decimal
}

// Analyze derives Metrics from a BacktestResult's trade log and equity
// curve.
func Analyze(result *core.BacktestResult) Metrics {
	m := Metrics{
		WinRate:      result.WinRate,
		ProfitFactor: result.ProfitFactor,
		NetProfit:    result.NetProfit,
	}

	if len(result.Trades) > 0 {
		m.AvgTradePnL = core.DecimalDivInt(result.NetProfit, len(result.Trades))
	}

	m.TotalReturn = totalReturn(result)
	m.MaxDrawdown = maxDrawdown(result.EquityCurve)
	returns := barReturns(result.EquityCurve)
	pnls := tradePnls(result.Trades)

	m.SharpeRatio = sharpe(returns, m.TotalReturn)
	m.SortinoRatio = sortino(returns, pnls, m.TotalReturn)
	m.CalmarRatio = calmar(m.TotalReturn, m.MaxDrawdown)
	m.OmegaRatio = omega(pnls)
	m.TailRatio = tailRatio(pnls)
	m.StabilityR2 = stabilityR2(result.EquityCurve)

	return m
}

func totalReturn(result *core.BacktestResult) float64 {
	if len(result.EquityCurve) == 0 {
		return 0
	}
	initial := core.DecimalToFloat(result.Config.InitialCapital)
	if initial == 0 {
		return 0
	}
	final := core.DecimalToFloat(result.EquityCurve[len(result.EquityCurve)-1].Equity)
	return final/initial - 1
}

// barReturns computes per-bar log-differences of the equity curve:
// ln(equity[i] / equity[i-1]). Non-positive equity values (shouldn't
// happen with a correct engine, but a zeroed or negative balance would
// make log() undefined) are skipped rather than propagating NaN.
func barReturns(curve []core.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := core.DecimalToFloat(curve[i-1].Equity)
		cur := core.DecimalToFloat(curve[i].Equity)
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	return returns
}

func tradePnls(trades []core.Trade) []float64 {
	pnls := make([]float64, len(trades))
	for i, tr := range trades {
		pnls[i] = core.DecimalToFloat(tr.RealizedPnL)
	}
	return pnls
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mu := mean(xs)
	sumSq := 0.0
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

func sharpe(returns []float64, totalReturn float64) float64 {
	sd := stddev(returns)
	if sd < epsilon {
		return totalReturn * fallbackMultiplier
	}
	return mean(returns) / sd
}

func sortino(returns, pnls []float64, totalReturn float64) float64 {
	var losses []float64
	for _, p := range pnls {
		if p < 0 {
			losses = append(losses, p)
		}
	}
	if len(losses) == 0 {
		return totalReturn * fallbackMultiplier
	}
	downsideDev := stddev(losses)
	if downsideDev < epsilon {
		return totalReturn * fallbackMultiplier
	}
	return mean(returns) / downsideDev
}

func calmar(totalReturn, maxDD float64) float64 {
	if maxDD < epsilon {
		return totalReturn * fallbackMultiplier
	}
	return totalReturn / maxDD
}

func omega(pnls []float64) float64 {
	var positive, negative float64
	for _, p := range pnls {
		if p > 0 {
			positive += p
		} else if p < 0 {
			negative += -p
		}
	}
	if negative < epsilon {
		return positive * fallbackMultiplier
	}
	return positive / negative
}

func tailRatio(pnls []float64) float64 {
	if len(pnls) < 10 {
		return 1.0
	}
	sorted := append([]float64(nil), pnls...)
	sort.Float64s(sorted)
	p95 := percentile(sorted, 0.95)
	p5 := percentile(sorted, 0.05)
	if math.Abs(p5) < epsilon {
		return 1.0
	}
	return math.Abs(p95) / math.Abs(p5)
}

// percentile uses linear interpolation between closest ranks over an
// already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// stabilityR2 fits a line to the equity curve (bar index as x, equity
// as y) and returns its coefficient of determination — how well a
// straight line explains the equity trajectory's shape.
func stabilityR2(curve []core.EquityPoint) float64 {
	n := len(curve)
	if n < 10 {
		return 0.5
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, pt := range curve {
		xs[i] = float64(i)
		ys[i] = core.DecimalToFloat(pt.Equity)
	}

	xMean, yMean := mean(xs), mean(ys)
	var ssXY, ssXX, ssYY float64
	for i := range xs {
		dx := xs[i] - xMean
		dy := ys[i] - yMean
		ssXY += dx * dy
		ssXX += dx * dx
		ssYY += dy * dy
	}
	if ssXX < epsilon || ssYY < epsilon {
		return 0.5
	}
	corr := ssXY / math.Sqrt(ssXX*ssYY)
	return corr * corr
}

// maxDrawdown is the largest peak-to-trough decline of the equity
// curve, expressed as a fraction of the running peak.
func maxDrawdown(curve []core.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := core.DecimalToFloat(curve[0].Equity)
	maxDD := 0.0
	for _, pt := range curve {
		eq := core.DecimalToFloat(pt.Equity)
		if eq > peak {
			peak = eq
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - eq) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
