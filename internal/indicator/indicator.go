// Package indicator computes technical-analysis columns (SMA, EMA, RSI)
// over a candle buffer's close prices, writing them back as parallel
// Decimal columns via core.CandleBuffer.SetIndicatorWithWarmup.
package indicator

import (
	"github.com/quantcore/engine/internal/core"
)

// SMA computes a simple moving average column over closing prices with the
// given period. The first period-1 entries are zero-valued and marked as
// warm-up (not yet defined).
func SMA(closes []core.Decimal, period int) ([]core.Decimal, int) {
	n := len(closes)
	out := make([]core.Decimal, n)
	if period <= 0 || n == 0 {
		return out, n
	}

	sum := core.ZeroDecimal
	for i := 0; i < n; i++ {
		sum = sum.Add(closes[i])
		if i >= period {
			sum = sum.Sub(closes[i-period])
		}
		if i >= period-1 {
			out[i] = sum.Div(core.DecimalFromInt(int64(period)))
		}
	}

	warmup := period - 1
	if warmup > n {
		warmup = n
	}
	return out, warmup
}

// EMA computes an exponential moving average column. Seeded with an SMA
// over the first `period` bars, then recurrence
// ema[i] = close[i]*k + ema[i-1]*(1-k), k = 2/(period+1).
func EMA(closes []core.Decimal, period int) ([]core.Decimal, int) {
	n := len(closes)
	out := make([]core.Decimal, n)
	if period <= 0 || n == 0 {
		return out, n
	}
	if n < period {
		return out, n
	}

	k := core.DecimalFromInt(2).Div(core.DecimalFromInt(int64(period + 1)))
	oneMinusK := core.OneDecimal.Sub(k)

	seed := core.ZeroDecimal
	for i := 0; i < period; i++ {
		seed = seed.Add(closes[i])
	}
	seed = seed.Div(core.DecimalFromInt(int64(period)))
	out[period-1] = seed

	prev := seed
	for i := period; i < n; i++ {
		prev = closes[i].Mul(k).Add(prev.Mul(oneMinusK))
		out[i] = prev
	}

	return out, period - 1
}

// RSI computes the relative strength index over closing prices using
// Wilder's smoothing, on a 0-100 scale.
func RSI(closes []core.Decimal, period int) ([]core.Decimal, int) {
	n := len(closes)
	out := make([]core.Decimal, n)
	if period <= 0 || n <= period {
		return out, n
	}

	gainSum := core.ZeroDecimal
	lossSum := core.ZeroDecimal
	for i := 1; i <= period; i++ {
		delta := closes[i].Sub(closes[i-1])
		if delta.IsPositive() {
			gainSum = gainSum.Add(delta)
		} else {
			lossSum = lossSum.Add(delta.Neg())
		}
	}
	avgGain := gainSum.Div(core.DecimalFromInt(int64(period)))
	avgLoss := lossSum.Div(core.DecimalFromInt(int64(period)))
	out[period] = rsiFromAverages(avgGain, avgLoss)

	periodDec := core.DecimalFromInt(int64(period))
	for i := period + 1; i < n; i++ {
		delta := closes[i].Sub(closes[i-1])
		gain := core.ZeroDecimal
		loss := core.ZeroDecimal
		if delta.IsPositive() {
			gain = delta
		} else {
			loss = delta.Neg()
		}
		avgGain = avgGain.Mul(periodDec.Sub(core.OneDecimal)).Add(gain).Div(periodDec)
		avgLoss = avgLoss.Mul(periodDec.Sub(core.OneDecimal)).Add(loss).Div(periodDec)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return out, period
}

func rsiFromAverages(avgGain, avgLoss core.Decimal) core.Decimal {
	if avgLoss.IsZero() {
		if avgGain.IsZero() {
			return core.DecimalFromInt(50)
		}
		return core.DecimalFromInt(100)
	}
	rs := avgGain.Div(avgLoss)
	hundred := core.DecimalFromInt(100)
	denom := core.OneDecimal.Add(rs)
	return hundred.Sub(hundred.Div(denom))
}

// PopulateSMA computes and writes an SMA column named `name` for buf's
// close prices.
func PopulateSMA(buf *core.CandleBuffer, name string, period int) error {
	closes := closesOf(buf)
	col, warmup := SMA(closes, period)
	return buf.SetIndicatorWithWarmup(name, col, warmup)
}

// PopulateEMA computes and writes an EMA column named `name`.
func PopulateEMA(buf *core.CandleBuffer, name string, period int) error {
	closes := closesOf(buf)
	col, warmup := EMA(closes, period)
	return buf.SetIndicatorWithWarmup(name, col, warmup)
}

// PopulateRSI computes and writes an RSI column named `name`.
func PopulateRSI(buf *core.CandleBuffer, name string, period int) error {
	closes := closesOf(buf)
	col, warmup := RSI(closes, period)
	return buf.SetIndicatorWithWarmup(name, col, warmup)
}

func closesOf(buf *core.CandleBuffer) []core.Decimal {
	out := make([]core.Decimal, buf.Len())
	for i := range out {
		out[i] = buf.Get(i).Close
	}
	return out
}
