package core

import "github.com/quantcore/engine/internal/quanterrors"

// Candle is one OHLCV observation for a fixed (pair, timeframe).
type Candle struct {
	Timestamp Timestamp
	Open      Decimal
	High      Decimal
	Low       Decimal
	Close     Decimal
	Volume    Decimal
}

// CandleBuffer is an append-mostly ordered sequence of candles for a fixed
// (pair, timeframe), plus a map of indicator name to a parallel column of
// Decimal values. Single-writer: the engine that owns the buffer is the
// only goroutine that mutates it; strategies read it on the same
// goroutine during signal calls.
type CandleBuffer struct {
	Pair      TradingPair
	Timeframe Timeframe

	candles    []Candle
	indicators map[string][]Decimal
	warmup     map[string]int
}

// NewCandleBuffer creates an empty buffer for the given pair/timeframe.
func NewCandleBuffer(pair TradingPair, tf Timeframe) *CandleBuffer {
	return &CandleBuffer{
		Pair:       pair,
		Timeframe:  tf,
		indicators: make(map[string][]Decimal),
		warmup:     make(map[string]int),
	}
}

// Len returns the number of candles in the buffer.
func (b *CandleBuffer) Len() int { return len(b.candles) }

// Get returns the candle at index i.
func (b *CandleBuffer) Get(i int) Candle { return b.candles[i] }

// Last returns the most recent candle. Panics if the buffer is empty, same
// as indexing an empty slice — callers must check Len() first.
func (b *CandleBuffer) Last() Candle { return b.candles[len(b.candles)-1] }

// Append adds a new candle. The timestamp must be strictly greater than the
// last candle's; use UpdateLast to revise the most recent bar in place.
func (b *CandleBuffer) Append(c Candle) error {
	if len(b.candles) > 0 && !c.Timestamp.After(b.candles[len(b.candles)-1].Timestamp) {
		return quanterrors.ErrCandleNotMonotonic
	}
	b.candles = append(b.candles, c)
	return nil
}

// UpdateLast replaces the last candle, used for live-price updates of the
// in-progress bar. The replacement timestamp must equal the current last
// candle's timestamp (an upsert), not move it backward or skip forward.
func (b *CandleBuffer) UpdateLast(c Candle) error {
	if len(b.candles) == 0 {
		return quanterrors.NewInvariantError("UpdateLast called on empty candle buffer")
	}
	if c.Timestamp != b.candles[len(b.candles)-1].Timestamp {
		return quanterrors.NewInvariantError("UpdateLast timestamp must equal the last candle's timestamp")
	}
	b.candles[len(b.candles)-1] = c
	return nil
}

// SetIndicator writes a full indicator column. The column must have the
// same length as the candle series. Equivalent to
// SetIndicatorWithWarmup(name, column, 0).
func (b *CandleBuffer) SetIndicator(name string, column []Decimal) error {
	return b.SetIndicatorWithWarmup(name, column, 0)
}

// SetIndicatorWithWarmup writes a full-length column whose first
// `warmupLen` entries are not yet meaningful (e.g. a moving average before
// enough bars have accumulated). GetIndicator reports ok=false for those
// leading indices instead of returning a misleading zero value.
func (b *CandleBuffer) SetIndicatorWithWarmup(name string, column []Decimal, warmupLen int) error {
	if len(column) != len(b.candles) {
		return quanterrors.NewInvariantError("indicator column length mismatch")
	}
	b.indicators[name] = column
	b.warmup[name] = warmupLen
	return nil
}

// GetIndicator reads a single indicator value at index i. ok is false if
// the indicator column doesn't exist, hasn't reached index i yet, or i
// falls within the column's declared warm-up period.
func (b *CandleBuffer) GetIndicator(name string, i int) (Decimal, bool) {
	col, ok := b.indicators[name]
	if !ok || i < 0 || i >= len(col) {
		return Decimal{}, false
	}
	if i < b.warmup[name] {
		return Decimal{}, false
	}
	return col[i], true
}

// IndicatorWarmup returns how many leading bars of name are not yet
// defined. Returns 0 if the indicator hasn't been set.
func (b *CandleBuffer) IndicatorWarmup(name string) int {
	return b.warmup[name]
}

// HasIndicator reports whether a column has been written at all.
func (b *CandleBuffer) HasIndicator(name string) bool {
	_, ok := b.indicators[name]
	return ok
}
