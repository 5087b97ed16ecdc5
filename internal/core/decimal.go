// Package core holds the fixed-point, timestamp, and data-model primitives
// shared by every other package in the engine: Decimal arithmetic, candle
// buffers, parameter sets, signals, and the order/position/trade/state
// structs that flow between the backtest, live, and optimizer engines.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantcore/engine/internal/quanterrors"
)

// ErrDivideByZero is returned by DecimalDiv on division by zero.
var ErrDivideByZero = quanterrors.ErrDivideByZero

// Decimal is the fixed-point type used for every monetary quantity: price,
// size, PnL, balance. Ratios (Sharpe, win rate, percentages) use float64
// instead — see internal/performance.
type Decimal = decimal.Decimal

// ZeroDecimal and OneDecimal are the canonical zero/one values, named to
// match the spec's ZERO/ONE constructors.
var (
	ZeroDecimal = decimal.Zero
	OneDecimal  = decimal.NewFromInt(1)
)

// DecimalFromInt builds a Decimal from an int64.
func DecimalFromInt(i int64) Decimal {
	return decimal.NewFromInt(i)
}

// DecimalFromFloat builds a Decimal from a float64. Lossy: use only at
// system boundaries (e.g. converting a ratio into a monetary estimate),
// never for values that started life as exact strings.
func DecimalFromFloat(f float64) Decimal {
	return decimal.NewFromFloat(f)
}

// DecimalFromString parses a decimal string, preserving at least 16
// significant digits on round trip through String().
func DecimalFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("core: invalid decimal string %q: %w", s, err)
	}
	return d, nil
}

// DecimalToFloat converts to float64. Lossy and documented as such; used
// only where the consumer (e.g. a ratio computation) accepts that.
func DecimalToFloat(d Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// DecimalDiv divides a by b, returning an error on divide-by-zero instead
// of panicking — division is the one fallible arithmetic operation.
func DecimalDiv(a, b Decimal) (Decimal, error) {
	if b.IsZero() {
		return Decimal{}, ErrDivideByZero
	}
	return a.Div(b), nil
}

// DecimalDivInt divides a by a positive integer count. Callers must
// guarantee count > 0; it exists for averages over a known-nonempty
// collection (e.g. average trade PnL), where a zero count is a logic
// error upstream rather than a runtime condition to report.
func DecimalDivInt(a Decimal, count int) Decimal {
	return a.Div(decimal.NewFromInt(int64(count)))
}

// Timestamp is milliseconds since the Unix epoch, monotonic and
// total-ordered within a single candle series.
type Timestamp int64

// Before reports whether t is strictly earlier than other.
func (t Timestamp) Before(other Timestamp) bool { return t < other }

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool { return t > other }
