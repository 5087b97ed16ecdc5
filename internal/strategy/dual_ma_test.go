package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/engine/internal/core"
)

func buildMonotoneBuffer(t *testing.T, n int, start int64) *core.CandleBuffer {
	pair, err := core.ParseTradingPair("BTC-USDT")
	require.NoError(t, err)
	buf := core.NewCandleBuffer(pair, core.Timeframe1m)
	for i := 0; i < n; i++ {
		price := core.DecimalFromInt(start + int64(i))
		require.NoError(t, buf.Append(core.Candle{
			Timestamp: core.Timestamp(1000 * (i + 1)),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    core.OneDecimal,
		}))
	}
	return buf
}

func TestDualMAEntersOnMonotoneSeries(t *testing.T) {
	strat, err := NewDualMA(3, 10)
	require.NoError(t, err)

	buf := buildMonotoneBuffer(t, 50, 100)
	require.NoError(t, strat.PopulateIndicators(buf))

	entryCount := 0
	for i := 1; i < buf.Len(); i++ {
		sig, err := strat.EntrySignal(buf, i)
		require.NoError(t, err)
		if sig != nil {
			entryCount++
		}
	}
	assert.Equal(t, 1, entryCount, "monotone crossover should fire exactly once")
}

func TestDualMAInvalidPeriods(t *testing.T) {
	_, err := NewDualMA(10, 5)
	assert.Error(t, err)
	_, err = NewDualMA(0, 5)
	assert.Error(t, err)
}
