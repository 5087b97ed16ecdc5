package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/engine/internal/core"
)

func newTestGrid(t *testing.T) *GridStrategy {
	g, err := NewGridStrategy(GridConfig{
		UpperPrice:    core.DecimalFromInt(106),
		LowerPrice:    core.DecimalFromInt(100),
		GridCount:     2,
		OrderSize:     core.OneDecimal,
		TakeProfitPct: core.DecimalFromFloat(1.0),
		EnableLong:    true,
		MaxPosition:   core.DecimalFromInt(10),
	})
	require.NoError(t, err)
	return g
}

func TestGridLevelsEvenlySpaced(t *testing.T) {
	g := newTestGrid(t)
	levels := g.Levels()
	require.Len(t, levels, 3)
	assert.True(t, levels[0].Price.Equal(core.DecimalFromInt(100)))
	assert.True(t, levels[1].Price.Equal(core.DecimalFromInt(103)))
	assert.True(t, levels[2].Price.Equal(core.DecimalFromInt(106)))
}

func TestGridPaperRunTwoRoundTrips(t *testing.T) {
	g := newTestGrid(t)

	path := []float64{103, 100, 103.03, 106, 103, 100}
	var allFills []GridFill
	for _, p := range path {
		fills := g.ProcessPrice(core.DecimalFromFloat(p))
		allFills = append(allFills, fills...)
	}

	assert.GreaterOrEqual(t, core.DecimalToFloat(g.RealizedPnL()), 2.0, "expected at least two full round trips")
	assert.NotEmpty(t, allFills)
}

func TestGridOutstandingNeverExceedsLevelCount(t *testing.T) {
	g := newTestGrid(t)
	path := []float64{103, 100, 103.03, 106, 103, 100, 104, 101, 105}
	for _, p := range path {
		g.ProcessPrice(core.DecimalFromFloat(p))
		buys, sells := g.OutstandingCounts()
		assert.LessOrEqual(t, buys+sells, g.GridCount+1)
	}
}

func TestGridInvalidConfig(t *testing.T) {
	_, err := NewGridStrategy(GridConfig{
		UpperPrice: core.DecimalFromInt(100),
		LowerPrice: core.DecimalFromInt(106),
		GridCount:  2,
		OrderSize:  core.OneDecimal,
	})
	assert.Error(t, err)

	_, err = NewGridStrategy(GridConfig{
		UpperPrice: core.DecimalFromInt(106),
		LowerPrice: core.DecimalFromInt(100),
		GridCount:  1,
		OrderSize:  core.OneDecimal,
	})
	assert.Error(t, err)
}
