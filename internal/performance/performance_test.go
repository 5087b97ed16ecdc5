package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantcore/engine/internal/core"
)

func eqPoint(ts int64, equity float64) core.EquityPoint {
	return core.EquityPoint{Timestamp: core.Timestamp(ts), Equity: core.DecimalFromFloat(equity)}
}

func TestAnalyzeTotalReturnAndDrawdown(t *testing.T) {
	result := &core.BacktestResult{
		Config: core.BacktestConfig{InitialCapital: core.DecimalFromInt(1000)},
		EquityCurve: []core.EquityPoint{
			eqPoint(1, 1000),
			eqPoint(2, 1100),
			eqPoint(3, 900),
			eqPoint(4, 1200),
		},
	}
	m := Analyze(result)
	assert.InDelta(t, 0.2, m.TotalReturn, 1e-9)
	// peak 1100 -> trough 900 is the largest drawdown: 200/1100
	assert.InDelta(t, 200.0/1100.0, m.MaxDrawdown, 1e-9)
}

func TestAnalyzeEmptyResultIsZeroValued(t *testing.T) {
	result := &core.BacktestResult{Config: core.BacktestConfig{InitialCapital: core.DecimalFromInt(1000)}}
	m := Analyze(result)
	assert.Equal(t, 0.0, m.TotalReturn)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.Equal(t, 1.0, m.TailRatio, "fewer than 10 trades falls back to 1.0")
	assert.Equal(t, 0.5, m.StabilityR2, "short equity curve falls back to 0.5")
	assert.True(t, m.AvgTradePnL.IsZero())
}

func TestSharpeFallsBackWhenStddevNearZero(t *testing.T) {
	flat := make([]core.EquityPoint, 20)
	for i := range flat {
		flat[i] = eqPoint(int64(i), 1000)
	}
	result := &core.BacktestResult{
		Config:      core.BacktestConfig{InitialCapital: core.DecimalFromInt(1000)},
		EquityCurve: flat,
	}
	m := Analyze(result)
	assert.Equal(t, m.TotalReturn*fallbackMultiplier, m.SharpeRatio)
}

func TestSortinoFallsBackWithNoLosingTrades(t *testing.T) {
	result := &core.BacktestResult{
		Config: core.BacktestConfig{InitialCapital: core.DecimalFromInt(1000)},
		EquityCurve: []core.EquityPoint{
			eqPoint(1, 1000),
			eqPoint(2, 1100),
		},
		Trades: []core.Trade{
			{RealizedPnL: core.DecimalFromInt(50)},
			{RealizedPnL: core.DecimalFromInt(75)},
		},
	}
	m := Analyze(result)
	assert.Equal(t, m.TotalReturn*fallbackMultiplier, m.SortinoRatio)
}

func TestOmegaFallsBackWhenNoLosses(t *testing.T) {
	pnls := []float64{10, 20, 30}
	assert.Equal(t, 60.0*fallbackMultiplier, omega(pnls))
}

func TestOmegaWithMixedTrades(t *testing.T) {
	pnls := []float64{100, -50, 25, -25}
	// positive 125, negative 75
	assert.InDelta(t, 125.0/75.0, omega(pnls), 1e-9)
}

func TestTailRatioRequiresTenTrades(t *testing.T) {
	pnls := make([]float64, 9)
	for i := range pnls {
		pnls[i] = float64(i) - 4
	}
	assert.Equal(t, 1.0, tailRatio(pnls))
}

func TestCalmarFallsBackWhenDrawdownNearZero(t *testing.T) {
	assert.Equal(t, 0.3*fallbackMultiplier, calmar(0.3, 0))
}

func TestStabilityR2OnPerfectLine(t *testing.T) {
	curve := make([]core.EquityPoint, 20)
	for i := range curve {
		curve[i] = eqPoint(int64(i), 1000+float64(i)*10)
	}
	r2 := stabilityR2(curve)
	assert.InDelta(t, 1.0, r2, 1e-6)
}

func TestAvgTradePnLMatchesNetProfitOverCount(t *testing.T) {
	result := &core.BacktestResult{
		Config: core.BacktestConfig{InitialCapital: core.DecimalFromInt(1000)},
		Trades: []core.Trade{
			{RealizedPnL: core.DecimalFromInt(100)},
			{RealizedPnL: core.DecimalFromInt(-50)},
		},
		NetProfit: core.DecimalFromInt(50),
	}
	m := Analyze(result)
	assert.True(t, m.AvgTradePnL.Equal(core.DecimalFromFloat(25)))
}
