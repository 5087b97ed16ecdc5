package runner

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/strategy"
)

func newTestGridStrategy(t *testing.T) *strategy.GridStrategy {
	g, err := strategy.NewGridStrategy(strategy.GridConfig{
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

func TestGridJobPaperWalkStaysWithinEnvelope(t *testing.T) {
	g := newTestGridStrategy(t)
	job := &GridJob{
		strat:     g,
		mode:      GridModePaper,
		lastPrice: core.DecimalFromInt(103),
		stepPct:   0.05,
	}
	job.rng = rand.New(rand.NewSource(7))

	var totalPnL, totalVolume core.Decimal = core.ZeroDecimal, core.ZeroDecimal
	for i := 0; i < 200; i++ {
		report, err := job.Tick(context.Background())
		require.NoError(t, err)
		assert.True(t, job.lastPrice.GreaterThanOrEqual(g.LowerPrice))
		assert.True(t, job.lastPrice.LessThanOrEqual(g.UpperPrice))
		totalPnL = totalPnL.Add(report.RealizedPnLDelta)
		totalVolume = totalVolume.Add(report.VolumeDelta)
	}
}

func TestGridJobFillsProduceTypedSignalEvents(t *testing.T) {
	g := newTestGridStrategy(t)
	job := &GridJob{strat: g, mode: GridModePaper, lastPrice: core.DecimalFromInt(103)}

	path := []float64{103, 100, 103.03, 106, 103, 100}
	var signals []core.SignalType
	for _, p := range path {
		job.lastPrice = core.DecimalFromFloat(p)
		fills := g.ProcessPrice(core.DecimalFromFloat(p))
		for _, f := range fills {
			signals = append(signals, fillSignalType(f))
		}
	}

	require.NotEmpty(t, signals)
	for _, s := range signals {
		assert.Contains(t, []core.SignalType{
			core.SignalEntryLong, core.SignalExitLong,
			core.SignalEntryShort, core.SignalExitShort,
		}, s)
	}
}

func TestGridJobAccumulatesPnLAndVolumeViaRunner(t *testing.T) {
	g := newTestGridStrategy(t)
	factory := NewGridJob(g, GridModePaper, nil, core.TradingPair{}, core.DecimalFromInt(103), 0.03, 11)
	r := NewRunner(KindGrid, time.Millisecond, nil, nil, factory)

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, r.Stop(context.Background()))

	snap := r.Snapshot()
	assert.GreaterOrEqual(t, snap.Stats.OrdersSubmitted, int64(0))
	assert.True(t, snap.Stats.RealizedPnL.Equal(g.RealizedPnL()), "runner PnL must equal the grid's realized PnL")
}

type gridStubProvider struct {
	quote exchange.Quote
	ok    bool
}

func (p *gridStubProvider) Subscribe(ctx context.Context, pair core.TradingPair) error   { return nil }
func (p *gridStubProvider) Unsubscribe(ctx context.Context, pair core.TradingPair) error { return nil }
func (p *gridStubProvider) PollQuote(pair core.TradingPair) (exchange.Quote, bool)       { return p.quote, p.ok }
func (p *gridStubProvider) HistoricalCandles(ctx context.Context, pair core.TradingPair, tf core.Timeframe, start, end core.Timestamp) ([]core.Candle, error) {
	return nil, nil
}

var _ exchange.DataProvider = (*gridStubProvider)(nil)

func TestGridJobLiveModeSourcesPriceFromProvider(t *testing.T) {
	g := newTestGridStrategy(t)
	pair, err := core.ParseTradingPair("BTC-USDT")
	require.NoError(t, err)

	provider := &gridStubProvider{quote: exchange.Quote{Last: core.DecimalFromInt(100)}, ok: true}
	job := &GridJob{strat: g, mode: GridModeLive, provider: provider, pair: pair}

	price, ok := job.nextPrice()
	require.True(t, ok)
	assert.True(t, price.Equal(core.DecimalFromInt(100)))
}

func TestGridJobLiveModeNoQuoteReturnsEmptyReport(t *testing.T) {
	g := newTestGridStrategy(t)
	pair, err := core.ParseTradingPair("BTC-USDT")
	require.NoError(t, err)

	provider := &gridStubProvider{ok: false}
	job := &GridJob{strat: g, mode: GridModeLive, provider: provider, pair: pair}

	report, err := job.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
}

func TestGridJobLiveModeNilProviderReturnsEmptyReport(t *testing.T) {
	g := newTestGridStrategy(t)
	job := &GridJob{strat: g, mode: GridModeLive, provider: nil}

	report, err := job.Tick(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Signals)
}
