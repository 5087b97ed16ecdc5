package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/quanterrors"
)

// stubProvider is a minimal exchange.DataProvider. quote/hasQuote are
// returned verbatim from PollQuote so tests can drive ticks precisely.
type stubProvider struct {
	quote       exchange.Quote
	hasQuote    bool
	subscribed  bool
	reconnectFn func(ctx context.Context, maxAttempts int, base, max time.Duration) error
}

func (p *stubProvider) Subscribe(ctx context.Context, pair core.TradingPair) error {
	p.subscribed = true
	return nil
}
func (p *stubProvider) Unsubscribe(ctx context.Context, pair core.TradingPair) error { return nil }
func (p *stubProvider) PollQuote(pair core.TradingPair) (exchange.Quote, bool) {
	return p.quote, p.hasQuote
}
func (p *stubProvider) HistoricalCandles(ctx context.Context, pair core.TradingPair, tf core.Timeframe, start, end core.Timestamp) ([]core.Candle, error) {
	return nil, quanterrors.ErrNoHistoricalData
}

// reconnectingProvider adds a Reconnect method so it satisfies the
// live.Reconnector capability interface.
type reconnectingProvider struct {
	stubProvider
	reconnectCalls int
	reconnectErr   error
}

func (p *reconnectingProvider) Reconnect(ctx context.Context, maxAttempts int, base, max time.Duration) error {
	p.reconnectCalls++
	return p.reconnectErr
}

type stubExecClient struct {
	balance       core.Balance
	positions     []core.Position
	submitResult  core.OrderResult
	submitErr     error
	submitCount   int
	cancelAllHits int
}

func (c *stubExecClient) SubmitOrder(ctx context.Context, req core.OrderRequest) (core.OrderResult, error) {
	c.submitCount++
	if c.submitErr != nil {
		return core.OrderResult{}, c.submitErr
	}
	return c.submitResult, nil
}
func (c *stubExecClient) CancelOrder(ctx context.Context, id string) error { return nil }
func (c *stubExecClient) CancelAll(ctx context.Context, pair *core.TradingPair) error {
	c.cancelAllHits++
	return nil
}
func (c *stubExecClient) OpenOrders(ctx context.Context, pair *core.TradingPair) ([]core.OpenOrder, error) {
	return nil, nil
}
func (c *stubExecClient) Positions(ctx context.Context) ([]core.Position, error) {
	return c.positions, nil
}
func (c *stubExecClient) Balance(ctx context.Context) (core.Balance, error) { return c.balance, nil }
func (c *stubExecClient) SetLeverage(ctx context.Context, pair core.TradingPair, multiplier float64, cross bool) error {
	return nil
}

// countingStrategy records how many times each signal hook fires and
// returns a canned entry signal once armed.
type countingStrategy struct {
	entryCalls int
	exitCalls  int
	nextEntry  *core.Signal
	nextExit   *core.Signal
}

func (s *countingStrategy) Name() string                                    { return "counting" }
func (s *countingStrategy) PopulateIndicators(buf *core.CandleBuffer) error { return nil }
func (s *countingStrategy) EntrySignal(buf *core.CandleBuffer, i int) (*core.Signal, error) {
	s.entryCalls++
	return s.nextEntry, nil
}
func (s *countingStrategy) ExitSignal(buf *core.CandleBuffer, i int, pos core.Position) (*core.Signal, error) {
	s.exitCalls++
	return s.nextExit, nil
}
func (s *countingStrategy) Deinit() {}

func testPair() core.TradingPair {
	p, _ := core.ParseTradingPair("BTC-USDT")
	return p
}

func baseConfig() Config {
	return Config{
		Pair:         testPair(),
		Timeframe:    core.Timeframe("1m"),
		TickInterval: 10 * time.Millisecond,
	}
}

func TestEngineLifecycleTransitions(t *testing.T) {
	provider := &stubProvider{}
	exec := &stubExecClient{}
	eng := NewEngine(baseConfig(), provider, exec, nil, nil, nil)

	require.Equal(t, StateStopped, eng.State())
	require.NoError(t, eng.Start(context.Background()))
	assert.True(t, provider.subscribed)
	assert.Equal(t, StateRunning, eng.State())

	eng.Pause()
	assert.Equal(t, StatePaused, eng.State())
	assert.True(t, eng.isPaused.Load())

	eng.Resume()
	assert.Equal(t, StateRunning, eng.State())
	assert.False(t, eng.isPaused.Load())

	require.NoError(t, eng.Stop(context.Background()))
	assert.Equal(t, StateStopped, eng.State())
	assert.Equal(t, 1, exec.cancelAllHits)
}

func TestEngineStartTwiceRejected(t *testing.T) {
	eng := NewEngine(baseConfig(), &stubProvider{}, &stubExecClient{}, nil, nil, nil)
	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop(context.Background())

	err := eng.Start(context.Background())
	assert.ErrorIs(t, err, quanterrors.ErrRunnerAlreadyRunning)
}

func TestTickSkipsStrategyEvaluationWhenPaused(t *testing.T) {
	strat := &countingStrategy{}
	eng := NewEngine(baseConfig(), &stubProvider{}, &stubExecClient{}, strat, nil, nil)
	eng.isPaused.Store(true)

	eng.tick(context.Background())

	assert.Equal(t, 0, strat.entryCalls)
	assert.Equal(t, 0, strat.exitCalls)
}

func TestTickEvaluatesStrategyWhenRunning(t *testing.T) {
	strat := &countingStrategy{}
	provider := &stubProvider{
		quote:    exchange.Quote{Pair: testPair(), Last: core.DecimalFromFloat(100), Timestamp: core.Timestamp(1)},
		hasQuote: true,
	}
	eng := NewEngine(baseConfig(), provider, &stubExecClient{}, strat, nil, nil)

	eng.tick(context.Background())

	assert.Equal(t, 1, strat.entryCalls)
	assert.Equal(t, 0, strat.exitCalls)
}

func TestTickCallsExitSignalWhenPositionOpen(t *testing.T) {
	strat := &countingStrategy{}
	provider := &stubProvider{
		quote:    exchange.Quote{Pair: testPair(), Last: core.DecimalFromFloat(100), Timestamp: core.Timestamp(1)},
		hasQuote: true,
	}
	exec := &stubExecClient{positions: []core.Position{{Pair: testPair(), Side: core.PositionLong, Size: core.DecimalFromFloat(1)}}}
	eng := NewEngine(baseConfig(), provider, exec, strat, nil, nil)

	eng.tick(context.Background())

	assert.Equal(t, 0, strat.entryCalls)
	assert.Equal(t, 1, strat.exitCalls)
}

func TestOrderHistoryBoundedRing(t *testing.T) {
	eng := NewEngine(baseConfig(), &stubProvider{}, &stubExecClient{}, nil, nil, nil)

	for i := 0; i < orderHistorySize+5; i++ {
		eng.appendOrderHistory(orderHistoryEntry{Request: core.OrderRequest{ClientOrderID: string(rune(i))}})
	}

	history := eng.OrderHistory()
	assert.Len(t, history, orderHistorySize)
}

func TestSynthesizeStubFallbackWhenNoQuoteAndEmptyBuffer(t *testing.T) {
	eng := NewEngine(baseConfig(), &stubProvider{hasQuote: false}, &stubExecClient{}, nil, nil, nil)

	eng.tick(context.Background())

	assert.Equal(t, 2, eng.buf.Len())
}

func TestBalanceAnchoredOnFirstRefreshOnly(t *testing.T) {
	exec := &stubExecClient{balance: core.Balance{Total: core.DecimalFromFloat(5000)}}
	eng := NewEngine(baseConfig(), &stubProvider{}, exec, nil, nil, nil)

	eng.refreshBalanceIfDue(context.Background())
	assert.True(t, eng.equity.Equal(core.DecimalFromFloat(5000)))

	eng.lastBalanceAt = time.Time{}
	exec.balance = core.Balance{Total: core.DecimalFromFloat(9000)}
	eng.refreshBalanceIfDue(context.Background())
	assert.True(t, eng.equity.Equal(core.DecimalFromFloat(5000)), "equity anchors once and does not drift on later refreshes")
}

func TestRiskCheckRejectsOversizedPosition(t *testing.T) {
	limits := RiskLimits{MaxPositionSize: core.DecimalFromFloat(1)}
	req := core.OrderRequest{Quantity: core.DecimalFromFloat(2)}

	err := riskCheck(req, core.DecimalFromFloat(100000), limits)

	assert.ErrorIs(t, err, quanterrors.ErrRiskCheckFailed)
}

func TestRiskCheckRejectsExcessiveNotional(t *testing.T) {
	limits := RiskLimits{MaxOrderNotional: core.DecimalFromFloat(1000)}
	price := core.DecimalFromFloat(50)
	req := core.OrderRequest{Quantity: core.DecimalFromFloat(100), Price: &price}

	err := riskCheck(req, core.DecimalFromFloat(100000), limits)

	assert.ErrorIs(t, err, quanterrors.ErrRiskCheckFailed)
}

func TestRiskCheckPassesWithinLimits(t *testing.T) {
	limits := RiskLimits{MaxPositionSize: core.DecimalFromFloat(10), MaxOrderNotional: core.DecimalFromFloat(10000)}
	req := core.OrderRequest{Quantity: core.DecimalFromFloat(1)}

	err := riskCheck(req, core.DecimalFromFloat(100000), limits)

	assert.NoError(t, err)
}

func TestEvaluateStrategySkipsSubmissionWhenRiskCheckFails(t *testing.T) {
	sig := &core.Signal{Type: core.SignalEntryLong, Price: core.DecimalFromFloat(100), Size: decimalPtr(core.DecimalFromFloat(5))}
	strat := &countingStrategy{nextEntry: sig}
	exec := &stubExecClient{}
	cfg := baseConfig()
	cfg.RiskLimits = RiskLimits{MaxPositionSize: core.DecimalFromFloat(1)}
	eng := NewEngine(cfg, &stubProvider{}, exec, strat, nil, nil)
	eng.ingest(exchange.Quote{Pair: testPair(), Last: core.DecimalFromFloat(100), Timestamp: core.Timestamp(1)})

	eng.evaluateStrategy(context.Background())

	assert.Equal(t, 0, exec.submitCount)
}

func TestEvaluateStrategySubmitsWhenSignalFires(t *testing.T) {
	sig := &core.Signal{Type: core.SignalEntryLong, Price: core.DecimalFromFloat(100), Size: decimalPtr(core.DecimalFromFloat(1))}
	strat := &countingStrategy{nextEntry: sig}
	exec := &stubExecClient{submitResult: core.OrderResult{Success: true}}
	eng := NewEngine(baseConfig(), &stubProvider{}, exec, strat, nil, nil)
	eng.ingest(exchange.Quote{Pair: testPair(), Last: core.DecimalFromFloat(100), Timestamp: core.Timestamp(1)})

	eng.evaluateStrategy(context.Background())

	assert.Equal(t, 1, exec.submitCount)
	assert.Len(t, eng.OrderHistory(), 1)
}

func TestHandleDisconnectReconnectsSuccessfully(t *testing.T) {
	provider := &reconnectingProvider{}
	eng := NewEngine(baseConfig(), provider, &stubExecClient{}, nil, nil, nil)
	eng.lastQuoteObservedAt = time.Now().Add(-time.Hour)

	eng.tick(context.Background())

	assert.Equal(t, 1, provider.reconnectCalls)
	assert.Equal(t, StateRunning, eng.State())
}

func TestHandleDisconnectFailsEngineWhenReconnectExhausted(t *testing.T) {
	provider := &reconnectingProvider{reconnectErr: quanterrors.ErrReconnectExhausted}
	eng := NewEngine(baseConfig(), provider, &stubExecClient{}, nil, nil, nil)
	eng.lastQuoteObservedAt = time.Now().Add(-time.Hour)

	eng.tick(context.Background())

	assert.Equal(t, StateFailed, eng.State())
	assert.True(t, eng.shouldStop.Load())
}

func TestProviderStaleIgnoredWhenNoQuoteEverObserved(t *testing.T) {
	eng := NewEngine(baseConfig(), &stubProvider{}, &stubExecClient{}, nil, nil, nil)
	assert.False(t, eng.providerStale())
}

func decimalPtr(d core.Decimal) *core.Decimal { return &d }
