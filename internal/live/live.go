// Package live implements the live trading engine: a message bus,
// price cache, data/execution drivers, and a strategy tick loop that
// mirrors the backtest engine's entry/exit algorithm against a real
// (or paper) exchange connection instead of pre-loaded candles.
package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/exchange"
	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/internal/strategy"
	"github.com/quantcore/engine/pkg/observability"
)

// State is the live engine's lifecycle state, per §4.I.
type State string

const (
	StateStopped      State = "stopped"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StatePaused       State = "paused"
	StateReconnecting State = "reconnecting"
	StateStopping     State = "stopping"
	StateFailed       State = "failed"
)

// SchedulingModel selects how the engine advances ticks.
type SchedulingModel string

const (
	// SchedulingClockDriven advances every TickInterval, regardless of
	// whether new data arrived.
	SchedulingClockDriven SchedulingModel = "clock_driven"
	// SchedulingEventDriven advances only when PollQuote reports a
	// newer timestamp than the last-seen one, polled at a short
	// internal cadence.
	SchedulingEventDriven SchedulingModel = "event_driven"
	// SchedulingHybrid advances on the clock interval and additionally
	// processes any newer quote it opportunistically observes.
	SchedulingHybrid SchedulingModel = "hybrid"
)

// orderHistorySize is the bounded ring capacity for submitted orders.
const orderHistorySize = 1000

// knownStates enumerates every lifecycle state, for the runner-state
// gauge vector's "zero every other label" bookkeeping.
var knownStates = []string{
	string(StateStopped), string(StateStarting), string(StateRunning),
	string(StatePaused), string(StateReconnecting), string(StateStopping),
	string(StateFailed),
}

// defaultRiskFraction mirrors the backtest engine's 2%-of-equity
// default sizing rule when a signal doesn't specify size.
const defaultRiskFraction = 0.02

// staleQuoteMultiple is how many tick intervals may pass without a new
// quote before the engine treats the provider as disconnected.
const staleQuoteMultiple = 5

// Reconnector is implemented by data providers that can redial and
// resubscribe after a drop (e.g. exchange.WebSocketProvider). Providers
// that don't implement it are treated as never disconnecting.
type Reconnector interface {
	Reconnect(ctx context.Context, maxAttempts int, base, max time.Duration) error
}

// Config tunes one Engine instance.
type Config struct {
	RunnerID              string
	Pair                  core.TradingPair
	Timeframe             core.Timeframe
	Scheduling            SchedulingModel
	TickInterval          time.Duration
	BalanceUpdateInterval time.Duration // default 10s
	HeartbeatInterval     time.Duration
	MaxReconnectAttempts  int
	ReconnectBaseDelay    time.Duration
	ReconnectMaxDelay     time.Duration
	InitialEquity         core.Decimal // zero means "adopt first reported balance"
	RiskLimits            RiskLimits
}

// RiskLimits is the live engine's pre-submission risk gate config.
type RiskLimits struct {
	MaxPositionSize core.Decimal
	MaxOrderNotional core.Decimal
}

// orderHistoryEntry records one submitted order for the bounded ring.
type orderHistoryEntry struct {
	Request   core.OrderRequest
	Result    core.OrderResult
	Timestamp core.Timestamp
}

// Engine is the live trading engine. Exactly one background worker
// goroutine runs its tick loop while the engine is running or paused;
// external Stop/Pause/Stats calls never block for a full tick.
type Engine struct {
	cfg      Config
	provider exchange.DataProvider
	execClient exchange.ExecutionClient
	strat    strategy.Strategy
	logger   *observability.Logger
	metrics  *observability.Metrics

	mu           sync.Mutex
	state        State
	buf          *core.CandleBuffer
	equity       core.Decimal
	equityAnchored bool
	lastBalanceAt  time.Time
	lastHeartbeatAt time.Time
	lastQuoteTS    core.Timestamp
	lastQuoteObservedAt time.Time
	orderHistory   []orderHistoryEntry

	shouldStop atomic.Bool
	isPaused   atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine builds a live engine for one pair/strategy, wired to the
// given data provider and execution client.
func NewEngine(cfg Config, provider exchange.DataProvider, execClient exchange.ExecutionClient, strat strategy.Strategy, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	if cfg.BalanceUpdateInterval == 0 {
		cfg.BalanceUpdateInterval = 10 * time.Second
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RunnerID == "" {
		cfg.RunnerID = cfg.Pair.String()
	}
	return &Engine{
		cfg:        cfg,
		provider:   provider,
		execClient: execClient,
		strat:      strat,
		logger:     logger,
		metrics:    metrics,
		state:      StateStopped,
		buf:        core.NewCandleBuffer(cfg.Pair, cfg.Timeframe),
		equity:     cfg.InitialEquity,
		equityAnchored: cfg.InitialEquity.IsPositive(),
	}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start transitions stopped -> starting -> running and spawns the
// single background tick-loop goroutine.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		e.mu.Unlock()
		return quanterrors.ErrRunnerAlreadyRunning
	}
	e.state = StateStarting
	e.stopCh = make(chan struct{})
	e.shouldStop.Store(false)
	e.isPaused.Store(false)
	e.mu.Unlock()

	if err := e.provider.Subscribe(ctx, e.cfg.Pair); err != nil {
		e.setState(StateFailed)
		return quanterrors.NewLiveError("start", "failed to subscribe to data provider", true, err)
	}

	e.setState(StateRunning)
	e.wg.Add(1)
	go e.runLoop(ctx)
	return nil
}

// Pause stops strategy evaluation but keeps the data loop alive.
func (e *Engine) Pause() {
	e.isPaused.Store(true)
	e.setState(StatePaused)
}

// Resume re-enables strategy evaluation on the next tick.
func (e *Engine) Resume() {
	e.isPaused.Store(false)
	e.setState(StateRunning)
}

// Stop requests the worker to exit, waits for it to join, cancels the
// pair's resting orders through the execution client, then transitions
// to stopped. Existing positions are left untouched.
func (e *Engine) Stop(ctx context.Context) error {
	e.setState(StateStopping)
	e.shouldStop.Store(true)
	close(e.stopCh)
	e.wg.Wait()
	if e.execClient != nil {
		_ = e.execClient.CancelAll(ctx, &e.cfg.Pair)
	}
	e.setState(StateStopped)
	return nil
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.SetRunnerState(e.cfg.RunnerID, string(s), knownStates)
	}
}

// OrderHistory returns a cloned snapshot of the bounded order ring —
// callers needing a stable view never see a slice the worker mutates.
func (e *Engine) OrderHistory() []orderHistoryEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]orderHistoryEntry, len(e.orderHistory))
	copy(out, e.orderHistory)
	return out
}

func (e *Engine) appendOrderHistory(entry orderHistoryEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orderHistory = append(e.orderHistory, entry)
	if len(e.orderHistory) > orderHistorySize {
		e.orderHistory = e.orderHistory[len(e.orderHistory)-orderHistorySize:]
	}
}

// runLoop is the engine's single background worker: it advances ticks
// according to the configured scheduling model until Stop is called.
func (e *Engine) runLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(pollInterval(e.cfg))
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.shouldStop.Load() {
				return
			}
			e.tick(ctx)
			if e.shouldStop.Load() {
				return
			}
		}
	}
}

// pollInterval is the loop's wake-up cadence: the configured tick
// interval for clock-driven/hybrid, or a short fixed cadence for
// event-driven (which only acts when new data is actually observed).
func pollInterval(cfg Config) time.Duration {
	if cfg.Scheduling == SchedulingEventDriven {
		return 50 * time.Millisecond
	}
	return cfg.TickInterval
}

// tick runs one iteration of the documented cycle: ingest -> balance
// refresh -> strategy evaluation -> order submission -> heartbeat.
func (e *Engine) tick(ctx context.Context) {
	if e.providerStale() {
		e.handleDisconnect(ctx)
		return
	}

	quote, hasQuote := e.provider.PollQuote(e.cfg.Pair)
	newData := hasQuote && quote.Timestamp.After(e.lastQuoteTS)

	if e.cfg.Scheduling == SchedulingEventDriven && !newData {
		return
	}

	if hasQuote {
		e.ingest(quote)
	} else if e.buf.Len() == 0 {
		// Documented fallback: synthesize a 2-candle stub so a
		// strategy can still fire before any real data arrives.
		e.synthesizeStub()
	}

	e.refreshBalanceIfDue(ctx)

	if e.strat != nil && !e.isPaused.Load() {
		e.evaluateStrategy(ctx)
	}

	e.heartbeatIfDue()
}

// providerStale reports whether no quote has been observed for
// staleQuoteMultiple tick intervals despite at least one having
// arrived before — the signal the engine treats as a dropped feed.
func (e *Engine) providerStale() bool {
	if e.lastQuoteObservedAt.IsZero() {
		return false
	}
	return time.Since(e.lastQuoteObservedAt) > staleQuoteMultiple*e.cfg.TickInterval
}

// handleDisconnect transitions to reconnecting and, if the provider
// supports it, redials with backoff; it transitions back to running on
// success or to failed (stopping the loop) once attempts are exhausted.
func (e *Engine) handleDisconnect(ctx context.Context) {
	reconnector, ok := e.provider.(Reconnector)
	if !ok {
		// No reconnect capability: treat staleness as informational
		// only, since there's nothing this engine can do about it.
		return
	}

	e.setState(StateReconnecting)
	err := reconnector.Reconnect(ctx, e.cfg.MaxReconnectAttempts, e.cfg.ReconnectBaseDelay, e.cfg.ReconnectMaxDelay)
	if err != nil {
		if e.logger != nil {
			e.logger.Error(ctx, "reconnect exhausted, failing engine", err)
		}
		e.setState(StateFailed)
		e.shouldStop.Store(true)
		return
	}
	e.lastQuoteObservedAt = time.Now()
	if e.isPaused.Load() {
		e.setState(StatePaused)
	} else {
		e.setState(StateRunning)
	}
}

func (e *Engine) ingest(q exchange.Quote) {
	e.lastQuoteTS = q.Timestamp
	e.lastQuoteObservedAt = time.Now()
	candle := core.Candle{Timestamp: q.Timestamp, Open: q.Last, High: q.Last, Low: q.Last, Close: q.Last, Volume: core.ZeroDecimal}
	if e.buf.Len() == 0 {
		_ = e.buf.Append(candle)
		return
	}
	last := e.buf.Last()
	if last.Timestamp == candle.Timestamp {
		e.buf.UpdateLast(candle)
		return
	}
	if candle.Timestamp.After(last.Timestamp) {
		_ = e.buf.Append(candle)
	}
}

func (e *Engine) synthesizeStub() {
	now := core.Timestamp(time.Now().UnixMilli())
	zero := core.ZeroDecimal
	_ = e.buf.Append(core.Candle{Timestamp: now - 1, Open: zero, High: zero, Low: zero, Close: zero, Volume: zero})
	_ = e.buf.Append(core.Candle{Timestamp: now, Open: zero, High: zero, Low: zero, Close: zero, Volume: zero})
}

func (e *Engine) refreshBalanceIfDue(ctx context.Context) {
	if e.execClient == nil {
		return
	}
	if time.Since(e.lastBalanceAt) < e.cfg.BalanceUpdateInterval {
		return
	}
	e.lastBalanceAt = time.Now()
	balance, err := e.execClient.Balance(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn(ctx, "balance refresh failed", map[string]interface{}{"error": err.Error()})
		}
		return
	}
	if !e.equityAnchored {
		e.equity = balance.Total
		e.equityAnchored = true
	}
}

func (e *Engine) evaluateStrategy(ctx context.Context) {
	if err := e.strat.PopulateIndicators(e.buf); err != nil {
		if e.logger != nil {
			e.logger.Error(ctx, "populate_indicators failed", err)
		}
		return
	}

	positions, err := e.openPositions(ctx)
	if err != nil {
		return
	}

	i := e.buf.Len() - 1
	if i < 0 {
		return
	}

	var sig *core.Signal
	if len(positions) == 0 {
		sig, err = e.strat.EntrySignal(e.buf, i)
	} else {
		sig, err = e.strat.ExitSignal(e.buf, i, positions[0])
	}
	if err != nil {
		if e.logger != nil {
			e.logger.Error(ctx, "strategy signal evaluation failed", err)
		}
		return
	}
	if sig == nil {
		return
	}

	req := e.buildOrderRequest(*sig)
	if err := riskCheck(req, e.equity, e.cfg.RiskLimits); err != nil {
		if e.logger != nil {
			e.logger.Warn(ctx, "risk check rejected order", map[string]interface{}{"error": err.Error()})
		}
		if e.metrics != nil {
			e.metrics.OrderRejected(e.cfg.RunnerID, "risk_check")
		}
		return
	}

	result, err := e.execClient.SubmitOrder(ctx, req)
	if err != nil {
		if e.logger != nil {
			e.logger.Error(ctx, "order submission failed", err)
		}
		if e.metrics != nil {
			e.metrics.OrderRejected(e.cfg.RunnerID, "submission_error")
		}
		return
	}
	if e.metrics != nil {
		e.metrics.OrderSubmitted(e.cfg.RunnerID, string(req.Side))
		if result.Success {
			e.metrics.OrderFilled(e.cfg.RunnerID, string(req.Side))
		} else {
			e.metrics.OrderRejected(e.cfg.RunnerID, "exchange_rejected")
		}
	}
	e.appendOrderHistory(orderHistoryEntry{Request: req, Result: result, Timestamp: result.Timestamp})
}

func (e *Engine) openPositions(ctx context.Context) ([]core.Position, error) {
	if e.execClient == nil {
		return nil, nil
	}
	positions, err := e.execClient.Positions(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn(ctx, "positions lookup failed", map[string]interface{}{"error": err.Error()})
		}
		return nil, err
	}
	var own []core.Position
	for _, p := range positions {
		if p.Pair == e.cfg.Pair {
			own = append(own, p)
		}
	}
	return own, nil
}

func (e *Engine) buildOrderRequest(sig core.Signal) core.OrderRequest {
	side := core.OrderSideBuy
	if sig.Type == core.SignalEntryShort || sig.Type == core.SignalExitLong {
		side = core.OrderSideSell
	}

	size := sig.Size
	if size == nil {
		computed := e.equity.Mul(core.DecimalFromFloat(defaultRiskFraction)).Div(sig.Price)
		size = &computed
	}

	return core.OrderRequest{
		Pair:      e.cfg.Pair,
		Side:      side,
		OrderType: core.OrderTypeMarket,
		Quantity:  *size,
	}
}

func (e *Engine) heartbeatIfDue() {
	if e.cfg.HeartbeatInterval == 0 {
		return
	}
	if time.Since(e.lastHeartbeatAt) < e.cfg.HeartbeatInterval {
		return
	}
	e.lastHeartbeatAt = time.Now()
}

// riskCheck is a lightweight max-position/max-notional gate applied
// between signal generation and order submission.
func riskCheck(req core.OrderRequest, equity core.Decimal, limits RiskLimits) error {
	if limits.MaxPositionSize.IsPositive() && req.Quantity.GreaterThan(limits.MaxPositionSize) {
		return quanterrors.ErrRiskCheckFailed
	}
	if limits.MaxOrderNotional.IsPositive() {
		notional := req.Quantity
		if req.Price != nil {
			notional = req.Quantity.Mul(*req.Price)
		}
		if notional.GreaterThan(limits.MaxOrderNotional) {
			return quanterrors.ErrRiskCheckFailed
		}
	}
	return nil
}
