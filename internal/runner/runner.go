// Package runner provides the uniform supervision container §4.K
// describes: one addressable owner per run (backtest, optimization, or
// grid — see the internal/live package doc for why the live kind
// supervises itself), with a single background worker, bounded
// order/signal histories, and per-runner metrics. The lifecycle
// (mutex-guarded state, should_stop/is_paused atomics, a ticker-driven
// worker goroutine) is grounded on the teacher's
// internal/strategies/framework.BaseStrategy run loop, generalized from
// one strategy implementation to any Job.
package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/pkg/observability"
)

// Kind identifies what a Runner is supervising, for labeling and stats.
type Kind string

const (
	KindBacktest     Kind = "backtest"
	KindOptimization Kind = "optimization"
	KindGrid         Kind = "grid"
)

// Status is the runner's lifecycle state, per §4.K's linear transitions
// stopped -> starting -> running [<-> paused] -> stopping -> stopped,
// with error_state reachable from running and absorbing.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusStopping Status = "stopping"
	StatusError    Status = "error_state"
)

var knownStatuses = []string{
	string(StatusStopped), string(StatusStarting), string(StatusRunning),
	string(StatusPaused), string(StatusStopping), string(StatusError),
}

const (
	orderHistorySize  = 1000
	signalHistorySize = 1000
)

// OrderEvent records one order submission outcome for the bounded ring.
type OrderEvent struct {
	Request   core.OrderRequest
	Result    core.OrderResult
	Timestamp core.Timestamp
}

// SignalEvent records one generated signal for the bounded ring.
type SignalEvent struct {
	Signal    core.Signal
	Timestamp core.Timestamp
}

// TickReport is everything a Job produced during one Tick call, for the
// Runner to fold into history and stats. Zero value means "nothing
// happened this tick" — a perfectly normal outcome.
type TickReport struct {
	Orders           []OrderEvent
	Signals          []SignalEvent
	RealizedPnLDelta core.Decimal
	VolumeDelta      core.Decimal
	OrdersCancelled  int
	OrdersRejected   int
	// Done signals the job has nothing left to do (e.g. a one-shot
	// backtest/optimization run finished); the runner stops itself
	// after folding this report in rather than waiting for an
	// external Stop() call.
	Done bool
}

// Job is one unit of work a Runner supervises one tick at a time.
type Job interface {
	Tick(ctx context.Context) (TickReport, error)
	// Cleanup runs once after the worker loop exits, e.g. cancelling
	// resting orders for a grid job. No-op for pure-CPU jobs.
	Cleanup(ctx context.Context) error
}

// Stats is the runner's accumulated counters, per §4.K.
type Stats struct {
	OrdersSubmitted       int64
	OrdersFilled          int64
	OrdersCancelled       int64
	OrdersRejected        int64
	RealizedPnL           core.Decimal
	TotalVolume           core.Decimal
	CombinationsCompleted int64
}

// Snapshot is a consistent, cloned view of a runner's state for external
// callers (stats endpoints, tests) — never a reference into live state.
type Snapshot struct {
	ID        string
	Kind      Kind
	Status    Status
	LastError error
	Stats     Stats
	Uptime    time.Duration
}

// Runner supervises one Job: exactly one background worker goroutine
// runs while the runner is running or paused. The mutex guards all
// mutable fields and the worker never holds it across Job.Tick, so
// Pause and Snapshot never wait for a tick in flight; Stop joins the
// worker and so waits for any tick in flight to return.
type Runner struct {
	id           string
	kind         Kind
	job          Job
	tickInterval time.Duration
	logger       *observability.Logger
	metrics      *observability.Metrics

	mu            sync.Mutex
	status        Status
	lastError     error
	orderHistory  []OrderEvent
	signalHistory []SignalEvent
	stats         Stats
	startedAt     time.Time
	stoppedAt     time.Time

	combinationsCompleted atomic.Int64

	shouldStop atomic.Bool
	isPaused   atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner builds a Runner for kind, driven by the Job jobFactory
// builds. jobFactory receives the Runner itself so a Job can report
// progressive counters (e.g. optimizer combinations completed) without
// a circular construction dependency.
func NewRunner(kind Kind, tickInterval time.Duration, logger *observability.Logger, metrics *observability.Metrics, jobFactory func(*Runner) Job) *Runner {
	r := &Runner{
		id:           uuid.NewString(),
		kind:         kind,
		tickInterval: tickInterval,
		logger:       logger,
		metrics:      metrics,
		status:       StatusStopped,
	}
	r.job = jobFactory(r)
	return r
}

func (r *Runner) ID() string { return r.id }
func (r *Runner) Kind() Kind { return r.kind }

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Start transitions stopped -> starting -> running and spawns the
// single background worker goroutine.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.status != StatusStopped {
		r.mu.Unlock()
		return quanterrors.ErrRunnerAlreadyRunning
	}
	r.status = StatusStarting
	r.stopCh = make(chan struct{})
	r.startedAt = time.Now()
	r.stoppedAt = time.Time{}
	r.mu.Unlock()

	r.shouldStop.Store(false)
	r.isPaused.Store(false)
	r.setStatus(StatusRunning)

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Pause skips Job.Tick calls but keeps the worker goroutine alive.
func (r *Runner) Pause() {
	r.isPaused.Store(true)
	r.setStatus(StatusPaused)
}

// Resume re-enables Job.Tick calls on the next tick.
func (r *Runner) Resume() {
	r.isPaused.Store(false)
	r.setStatus(StatusRunning)
}

// Stop requests the worker to exit, joins it, runs Job.Cleanup, then
// transitions to stopped. Safe to call from any goroutine; the mutex is
// released before the join, which waits for any tick in flight.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.status == StatusStopped {
		r.mu.Unlock()
		return quanterrors.ErrRunnerNotRunning
	}
	r.mu.Unlock()

	r.setStatus(StatusStopping)
	r.shouldStop.Store(true)
	close(r.stopCh)
	r.wg.Wait()

	if err := r.job.Cleanup(ctx); err != nil && r.logger != nil {
		r.logger.Warn(ctx, "runner cleanup failed", map[string]interface{}{"error": err.Error(), "runner_id": r.id})
	}

	r.mu.Lock()
	r.stoppedAt = time.Now()
	r.mu.Unlock()
	r.setStatus(StatusStopped)
	return nil
}

func (r *Runner) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.SetRunnerState(r.id, string(s), knownStatuses)
	}
}

// RecordCombinationCompleted lets an optimization Job report progress
// from inside its own internal worker pool, concurrently with other
// combinations still running — hence the atomic rather than the mutex.
func (r *Runner) RecordCombinationCompleted() {
	r.combinationsCompleted.Add(1)
	if r.metrics != nil {
		r.metrics.CombinationCompleted()
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.shouldStop.Load() {
				return
			}
			done := r.tick(ctx)
			if done {
				r.mu.Lock()
				selfStop := r.status == StatusRunning || r.status == StatusPaused
				if selfStop {
					r.status = StatusStopped
					r.stoppedAt = time.Now()
				}
				r.mu.Unlock()
				if selfStop {
					r.setStatus(StatusStopped)
					_ = r.job.Cleanup(ctx)
				}
				return
			}
			if r.shouldStop.Load() {
				return
			}
		}
	}
}

// tick runs one Job.Tick call and folds its outcome into history/stats.
// Returns true if the job reported it has nothing left to do.
func (r *Runner) tick(ctx context.Context) bool {
	if r.isPaused.Load() {
		return false
	}

	start := time.Now()
	report, err := r.job.Tick(ctx)
	if r.metrics != nil {
		r.metrics.ObserveTickLatency(r.id, time.Since(start).Seconds())
	}

	r.mu.Lock()
	if err != nil {
		r.lastError = err
		fatal := isFatal(err)
		if fatal {
			r.status = StatusError
		}
		r.mu.Unlock()
		if r.logger != nil {
			r.logger.Error(ctx, "runner tick failed", err, map[string]interface{}{"runner_id": r.id})
		}
		if fatal {
			if r.metrics != nil {
				r.metrics.SetRunnerState(r.id, string(StatusError), knownStatuses)
			}
			r.shouldStop.Store(true)
			return true
		}
		return false
	}
	r.lastError = nil
	r.applyReport(report)
	r.mu.Unlock()

	r.recordMetrics(report)
	return report.Done
}

// applyReport folds a TickReport into history/stats. Caller holds r.mu.
func (r *Runner) applyReport(report TickReport) {
	r.orderHistory = append(r.orderHistory, report.Orders...)
	if over := len(r.orderHistory) - orderHistorySize; over > 0 {
		r.orderHistory = r.orderHistory[over:]
	}
	r.signalHistory = append(r.signalHistory, report.Signals...)
	if over := len(r.signalHistory) - signalHistorySize; over > 0 {
		r.signalHistory = r.signalHistory[over:]
	}

	r.stats.RealizedPnL = r.stats.RealizedPnL.Add(report.RealizedPnLDelta)
	r.stats.TotalVolume = r.stats.TotalVolume.Add(report.VolumeDelta)
	r.stats.OrdersSubmitted += int64(len(report.Orders))
	for _, o := range report.Orders {
		if o.Result.Success {
			r.stats.OrdersFilled++
		}
	}
	r.stats.OrdersCancelled += int64(report.OrdersCancelled)
	r.stats.OrdersRejected += int64(report.OrdersRejected)
}

func (r *Runner) recordMetrics(report TickReport) {
	if r.metrics == nil {
		return
	}
	for _, o := range report.Orders {
		r.metrics.OrderSubmitted(r.id, string(o.Request.Side))
		if o.Result.Success {
			r.metrics.OrderFilled(r.id, string(o.Request.Side))
		}
	}
	for i := 0; i < report.OrdersCancelled; i++ {
		r.metrics.OrderCancelled(r.id)
	}
	for i := 0; i < report.OrdersRejected; i++ {
		r.metrics.OrderRejected(r.id, "job_reported")
	}
	for range report.Signals {
		r.metrics.SignalGenerated(r.id, string(r.kind))
	}
}

// isFatal classifies an error per §7's runtime taxonomy: a LiveError
// flagged Fatal, reconnect exhaustion, an all-backtests-failed optimizer
// run, and missing candle data are the unrecoverable classes that move
// a runner to error_state; everything
// else is recorded in last_error and the runner tries again next tick.
func isFatal(err error) bool {
	var le *quanterrors.LiveError
	if errors.As(err, &le) {
		return le.Fatal
	}
	return errors.Is(err, quanterrors.ErrReconnectExhausted) ||
		errors.Is(err, quanterrors.ErrAllBacktestsFailed) ||
		errors.Is(err, quanterrors.ErrNoCandleData)
}

// OrderHistory returns a cloned snapshot of the bounded order ring.
func (r *Runner) OrderHistory() []OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]OrderEvent, len(r.orderHistory))
	copy(out, r.orderHistory)
	return out
}

// SignalHistory returns a cloned snapshot of the bounded signal ring.
func (r *Runner) SignalHistory() []SignalEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SignalEvent, len(r.signalHistory))
	copy(out, r.signalHistory)
	return out
}

// Snapshot returns a consistent, cloned view of the runner's status,
// last error, stats, and uptime (time since Start, frozen at Stop).
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	stats.CombinationsCompleted = r.combinationsCompleted.Load()

	var uptime time.Duration
	switch {
	case r.startedAt.IsZero():
		uptime = 0
	case !r.stoppedAt.IsZero():
		uptime = r.stoppedAt.Sub(r.startedAt)
	default:
		uptime = time.Since(r.startedAt)
	}

	return Snapshot{
		ID:        r.id,
		Kind:      r.kind,
		Status:    r.status,
		LastError: r.lastError,
		Stats:     stats,
		Uptime:    uptime,
	}
}
