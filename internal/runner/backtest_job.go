package runner

import (
	"context"

	"github.com/quantcore/engine/internal/backtest"
	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/strategy"
)

// BacktestJob runs one backtest to completion on its first Tick and then
// reports Done — a backtest is pure CPU with no meaningful pause point
// mid-run, so it doesn't benefit from being spread across many ticks the
// way a live or grid job does.
type BacktestJob struct {
	strat  strategy.Strategy
	cfg    core.BacktestConfig
	buf    *core.CandleBuffer
	engine *backtest.Engine
	ran    bool

	// Result is set once Tick has run; nil beforehand.
	Result *core.BacktestResult
}

// NewBacktestJob builds a one-shot backtest Job for the given strategy,
// config, and pre-loaded candle buffer.
func NewBacktestJob(strat strategy.Strategy, cfg core.BacktestConfig, buf *core.CandleBuffer) func(*Runner) Job {
	return func(r *Runner) Job {
		return &BacktestJob{strat: strat, cfg: cfg, buf: buf, engine: backtest.NewEngine()}
	}
}

func (j *BacktestJob) Tick(ctx context.Context) (TickReport, error) {
	if j.ran {
		return TickReport{Done: true}, nil
	}
	j.ran = true

	result, err := j.engine.Run(j.strat, j.cfg, j.buf)
	if err != nil {
		return TickReport{}, err
	}
	j.Result = result

	volume := core.ZeroDecimal
	for _, t := range result.Trades {
		volume = volume.Add(t.Size)
	}

	return TickReport{
		RealizedPnLDelta: result.NetProfit,
		VolumeDelta:      volume,
		Done:             true,
	}, nil
}

func (j *BacktestJob) Cleanup(ctx context.Context) error { return nil }

var _ Job = (*BacktestJob)(nil)
