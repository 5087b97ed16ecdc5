package runner

import (
	"context"
	"time"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/optimize"
)

// OptimizationJob runs one grid-search sweep to completion on its first
// Tick, reporting each completed combination to the owning Runner as it
// happens (optimize.Run fans combinations out across a worker pool
// internally, so this fires concurrently with the Tick call still in
// flight — hence Runner.RecordCombinationCompleted uses an atomic
// counter rather than the Runner's mutex).
type OptimizationJob struct {
	runner    *Runner
	cfg       optimize.Config
	newBuffer func() *core.CandleBuffer
	factory   optimize.StrategyFactory
	clock     func() time.Time
	ran       bool

	// Result is set once Tick has run; nil beforehand.
	Result *optimize.Result
}

// NewOptimizationJob builds a one-shot optimizer Job. clock may be nil,
// in which case time.Now is used.
func NewOptimizationJob(cfg optimize.Config, newBuffer func() *core.CandleBuffer, factory optimize.StrategyFactory, clock func() time.Time) func(*Runner) Job {
	return func(r *Runner) Job {
		if clock == nil {
			clock = time.Now
		}
		job := &OptimizationJob{runner: r, cfg: cfg, newBuffer: newBuffer, factory: factory, clock: clock}
		job.cfg.ProgressFn = func(completed int64) {
			r.RecordCombinationCompleted()
		}
		return job
	}
}

func (j *OptimizationJob) Tick(ctx context.Context) (TickReport, error) {
	if j.ran {
		return TickReport{Done: true}, nil
	}
	j.ran = true

	result, err := optimize.Run(j.cfg, j.newBuffer, j.factory, j.clock)
	if err != nil {
		return TickReport{}, err
	}
	j.Result = result

	return TickReport{Done: true}, nil
}

func (j *OptimizationJob) Cleanup(ctx context.Context) error { return nil }

var _ Job = (*OptimizationJob)(nil)
