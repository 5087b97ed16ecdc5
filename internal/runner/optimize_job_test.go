package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/optimize"
	"github.com/quantcore/engine/internal/strategy"
)

func optimizeDualMAFactory(params core.ParameterSet) (strategy.Strategy, error) {
	fast := int(params["fast_period"].IntVal)
	slow := int(params["slow_period"].IntVal)
	return strategy.NewDualMA(fast, slow)
}

func optimizeTestConfig() optimize.Config {
	var r core.ParameterRange = core.IntegerRange(2, 4, 1)
	var r2 core.ParameterRange = core.IntegerRange(8, 10, 1)
	return optimize.Config{
		Objective: optimize.ObjectiveMaximizeNetProfit,
		BacktestConfig: core.BacktestConfig{
			InitialCapital: core.DecimalFromInt(10000),
			CommissionRate: core.ZeroDecimal,
			Slippage:       core.ZeroDecimal,
		},
		Parameters: []core.StrategyParameter{
			{Name: "fast_period", Type: core.ParamInteger, Default: core.IntParam(3), Optimize: true, Range: &r},
			{Name: "slow_period", Type: core.ParamInteger, Default: core.IntParam(10), Optimize: true, Range: &r2},
		},
		EnableParallel: true,
	}
}

func TestOptimizationJobRunsOnceAndStopsItself(t *testing.T) {
	newBuf := func() *core.CandleBuffer { return runnerMonotoneBuffer(t, 50, 100) }
	clock := func() time.Time { return time.Unix(0, 0) }

	var job *OptimizationJob
	factory := NewOptimizationJob(optimizeTestConfig(), newBuf, optimizeDualMAFactory, clock)
	r := NewRunner(KindOptimization, 2*time.Millisecond, nil, nil, func(rr *Runner) Job {
		j := factory(rr).(*OptimizationJob)
		job = j
		return j
	})

	require.NoError(t, r.Start(context.Background()))
	waitFor(t, func() bool { return r.Status() == StatusStopped }, time.Second)

	require.NotNil(t, job.Result)
	assert.Equal(t, 9, job.Result.TotalCombinations)
	assert.Equal(t, 9, job.Result.SuccessCombinations)
}

func TestOptimizationJobReportsProgressThroughRunner(t *testing.T) {
	newBuf := func() *core.CandleBuffer { return runnerMonotoneBuffer(t, 50, 100) }
	clock := func() time.Time { return time.Unix(0, 0) }

	r := NewRunner(KindOptimization, 2*time.Millisecond, nil, nil, NewOptimizationJob(optimizeTestConfig(), newBuf, optimizeDualMAFactory, clock))

	require.NoError(t, r.Start(context.Background()))
	waitFor(t, func() bool { return r.Status() == StatusStopped }, time.Second)

	snap := r.Snapshot()
	assert.Equal(t, int64(9), snap.Stats.CombinationsCompleted)
}

func TestOptimizationJobDefaultsNilClockToNow(t *testing.T) {
	newBuf := func() *core.CandleBuffer { return runnerMonotoneBuffer(t, 50, 100) }

	var job *OptimizationJob
	factory := NewOptimizationJob(optimizeTestConfig(), newBuf, optimizeDualMAFactory, nil)
	r := NewRunner(KindOptimization, 2*time.Millisecond, nil, nil, func(rr *Runner) Job {
		j := factory(rr).(*OptimizationJob)
		job = j
		return j
	})

	require.NoError(t, r.Start(context.Background()))
	waitFor(t, func() bool { return r.Status() == StatusStopped }, time.Second)

	require.NotNil(t, job.Result)
	assert.GreaterOrEqual(t, job.Result.ElapsedMillis, int64(0))
}
