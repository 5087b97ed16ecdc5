package optimize

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantcore/engine/internal/backtest"
	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/performance"
	"github.com/quantcore/engine/internal/quanterrors"
	"github.com/quantcore/engine/internal/strategy"
)

// Objective names the score extracted from a backtest's performance
// metrics. Mirrors the wire strings a strategy config's objective
// field would carry.
type Objective string

const (
	ObjectiveMaximizeSharpeRatio        Objective = "maximize_sharpe_ratio"
	ObjectiveMaximizeProfitFactor       Objective = "maximize_profit_factor"
	ObjectiveMaximizeWinRate            Objective = "maximize_win_rate"
	ObjectiveMinimizeMaxDrawdown        Objective = "minimize_max_drawdown"
	ObjectiveMaximizeNetProfit          Objective = "maximize_net_profit"
	ObjectiveMaximizeTotalReturn        Objective = "maximize_total_return"
	ObjectiveMaximizeSortinoRatio       Objective = "maximize_sortino_ratio"
	ObjectiveMaximizeCalmarRatio        Objective = "maximize_calmar_ratio"
	ObjectiveMaximizeOmegaRatio         Objective = "maximize_omega_ratio"
	ObjectiveMaximizeTailRatio          Objective = "maximize_tail_ratio"
	ObjectiveMaximizeStability          Objective = "maximize_stability"
	ObjectiveMaximizeRiskAdjustedReturn Objective = "maximize_risk_adjusted_return"
)

// Score extracts the objective's scalar from a performance.Metrics
// value, per the documented objective-mapping table. minimize_* goals
// are negated so every objective is a "higher is better" maximization.
func Score(objective Objective, m performance.Metrics) float64 {
	switch objective {
	case ObjectiveMaximizeSharpeRatio:
		return m.SharpeRatio
	case ObjectiveMaximizeProfitFactor:
		return m.ProfitFactor
	case ObjectiveMaximizeWinRate:
		return m.WinRate
	case ObjectiveMinimizeMaxDrawdown:
		return -m.MaxDrawdown
	case ObjectiveMaximizeNetProfit:
		return core.DecimalToFloat(m.NetProfit)
	case ObjectiveMaximizeTotalReturn:
		return m.TotalReturn
	case ObjectiveMaximizeSortinoRatio:
		return m.SortinoRatio
	case ObjectiveMaximizeCalmarRatio:
		return m.CalmarRatio
	case ObjectiveMaximizeOmegaRatio:
		return m.OmegaRatio
	case ObjectiveMaximizeTailRatio:
		return m.TailRatio
	case ObjectiveMaximizeStability:
		return m.StabilityR2
	case ObjectiveMaximizeRiskAdjustedReturn:
		pf := m.ProfitFactor
		if pf > 3 {
			pf = 3
		}
		sharpe := m.SharpeRatio
		if sharpe < 0 {
			sharpe = 0
		}
		return 0.5*sharpe + 0.3*pf/3 + 0.2*m.WinRate
	default:
		return 0
	}
}

// StrategyFactory builds a concrete Strategy from one generated
// ParameterSet. Owned by the caller, not this package — it's how the
// optimizer stays decoupled from the strategy registry.
type StrategyFactory func(core.ParameterSet) (strategy.Strategy, error)

// Config is the grid-search optimizer's input.
type Config struct {
	Objective       Objective
	BacktestConfig  core.BacktestConfig
	Parameters      []core.StrategyParameter
	MaxCombinations int64 // 0 means "use the hard ceiling only"
	EnableParallel  bool
	// ProgressFn, if set, is called after every completed combination
	// with the number completed so far. Invoked from worker
	// goroutines; must not block.
	ProgressFn func(completed int64)
}

// ParameterResult is one combination's backtest outcome and score.
type ParameterResult struct {
	Params        core.ParameterSet
	BacktestResult *core.BacktestResult
	Metrics       performance.Metrics
	Score         float64
	Err           error
}

// Result is the optimizer's final report.
type Result struct {
	Objective          Objective
	BestParams         core.ParameterSet
	BestScore          float64
	AllResults         []ParameterResult
	TotalCombinations  int
	SuccessCombinations int
	FailedCombinations int
	ElapsedMillis      int64
}

// Run generates every combination, backtests each (in parallel if
// enabled), and returns the combination with the highest score — ties
// broken by lowest index, i.e. the first-declared combination wins.
func Run(cfg Config, newBuffer func() *core.CandleBuffer, factory StrategyFactory, clock func() time.Time) (*Result, error) {
	start := clock()

	combos, err := GenerateCombinations(cfg.Parameters)
	if err != nil {
		return nil, err
	}
	if cfg.MaxCombinations > 0 && int64(len(combos)) > cfg.MaxCombinations {
		return nil, quanterrors.ErrTooManyCombinations
	}

	results := make([]ParameterResult, len(combos))
	var completed int64

	runOne := func(idx int) {
		params := combos[idx]
		results[idx] = evaluate(cfg, params, newBuffer(), factory)
		n := atomic.AddInt64(&completed, 1)
		if cfg.ProgressFn != nil {
			cfg.ProgressFn(n)
		}
	}

	if cfg.EnableParallel {
		var wg sync.WaitGroup
		wg.Add(len(combos))
		for i := range combos {
			i := i
			go func() {
				defer wg.Done()
				runOne(i)
			}()
		}
		wg.Wait()
	} else {
		for i := range combos {
			runOne(i)
		}
	}

	report := &Result{
		Objective:         cfg.Objective,
		TotalCombinations: len(combos),
		AllResults:        results,
		BestScore:         negativeInfinity,
	}
	anySuccess := false
	for i, r := range results {
		if r.Err != nil {
			report.FailedCombinations++
			continue
		}
		report.SuccessCombinations++
		anySuccess = true
		if r.Score > report.BestScore {
			report.BestScore = r.Score
			report.BestParams = combos[i].Clone()
		}
	}
	if !anySuccess {
		return nil, quanterrors.ErrAllBacktestsFailed
	}

	report.ElapsedMillis = clock().Sub(start).Milliseconds()
	return report, nil
}

// negativeInfinity seeds the best-score scan so the very first
// successful result always wins the initial comparison.
const negativeInfinity = -1e308

func evaluate(cfg Config, params core.ParameterSet, buf *core.CandleBuffer, factory StrategyFactory) ParameterResult {
	strat, err := factory(params)
	if err != nil {
		return ParameterResult{Params: params, Err: err}
	}

	eng := backtest.NewEngine()
	btResult, err := eng.Run(strat, cfg.BacktestConfig, buf)
	if err != nil {
		return ParameterResult{Params: params, Err: err}
	}

	metrics := performance.Analyze(btResult)
	score := Score(cfg.Objective, metrics)
	return ParameterResult{
		Params:         params,
		BacktestResult: btResult,
		Metrics:        metrics,
		Score:          score,
	}
}
