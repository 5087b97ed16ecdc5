package strategy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
)

// noopAdvisor is the default Advisor for hybrid_ai when no real advisor is
// wired in (the LLM advisor's wire protocol is out of scope for the
// core). It returns a neutral opinion, so the hybrid degrades to its
// technical sub-strategy unchanged.
type noopAdvisor struct{}

func (noopAdvisor) Opinion(ctx context.Context, buf *core.CandleBuffer, i int) (float64, error) {
	return 0, nil
}

// factoryFunc builds a Strategy from a raw parameter map.
type factoryFunc func(params map[string]interface{}) (Strategy, error)

var registry = map[string]factoryFunc{
	"dual_ma":            newDualMAFromParams,
	"rsi_mean_reversion": newRSIFromParams,
	"grid":               newGridFromParams,
	"hybrid_ai":          newHybridFromParams,
}

func newHybridFromParams(params map[string]interface{}) (Strategy, error) {
	subName, _ := params["sub_strategy"].(string)
	if subName == "" {
		return nil, fmt.Errorf("%w: hybrid_ai requires sub_strategy", quanterrors.ErrMissingStrategyParam)
	}
	subParams, _ := params["sub_parameters"].(map[string]interface{})

	build, ok := registry[subName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", quanterrors.ErrStrategyNotFound, subName)
	}
	sub, err := build(subParams)
	if err != nil {
		return nil, err
	}

	p := newParamSet(params)
	techWeight := p.floatOr("technical_weight", 0.7)
	advisorWeight := p.floatOr("advisor_weight", 0.3)
	threshold := p.floatOr("threshold", 0.5)

	return NewHybridAI(sub, noopAdvisor{}, techWeight, advisorWeight, threshold), nil
}

// NewStrategy builds a strategy instance from its JSON configuration blob,
// matching §6's `{strategy, pair, parameters}` wire shape. Fails fast with
// StrategyNotFound, InvalidStrategyConfig, MissingStrategyParam, or
// InvalidStrategyParam — never a generic error.
func NewStrategy(configJSON []byte) (Strategy, core.TradingPair, error) {
	var cfg Config
	if err := json.Unmarshal(configJSON, &cfg); err != nil {
		return nil, core.TradingPair{}, fmt.Errorf("%w: %v", quanterrors.ErrInvalidStrategyConfig, err)
	}

	build, ok := registry[cfg.StrategyName]
	if !ok {
		return nil, core.TradingPair{}, fmt.Errorf("%w: %s", quanterrors.ErrStrategyNotFound, cfg.StrategyName)
	}

	pair := core.TradingPair{Base: cfg.Pair.Base, Quote: cfg.Pair.Quote}
	if pair.Base == "" || pair.Quote == "" {
		return nil, core.TradingPair{}, fmt.Errorf("%w: pair.base and pair.quote are required", quanterrors.ErrInvalidStrategyConfig)
	}

	strat, err := build(cfg.Parameters)
	if err != nil {
		return nil, core.TradingPair{}, err
	}
	return strat, pair, nil
}
