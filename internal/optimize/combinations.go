// Package optimize implements the Cartesian-product combination
// generator and grid-search optimizer over strategy parameters.
package optimize

import (
	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
)

// maxCombinationsHardLimit is the overflow ceiling (2^32) beyond which
// generation aborts regardless of any caller-supplied max_combinations.
const maxCombinationsHardLimit = int64(1) << 32

// GenerateCombinations enumerates the Cartesian product over every
// parameter marked Optimize, holding every other parameter at its
// Default. The slowest-varying axis is the first declared optimized
// parameter (standard Cartesian traversal order), matching the order
// parameters appear in params.
func GenerateCombinations(params []core.StrategyParameter) ([]core.ParameterSet, error) {
	for _, p := range params {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	var optimized []core.StrategyParameter
	for _, p := range params {
		if p.Optimize {
			optimized = append(optimized, p)
		}
	}
	if len(optimized) == 0 {
		return nil, quanterrors.ErrNoOptimizedParameters
	}

	axisValues := make([][]core.ParameterValue, len(optimized))
	total := int64(1)
	for i, p := range optimized {
		values, err := p.Range.Values()
		if err != nil {
			return nil, err
		}
		axisValues[i] = values
		total *= int64(len(values))
		if total > maxCombinationsHardLimit {
			return nil, quanterrors.ErrTooManyCombinations
		}
	}

	base := core.ParameterSet{}
	for _, p := range params {
		if !p.Optimize {
			base[p.Name] = p.Default
		}
	}

	results := make([]core.ParameterSet, 0, total)
	var build func(axis int, acc core.ParameterSet)
	build = func(axis int, acc core.ParameterSet) {
		if axis == len(optimized) {
			results = append(results, acc.Clone())
			return
		}
		name := optimized[axis].Name
		for _, v := range axisValues[axis] {
			acc[name] = v
			build(axis+1, acc)
		}
	}
	build(0, base.Clone())

	return results, nil
}
