package strategy

import (
	"fmt"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/quanterrors"
)

// paramSet wraps a raw JSON parameter map with typed accessors that return
// the factory's named errors (MissingStrategyParam, InvalidStrategyParam)
// instead of panicking on a malformed config.
type paramSet struct {
	raw map[string]interface{}
}

func newParamSet(raw map[string]interface{}) paramSet {
	return paramSet{raw: raw}
}

func (p paramSet) float(name string) (float64, error) {
	v, ok := p.raw[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", quanterrors.ErrMissingStrategyParam, name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s must be numeric", quanterrors.ErrInvalidStrategyParam, name)
	}
}

func (p paramSet) floatOr(name string, def float64) float64 {
	v, err := p.float(name)
	if err != nil {
		return def
	}
	return v
}

func (p paramSet) int(name string) (int, error) {
	f, err := p.float(name)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func (p paramSet) decimal(name string) (core.Decimal, error) {
	f, err := p.float(name)
	if err != nil {
		return core.Decimal{}, err
	}
	return core.DecimalFromFloat(f), nil
}

func (p paramSet) boolOr(name string, def bool) bool {
	v, ok := p.raw[name]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}
