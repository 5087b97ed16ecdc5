package strategy

import (
	"fmt"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/indicator"
	"github.com/quantcore/engine/internal/quanterrors"
)

// DualMA is a fast/slow moving-average crossover strategy: enters long
// when the fast average crosses above the slow average, exits when it
// crosses back below.
type DualMA struct {
	FastPeriod int
	SlowPeriod int

	fastCol string
	slowCol string
}

// NewDualMA builds a DualMA strategy, validating that both periods are
// positive and the fast period is shorter than the slow one.
func NewDualMA(fastPeriod, slowPeriod int) (*DualMA, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 {
		return nil, quanterrors.NewConfigError("period", "fast_period and slow_period must be positive", nil)
	}
	if fastPeriod >= slowPeriod {
		return nil, quanterrors.NewConfigError("fast_period", "fast_period must be less than slow_period", nil)
	}
	return &DualMA{FastPeriod: fastPeriod, SlowPeriod: slowPeriod, fastCol: "dual_ma_fast", slowCol: "dual_ma_slow"}, nil
}

func (s *DualMA) Name() string { return "dual_ma" }

func (s *DualMA) PopulateIndicators(buf *core.CandleBuffer) error {
	if err := indicator.PopulateSMA(buf, s.fastCol, s.FastPeriod); err != nil {
		return err
	}
	return indicator.PopulateSMA(buf, s.slowCol, s.SlowPeriod)
}

func (s *DualMA) EntrySignal(buf *core.CandleBuffer, i int) (*core.Signal, error) {
	if i < 1 {
		return nil, nil
	}
	fastNow, ok1 := buf.GetIndicator(s.fastCol, i)
	slowNow, ok2 := buf.GetIndicator(s.slowCol, i)
	if !ok1 || !ok2 {
		return nil, nil
	}
	fastPrev, ok3 := buf.GetIndicator(s.fastCol, i-1)
	slowPrev, ok4 := buf.GetIndicator(s.slowCol, i-1)

	var crossedUp bool
	if !ok3 || !ok4 {
		// First bar where both averages are defined: there's no prior
		// relationship to compare against, so treat "fast already above
		// slow" as the crossing event itself.
		crossedUp = fastNow.GreaterThan(slowNow)
	} else {
		crossedUp = fastPrev.LessThanOrEqual(slowPrev) && fastNow.GreaterThan(slowNow)
	}
	if !crossedUp {
		return nil, nil
	}

	price := buf.Get(i).Close
	return &core.Signal{Type: core.SignalEntryLong, Price: price}, nil
}

func (s *DualMA) ExitSignal(buf *core.CandleBuffer, i int, pos core.Position) (*core.Signal, error) {
	if i < 1 {
		return nil, nil
	}
	fastNow, ok1 := buf.GetIndicator(s.fastCol, i)
	slowNow, ok2 := buf.GetIndicator(s.slowCol, i)
	fastPrev, ok3 := buf.GetIndicator(s.fastCol, i-1)
	slowPrev, ok4 := buf.GetIndicator(s.slowCol, i-1)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, nil
	}

	crossedDown := fastPrev.GreaterThanOrEqual(slowPrev) && fastNow.LessThan(slowNow)
	if !crossedDown {
		return nil, nil
	}

	price := buf.Get(i).Close
	signalType := core.SignalExitLong
	if pos.Side == core.PositionShort {
		signalType = core.SignalExitShort
	}
	return &core.Signal{Type: signalType, Price: price}, nil
}

func (s *DualMA) Deinit() {}

func newDualMAFromParams(params map[string]interface{}) (Strategy, error) {
	p := newParamSet(params)
	fast, err := p.int("fast_period")
	if err != nil {
		return nil, err
	}
	slow, err := p.int("slow_period")
	if err != nil {
		return nil, err
	}
	strat, err := NewDualMA(fast, slow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", quanterrors.ErrInvalidStrategyConfig, err)
	}
	return strat, nil
}
