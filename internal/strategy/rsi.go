package strategy

import (
	"fmt"

	"github.com/quantcore/engine/internal/core"
	"github.com/quantcore/engine/internal/indicator"
	"github.com/quantcore/engine/internal/quanterrors"
)

// RSIMeanReversion enters long when RSI drops below the oversold
// threshold and exits when it rises above the overbought threshold.
type RSIMeanReversion struct {
	Period     int
	Oversold   float64
	Overbought float64

	rsiCol string
}

// NewRSIMeanReversion validates the period and threshold ordering.
func NewRSIMeanReversion(period int, oversold, overbought float64) (*RSIMeanReversion, error) {
	if period <= 0 {
		return nil, quanterrors.NewConfigError("period", "period must be positive", nil)
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, quanterrors.NewConfigError("oversold/overbought", "require 0 < oversold < overbought < 100", nil)
	}
	return &RSIMeanReversion{Period: period, Oversold: oversold, Overbought: overbought, rsiCol: "rsi"}, nil
}

func (s *RSIMeanReversion) Name() string { return "rsi_mean_reversion" }

func (s *RSIMeanReversion) PopulateIndicators(buf *core.CandleBuffer) error {
	return indicator.PopulateRSI(buf, s.rsiCol, s.Period)
}

func (s *RSIMeanReversion) EntrySignal(buf *core.CandleBuffer, i int) (*core.Signal, error) {
	rsi, ok := buf.GetIndicator(s.rsiCol, i)
	if !ok {
		return nil, nil
	}
	if core.DecimalToFloat(rsi) >= s.Oversold {
		return nil, nil
	}
	return &core.Signal{Type: core.SignalEntryLong, Price: buf.Get(i).Close}, nil
}

func (s *RSIMeanReversion) ExitSignal(buf *core.CandleBuffer, i int, pos core.Position) (*core.Signal, error) {
	rsi, ok := buf.GetIndicator(s.rsiCol, i)
	if !ok {
		return nil, nil
	}
	if core.DecimalToFloat(rsi) <= s.Overbought {
		return nil, nil
	}
	signalType := core.SignalExitLong
	if pos.Side == core.PositionShort {
		signalType = core.SignalExitShort
	}
	return &core.Signal{Type: signalType, Price: buf.Get(i).Close}, nil
}

func (s *RSIMeanReversion) Deinit() {}

func newRSIFromParams(params map[string]interface{}) (Strategy, error) {
	p := newParamSet(params)
	period, err := p.int("period")
	if err != nil {
		return nil, err
	}
	oversold, err := p.float("oversold")
	if err != nil {
		return nil, err
	}
	overbought, err := p.float("overbought")
	if err != nil {
		return nil, err
	}
	strat, err := NewRSIMeanReversion(period, oversold, overbought)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", quanterrors.ErrInvalidStrategyConfig, err)
	}
	return strat, nil
}
