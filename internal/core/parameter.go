package core

import (
	"fmt"

	"github.com/quantcore/engine/internal/quanterrors"
)

// ParamKind tags the variant carried by a ParameterValue or ParameterRange.
type ParamKind string

const (
	ParamInteger  ParamKind = "integer"
	ParamDecimal  ParamKind = "decimal"
	ParamBoolean  ParamKind = "boolean"
	ParamDiscrete ParamKind = "discrete"
)

// ParameterValue is a tagged union over {integer, decimal, boolean,
// discrete(string)}. Equality is by tag plus payload — see Equals.
type ParameterValue struct {
	Kind       ParamKind
	IntVal     int64
	DecimalVal Decimal
	BoolVal    bool
	StringVal  string
}

func IntParam(v int64) ParameterValue      { return ParameterValue{Kind: ParamInteger, IntVal: v} }
func DecimalParam(v Decimal) ParameterValue { return ParameterValue{Kind: ParamDecimal, DecimalVal: v} }
func BoolParam(v bool) ParameterValue      { return ParameterValue{Kind: ParamBoolean, BoolVal: v} }
func DiscreteParam(v string) ParameterValue { return ParameterValue{Kind: ParamDiscrete, StringVal: v} }

// Equals reports tag+payload equality.
func (v ParameterValue) Equals(other ParameterValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ParamInteger:
		return v.IntVal == other.IntVal
	case ParamDecimal:
		return v.DecimalVal.Equal(other.DecimalVal)
	case ParamBoolean:
		return v.BoolVal == other.BoolVal
	case ParamDiscrete:
		return v.StringVal == other.StringVal
	default:
		return false
	}
}

// ParameterRange is a tagged union describing the domain a parameter may be
// optimized over.
type ParameterRange struct {
	Kind ParamKind

	IntMin, IntMax, IntStep int64

	DecMin, DecMax, DecStep Decimal

	DiscreteValues []string
}

// IntegerRange builds an inclusive integer range.
func IntegerRange(min, max, step int64) ParameterRange {
	return ParameterRange{Kind: ParamInteger, IntMin: min, IntMax: max, IntStep: step}
}

// DecimalRange builds an inclusive decimal range.
func DecimalRange(min, max, step Decimal) ParameterRange {
	return ParameterRange{Kind: ParamDecimal, DecMin: min, DecMax: max, DecStep: step}
}

// BooleanRange builds the fixed {false, true} range.
func BooleanRange() ParameterRange {
	return ParameterRange{Kind: ParamBoolean}
}

// DiscreteRange builds a range over an explicit, non-empty value list.
func DiscreteRange(values []string) ParameterRange {
	return ParameterRange{Kind: ParamDiscrete, DiscreteValues: values}
}

// Validate checks the range's invariants per its kind.
func (r ParameterRange) Validate() error {
	switch r.Kind {
	case ParamInteger:
		if r.IntStep <= 0 {
			return quanterrors.NewConfigError("range.step", "integer step must be positive", nil)
		}
		if r.IntMax < r.IntMin {
			return quanterrors.NewConfigError("range.max", "integer max must be >= min", nil)
		}
		if r.IntStep > r.IntMax-r.IntMin && r.IntMax != r.IntMin {
			return quanterrors.NewConfigError("range.step", "integer step must be <= (max-min)", nil)
		}
	case ParamDecimal:
		if !r.DecStep.IsPositive() {
			return quanterrors.NewConfigError("range.step", "decimal step must be positive", nil)
		}
		if r.DecMax.LessThan(r.DecMin) {
			return quanterrors.NewConfigError("range.max", "decimal max must be >= min", nil)
		}
		span := r.DecMax.Sub(r.DecMin)
		if !r.DecMin.Equal(r.DecMax) && r.DecStep.GreaterThan(span) {
			return quanterrors.NewConfigError("range.step", "decimal step must be <= (max-min)", nil)
		}
	case ParamBoolean:
		// no invariants beyond the fixed 2-value domain
	case ParamDiscrete:
		if len(r.DiscreteValues) == 0 {
			return quanterrors.NewConfigError("range.discrete", "discrete range must be non-empty", nil)
		}
	default:
		return quanterrors.NewConfigError("range.kind", fmt.Sprintf("unknown range kind %q", r.Kind), nil)
	}
	return nil
}

// Count returns the number of distinct values in the range.
func (r ParameterRange) Count() (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	switch r.Kind {
	case ParamInteger:
		return (r.IntMax-r.IntMin)/r.IntStep + 1, nil
	case ParamDecimal:
		span := r.DecMax.Sub(r.DecMin)
		steps := span.Div(r.DecStep)
		return steps.IntPart() + 1, nil
	case ParamBoolean:
		return 2, nil
	case ParamDiscrete:
		return int64(len(r.DiscreteValues)), nil
	default:
		return 0, fmt.Errorf("core: unknown range kind %q", r.Kind)
	}
}

// Values enumerates every value in the range, in ascending declaration
// order (the order the combination generator relies on for its Cartesian
// traversal).
func (r ParameterRange) Values() ([]ParameterValue, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Kind {
	case ParamInteger:
		var out []ParameterValue
		for v := r.IntMin; v <= r.IntMax; v += r.IntStep {
			out = append(out, IntParam(v))
		}
		return out, nil
	case ParamDecimal:
		count, err := r.Count()
		if err != nil {
			return nil, err
		}
		out := make([]ParameterValue, 0, count)
		for i := int64(0); i < count; i++ {
			v := r.DecMin.Add(r.DecStep.Mul(DecimalFromInt(i)))
			out = append(out, DecimalParam(v))
		}
		// The inclusive upper bound lands exactly on DecMax when the span
		// divides evenly, instead of drifting from repeated Decimal adds.
		if count > 0 && r.DecMax.Sub(r.DecMin).Mod(r.DecStep).IsZero() {
			out[count-1] = DecimalParam(r.DecMax)
		}
		return out, nil
	case ParamBoolean:
		return []ParameterValue{BoolParam(false), BoolParam(true)}, nil
	case ParamDiscrete:
		out := make([]ParameterValue, len(r.DiscreteValues))
		for i, s := range r.DiscreteValues {
			out[i] = DiscreteParam(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("core: unknown range kind %q", r.Kind)
	}
}

// StrategyParameter describes one named, typed knob a strategy exposes.
type StrategyParameter struct {
	Name     string
	Type     ParamKind
	Default  ParameterValue
	Optimize bool
	Range    *ParameterRange
}

// Validate checks the declared invariants: if Optimize then Range must be
// present, and Type/Default.Kind/Range.Kind must all agree.
func (p StrategyParameter) Validate() error {
	if p.Type != p.Default.Kind {
		return quanterrors.NewConfigError(p.Name, "parameter type does not match default value tag", nil)
	}
	if p.Optimize {
		if p.Range == nil {
			return quanterrors.NewConfigError(p.Name, "optimize=true requires a range", nil)
		}
		if p.Range.Kind != p.Type {
			return quanterrors.NewConfigError(p.Name, "range tag does not match parameter type", nil)
		}
		if err := p.Range.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParameterSet maps parameter name to value. Cloneable: each generated set
// during combination generation is independently owned.
type ParameterSet map[string]ParameterValue

// Clone returns an independent copy.
func (s ParameterSet) Clone() ParameterSet {
	out := make(ParameterSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
