package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegerRangeCount(t *testing.T) {
	r := IntegerRange(5, 5, 1)
	count, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	r = IntegerRange(5, 15, 5)
	count, err = r.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	vals, err := r.Values()
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, int64(5), vals[0].IntVal)
	assert.Equal(t, int64(15), vals[2].IntVal)
}

func TestIntegerRangeInvalidStep(t *testing.T) {
	r := IntegerRange(0, 10, 0)
	_, err := r.Count()
	assert.Error(t, err)

	r = IntegerRange(0, 10, 20)
	_, err = r.Count()
	assert.Error(t, err)
}

func TestDecimalRangeInclusiveUpperBound(t *testing.T) {
	r := DecimalRange(DecimalFromInt(1), DecimalFromInt(2), DecimalFromFloat(0.5))
	count, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	vals, err := r.Values()
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.True(t, vals[len(vals)-1].DecimalVal.Equal(DecimalFromInt(2)), "last value must equal max exactly")
}

func TestBooleanRange(t *testing.T) {
	r := BooleanRange()
	count, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	vals, err := r.Values()
	require.NoError(t, err)
	assert.Len(t, vals, 2)
}

func TestDiscreteRange(t *testing.T) {
	r := DiscreteRange([]string{"a", "b", "c"})
	count, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	empty := DiscreteRange(nil)
	_, err = empty.Count()
	assert.Error(t, err)
}

func TestParameterSetClone(t *testing.T) {
	s := ParameterSet{"fast": IntParam(5)}
	clone := s.Clone()
	clone["fast"] = IntParam(10)
	assert.Equal(t, int64(5), s["fast"].IntVal)
	assert.Equal(t, int64(10), clone["fast"].IntVal)
}

func TestStrategyParameterValidate(t *testing.T) {
	rng := IntegerRange(1, 10, 1)
	p := StrategyParameter{Name: "fast", Type: ParamInteger, Default: IntParam(3), Optimize: true, Range: &rng}
	assert.NoError(t, p.Validate())

	bad := StrategyParameter{Name: "fast", Type: ParamInteger, Default: IntParam(3), Optimize: true, Range: nil}
	assert.Error(t, bad.Validate())

	mismatched := StrategyParameter{Name: "fast", Type: ParamDecimal, Default: IntParam(3)}
	assert.Error(t, mismatched.Validate())
}
