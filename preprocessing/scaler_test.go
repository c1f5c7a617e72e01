package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

func TestStandardScaler_FitTransform(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	// constant column keeps scale 1
	assert.Equal(t, 1.0, s.Scale[1])

	col := mat.Col(nil, 0, out)
	sum := 0.0
	for _, v := range col {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-12)
	for i := 0; i < 4; i++ {
		assert.Equal(t, 0.0, out.At(i, 1))
	}
}

func TestStandardScaler_TrainStatsAppliedToTest(t *testing.T) {
	train := mat.NewDense(2, 1, []float64{0, 2})
	test := mat.NewDense(1, 1, []float64{4})

	s := NewStandardScalerDefault()
	require.NoError(t, s.Fit(train))
	out, err := s.Transform(test)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, out.At(0, 0), 1e-12)
}

func TestStandardScaler_InverseTransform(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, -1, 5, 0, 9, 7})
	s := NewStandardScalerDefault()
	scaled, err := s.FitTransform(X)
	require.NoError(t, err)

	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-10))
}

func TestStandardScaler_Errors(t *testing.T) {
	s := NewStandardScalerDefault()

	_, err := s.Transform(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	_, err = s.Transform(mat.NewDense(1, 3, nil))
	var dim *errors.DimensionError
	require.True(t, errors.As(err, &dim))
	assert.Equal(t, 2, dim.Expected)
	assert.Equal(t, 3, dim.Got)

	err = NewStandardScalerDefault().Fit(mat.NewDense(2, 1, []float64{1, math.NaN()}))
	var nonFinite *errors.NonFiniteError
	assert.True(t, errors.As(err, &nonFinite))
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, 5,
		5, 5,
		10, 5,
	})

	m := NewMinMaxScalerDefault()
	out, err := m.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 0.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5, out.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, out.At(2, 0), 1e-12)
	assert.InDelta(t, 0.0, out.At(1, 1), 1e-12)

	back, err := m.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-10))

	bad := NewMinMaxScaler([2]float64{1, 0})
	assert.Error(t, bad.Fit(X))
}

func TestNewScaler(t *testing.T) {
	s, err := NewScaler("standard")
	require.NoError(t, err)
	assert.IsType(t, &StandardScaler{}, s)

	s, err = NewScaler("MinMax")
	require.NoError(t, err)
	assert.IsType(t, &MinMaxScaler{}, s)

	_, err = NewScaler("robust")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
