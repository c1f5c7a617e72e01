package tree

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// passengers: Sex (1 = female), Pclass, Fare. Women and first class survive.
func passengers() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(8, 3, []float64{
		0, 3, 7.25,
		0, 3, 8.05,
		0, 2, 13.0,
		0, 1, 51.86,
		1, 3, 7.92,
		1, 2, 26.0,
		1, 1, 71.28,
		1, 1, 53.1,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 1, 1, 1, 1, 1})
	return X, y
}

func fitTree(t *testing.T, X, y mat.Matrix, opts ...Option) *DecisionTreeClassifier {
	t.Helper()
	dt := NewDecisionTreeClassifier(opts...)
	require.NoError(t, dt.Fit(X, y))
	return dt
}

func assertProbaRows(t *testing.T, proba mat.Matrix) {
	t.Helper()
	r, c := proba.Dims()
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, proba)
		assert.InDelta(t, 1.0, floats.Sum(row), 1e-9, "row %d", i)
		for j := 0; j < c; j++ {
			assert.GreaterOrEqual(t, row[j], 0.0)
			assert.LessOrEqual(t, row[j], 1.0)
		}
	}
}

func TestDecisionTreeClassifier_FitPredict(t *testing.T) {
	for _, criterion := range []string{"gini", "entropy"} {
		t.Run(criterion, func(t *testing.T) {
			X, y := passengers()
			dt := fitTree(t, X, y, WithCriterion(criterion), WithMaxDepth(4))

			assert.Equal(t, 1.0, dt.Score(X, y))
			assert.Equal(t, []int{0, 1}, dt.Classes())

			pred, err := dt.Predict(mat.NewDense(2, 3, []float64{
				0, 3, 9.5, // man, third class
				1, 1, 80, // woman, first class
			}))
			require.NoError(t, err)
			assert.Equal(t, 0.0, pred.At(0, 0))
			assert.Equal(t, 1.0, pred.At(1, 0))

			proba, err := dt.PredictProba(X)
			require.NoError(t, err)
			r, c := proba.Dims()
			assert.Equal(t, 8, r)
			assert.Equal(t, 2, c)
			assertProbaRows(t, proba)
		})
	}
}

func TestDecisionTreeClassifier_XOR(t *testing.T) {
	// no single split separates the classes
	X := mat.NewDense(8, 2, []float64{
		0.0, 0.0,
		0.0, 0.1,
		0.1, 1.0,
		0.0, 0.9,
		1.0, 0.0,
		0.9, 0.0,
		1.0, 1.0,
		0.9, 0.9,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 1, 1, 1, 1, 0, 0})

	dt := fitTree(t, X, y, WithMaxDepth(5))
	assert.Equal(t, 1.0, dt.Score(X, y))
}

func TestDecisionTreeClassifier_Multiclass(t *testing.T) {
	// embarkation port from fare band
	X := mat.NewDense(9, 1, []float64{5, 6, 7, 20, 22, 25, 60, 70, 80})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	dt := fitTree(t, X, y)
	assert.Equal(t, 3, dt.nClasses)
	assert.Equal(t, 1.0, dt.Score(X, y))

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	assertProbaRows(t, proba)
	for i := 0; i < 9; i++ {
		assert.Equal(t, int(y.At(i, 0)), floats.MaxIdx(mat.Row(nil, i, proba)))
	}
}

func TestDecisionTreeClassifier_FeatureImportance(t *testing.T) {
	// only Sex matters; the other two columns are shuffled noise
	X := mat.NewDense(8, 3, []float64{
		0, 1, 3,
		0, 3, 1,
		0, 2, 2,
		0, 1, 1,
		1, 3, 3,
		1, 1, 2,
		1, 2, 1,
		1, 3, 2,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	imp := fitTree(t, X, y).GetFeatureImportances()
	require.Len(t, imp, 3)
	assert.InDelta(t, 1.0, floats.Sum(imp), 1e-9)
	assert.Equal(t, 0, floats.MaxIdx(imp))
	assert.InDelta(t, 1.0, imp[0], 1e-9)
}

func TestDecisionTreeClassifier_Limits(t *testing.T) {
	X := mat.NewDense(16, 2, nil)
	y := mat.NewDense(16, 1, nil)
	for i := 0; i < 16; i++ {
		X.Set(i, 0, float64(i))
		X.Set(i, 1, float64(i%4))
		y.Set(i, 0, float64(i%2))
	}

	t.Run("max depth", func(t *testing.T) {
		dt := fitTree(t, X, y, WithMaxDepth(2))
		assert.LessOrEqual(t, dt.GetDepth(), 2)
		assert.LessOrEqual(t, dt.GetNLeaves(), 4)
	})

	t.Run("min samples", func(t *testing.T) {
		dt := fitTree(t, X, y, WithMinSamplesSplit(6), WithMinSamplesLeaf(3))
		// every leaf holds at least 3 of the 16 rows
		assert.LessOrEqual(t, dt.GetNLeaves(), 5)
	})
}

func TestDecisionTreeClassifier_GetSetParams(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	params := dt.GetParams()
	assert.Equal(t, "gini", params["criterion"])
	assert.Equal(t, 2, params["min_samples_split"])
	assert.Equal(t, 1, params["min_samples_leaf"])

	require.NoError(t, dt.SetParams(map[string]interface{}{
		"criterion":         "entropy",
		"max_depth":         7,
		"min_samples_split": 6,
		"min_samples_leaf":  6,
	}))
	assert.Equal(t, "entropy", dt.criterion)
	assert.Equal(t, 7, dt.maxDepth)
	assert.Equal(t, 6, dt.minSamplesSplit)
	assert.Equal(t, 6, dt.minSamplesLeaf)
}

func TestDecisionTreeClassifier_NotFitted(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	X := mat.NewDense(1, 3, []float64{1, 3, 7.25})

	_, err := dt.Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	_, err = dt.PredictProba(X)
	assert.True(t, errors.As(err, &nf))

	_, err = dt.FeatureImportances()
	assert.Error(t, err)
}


func TestDecisionTreeClassifier_FitSample(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 2})

	dt := NewDecisionTreeClassifier()
	// class 2 never sampled but still gets a probability column
	require.NoError(t, dt.FitSample(X, y, []int{0, 0, 1, 3, 3, 4}))
	assert.Equal(t, []int{0, 1, 2}, dt.Classes())

	proba, err := dt.PredictProba(X)
	require.NoError(t, err)
	_, cols := proba.Dims()
	assert.Equal(t, 3, cols)
	assert.Equal(t, 0.0, proba.At(5, 2))
	assert.Equal(t, 1.0, proba.At(0, 0))
	assert.Equal(t, 1.0, proba.At(5, 1))

	err = dt.FitSample(X, y, []int{0, 6})
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestDecisionTreeClassifier_MaxFeaturesDeterministic(t *testing.T) {
	X := mat.NewDense(40, 4, nil)
	y := mat.NewDense(40, 1, nil)
	for i := 0; i < 40; i++ {
		X.Set(i, 0, float64(i%7))
		X.Set(i, 1, float64((i*3)%11))
		X.Set(i, 2, float64(i%5))
		X.Set(i, 3, float64(i))
		if (i%7)+(i%5) > 5 {
			y.Set(i, 0, 1)
		}
	}

	fit := func() []float64 {
		dt := NewDecisionTreeClassifier(WithMaxFeatures(2), WithRandomState(7), WithMaxDepth(4))
		require.NoError(t, dt.Fit(X, y))
		proba, err := dt.PredictProba(X)
		require.NoError(t, err)
		return mat.Col(nil, 1, proba)
	}
	assert.Equal(t, fit(), fit())
}

func TestDecisionTreeClassifier_InvalidParams(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	assert.Error(t, NewDecisionTreeClassifier(WithCriterion("log_loss")).Fit(X, y))
	assert.Error(t, NewDecisionTreeClassifier(WithMinSamplesSplit(1)).Fit(X, y))
	assert.Error(t, NewDecisionTreeClassifier().Fit(X, mat.NewDense(2, 1, []float64{0, 0.5})))
	assert.Error(t, NewDecisionTreeClassifier().SetParams(map[string]interface{}{"splitter": "best"}))
	assert.Error(t, NewDecisionTreeClassifier().SetParams(map[string]interface{}{"max_depth": "3"}))
}

func TestDecisionTreeClassifier_SingleLeaf(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewDense(3, 1, []float64{1, 1, 1})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))
	assert.Equal(t, 1, dt.GetNLeaves())
	assert.Equal(t, 0, dt.GetDepth())
	assert.Equal(t, []float64{0, 0}, dt.GetFeatureImportances())
}

func TestDecisionTreeClassifier_Gob(t *testing.T) {
	X := mat.NewDense(6, 2, []float64{0, 0, 0, 1, 1, 0, 2, 2, 2, 3, 3, 2})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	dt := NewDecisionTreeClassifier(WithMaxDepth(3), WithCriterion("entropy"))
	require.NoError(t, dt.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(dt))

	loaded := NewDecisionTreeClassifier()
	require.NoError(t, gob.NewDecoder(&buf).Decode(loaded))
	assert.True(t, loaded.IsFitted())
	assert.Equal(t, dt.GetParams(), loaded.GetParams())

	want, err := dt.PredictProba(X)
	require.NoError(t, err)
	got, err := loaded.PredictProba(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
