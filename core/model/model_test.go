package model

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("RandomForestClassifier", "Predict")
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Predict", nf.Method)

	s.SetFitted(4, 891)
	require.NoError(t, s.RequireFitted("RandomForestClassifier", "Predict"))
	nFeatures, nSamples := s.GetDimensions()
	assert.Equal(t, 4, nFeatures)
	assert.Equal(t, 891, nSamples)

	assert.NoError(t, s.CheckFeatures("Predict", mat.NewDense(2, 4, nil)))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(s.CheckFeatures("Predict", mat.NewDense(2, 3, nil)), &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)

	s.Reset()
	assert.False(t, s.IsFitted())
}

func TestBaseEstimator(t *testing.T) {
	var e BaseEstimator
	assert.False(t, e.IsFitted())
	e.SetFitted()
	assert.True(t, e.IsFitted())
	e.Reset()
	assert.False(t, e.IsFitted())
}

type foldSummary struct {
	Fold  int
	AUC   float64
	State StateManager
}

func TestPersistence(t *testing.T) {
	in := foldSummary{Fold: 2, AUC: 0.87}
	in.State.SetFitted(4, 712)

	t.Run("writer", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, SaveModelToWriter(&in, &buf))
		var out foldSummary
		require.NoError(t, LoadModelFromReader(&out, &buf))
		assert.Equal(t, in.Fold, out.Fold)
		assert.Equal(t, in.AUC, out.AUC)
		assert.True(t, out.State.IsFitted())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "models", "fold_2.gob")
		require.NoError(t, SaveModel(&in, path))
		var out foldSummary
		require.NoError(t, LoadModel(&out, path))
		f, n := out.State.GetDimensions()
		assert.Equal(t, 4, f)
		assert.Equal(t, 712, n)
	})

	t.Run("missing file", func(t *testing.T) {
		var out foldSummary
		assert.Error(t, LoadModel(&out, filepath.Join(t.TempDir(), "nope.gob")))
	})
}
