package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5, cfg.NFolds)
	assert.Equal(t, 5, cfg.FoldSeed)
	assert.True(t, cfg.Shuffle)
	assert.Equal(t, 1750, cfg.NEstimators)
	assert.Equal(t, 7, cfg.MaxDepth)
	assert.Equal(t, 6, cfg.MinSamplesSplit)
	assert.Equal(t, 6, cfg.MinSamplesLeaf)
	assert.Equal(t, "auto", cfg.MaxFeatures)
	assert.True(t, cfg.OOBScore)
	assert.Equal(t, int64(42), cfg.RandomState)
	assert.Equal(t, 0.5, cfg.Threshold)

	params := cfg.NewForest().GetParams()
	assert.Equal(t, 1750, params["n_estimators"])
}

func TestConfig_ApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyPreset("single-best"))
	assert.Equal(t, 1100, cfg.NEstimators)
	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, 4, cfg.MinSamplesSplit)
	assert.Equal(t, 5, cfg.MinSamplesLeaf)

	require.NoError(t, cfg.ApplyPreset("leaderboard"))
	assert.Equal(t, 1750, cfg.NEstimators)

	assert.Error(t, cfg.ApplyPreset("huge"))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		param  string
	}{
		{"missing train path", func(c *Config) { c.TrainPath = "" }, "train"},
		{"missing label", func(c *Config) { c.LabelColumn = "" }, "label"},
		{"missing id", func(c *Config) { c.IDColumn = "" }, "id"},
		{"one fold", func(c *Config) { c.NFolds = 1 }, "folds"},
		{"no trees", func(c *Config) { c.NEstimators = 0 }, "n_estimators"},
		{"threshold above one", func(c *Config) { c.Threshold = 1.5 }, "threshold"},
		{"tiny roc grid", func(c *Config) { c.ROCPoints = 1 }, "roc_points"},
		{"unknown scaler", func(c *Config) { c.Scaler = "robust" }, "scaler"},
		{"bad max features", func(c *Config) { c.MaxFeatures = "half" }, "max_features"},
		{"bad criterion", func(c *Config) { c.Criterion = "mse" }, "criterion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var vErr *errors.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.param, vErr.ParamName)
		})
	}
}
