package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/core/model"
	"github.com/YuminosukeSato/titanicrf/pkg/log"
	"github.com/YuminosukeSato/titanicrf/sklearn/ensemble"
)

// writeTables writes a train table of nTrain labelled passengers and a test
// table of nTest unlabelled ones. Every seventh passenger has no age.
func writeTables(t *testing.T, dir string, nTrain, nTest int) (trainPath, testPath string) {
	t.Helper()
	line := func(i int) (sex int, row string) {
		sex = (i * 7 / 3) % 2
		age := fmt.Sprintf("%d", 18+(i*13)%50)
		if i%7 == 0 {
			age = ""
		}
		pclass := 1 + i%3
		fare := 10 + float64(sex)*40 + float64((i*11)%17)
		return sex, fmt.Sprintf("%d,%d,%s,%.2f", pclass, sex, age, fare)
	}

	var train strings.Builder
	train.WriteString("PassengerId,Survived,Pclass,Sex,Age,Fare\n")
	for i := 1; i <= nTrain; i++ {
		sex, row := line(i)
		survived := sex
		if i%9 == 0 {
			survived = 1 - sex
		}
		fmt.Fprintf(&train, "%d,%d,%s\n", i, survived, row)
	}
	var test strings.Builder
	test.WriteString("PassengerId,Pclass,Sex,Age,Fare\n")
	for i := nTrain + 1; i <= nTrain+nTest; i++ {
		_, row := line(i)
		fmt.Fprintf(&test, "%d,%s\n", i, row)
	}

	trainPath = filepath.Join(dir, "train.csv")
	testPath = filepath.Join(dir, "test.csv")
	require.NoError(t, os.WriteFile(trainPath, []byte(train.String()), 0o644))
	require.NoError(t, os.WriteFile(testPath, []byte(test.String()), 0o644))
	return trainPath, testPath
}

func runConfig(dir, trainPath, testPath string) Config {
	cfg := smallConfig()
	cfg.Features = nil
	cfg.TrainPath = trainPath
	cfg.TestPath = testPath
	cfg.ROCPlotPath = filepath.Join(dir, "out", "ROC.png")
	cfg.ImportancePlotPath = filepath.Join(dir, "out", "RandomForest.svg")
	cfg.SubmissionPath = filepath.Join(dir, "out", "submissions.csv")
	cfg.ProbabilitiesPath = filepath.Join(dir, "out", "probabilities.csv")
	cfg.ModelDir = filepath.Join(dir, "models")
	return cfg
}

func TestRun(t *testing.T) {
	quietWarnings(t)
	dir := t.TempDir()
	trainPath, testPath := writeTables(t, dir, 60, 12)
	cfg := runConfig(dir, trainPath, testPath)
	provider, logs := log.NewTestLoggerProvider(log.LevelInfo)
	prev := log.SetProvider(provider)
	t.Cleanup(func() { log.SetProvider(prev) })

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.True(t, logs.ContainsMessage("Fold evaluated"))
	assert.True(t, logs.ContainsField(log.FoldKey, float64(3)))
	assert.True(t, logs.ContainsField(log.PhaseKey, log.PhaseInference))
	assert.True(t, logs.ContainsField(log.PathKey, cfg.SubmissionPath))

	assert.Equal(t, 60, rep.TrainRows)
	assert.Equal(t, 12, rep.TestRows)
	assert.Greater(t, rep.Imputed, 0)
	assert.Equal(t, []string{"Pclass", "Sex", "Age", "Fare"}, rep.Config.Features)
	assert.Equal(t, []string{cfg.ROCPlotPath, cfg.ImportancePlotPath, cfg.SubmissionPath, cfg.ProbabilitiesPath}, rep.Written)
	assert.Greater(t, rep.OOFAUC, 0.7)
	assert.LessOrEqual(t, rep.Survivors(), 12)
	assert.InDelta(t, float64(rep.Survivors())/12, rep.SurvivalRate(), 1e-12)

	for _, p := range rep.Written {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Greater(t, info.Size(), int64(0), p)
	}

	data, err := os.ReadFile(cfg.SubmissionPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 13)
	assert.Equal(t, "PassengerId,Survived", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "61,"))
	for _, l := range lines[1:] {
		assert.Regexp(t, `^\d+,[01]$`, l)
	}

	t.Run("fold models reload", func(t *testing.T) {
		rf := ensemble.NewRandomForestClassifier()
		require.NoError(t, model.LoadModel(rf, filepath.Join(cfg.ModelDir, "fold_1.gob")))
		pred, err := rf.Predict(mat.NewDense(1, 4, []float64{0, 0, 0, 0}))
		require.NoError(t, err)
		r, _ := pred.Dims()
		assert.Equal(t, 1, r)
	})
}

func TestRun_CombinedTable(t *testing.T) {
	quietWarnings(t)
	dir := t.TempDir()
	trainPath, _ := writeTables(t, dir, 45, 0)
	cfg := runConfig(dir, trainPath, "")
	cfg.Features = []string{"Sex", "Fare"}
	cfg.Scaler = "minmax"

	rep, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.TestRows)
	assert.Empty(t, rep.Submission)
	assert.Equal(t, []string{cfg.ROCPlotPath, cfg.ImportancePlotPath}, rep.Written)
	_, err = os.Stat(cfg.SubmissionPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_Errors(t *testing.T) {
	quietWarnings(t)
	dir := t.TempDir()
	trainPath, testPath := writeTables(t, dir, 45, 5)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid config", func(c *Config) { c.NFolds = 0 }},
		{"missing file", func(c *Config) { c.TrainPath = filepath.Join(dir, "nope.csv") }},
		{"unknown feature", func(c *Config) { c.Features = []string{"Cabin"} }},
		{"missing values without imputation", func(c *Config) { c.Impute = false }},
		{"unknown label", func(c *Config) { c.LabelColumn = "Alive" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := runConfig(dir, trainPath, testPath)
			tt.mutate(&cfg)
			_, err := Run(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
