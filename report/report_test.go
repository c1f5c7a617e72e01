package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/metrics"
)

type fakeResult struct {
	rocs []metrics.ROC
}

func (f fakeResult) FoldROCs() []metrics.ROC { return f.rocs }

func (f fakeResult) MeanCurve() (metrics.MeanROC, error) {
	return metrics.MeanROCCurve(f.rocs, 100)
}

func (f fakeResult) StdAUC() float64 { return 0.05 }

func (f fakeResult) ImportanceTable() ([]string, []float64) {
	return []string{"Sex", "Fare", "Pclass", "Age"}, []float64{0.4, 0.3, 0.2, 0.1}
}

func newFake(t *testing.T) fakeResult {
	t.Helper()
	y := mat.NewVecDense(6, []float64{0, 0, 0, 1, 1, 1})
	a, err := metrics.ROCCurve(y, mat.NewVecDense(6, []float64{0.1, 0.3, 0.6, 0.4, 0.8, 0.9}))
	require.NoError(t, err)
	b, err := metrics.ROCCurve(y, mat.NewVecDense(6, []float64{0.2, 0.1, 0.3, 0.7, 0.6, 0.9}))
	require.NoError(t, err)
	return fakeResult{rocs: []metrics.ROC{a, b}}
}

func assertNonEmptyFile(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPlotROC(t *testing.T) {
	src := newFake(t)
	dir := t.TempDir()

	png := filepath.Join(dir, "plots", "ROC.png")
	require.NoError(t, PlotROC(src, png))
	assertNonEmptyFile(t, png)

	svg := filepath.Join(dir, "ROC.svg")
	require.NoError(t, PlotROC(src, svg))
	assertNonEmptyFile(t, svg)

	assert.Error(t, PlotROC(src, filepath.Join(dir, "ROC.unknown")))
	assert.Error(t, PlotROC(fakeResult{}, filepath.Join(dir, "empty.png")))
}

func TestPlotFeatureImportance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "RandomForest.png")
	require.NoError(t, PlotFeatureImportance(newFake(t), path))
	assertNonEmptyFile(t, path)
}
