package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/titanicrf/core/model"
	"github.com/YuminosukeSato/titanicrf/metrics"
	"github.com/YuminosukeSato/titanicrf/pkg/errors"
	"github.com/YuminosukeSato/titanicrf/pkg/log"
	"github.com/YuminosukeSato/titanicrf/sklearn/model_selection"
)

// FoldResult is what one cross-validation fold produced.
type FoldResult struct {
	// Fold is 1-based.
	Fold         int
	TrainIndices []int
	ValidIndices []int

	OOBScore      float64
	TrainAUC      float64
	ValidAUC      float64
	ValidAccuracy float64
	ValidLogLoss  float64
	ROC           metrics.ROC

	// ValidProba is the survival probability of each validation row.
	ValidProba []float64
	// TestProba is n_test x 2: columns Fold_i_Prob_0 and Fold_i_Prob_1.
	TestProba   *mat.Dense
	Importances []float64
	Duration    time.Duration
}

// CVResult collects the folds of a cross-validation run.
type CVResult struct {
	FeatureNames []string
	Folds        []FoldResult
	// OOFProba is the survival probability of every training row, predicted
	// by the fold in which the row was held out.
	OOFProba []float64
	Labels   []float64
	NTest    int
	// ROCPoints is the FPR grid size used by MeanCurve.
	ROCPoints int
}

// FeatureImportance is the importance of one feature across folds.
type FeatureImportance struct {
	Name    string
	Mean    float64
	PerFold []float64
}

// CrossValidate fits a fresh forest on the training rows of every stratified
// fold, evaluates it on the held-out rows and predicts Xtest. Xtest may be nil.
// The context is checked before each fold.
func CrossValidate(ctx context.Context, X, y, Xtest *mat.Dense, cfg Config) (*CVResult, error) {
	n, nFeatures := X.Dims()
	if yr, _ := y.Dims(); yr != n {
		return nil, errors.NewDimensionError("pipeline.CrossValidate", n, yr, 0)
	}
	nTest := 0
	if Xtest != nil {
		var c int
		nTest, c = Xtest.Dims()
		if c != nFeatures {
			return nil, errors.NewDimensionError("pipeline.CrossValidate", nFeatures, c, 1)
		}
	}

	splitter := model_selection.NewStratifiedKFold(cfg.NFolds, cfg.Shuffle, cfg.FoldSeed)
	folds, err := splitter.Split(X, y)
	if err != nil {
		return nil, err
	}

	names := cfg.Features
	if len(names) != nFeatures {
		names = make([]string, nFeatures)
		for j := range names {
			names[j] = fmt.Sprintf("f%d", j)
		}
	}

	logger := log.GetLoggerWithName("pipeline").With(log.NFoldsKey, len(folds))
	result := &CVResult{
		FeatureNames: names,
		Folds:        make([]FoldResult, 0, len(folds)),
		OOFProba:     make([]float64, n),
		Labels:       mat.Col(nil, 0, y),
		NTest:        nTest,
		ROCPoints:    cfg.ROCPoints,
	}

	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "cross-validation stopped before fold %d", i+1)
		}
		fr, err := runFold(i+1, fold, X, y, Xtest, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i+1)
		}
		for k, idx := range fold.TestIndices {
			result.OOFProba[idx] = fr.ValidProba[k]
		}
		result.Folds = append(result.Folds, fr)

		logger.Info("Fold evaluated",
			log.PhaseKey, log.PhaseValidation,
			log.FoldKey, fr.Fold,
			log.TrainSizeKey, len(fr.TrainIndices),
			log.ValidSizeKey, len(fr.ValidIndices),
			log.OOBScoreKey, fr.OOBScore,
			log.TrainAUCKey, fr.TrainAUC,
			log.AUCKey, fr.ValidAUC,
			log.AccuracyKey, fr.ValidAccuracy,
			log.LossKey, fr.ValidLogLoss,
			log.DurationMsKey, fr.Duration.Milliseconds(),
		)
	}

	logger.Info("Cross-validation finished",
		log.OOBScoreKey, result.MeanOOBScore(),
		log.AUCKey, result.MeanAUC(),
		log.AUCStdKey, result.StdAUC(),
	)
	return result, nil
}

func runFold(foldNo int, fold model_selection.Fold, X, y, Xtest *mat.Dense, cfg Config) (FoldResult, error) {
	start := time.Now()
	fr := FoldResult{
		Fold:         foldNo,
		TrainIndices: fold.TrainIndices,
		ValidIndices: fold.TestIndices,
	}

	XTrain := model_selection.Subset(X, fold.TrainIndices)
	yTrain := model_selection.Subset(y, fold.TrainIndices)
	XValid := model_selection.Subset(X, fold.TestIndices)
	yValid := model_selection.Subset(y, fold.TestIndices)

	forest := cfg.NewForest()
	if err := forest.Fit(XTrain, yTrain); err != nil {
		return fr, err
	}
	positive, err := positiveColumn(forest.Classes())
	if err != nil {
		return fr, err
	}

	if cfg.OOBScore {
		if fr.OOBScore, err = forest.OOBScore(); err != nil {
			return fr, err
		}
	}

	trainProba, err := survival(forest, XTrain, positive)
	if err != nil {
		return fr, err
	}
	if fr.TrainAUC, err = metrics.AUC(colVec(yTrain), mat.NewVecDense(len(trainProba), trainProba)); err != nil {
		return fr, err
	}

	if fr.ValidProba, err = survival(forest, XValid, positive); err != nil {
		return fr, err
	}
	yv := colVec(yValid)
	pv := mat.NewVecDense(len(fr.ValidProba), fr.ValidProba)
	if fr.ROC, err = metrics.ROCCurve(yv, pv); err != nil {
		return fr, err
	}
	fr.ValidAUC = fr.ROC.AUC
	if fr.ValidAccuracy, err = metrics.Accuracy(yv, threshold(fr.ValidProba, cfg.Threshold)); err != nil {
		return fr, err
	}
	if fr.ValidLogLoss, err = metrics.BinaryLogLoss(yv, pv); err != nil {
		return fr, err
	}

	if Xtest != nil {
		proba, err := forest.PredictProba(Xtest)
		if err != nil {
			return fr, err
		}
		fr.TestProba = mat.DenseCopyOf(proba)
	}
	if fr.Importances, err = forest.FeatureImportances(); err != nil {
		return fr, err
	}

	if cfg.ModelDir != "" {
		path := filepath.Join(cfg.ModelDir, fmt.Sprintf("fold_%d.gob", foldNo))
		if err := model.SaveModel(forest, path); err != nil {
			return fr, errors.Wrapf(err, "save fold model to %s", path)
		}
	}

	fr.Duration = time.Since(start)
	return fr, nil
}

// positiveColumn returns the probability column of class 1.
func positiveColumn(classes []int) (int, error) {
	if len(classes) != 2 || classes[0] != 0 || classes[1] != 1 {
		return 0, errors.NewValueError("pipeline", fmt.Sprintf("training labels must contain both 0 and 1, got classes %v", classes))
	}
	return 1, nil
}

func survival(m model.Classifier, X mat.Matrix, col int) ([]float64, error) {
	proba, err := m.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, col, proba), nil
}

func colVec(m *mat.Dense) *mat.VecDense {
	r, _ := m.Dims()
	return mat.NewVecDense(r, mat.Col(nil, 0, m))
}

func threshold(proba []float64, t float64) *mat.VecDense {
	out := mat.NewVecDense(len(proba), nil)
	for i, p := range proba {
		if p >= t {
			out.SetVec(i, 1)
		}
	}
	return out
}

// ProbabilityColumns returns the per-fold test probabilities side by side,
// with column names Fold_i_Prob_0 and Fold_i_Prob_1.
func (r *CVResult) ProbabilityColumns() ([]string, *mat.Dense) {
	if r.NTest == 0 || len(r.Folds) == 0 {
		return nil, nil
	}
	names := make([]string, 0, 2*len(r.Folds))
	out := mat.NewDense(r.NTest, 2*len(r.Folds), nil)
	for k, f := range r.Folds {
		for c := 0; c < 2; c++ {
			names = append(names, fmt.Sprintf("Fold_%d_Prob_%d", f.Fold, c))
			out.SetCol(2*k+c, mat.Col(nil, c, f.TestProba))
		}
	}
	return names, out
}

// TestProbability returns the survival probability of every test row,
// averaged over folds.
func (r *CVResult) TestProbability() []float64 {
	out := make([]float64, r.NTest)
	if r.NTest == 0 || len(r.Folds) == 0 {
		return out
	}
	for _, f := range r.Folds {
		floats.Add(out, mat.Col(nil, 1, f.TestProba))
	}
	floats.Scale(1/float64(len(r.Folds)), out)
	return out
}

// MeanOOBScore is the average out-of-bag accuracy of the fold forests.
func (r *CVResult) MeanOOBScore() float64 {
	return r.mean(func(f FoldResult) float64 { return f.OOBScore })
}

// AUCs returns the validation AUC of every fold.
func (r *CVResult) AUCs() []float64 {
	out := make([]float64, len(r.Folds))
	for i, f := range r.Folds {
		out[i] = f.ValidAUC
	}
	return out
}

// MeanAUC is the average validation AUC.
func (r *CVResult) MeanAUC() float64 {
	return r.mean(func(f FoldResult) float64 { return f.ValidAUC })
}

// StdAUC is the population standard deviation of the validation AUCs.
func (r *CVResult) StdAUC() float64 {
	if len(r.Folds) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(r.AUCs(), nil)
	return std
}

func (r *CVResult) mean(f func(FoldResult) float64) float64 {
	if len(r.Folds) == 0 {
		return 0
	}
	vals := make([]float64, len(r.Folds))
	for i, fold := range r.Folds {
		vals[i] = f(fold)
	}
	return stat.Mean(vals, nil)
}

// FoldROCs returns the validation ROC curve of every fold.
func (r *CVResult) FoldROCs() []metrics.ROC {
	out := make([]metrics.ROC, len(r.Folds))
	for i, f := range r.Folds {
		out[i] = f.ROC
	}
	return out
}

// MeanROC averages the fold ROC curves on a grid of points FPR values.
func (r *CVResult) MeanROC(points int) (metrics.MeanROC, error) {
	return metrics.MeanROCCurve(r.FoldROCs(), points)
}

// MeanCurve averages the fold ROC curves on the configured grid, 100 points
// when unset.
func (r *CVResult) MeanCurve() (metrics.MeanROC, error) {
	points := r.ROCPoints
	if points < 2 {
		points = 100
	}
	return r.MeanROC(points)
}

// OOFAUC is the AUC of the out-of-fold probabilities over all training rows.
func (r *CVResult) OOFAUC() (float64, error) {
	return metrics.AUC(mat.NewVecDense(len(r.Labels), r.Labels), mat.NewVecDense(len(r.OOFProba), r.OOFProba))
}

// OOFAccuracy is the accuracy of the out-of-fold predictions at threshold t.
func (r *CVResult) OOFAccuracy(t float64) (float64, error) {
	return metrics.Accuracy(mat.NewVecDense(len(r.Labels), r.Labels), threshold(r.OOFProba, t))
}

// ImportanceColumns returns the importances as a features x folds matrix
// with column names Fold_i.
func (r *CVResult) ImportanceColumns() ([]string, *mat.Dense) {
	if len(r.Folds) == 0 {
		return nil, nil
	}
	names := make([]string, len(r.Folds))
	out := mat.NewDense(len(r.FeatureNames), len(r.Folds), nil)
	for k, f := range r.Folds {
		names[k] = fmt.Sprintf("Fold_%d", f.Fold)
		out.SetCol(k, f.Importances)
	}
	return names, out
}

// MeanImportances returns every feature with its mean importance across
// folds, most important first.
func (r *CVResult) MeanImportances() []FeatureImportance {
	out := make([]FeatureImportance, len(r.FeatureNames))
	for j, name := range r.FeatureNames {
		per := make([]float64, len(r.Folds))
		for k, f := range r.Folds {
			per[k] = f.Importances[j]
		}
		out[j] = FeatureImportance{Name: name, PerFold: per}
		if len(per) > 0 {
			out[j].Mean = stat.Mean(per, nil)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Mean > out[b].Mean })
	return out
}

// ImportanceTable returns feature names and mean importances, most
// important first.
func (r *CVResult) ImportanceTable() ([]string, []float64) {
	imp := r.MeanImportances()
	names := make([]string, len(imp))
	values := make([]float64, len(imp))
	for i, fi := range imp {
		names[i], values[i] = fi.Name, fi.Mean
	}
	return names, values
}
