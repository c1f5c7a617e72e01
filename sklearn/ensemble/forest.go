// Package ensemble implements a random forest classifier on top of sklearn/tree.
package ensemble

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/core/model"
	"github.com/YuminosukeSato/titanicrf/core/parallel"
	"github.com/YuminosukeSato/titanicrf/pkg/errors"
	"github.com/YuminosukeSato/titanicrf/pkg/log"
	"github.com/YuminosukeSato/titanicrf/sklearn/tree"
)

const modelName = "RandomForestClassifier"

// RandomForestClassifier averages the class probabilities of decision trees
// fitted on bootstrap samples with a random subset of features per split.
//
// Every tree draws its seed from random_state before any tree is fitted, so
// the fitted forest does not depend on n_jobs or goroutine scheduling.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	oobScore        bool
	nJobs           int
	randomState     int64

	trees       []*tree.DecisionTreeClassifier
	classes     []int
	importances []float64

	oobComputed bool
	oobAccuracy float64
	oobDecision *mat.Dense
}

// Option configures a RandomForestClassifier.
type Option func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion sets the split impurity: "gini" or "entropy".
func WithCriterion(c string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = c }
}

// WithMaxDepth limits the depth of every tree. 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithMinSamplesSplit sets min_samples_split for every tree.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets min_samples_leaf for every tree.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the features examined per split: "sqrt", "auto"
// (same as sqrt), "log2", "all", or a positive integer such as "3".
func WithMaxFeatures(s string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = s }
}

// WithBootstrap toggles sampling rows with replacement for each tree.
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithOOBScore enables the out-of-bag accuracy estimate. Requires bootstrap.
func WithOOBScore(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.oobScore = b }
}

// WithNJobs sets the number of goroutines fitting trees. <= 0 uses all CPUs.
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// WithRandomState seeds bootstrap sampling and feature selection.
func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

var (
	_ model.Classifier      = (*RandomForestClassifier)(nil)
	_ model.FeatureImporter = (*RandomForestClassifier)(nil)
	_ model.ParameterGetter = (*RandomForestClassifier)(nil)
	_ model.ParameterSetter = (*RandomForestClassifier)(nil)
)

// NewRandomForestClassifier creates a forest of 100 gini trees with
// max_features="sqrt" and bootstrap enabled.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		nJobs:           -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// Validate checks the hyperparameters without fitting.
func (rf *RandomForestClassifier) Validate() error {
	switch {
	case rf.nEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	case rf.criterion != "gini" && rf.criterion != "entropy":
		return errors.NewValidationError("criterion", "must be gini or entropy", rf.criterion)
	case rf.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", rf.maxDepth)
	case rf.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", rf.minSamplesSplit)
	case rf.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", rf.minSamplesLeaf)
	}
	if rf.oobScore && !rf.bootstrap {
		return errors.NewValidationError("oob_score", "out-of-bag estimation requires bootstrap=true", rf.oobScore)
	}
	switch strings.ToLower(rf.maxFeatures) {
	case "sqrt", "auto", "log2", "all", "none", "":
	default:
		k, err := strconv.Atoi(rf.maxFeatures)
		if err != nil || k < 1 {
			return errors.NewValidationError("max_features", "must be sqrt, auto, log2, all or a positive integer", rf.maxFeatures)
		}
	}
	return nil
}

// resolveMaxFeatures turns the max_features setting into a feature count.
func resolveMaxFeatures(s string, nFeatures int) (int, error) {
	switch strings.ToLower(s) {
	case "sqrt", "auto":
		return maxInt(1, int(math.Sqrt(float64(nFeatures)))), nil
	case "log2":
		return maxInt(1, int(math.Log2(float64(nFeatures)))), nil
	case "all", "none", "":
		return nFeatures, nil
	}
	k, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewValidationError("max_features", "must be sqrt, auto, log2, all or an integer", s)
	}
	if k < 1 || k > nFeatures {
		return 0, errors.NewValueError("max_features", fmt.Sprintf("%d is outside [1, %d]", k, nFeatures))
	}
	return k, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Fit grows n_estimators trees on X and the n x 1 label matrix y.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if err := rf.Validate(); err != nil {
		return err
	}
	n, c := X.Dims()
	if n == 0 || c == 0 {
		return errors.NewModelError(modelName+".Fit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != n {
		return errors.NewDimensionError(modelName+".Fit", n, yr, 0)
	}
	k, err := resolveMaxFeatures(rf.maxFeatures, c)
	if err != nil {
		return err
	}

	start := time.Now()
	logger := log.GetLoggerWithName("ensemble").With(
		log.ModelNameKey, modelName,
		log.OperationKey, log.OperationFit,
	)

	seeds := make([]int64, rf.nEstimators)
	rng := rand.New(rand.NewPCG(uint64(rf.randomState), uint64(rf.randomState)))
	for i := range seeds {
		seeds[i] = rng.Int64()
	}

	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	inBag := make([][]bool, rf.nEstimators)
	err = parallel.Parallelize(rf.nEstimators, parallel.Workers(rf.nJobs), func(lo, hi int) error {
		for t := lo; t < hi; t++ {
			dt, bag, err := rf.fitTree(t, seeds[t], X, y, n, k)
			if err != nil {
				return err
			}
			trees[t] = dt
			inBag[t] = bag
		}
		return nil
	})
	if err != nil {
		return errors.NewModelError(modelName+".Fit", "tree fitting failed", err)
	}

	rf.trees = trees
	rf.classes = trees[0].Classes()
	rf.importances = meanImportances(trees, c)
	rf.state.SetFitted(c, n)

	rf.oobComputed = false
	rf.oobDecision = nil
	if rf.oobScore {
		if err := rf.computeOOB(X, y, inBag); err != nil {
			return err
		}
	}

	logger.Debug("Forest fitted",
		log.SamplesKey, n,
		log.FeaturesKey, c,
		log.NEstimatorsKey, rf.nEstimators,
		log.MaxFeaturesKey, k,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// fitTree fits tree t and returns it with the rows it was trained on.
func (rf *RandomForestClassifier) fitTree(t int, seed int64, X, y mat.Matrix, n, maxFeatures int) (dt *tree.DecisionTreeClassifier, bag []bool, err error) {
	defer errors.Recover(&err, fmt.Sprintf("fit tree %d", t))

	trng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	idx := make([]int, n)
	bag = make([]bool, n)
	for i := range idx {
		if rf.bootstrap {
			idx[i] = trng.IntN(n)
		} else {
			idx[i] = i
		}
		bag[idx[i]] = true
	}

	dt = tree.NewDecisionTreeClassifier(
		tree.WithCriterion(rf.criterion),
		tree.WithMaxDepth(rf.maxDepth),
		tree.WithMinSamplesSplit(rf.minSamplesSplit),
		tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
		tree.WithMaxFeatures(maxFeatures),
		tree.WithRandomState(trng.Int64()),
	)
	if err := dt.FitSample(X, y, idx); err != nil {
		return nil, nil, errors.Wrapf(err, "tree %d", t)
	}
	return dt, bag, nil
}

// meanImportances averages the tree importances and renormalises them to sum 1.
func meanImportances(trees []*tree.DecisionTreeClassifier, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, dt := range trees {
		floats.Add(out, dt.GetFeatureImportances())
	}
	if total := floats.Sum(out); total > 0 {
		floats.Scale(1/total, out)
	}
	return out
}

// computeOOB averages, for each training row, the probabilities of the trees
// that did not see it. Rows that every tree saw have no vote: their decision
// row is NaN and they are left out of the accuracy.
func (rf *RandomForestClassifier) computeOOB(X, y mat.Matrix, inBag [][]bool) error {
	n, _ := X.Dims()
	nClasses := len(rf.classes)
	decision := mat.NewDense(n, nClasses, nil)
	votes := make([]int, n)

	err := parallel.Parallelize(n, parallel.Workers(rf.nJobs), func(lo, hi int) error {
		sum := make([]float64, nClasses)
		for i := lo; i < hi; i++ {
			for k := range sum {
				sum[k] = 0
			}
			for t, dt := range rf.trees {
				if inBag[t][i] {
					continue
				}
				floats.Add(sum, dt.ProbaAt(X, i))
				votes[i]++
			}
			if votes[i] == 0 {
				for k := range sum {
					sum[k] = math.NaN()
				}
			} else {
				floats.Scale(1/float64(votes[i]), sum)
			}
			decision.SetRow(i, sum)
		}
		return nil
	})
	if err != nil {
		return err
	}

	correct, covered := 0, 0
	for i := 0; i < n; i++ {
		if votes[i] == 0 {
			continue
		}
		covered++
		if float64(rf.classes[floats.MaxIdx(decision.RawRowView(i))]) == y.At(i, 0) {
			correct++
		}
	}

	rf.oobDecision = decision
	rf.oobComputed = true
	if covered == 0 {
		rf.oobAccuracy = math.NaN()
		errors.Warn(errors.NewUndefinedMetricWarning("oob_score",
			"no sample was left out of bag; increase n_estimators", math.NaN()))
		return nil
	}
	rf.oobAccuracy = float64(correct) / float64(covered)
	if missing := n - covered; missing > 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("oob_decision_function",
			fmt.Sprintf("%d of %d samples were never out of bag and are excluded from the OOB score", missing, n),
			math.NaN()))
	}
	return nil
}

func (rf *RandomForestClassifier) checkPredict(method string, X mat.Matrix) error {
	if err := rf.state.RequireFitted(modelName, method); err != nil {
		return err
	}
	return rf.state.CheckFeatures(modelName+"."+method, X)
}

// PredictProba returns the mean of the tree probabilities, one column per class.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	nClasses := len(rf.classes)
	out := mat.NewDense(r, nClasses, nil)
	scale := 1 / float64(len(rf.trees))

	err := parallel.ParallelizeWithThreshold(r, 64, parallel.Workers(rf.nJobs), func(lo, hi int) error {
		sum := make([]float64, nClasses)
		for i := lo; i < hi; i++ {
			for k := range sum {
				sum[k] = 0
			}
			for _, dt := range rf.trees {
				floats.Add(sum, dt.ProbaAt(X, i))
			}
			floats.Scale(scale, sum)
			out.SetRow(i, sum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.GetLoggerWithName("ensemble").Debug("Probabilities predicted",
		log.ModelNameKey, modelName,
		log.OperationKey, log.OperationPredict,
		log.SamplesKey, r,
	)
	return out, nil
}

// Predict returns the class with the highest mean probability for each row.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	p := proba.(*mat.Dense)
	r, _ := p.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(rf.classes[floats.MaxIdx(p.RawRowView(i))]))
	}
	return out, nil
}

// Score returns the accuracy on X and y, or 0 when prediction fails.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := pred.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// FeatureImportances returns the mean impurity-based importances, summing to 1.
func (rf *RandomForestClassifier) FeatureImportances() ([]float64, error) {
	if err := rf.state.RequireFitted(modelName, "FeatureImportances"); err != nil {
		return nil, err
	}
	out := make([]float64, len(rf.importances))
	copy(out, rf.importances)
	return out, nil
}

// OOBScore returns the out-of-bag accuracy.
func (rf *RandomForestClassifier) OOBScore() (float64, error) {
	if err := rf.state.RequireFitted(modelName, "OOBScore"); err != nil {
		return 0, err
	}
	if !rf.oobComputed {
		return 0, errors.NewValueError(modelName+".OOBScore", "oob_score was not enabled when fitting")
	}
	return rf.oobAccuracy, nil
}

// OOBDecisionFunction returns the out-of-bag class probabilities of the
// training rows. Rows never left out of bag are NaN.
func (rf *RandomForestClassifier) OOBDecisionFunction() (mat.Matrix, error) {
	if err := rf.state.RequireFitted(modelName, "OOBDecisionFunction"); err != nil {
		return nil, err
	}
	if !rf.oobComputed {
		return nil, errors.NewValueError(modelName+".OOBDecisionFunction", "oob_score was not enabled when fitting")
	}
	return mat.DenseCopyOf(rf.oobDecision), nil
}

// NEstimators returns the number of fitted trees.
func (rf *RandomForestClassifier) NEstimators() int {
	return len(rf.trees)
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.trees
}

// Classes returns the class labels in probability-column order.
func (rf *RandomForestClassifier) Classes() []int {
	out := make([]int, len(rf.classes))
	copy(out, rf.classes)
	return out
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool {
	return rf.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"oob_score":         rf.oobScore,
		"n_jobs":            rf.nJobs,
		"random_state":      rf.randomState,
	}
}

// SetParams updates hyperparameters. Unknown keys and wrong types are errors.
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "n_estimators":
			rf.nEstimators, ok = value.(int)
		case "criterion":
			rf.criterion, ok = value.(string)
		case "max_depth":
			rf.maxDepth, ok = value.(int)
		case "min_samples_split":
			rf.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			rf.minSamplesLeaf, ok = value.(int)
		case "max_features":
			switch v := value.(type) {
			case string:
				rf.maxFeatures, ok = v, true
			case int:
				rf.maxFeatures, ok = strconv.Itoa(v), true
			}
		case "bootstrap":
			rf.bootstrap, ok = value.(bool)
		case "oob_score":
			rf.oobScore, ok = value.(bool)
		case "n_jobs":
			rf.nJobs, ok = value.(int)
		case "random_state":
			switch v := value.(type) {
			case int:
				rf.randomState, ok = int64(v), true
			case int64:
				rf.randomState, ok = v, true
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return rf.Validate()
}

func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, max_depth=%d, min_samples_split=%d, min_samples_leaf=%d, max_features=%s, oob_score=%t, random_state=%d)",
		rf.nEstimators, rf.maxDepth, rf.minSamplesSplit, rf.minSamplesLeaf, rf.maxFeatures, rf.oobScore, rf.randomState)
}

// forestSnapshot is the gob form of a forest.
type forestSnapshot struct {
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	OOBScore        bool
	NJobs           int
	RandomState     int64

	Trees       []*tree.DecisionTreeClassifier
	Classes     []int
	Importances []float64
	NFeatures   int
	NSamples    int
	Fitted      bool

	OOBComputed bool
	OOBAccuracy float64
	OOBRows     int
	OOBDecision []float64
}

// GobEncode implements gob.GobEncoder so fitted forests can be saved with
// model.SaveModel.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	nFeatures, nSamples := rf.state.GetDimensions()
	s := forestSnapshot{
		NEstimators:     rf.nEstimators,
		Criterion:       rf.criterion,
		MaxDepth:        rf.maxDepth,
		MinSamplesSplit: rf.minSamplesSplit,
		MinSamplesLeaf:  rf.minSamplesLeaf,
		MaxFeatures:     rf.maxFeatures,
		Bootstrap:       rf.bootstrap,
		OOBScore:        rf.oobScore,
		NJobs:           rf.nJobs,
		RandomState:     rf.randomState,
		Trees:           rf.trees,
		Classes:         rf.classes,
		Importances:     rf.importances,
		NFeatures:       nFeatures,
		NSamples:        nSamples,
		Fitted:          rf.state.IsFitted(),
		OOBComputed:     rf.oobComputed,
		OOBAccuracy:     rf.oobAccuracy,
	}
	if rf.oobDecision != nil {
		s.OOBRows, _ = rf.oobDecision.Dims()
		s.OOBDecision = rf.oobDecision.RawMatrix().Data
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, errors.Wrap(err, "encode random forest")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var s forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode random forest")
	}
	*rf = *NewRandomForestClassifier(
		WithNEstimators(s.NEstimators),
		WithCriterion(s.Criterion),
		WithMaxDepth(s.MaxDepth),
		WithMinSamplesSplit(s.MinSamplesSplit),
		WithMinSamplesLeaf(s.MinSamplesLeaf),
		WithMaxFeatures(s.MaxFeatures),
		WithBootstrap(s.Bootstrap),
		WithOOBScore(s.OOBScore),
		WithNJobs(s.NJobs),
		WithRandomState(s.RandomState),
	)
	rf.trees = s.Trees
	rf.classes = s.Classes
	rf.importances = s.Importances
	rf.oobComputed = s.OOBComputed
	rf.oobAccuracy = s.OOBAccuracy
	if s.OOBRows > 0 {
		rf.oobDecision = mat.NewDense(s.OOBRows, len(s.OOBDecision)/s.OOBRows, s.OOBDecision)
	}
	if s.Fitted {
		rf.state.SetFitted(s.NFeatures, s.NSamples)
	}
	return nil
}
