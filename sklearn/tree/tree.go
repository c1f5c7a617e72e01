// Package tree implements a CART decision tree classifier.
//
// Nodes are stored in a flat slice and split on a single feature with a
// midpoint threshold: samples with x[feature] <= threshold go left. The tree
// can be fitted on a multiset of row indices (FitSample), which is how the
// random forest trains on bootstrap samples without copying the data.
package tree

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/core/model"
	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

const leafFeature = -1

// node is a single tree node. Feature == leafFeature marks a leaf.
type node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	// Value is the class distribution of the training samples in the node.
	Value    []float64
	Impurity float64
	NSamples int
	Depth    int
}

// DecisionTreeClassifier is a CART classifier.
type DecisionTreeClassifier struct {
	state *model.StateManager

	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
	randomState     int64

	classes     []int
	nClasses    int
	nodes       []node
	importances []float64
}

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion sets the impurity measure: "gini" or "entropy".
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth limits the tree depth. 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit sets the minimum number of samples required to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf sets the minimum number of samples required in each leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures sets how many features are examined per split. 0 means all.
func WithMaxFeatures(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = n }
}

// WithRandomState seeds the feature sampling.
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) { dt.randomState = seed }
}

var (
	_ model.Classifier      = (*DecisionTreeClassifier)(nil)
	_ model.FeatureImporter = (*DecisionTreeClassifier)(nil)
	_ model.ParameterGetter = (*DecisionTreeClassifier)(nil)
	_ model.ParameterSetter = (*DecisionTreeClassifier)(nil)
)

// NewDecisionTreeClassifier creates a tree with gini impurity, unlimited depth,
// min_samples_split=2 and min_samples_leaf=1.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

func (dt *DecisionTreeClassifier) validate() error {
	switch {
	case dt.criterion != "gini" && dt.criterion != "entropy":
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	case dt.maxDepth < 0:
		return errors.NewValidationError("max_depth", "must be >= 0", dt.maxDepth)
	case dt.minSamplesSplit < 2:
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	case dt.minSamplesLeaf < 1:
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	case dt.maxFeatures < 0:
		return errors.NewValidationError("max_features", "must be >= 0", dt.maxFeatures)
	}
	return nil
}

// Fit builds the tree from all rows of X and the n x 1 label matrix y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	r, _ := X.Dims()
	idx := make([]int, r)
	for i := range idx {
		idx[i] = i
	}
	return dt.FitSample(X, y, idx)
}

// FitSample builds the tree from the rows of X listed in sampleIdx. Indices
// may repeat, in which case the row counts once per occurrence. Classes are
// taken from the whole of y so that trees fitted on different samples of the
// same data share the probability columns.
func (dt *DecisionTreeClassifier) FitSample(X, y mat.Matrix, sampleIdx []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yr, yc := y.Dims()
	if yr != r {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", r, yr, 0)
	}
	if yc != 1 {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yc, 1)
	}
	if len(sampleIdx) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty sample", errors.ErrEmptyData)
	}
	if err := errors.CheckMatrix("DecisionTreeClassifier.Fit", X, r, c); err != nil {
		return err
	}

	classes, encoded, err := encodeLabels(y)
	if err != nil {
		return err
	}
	for _, i := range sampleIdx {
		if i < 0 || i >= r {
			return errors.NewValueError("DecisionTreeClassifier.FitSample", fmt.Sprintf("sample index %d out of range [0, %d)", i, r))
		}
	}

	dt.classes = classes
	dt.nClasses = len(classes)
	dt.nodes = dt.nodes[:0]
	dt.importances = make([]float64, c)

	b := &builder{
		dt:       dt,
		X:        X,
		y:        encoded,
		nFeature: c,
		rng:      rand.New(rand.NewPCG(uint64(dt.randomState), uint64(dt.randomState))),
		features: make([]int, c),
	}
	for j := range b.features {
		b.features[j] = j
	}
	idx := make([]int, len(sampleIdx))
	copy(idx, sampleIdx)
	b.build(idx, 0)

	total := floats.Sum(dt.importances)
	if total > 0 {
		floats.Scale(1/total, dt.importances)
	}

	dt.state.SetFitted(c, len(sampleIdx))
	return nil
}

// encodeLabels maps y to class indices. Labels must be non-negative integers.
func encodeLabels(y mat.Matrix) ([]int, []int, error) {
	r, _ := y.Dims()
	seen := make(map[int]struct{})
	raw := make([]int, r)
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v < 0 || v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, nil, errors.NewValueError("DecisionTreeClassifier.Fit",
				fmt.Sprintf("labels must be non-negative integers, got %v at row %d", v, i))
		}
		raw[i] = int(v)
		seen[raw[i]] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	pos := make(map[int]int, len(classes))
	for k, c := range classes {
		pos[c] = k
	}
	for i, v := range raw {
		raw[i] = pos[v]
	}
	return classes, raw, nil
}

type builder struct {
	dt       *DecisionTreeClassifier
	X        mat.Matrix
	y        []int
	nFeature int
	rng      *rand.Rand
	features []int
}

type candidate struct {
	feature   int
	threshold float64
	nLeft     int
	impLeft   float64
	impRight  float64
	score     float64 // weighted child impurity, lower is better
}

// build grows the subtree for idx and returns its node index.
func (b *builder) build(idx []int, depth int) int {
	dt := b.dt
	counts := make([]float64, dt.nClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	n := len(idx)
	impurity := dt.impurity(counts, float64(n))

	value := make([]float64, dt.nClasses)
	floats.ScaleTo(value, 1/float64(n), counts)

	id := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{
		Feature:  leafFeature,
		Value:    value,
		Impurity: impurity,
		NSamples: n,
		Depth:    depth,
	})

	if impurity <= 0 ||
		(dt.maxDepth > 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf {
		return id
	}

	best, ok := b.bestSplit(idx, counts)
	if !ok {
		return id
	}

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, n-best.nLeft)
	for _, i := range idx {
		if b.X.At(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	decrease := float64(n)*impurity - float64(len(left))*best.impLeft - float64(len(right))*best.impRight
	dt.importances[best.feature] += math.Max(decrease, 0)

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	dt.nodes[id].Feature = best.feature
	dt.nodes[id].Threshold = best.threshold
	dt.nodes[id].Left = l
	dt.nodes[id].Right = r
	return id
}

// bestSplit examines features in random order until maxFeatures non-constant
// features have been evaluated, or all features when none gives a valid split.
func (b *builder) bestSplit(idx []int, counts []float64) (candidate, bool) {
	dt := b.dt
	limit := dt.maxFeatures
	if limit <= 0 || limit > b.nFeature {
		limit = b.nFeature
	}
	b.rng.Shuffle(len(b.features), func(i, j int) {
		b.features[i], b.features[j] = b.features[j], b.features[i]
	})

	type pair struct {
		x float64
		c int
	}
	n := len(idx)
	pairs := make([]pair, n)
	left := make([]float64, dt.nClasses)
	right := make([]float64, dt.nClasses)

	var best candidate
	found := false
	visited := 0
	for _, f := range b.features {
		if visited >= limit && found {
			break
		}
		for k, i := range idx {
			pairs[k] = pair{x: b.X.At(i, f), c: b.y[i]}
		}
		sort.Slice(pairs, func(a, c int) bool { return pairs[a].x < pairs[c].x })
		if pairs[0].x == pairs[n-1].x {
			continue
		}
		visited++

		for k := range left {
			left[k] = 0
		}
		copy(right, counts)
		for k := 0; k < n-1; k++ {
			left[pairs[k].c]++
			right[pairs[k].c]--
			if pairs[k].x == pairs[k+1].x {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < dt.minSamplesLeaf || nr < dt.minSamplesLeaf {
				continue
			}
			il := dt.impurity(left, float64(nl))
			ir := dt.impurity(right, float64(nr))
			score := (float64(nl)*il + float64(nr)*ir) / float64(n)
			if !found || score < best.score {
				threshold := pairs[k].x/2 + pairs[k+1].x/2
				if threshold == pairs[k+1].x {
					threshold = pairs[k].x
				}
				best = candidate{feature: f, threshold: threshold, nLeft: nl, impLeft: il, impRight: ir, score: score}
				found = true
			}
		}
	}
	return best, found
}

func (dt *DecisionTreeClassifier) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	switch dt.criterion {
	case "entropy":
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	default:
		g := 1.0
		for _, c := range counts {
			p := c / n
			g -= p * p
		}
		return g
	}
}

func (dt *DecisionTreeClassifier) checkPredict(method string, X mat.Matrix) error {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", method); err != nil {
		return err
	}
	return dt.state.CheckFeatures("DecisionTreeClassifier."+method, X)
}

// ProbaAt returns the class distribution of the leaf reached by row i of X.
// The slice is owned by the tree and must not be modified. The caller is
// responsible for checking that the tree is fitted and X has the right width.
func (dt *DecisionTreeClassifier) ProbaAt(X mat.Matrix, i int) []float64 {
	k := 0
	for {
		nd := &dt.nodes[k]
		if nd.Feature == leafFeature {
			return nd.Value
		}
		if X.At(i, nd.Feature) <= nd.Threshold {
			k = nd.Left
		} else {
			k = nd.Right
		}
	}
}

// PredictProba returns an n x n_classes matrix of class probabilities.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict("PredictProba", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, dt.nClasses, nil)
	for i := 0; i < r; i++ {
		out.SetRow(i, dt.ProbaAt(X, i))
	}
	return out, nil
}

// Predict returns the n x 1 matrix of predicted class labels.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.checkPredict("Predict", X); err != nil {
		return nil, err
	}
	r, _ := X.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, float64(dt.classes[floats.MaxIdx(dt.ProbaAt(X, i))]))
	}
	return out, nil
}

// Score returns the accuracy on X and y, or 0 when prediction fails.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := X.Dims()
	if r == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// GetFeatureImportances returns the normalised total impurity decrease per
// feature. All values are zero for a tree that is a single leaf.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	out := make([]float64, len(dt.importances))
	copy(out, dt.importances)
	return out
}

// FeatureImportances implements model.FeatureImporter.
func (dt *DecisionTreeClassifier) FeatureImportances() ([]float64, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return dt.GetFeatureImportances(), nil
}

// GetDepth returns the depth of the deepest leaf. A single leaf has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int {
	depth := 0
	for _, nd := range dt.nodes {
		if nd.Depth > depth {
			depth = nd.Depth
		}
	}
	return depth
}

// GetNLeaves returns the number of leaves.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	n := 0
	for _, nd := range dt.nodes {
		if nd.Feature == leafFeature {
			n++
		}
	}
	return n
}

// Classes returns the class labels in probability-column order.
func (dt *DecisionTreeClassifier) Classes() []int {
	out := make([]int, len(dt.classes))
	copy(out, dt.classes)
	return out
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.state.IsFitted()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams updates hyperparameters. Unknown keys and wrong types are errors.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "criterion":
			dt.criterion, ok = value.(string)
		case "max_depth":
			dt.maxDepth, ok = value.(int)
		case "min_samples_split":
			dt.minSamplesSplit, ok = value.(int)
		case "min_samples_leaf":
			dt.minSamplesLeaf, ok = value.(int)
		case "max_features":
			dt.maxFeatures, ok = value.(int)
		case "random_state":
			var seed int
			if seed, ok = value.(int); ok {
				dt.randomState = int64(seed)
			} else {
				dt.randomState, ok = value.(int64)
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "wrong type", value)
		}
	}
	return dt.validate()
}

// snapshot is the gob form of a fitted tree.
type snapshot struct {
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	RandomState     int64

	Classes     []int
	Nodes       []node
	Importances []float64
	NFeatures   int
	NSamples    int
	Fitted      bool
}

// GobEncode implements gob.GobEncoder.
func (dt *DecisionTreeClassifier) GobEncode() ([]byte, error) {
	nFeatures, nSamples := dt.state.GetDimensions()
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		Criterion:       dt.criterion,
		MaxDepth:        dt.maxDepth,
		MinSamplesSplit: dt.minSamplesSplit,
		MinSamplesLeaf:  dt.minSamplesLeaf,
		MaxFeatures:     dt.maxFeatures,
		RandomState:     dt.randomState,

		Classes:     dt.classes,
		Nodes:       dt.nodes,
		Importances: dt.importances,
		NFeatures:   nFeatures,
		NSamples:    nSamples,
		Fitted:      dt.state.IsFitted(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode decision tree")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (dt *DecisionTreeClassifier) GobDecode(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode decision tree")
	}
	*dt = *NewDecisionTreeClassifier(
		WithCriterion(s.Criterion),
		WithMaxDepth(s.MaxDepth),
		WithMinSamplesSplit(s.MinSamplesSplit),
		WithMinSamplesLeaf(s.MinSamplesLeaf),
		WithMaxFeatures(s.MaxFeatures),
		WithRandomState(s.RandomState),
	)
	dt.classes = s.Classes
	dt.nClasses = len(s.Classes)
	dt.nodes = s.Nodes
	dt.importances = s.Importances
	if s.Fitted {
		dt.state.SetFitted(s.NFeatures, s.NSamples)
	}
	return nil
}
