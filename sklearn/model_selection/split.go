// Package model_selection provides k-fold cross-validation splitters.
package model_selection

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// Splitter defines the interface for cross-validation splitters.
type Splitter interface {
	Split(X, y mat.Matrix) ([]Fold, error)
	GetNSplits() int
}

// Fold holds the sorted train and test row indices of one split.
type Fold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold splits rows into NSplits consecutive folds, optionally shuffled.
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewKFold creates a new k-fold splitter.
func NewKFold(nSplits int, shuffle bool, randomSeed int) *KFold {
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold. The first n % NSplits
// folds get one extra test row.
func (kf *KFold) Split(X, _ mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if err := checkSplits("KFold", kf.NSplits, nSamples); err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		newRand(kf.RandomSeed).Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	assignment := make([]int, nSamples)
	deal(indices, kf.NSplits, 0, assignment)
	return buildFolds(assignment, kf.NSplits), nil
}

// StratifiedKFold splits rows so that every fold keeps the class proportions
// of y. Classes are processed in ascending label order, each shuffled with
// the shared seeded generator when Shuffle is set.
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int
}

// NewStratifiedKFold creates a new stratified k-fold splitter.
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int) *StratifiedKFold {
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits.
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) ([]Fold, error) {
	nSamples, _ := X.Dims()
	if y == nil {
		return nil, errors.NewValueError("StratifiedKFold.Split", "labels are required")
	}
	if yr, _ := y.Dims(); yr != nSamples {
		return nil, errors.NewDimensionError("StratifiedKFold.Split", nSamples, yr, 0)
	}
	if err := checkSplits("StratifiedKFold", skf.NSplits, nSamples); err != nil {
		return nil, err
	}

	byClass := make(map[float64][]int)
	for i := 0; i < nSamples; i++ {
		label := y.At(i, 0)
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]float64, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Float64s(labels)

	for _, label := range labels {
		if n := len(byClass[label]); n < skf.NSplits {
			return nil, errors.NewValueError("StratifiedKFold.Split",
				fmt.Sprintf("n_splits=%d is greater than the %d members of class %v", skf.NSplits, n, label))
		}
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(skf.RandomSeed)
	}
	assignment := make([]int, nSamples)
	offset := 0
	for _, label := range labels {
		indices := byClass[label]
		if r != nil {
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
		offset = deal(indices, skf.NSplits, offset, assignment)
	}
	return buildFolds(assignment, skf.NSplits), nil
}

func newRand(seed int) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

func checkSplits(op string, nSplits, nSamples int) error {
	if nSplits < 2 {
		return errors.NewValidationError("n_splits", "must be >= 2", nSplits)
	}
	if nSplits > nSamples {
		return errors.NewValueError(op+".Split",
			fmt.Sprintf("cannot have n_splits=%d greater than the number of samples %d", nSplits, nSamples))
	}
	return nil
}

// deal assigns indices to folds in contiguous blocks. The len % k extra rows
// go to the folds starting at offset, and the offset for the next call is
// returned, which keeps overall fold sizes within one of each other.
func deal(indices []int, k, offset int, assignment []int) int {
	n := len(indices)
	size, rem := n/k, n%k
	pos := 0
	for f := 0; f < k; f++ {
		fold := (offset + f) % k
		take := size
		if f < rem {
			take++
		}
		for _, idx := range indices[pos : pos+take] {
			assignment[idx] = fold
		}
		pos += take
	}
	return (offset + rem) % k
}

func buildFolds(assignment []int, k int) []Fold {
	folds := make([]Fold, k)
	for i, f := range assignment {
		for j := range folds {
			if j == f {
				folds[j].TestIndices = append(folds[j].TestIndices, i)
			} else {
				folds[j].TrainIndices = append(folds[j].TrainIndices, i)
			}
		}
	}
	return folds
}

// Subset returns the rows of X listed in indices, in that order.
func Subset(X mat.Matrix, indices []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(indices), c, nil)
	for i, idx := range indices {
		for j := 0; j < c; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}
