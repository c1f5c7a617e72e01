// Package pipeline runs the survival analysis end to end: load the feature
// table, split by label presence, scale, cross-validate a random forest,
// plot the diagnostics and write the submission.
package pipeline

import (
	"strings"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
	"github.com/YuminosukeSato/titanicrf/sklearn/ensemble"
)

// Config holds every setting of a run.
type Config struct {
	// TrainPath is the labelled table, or the combined table when TestPath is empty.
	TrainPath string
	TestPath  string

	// Features lists the feature columns. Empty means every column except
	// IDColumn and LabelColumn.
	Features    []string
	IDColumn    string
	LabelColumn string

	// Impute fills missing feature values with the training median.
	Impute bool
	// Scaler is "standard", "minmax" or "none".
	Scaler string

	NFolds   int
	Shuffle  bool
	FoldSeed int

	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	OOBScore        bool
	NJobs           int
	RandomState     int64

	// Threshold is the survival probability at or above which a passenger
	// is predicted to survive.
	Threshold float64
	// ROCPoints is the size of the FPR grid for the mean ROC curve.
	ROCPoints int

	ROCPlotPath        string
	ImportancePlotPath string
	SubmissionPath     string
	// ProbabilitiesPath, when set, receives the per-fold test probabilities.
	ProbabilitiesPath string
	// ModelDir, when set, receives one gob file per fold forest.
	ModelDir string
}

// DefaultConfig returns the leaderboard setup: 5 shuffled stratified folds
// and a forest of 1750 trees of depth 7.
func DefaultConfig() Config {
	return Config{
		TrainPath:          "data/train.csv",
		TestPath:           "data/test.csv",
		IDColumn:           "PassengerId",
		LabelColumn:        "Survived",
		Impute:             true,
		Scaler:             "standard",
		NFolds:             5,
		Shuffle:            true,
		FoldSeed:           5,
		NEstimators:        1750,
		Criterion:          "gini",
		MaxDepth:           7,
		MinSamplesSplit:    6,
		MinSamplesLeaf:     6,
		MaxFeatures:        "auto",
		OOBScore:           true,
		NJobs:              -1,
		RandomState:        42,
		Threshold:          0.5,
		ROCPoints:          100,
		ROCPlotPath:        "ROC.png",
		ImportancePlotPath: "RandomForest.png",
		SubmissionPath:     "submissions.csv",
	}
}

// ApplyPreset overwrites the forest settings with a named preset:
// "leaderboard" (the default) or "single-best", a smaller forest of 1100
// trees of depth 5.
func (c *Config) ApplyPreset(name string) error {
	switch strings.ToLower(name) {
	case "leaderboard", "":
		d := DefaultConfig()
		c.NEstimators, c.MaxDepth, c.MinSamplesSplit, c.MinSamplesLeaf = d.NEstimators, d.MaxDepth, d.MinSamplesSplit, d.MinSamplesLeaf
	case "single-best":
		c.NEstimators, c.MaxDepth, c.MinSamplesSplit, c.MinSamplesLeaf = 1100, 5, 4, 5
	default:
		return errors.NewValidationError("preset", "must be leaderboard or single-best", name)
	}
	return nil
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch {
	case c.TrainPath == "":
		return errors.NewValidationError("train", "path is required", c.TrainPath)
	case c.LabelColumn == "":
		return errors.NewValidationError("label", "column name is required", c.LabelColumn)
	case c.IDColumn == "":
		return errors.NewValidationError("id", "column name is required", c.IDColumn)
	case c.NFolds < 2:
		return errors.NewValidationError("folds", "must be >= 2", c.NFolds)
	case c.NEstimators < 1:
		return errors.NewValidationError("n_estimators", "must be >= 1", c.NEstimators)
	case c.Threshold < 0 || c.Threshold > 1:
		return errors.NewValidationError("threshold", "must be within [0, 1]", c.Threshold)
	case c.ROCPoints < 2:
		return errors.NewValidationError("roc_points", "must be >= 2", c.ROCPoints)
	}
	switch strings.ToLower(c.Scaler) {
	case "standard", "minmax", "none":
	default:
		return errors.NewValidationError("scaler", "must be standard, minmax or none", c.Scaler)
	}
	return c.NewForest().Validate()
}

// NewForest returns an unfitted forest with the configured hyperparameters.
func (c Config) NewForest() *ensemble.RandomForestClassifier {
	return ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(c.NEstimators),
		ensemble.WithCriterion(c.Criterion),
		ensemble.WithMaxDepth(c.MaxDepth),
		ensemble.WithMinSamplesSplit(c.MinSamplesSplit),
		ensemble.WithMinSamplesLeaf(c.MinSamplesLeaf),
		ensemble.WithMaxFeatures(c.MaxFeatures),
		ensemble.WithOOBScore(c.OOBScore),
		ensemble.WithNJobs(c.NJobs),
		ensemble.WithRandomState(c.RandomState),
	)
}
