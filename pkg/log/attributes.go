// Package log defines standard attribute keys for training and evaluation logs.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples",
// "cv.fold") so that a cross-validation run can be filtered per fold or per
// metric when the JSON output is shipped somewhere.

package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator type, e.g. "RandomForestClassifier".
	ModelNameKey = "model.name"

	// OperationKey is one of the Operation* values below.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package emitting the record, e.g. "ensemble".
	ComponentKey = "ml.component"

	// PhaseKey is one of the Phase* values below.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	TestRowsKey = "data.test_rows"
	ImputedKey  = "data.imputed_cells"
	PathKey     = "data.path"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	AUCKey        = "metrics.auc"
	TrainAUCKey   = "metrics.train_auc"
	AUCStdKey     = "metrics.auc_std"
	OOBScoreKey   = "metrics.oob_score"
	LossKey       = "metrics.logloss"
)

// Cross-validation.
const (
	// FoldKey is the 1-based fold number.
	FoldKey = "cv.fold"

	// NFoldsKey is the total number of folds.
	NFoldsKey = "cv.n_folds"

	// TrainSizeKey and ValidSizeKey are the row counts of a fold's two sides.
	TrainSizeKey = "cv.train_size"
	ValidSizeKey = "cv.valid_size"
)

// Hyperparameters.
const (
	NEstimatorsKey = "hyperparams.n_estimators"
	MaxDepthKey    = "hyperparams.max_depth"
	MaxFeaturesKey = "hyperparams.max_features"
	RandomSeedKey  = "config.random_seed"
)

// Error context.
const (
	ErrorCodeKey  = "error.code"
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationScore        = "score"
	OperationExport       = "export"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
	PhaseReporting     = "reporting"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
)
