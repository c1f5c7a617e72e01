package pipeline

import (
	"context"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/dataset"
	"github.com/YuminosukeSato/titanicrf/pkg/errors"
	"github.com/YuminosukeSato/titanicrf/pkg/log"
	"github.com/YuminosukeSato/titanicrf/preprocessing"
	"github.com/YuminosukeSato/titanicrf/report"
	"github.com/YuminosukeSato/titanicrf/submission"
)

// Report is the outcome of a Run.
type Report struct {
	Config Config
	CV     *CVResult

	TrainRows int
	TestRows  int
	// Imputed counts the feature cells filled with a training median.
	Imputed int

	// Submission holds one row per test passenger.
	Submission []submission.Row

	OOFAUC      float64
	OOFAccuracy float64

	// Written lists the files produced, in order.
	Written  []string
	Duration time.Duration
}

// Run loads the data, cross-validates the forest and writes the plots and
// the submission configured in cfg.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.GetLoggerWithName("pipeline")

	logger.Info("Loading data", log.PhaseKey, log.PhasePreprocessing, log.PathKey, cfg.TrainPath)
	combined, err := dataset.LoadCombined(cfg.TrainPath, cfg.TestPath)
	if err != nil {
		return nil, err
	}
	trainDF, testDF, err := dataset.Split(combined, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}

	featDF, names, err := dataset.Features(trainDF, cfg.Features, cfg.IDColumn, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}
	cfg.Features = names
	X, err := dataset.ToMatrix(featDF)
	if err != nil {
		return nil, errors.Wrap(err, "training features")
	}
	y, err := dataset.Labels(trainDF, cfg.LabelColumn)
	if err != nil {
		return nil, err
	}

	var (
		Xtest *mat.Dense
		ids   []int
	)
	if testDF.Nrow() > 0 {
		testFeat, _, err := dataset.Features(testDF, names)
		if err != nil {
			return nil, err
		}
		if Xtest, err = dataset.ToMatrix(testFeat); err != nil {
			return nil, errors.Wrap(err, "test features")
		}
		if ids, err = dataset.IDs(testDF, cfg.IDColumn); err != nil {
			return nil, err
		}
	}

	rep := &Report{Config: cfg, TrainRows: trainDF.Nrow(), TestRows: testDF.Nrow()}
	logger.Info("Data loaded",
		log.SamplesKey, rep.TrainRows,
		log.TestRowsKey, rep.TestRows,
		log.FeaturesKey, len(names),
	)

	if cfg.Impute {
		if rep.Imputed, err = impute(X, Xtest); err != nil {
			return nil, err
		}
		logger.Debug("Missing values imputed", log.ImputedKey, rep.Imputed)
		if rep.Imputed > 0 {
			errors.Warn(errors.NewDataConversionWarning("NaN", "float64",
				"missing feature values replaced by the training median"))
		}
	}
	if err := checkFinite(X); err != nil {
		return nil, errors.Wrap(err, "training features (enable imputation for missing values)")
	}
	if Xtest != nil {
		if err := checkFinite(Xtest); err != nil {
			return nil, errors.Wrap(err, "test features (enable imputation for missing values)")
		}
	}

	if X, Xtest, err = scale(cfg.Scaler, X, Xtest); err != nil {
		return nil, err
	}

	logger.Info("Cross-validating",
		log.PhaseKey, log.PhaseTraining,
		log.NEstimatorsKey, cfg.NEstimators,
		log.MaxDepthKey, cfg.MaxDepth,
		log.MaxFeaturesKey, cfg.MaxFeatures,
		log.RandomSeedKey, cfg.RandomState,
	)
	rep.CV, err = CrossValidate(ctx, X, y, Xtest, cfg)
	if err != nil {
		return nil, err
	}
	if rep.OOFAUC, err = rep.CV.OOFAUC(); err != nil {
		return nil, err
	}
	if rep.OOFAccuracy, err = rep.CV.OOFAccuracy(cfg.Threshold); err != nil {
		return nil, err
	}

	if err := rep.writeOutputs(ids); err != nil {
		return nil, err
	}

	rep.Duration = time.Since(start)
	logger.Info("Run finished",
		log.PhaseKey, log.PhaseReporting,
		log.AUCKey, rep.OOFAUC,
		log.AccuracyKey, rep.OOFAccuracy,
		log.OOBScoreKey, rep.CV.MeanOOBScore(),
		log.DurationMsKey, rep.Duration.Milliseconds(),
	)
	return rep, nil
}

func checkFinite(X *mat.Dense) error {
	r, c := X.Dims()
	return errors.CheckMatrix("pipeline.Run", X, r, c)
}

// impute fills NaN cells of both matrices with the training medians.
func impute(X, Xtest *mat.Dense) (int, error) {
	medians := dataset.Medians(X)
	n, err := dataset.ImputeWith(X, medians)
	if err != nil || Xtest == nil {
		return n, err
	}
	m, err := dataset.ImputeWith(Xtest, medians)
	return n + m, err
}

// scale fits the scaler on X and applies it to both matrices.
func scale(kind string, X, Xtest *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if strings.EqualFold(kind, "none") {
		return X, Xtest, nil
	}
	scaler, err := preprocessing.NewScaler(kind)
	if err != nil {
		return nil, nil, err
	}
	xs, err := scaler.FitTransform(X)
	if err != nil {
		return nil, nil, errors.Wrap(err, "scale training features")
	}
	if Xtest == nil {
		return mat.DenseCopyOf(xs), nil, nil
	}
	ts, err := scaler.Transform(Xtest)
	if err != nil {
		return nil, nil, errors.Wrap(err, "scale test features")
	}
	return mat.DenseCopyOf(xs), mat.DenseCopyOf(ts), nil
}

func (r *Report) writeOutputs(ids []int) error {
	logger := log.GetLoggerWithName("pipeline").With(log.PhaseKey, log.PhaseReporting)
	cfg := r.Config

	// plotting panics on degenerate input surface as errors
	if cfg.ROCPlotPath != "" {
		err := errors.SafeExecute("report.PlotROC", func() error {
			return report.PlotROC(r.CV, cfg.ROCPlotPath)
		})
		if err != nil {
			return err
		}
		r.written(logger, "ROC plot", cfg.ROCPlotPath)
	}
	if cfg.ImportancePlotPath != "" {
		err := errors.SafeExecute("report.PlotFeatureImportance", func() error {
			return report.PlotFeatureImportance(r.CV, cfg.ImportancePlotPath)
		})
		if err != nil {
			return err
		}
		r.written(logger, "Feature importance plot", cfg.ImportancePlotPath)
	}

	if r.CV.NTest == 0 {
		logger.Warn("No test rows, skipping submission")
		return nil
	}
	rows, err := submission.Predictions(ids, r.CV.TestProbability(), cfg.Threshold)
	if err != nil {
		return err
	}
	r.Submission = rows
	logger.Info("Test passengers labelled",
		log.PhaseKey, log.PhaseInference,
		log.TestRowsKey, len(rows),
		"survivors", r.Survivors(),
	)
	if cfg.SubmissionPath != "" {
		if err := submission.WriteFile(cfg.SubmissionPath, rows); err != nil {
			return err
		}
		r.written(logger, "Submission", cfg.SubmissionPath)
	}
	if cfg.ProbabilitiesPath != "" {
		names, proba := r.CV.ProbabilityColumns()
		if err := submission.WriteProbabilities(cfg.ProbabilitiesPath, ids, names, proba); err != nil {
			return err
		}
		r.written(logger, "Fold probabilities", cfg.ProbabilitiesPath)
	}
	return nil
}

func (r *Report) written(logger log.Logger, what, path string) {
	r.Written = append(r.Written, path)
	logger.Info(what+" written", log.OperationKey, log.OperationExport, log.PathKey, path)
}

// Survivors counts the test passengers predicted to survive.
func (r *Report) Survivors() int {
	n := 0
	for _, row := range r.Submission {
		n += row.Survived
	}
	return n
}

// SurvivalRate is the share of test passengers predicted to survive.
func (r *Report) SurvivalRate() float64 {
	return errors.SafeDivide(float64(r.Survivors()), float64(len(r.Submission)))
}
