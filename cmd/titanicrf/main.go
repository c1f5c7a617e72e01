// Command titanicrf cross-validates a random forest on the Titanic feature
// table, plots the fold ROC curves and feature importances and writes the
// survival predictions for the test passengers.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/YuminosukeSato/titanicrf/pipeline"
	"github.com/YuminosukeSato/titanicrf/pkg/errors"
	"github.com/YuminosukeSato/titanicrf/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runWithArgs returns 0 on success, 1 when the run fails and 2 on bad usage.
func runWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := pipeline.DefaultConfig()
	fs := flag.NewFlagSet("titanicrf", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		features  = fs.String("features", "", "comma separated feature columns (default: every column but id and label)")
		preset    = fs.String("preset", "", "forest preset: leaderboard or single-best")
		logLevel  = fs.String("log-level", "info", "debug, info, warn or error")
		logFormat = fs.String("log-format", "json", "json or console")
	)
	fs.StringVar(&cfg.TrainPath, "train", cfg.TrainPath, "labelled training table, or the combined table when -test is empty")
	fs.StringVar(&cfg.TestPath, "test", cfg.TestPath, "unlabelled test table")
	fs.StringVar(&cfg.IDColumn, "id", cfg.IDColumn, "passenger id column")
	fs.StringVar(&cfg.LabelColumn, "label", cfg.LabelColumn, "label column")
	fs.BoolVar(&cfg.Impute, "impute", cfg.Impute, "fill missing feature values with the training median")
	fs.StringVar(&cfg.Scaler, "scaler", cfg.Scaler, "standard, minmax or none")
	fs.IntVar(&cfg.NFolds, "folds", cfg.NFolds, "number of stratified folds")
	fs.BoolVar(&cfg.Shuffle, "shuffle", cfg.Shuffle, "shuffle each class before building folds")
	fs.IntVar(&cfg.FoldSeed, "fold-seed", cfg.FoldSeed, "seed of the fold shuffle")
	fs.IntVar(&cfg.NEstimators, "n-estimators", cfg.NEstimators, "trees per forest")
	fs.StringVar(&cfg.Criterion, "criterion", cfg.Criterion, "gini or entropy")
	fs.IntVar(&cfg.MaxDepth, "max-depth", cfg.MaxDepth, "maximum tree depth, 0 for unlimited")
	fs.IntVar(&cfg.MinSamplesSplit, "min-samples-split", cfg.MinSamplesSplit, "minimum samples to split a node")
	fs.IntVar(&cfg.MinSamplesLeaf, "min-samples-leaf", cfg.MinSamplesLeaf, "minimum samples in a leaf")
	fs.StringVar(&cfg.MaxFeatures, "max-features", cfg.MaxFeatures, "features per split: sqrt, auto, log2, all or a count")
	fs.BoolVar(&cfg.OOBScore, "oob-score", cfg.OOBScore, "compute the out-of-bag score")
	fs.IntVar(&cfg.NJobs, "n-jobs", cfg.NJobs, "tree fitting workers, <= 0 for all CPUs")
	fs.Int64Var(&cfg.RandomState, "random-state", cfg.RandomState, "forest seed")
	fs.Float64Var(&cfg.Threshold, "threshold", cfg.Threshold, "survival probability at or above which a passenger survives")
	fs.IntVar(&cfg.ROCPoints, "roc-points", cfg.ROCPoints, "FPR grid size of the mean ROC curve")
	fs.StringVar(&cfg.ROCPlotPath, "roc-plot", cfg.ROCPlotPath, "ROC plot output, empty to skip")
	fs.StringVar(&cfg.ImportancePlotPath, "importance-plot", cfg.ImportancePlotPath, "feature importance plot output, empty to skip")
	fs.StringVar(&cfg.SubmissionPath, "submission", cfg.SubmissionPath, "submission CSV output, empty to skip")
	fs.StringVar(&cfg.ProbabilitiesPath, "probabilities", cfg.ProbabilitiesPath, "per-fold test probability CSV output")
	fs.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "directory for the fold forests")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options]\n\nOptions:\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "error: unexpected arguments %v\n", fs.Args())
		fs.Usage()
		return 2
	}

	if err := log.SetupLogger(stderr, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	if *preset != "" {
		// explicit hyperparameter flags win over the preset
		explicit := map[string]string{}
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "n-estimators", "max-depth", "min-samples-split", "min-samples-leaf":
				explicit[f.Name] = f.Value.String()
			}
		})
		if err := cfg.ApplyPreset(*preset); err != nil {
			slog.Error("invalid preset", log.ErrAttr(err))
			return 2
		}
		for name, v := range explicit {
			_ = fs.Set(name, v)
		}
	}
	if *features != "" {
		for _, name := range strings.Split(*features, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Features = append(cfg.Features, name)
			}
		}
	}

	rep, err := pipeline.Run(ctx, cfg)
	if err != nil {
		attrs := []any{log.ErrAttr(err), slog.String(log.ErrorCodeKey, log.ErrorCode(err))}
		var invalid *errors.ValidationError
		if errors.As(err, &invalid) {
			attrs = append(attrs, slog.String(log.SuggestionKey, "check the -"+strings.ReplaceAll(invalid.ParamName, "_", "-")+" flag"))
		}
		slog.Error("titanicrf failed", attrs...)
		return 1
	}

	fmt.Fprintf(stdout, "OOF AUC %.4f, OOF accuracy %.4f, mean OOB score %.4f, mean fold AUC %.4f ± %.4f\n",
		rep.OOFAUC, rep.OOFAccuracy, rep.CV.MeanOOBScore(), rep.CV.MeanAUC(), rep.CV.StdAUC())
	if rep.TestRows > 0 {
		fmt.Fprintf(stdout, "%d of %d test passengers predicted to survive (%.1f%%)\n",
			rep.Survivors(), rep.TestRows, 100*rep.SurvivalRate())
	}
	for _, p := range rep.Written {
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}
	return 0
}
