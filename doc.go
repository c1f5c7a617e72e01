// Package titanicrf predicts Titanic passenger survival with a random forest
// evaluated by stratified k-fold cross-validation.
//
// Each fold fits a fresh forest on its training rows and records its
// out-of-bag score. It then scores the held-out rows (ROC curve and AUC) and
// predicts the test passengers. The fold test probabilities are averaged into
// the submission. The fold ROC curves and mean feature importances are
// plotted with gonum/plot.
//
// # Quick Start
//
//	cfg := pipeline.DefaultConfig()
//	cfg.TrainPath = "data/train.csv"
//	cfg.TestPath = "data/test.csv"
//	cfg.Features = []string{"Pclass", "Sex", "Age", "Fare"}
//
//	rep, err := pipeline.Run(ctx, cfg)
//	if err != nil {
//	    slog.Error("run failed", log.ErrAttr(err))
//	    return
//	}
//	fmt.Printf("mean AUC %.3f ± %.3f\n", rep.CV.MeanAUC(), rep.CV.StdAUC())
//
// or from the command line:
//
//	titanicrf -train data/train.csv -test data/test.csv -preset single-best
//
// # Packages
//
//   - dataset: CSV loading with gota, train/test split by label presence, matrices
//   - preprocessing: StandardScaler and MinMaxScaler
//   - sklearn/tree: CART decision tree classifier
//   - sklearn/ensemble: RandomForestClassifier with OOB score and feature importances
//   - sklearn/model_selection: KFold and StratifiedKFold
//   - metrics: accuracy, log loss, ROC curve, AUC, mean ROC
//   - pipeline: Config, CrossValidate and Run
//   - report: ROC and feature importance plots
//   - submission: PassengerId,Survived CSV
//   - core/model: estimator interfaces, fitted state, gob persistence
//   - core/parallel: goroutine fan-out used for tree fitting
//   - pkg/errors, pkg/log: typed errors and structured logging
package titanicrf
