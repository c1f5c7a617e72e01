// Package metrics は二値分類の評価指標を提供する。
// ROC曲線の計算は gonum/stat、面積は gonum/integrate に委ねる。
package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// logLossEps は対数損失の計算で確率をクリップする幅
const logLossEps = 1e-15

// ROC は受信者動作特性曲線。FPR は非減少で、(0,0) から (1,1) まで続く。
// TPR[i], FPR[i] はスコアが Thresholds[i] 以上を陽性とした場合の率。
type ROC struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64
	AUC        float64
}

// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 || yPred.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// binaryLabels はラベルが0/1のみであることを確認し、陽性・陰性の数を返す
func binaryLabels(op string, yTrue *mat.VecDense) (pos, neg int, err error) {
	for i := 0; i < yTrue.Len(); i++ {
		switch yTrue.AtVec(i) {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return 0, 0, errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return pos, neg, nil
}

// Accuracy は正解率を計算する。多クラスのラベルにも使える。
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationError は誤分類率 (1 - 正解率) を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

// BinaryLogLoss は二値分類の対数損失を計算する。
// yPred は陽性クラスの確率で、[eps, 1-eps] にクリップされる。
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	if _, _, err := binaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yPred.AtVec(i), logLossEps, 1-logLossEps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ConfusionMatrix は二値分類の混同行列 [[TN, FP], [FN, TP]] を返す
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if _, _, err := binaryLabels("ConfusionMatrix", yTrue); err != nil {
		return nil, err
	}
	if _, _, err := binaryLabels("ConfusionMatrix", yPred); err != nil {
		return nil, err
	}

	cm := mat.NewDense(2, 2, nil)
	for i := 0; i < n; i++ {
		r, c := int(yTrue.AtVec(i)), int(yPred.AtVec(i))
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, nil
}

// PrecisionRecallF1 は陽性クラス(1)の適合率・再現率・F1を計算する。
// 分母が0になる指標は0とし、UndefinedMetricWarningを出す。
func PrecisionRecallF1(yTrue, yPred *mat.VecDense) (precision, recall, f1 float64, err error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, 0, 0, err
	}
	tp, fp, fn := cm.At(1, 1), cm.At(0, 1), cm.At(1, 0)

	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted positives", 0))
	} else {
		precision = tp / (tp + fp)
	}
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true positives", 0))
	} else {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1, nil
}

// ROCCurve はスコアからROC曲線を計算する。
// ラベルは0/1で、両方のクラスを含む必要がある（片方のみの場合は ErrSingleClass）。
func ROCCurve(yTrue, scores *mat.VecDense) (ROC, error) {
	n, err := checkPair("ROCCurve", yTrue, scores)
	if err != nil {
		return ROC{}, err
	}
	pos, neg, err := binaryLabels("ROCCurve", yTrue)
	if err != nil {
		return ROC{}, err
	}
	if pos == 0 || neg == 0 {
		return ROC{}, errors.Wrapf(errors.ErrSingleClass, "ROCCurve: %d positive, %d negative", pos, neg)
	}

	y := make([]float64, n)
	classes := make([]bool, n)
	for i := 0; i < n; i++ {
		y[i] = scores.AtVec(i)
		classes[i] = yTrue.AtVec(i) == 1
	}
	if err := errors.CheckMatrix("ROCCurve", scores, n, 1); err != nil {
		return ROC{}, err
	}
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)
	if !sort.Float64sAreSorted(fpr) {
		floats.Reverse(fpr)
		floats.Reverse(tpr)
		floats.Reverse(thresh)
	}

	return ROC{
		FPR:        fpr,
		TPR:        tpr,
		Thresholds: thresh,
		AUC:        integrate.Trapezoidal(fpr, tpr),
	}, nil
}

// AUC はROC曲線下面積を台形則で計算する。
// 片方のクラスしか含まない場合は 0.5 を返し、UndefinedMetricWarning を出す。
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	roc, err := ROCCurve(yTrue, yPred)
	if errors.Is(err, errors.ErrSingleClass) {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	if err != nil {
		return 0, err
	}
	return roc.AUC, nil
}

// AUCMatrix は行列の1列目同士でAUCを計算する
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	if d, ok := yTrue.(*mat.Dense); ok && d.IsEmpty() {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	if d, ok := yPred.(*mat.Dense); ok && d.IsEmpty() {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	rTrue, _ := yTrue.Dims()
	rPred, _ := yPred.Dims()
	if rTrue != rPred {
		return 0, errors.NewDimensionError("AUCMatrix", rTrue, rPred, 0)
	}
	return AUC(mat.NewVecDense(rTrue, mat.Col(nil, 0, yTrue)), mat.NewVecDense(rPred, mat.Col(nil, 0, yPred)))
}

// InterpolateTPR はROC曲線のTPRを共通のFPRグリッド上で線形補間する。
// 同じFPRが続く垂直区間では、その点ちょうどでは最大のTPR、区間の間では
// 左端の最後の点と右端の最初の点を結ぶ。grid上の FPR=0 では TPR=0 とする。
func InterpolateTPR(roc ROC, grid []float64) ([]float64, error) {
	n := len(roc.FPR)
	if n < 2 || n != len(roc.TPR) {
		return nil, errors.NewValueError("InterpolateTPR", "ROC curve needs at least two points")
	}
	if !sort.Float64sAreSorted(roc.FPR) {
		return nil, errors.NewValueError("InterpolateTPR", "FPR must be non-decreasing")
	}

	out := make([]float64, len(grid))
	for i, x := range grid {
		if x <= 0 {
			continue
		}
		// hi is the first point strictly right of x
		hi := sort.Search(n, func(k int) bool { return roc.FPR[k] > x })
		switch {
		case hi == 0:
			out[i] = roc.TPR[0]
		case hi == n:
			out[i] = roc.TPR[n-1]
		case roc.FPR[hi-1] == x:
			out[i] = roc.TPR[hi-1]
		default:
			lo := hi - 1
			w := (x - roc.FPR[lo]) / (roc.FPR[hi] - roc.FPR[lo])
			out[i] = roc.TPR[lo] + w*(roc.TPR[hi]-roc.TPR[lo])
		}
	}
	return out, nil
}

// FPRGrid は [0,1] を n 点で等分したグリッドを返す
func FPRGrid(n int) []float64 {
	return floats.Span(make([]float64, n), 0, 1)
}
