package metrics

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// MeanROC is the average of several ROC curves on a shared FPR grid.
type MeanROC struct {
	FPR []float64
	TPR []float64
	// Std is the population standard deviation of the interpolated TPRs.
	Std []float64
	// Lower and Upper are TPR -/+ Std clipped to [0, 1].
	Lower []float64
	Upper []float64
	// AUC is the area under the mean curve, not the mean of the fold AUCs.
	AUC float64
}

// MeanROCCurve interpolates every curve on a grid of points FPR values,
// averages them and pins the last mean TPR to 1.
func MeanROCCurve(rocs []ROC, points int) (MeanROC, error) {
	if len(rocs) == 0 {
		return MeanROC{}, errors.NewValueError("MeanROCCurve", "no ROC curves")
	}
	if points < 2 {
		return MeanROC{}, errors.NewValidationError("points", "must be >= 2", points)
	}

	grid := FPRGrid(points)
	interpolated := make([][]float64, len(rocs))
	for k, roc := range rocs {
		tpr, err := InterpolateTPR(roc, grid)
		if err != nil {
			return MeanROC{}, errors.Wrapf(err, "curve %d", k+1)
		}
		interpolated[k] = tpr
	}

	m := MeanROC{
		FPR:   grid,
		TPR:   make([]float64, points),
		Std:   make([]float64, points),
		Lower: make([]float64, points),
		Upper: make([]float64, points),
	}
	at := make([]float64, len(rocs))
	for i := range grid {
		for k := range interpolated {
			at[k] = interpolated[k][i]
		}
		m.TPR[i], m.Std[i] = stat.PopMeanStdDev(at, nil)
	}
	m.TPR[points-1] = 1
	for i := range grid {
		m.Lower[i] = math.Max(m.TPR[i]-m.Std[i], 0)
		m.Upper[i] = math.Min(m.TPR[i]+m.Std[i], 1)
	}
	m.AUC = integrate.Trapezoidal(m.FPR, m.TPR)
	return m, nil
}
