// Package report draws the cross-validation diagnostics with gonum/plot.
// The image format follows the file extension: .png, .svg, .pdf, .eps, .jpg
// or .tif.
package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/titanicrf/metrics"
	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// ROCSource provides the fold curves to plot. pipeline.CVResult implements it.
type ROCSource interface {
	FoldROCs() []metrics.ROC
	MeanCurve() (metrics.MeanROC, error)
	StdAUC() float64
}

// ImportanceSource provides feature names with their mean importance, most
// important first. pipeline.CVResult implements it.
type ImportanceSource interface {
	ImportanceTable() ([]string, []float64)
}

var (
	chanceColor = color.RGBA{R: 220, A: 200}
	meanColor   = color.RGBA{B: 220, A: 220}
	bandColor   = color.RGBA{R: 128, G: 128, B: 128, A: 50}
	barColor    = color.RGBA{R: 76, G: 114, B: 176, A: 255}
)

// PlotROC draws one ROC curve per fold, the mean curve with a one standard
// deviation band, and the chance diagonal.
func PlotROC(src ROCSource, path string) error {
	rocs := src.FoldROCs()
	if len(rocs) == 0 {
		return errors.NewValueError("report.PlotROC", "no fold ROC curves")
	}
	mean, err := src.MeanCurve()
	if err != nil {
		return errors.Wrap(err, "mean ROC curve")
	}

	p := plot.New()
	p.Title.Text = "ROC Curves of Folds"
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = -0.05, 1.05
	p.Y.Min, p.Y.Max = -0.05, 1.05
	p.Legend.Top = false
	p.Add(plotter.NewGrid())

	for i, roc := range rocs {
		l, err := plotter.NewLine(xys(roc.FPR, roc.TPR))
		if err != nil {
			return errors.Wrapf(err, "fold %d ROC line", i+1)
		}
		l.LineStyle.Width = vg.Points(1)
		l.LineStyle.Color = fade(plotutil.Color(i), 110)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("ROC Fold %d (AUC = %.3f)", i+1, roc.AUC), l)
	}

	chance, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "chance line")
	}
	chance.LineStyle.Width = vg.Points(2)
	chance.LineStyle.Color = chanceColor
	chance.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(chance)
	p.Legend.Add("Random Guessing", chance)

	band, err := stdBand(mean)
	if err != nil {
		return err
	}
	p.Add(band)

	meanLine, err := plotter.NewLine(xys(mean.FPR, mean.TPR))
	if err != nil {
		return errors.Wrap(err, "mean ROC line")
	}
	meanLine.LineStyle.Width = vg.Points(2)
	meanLine.LineStyle.Color = meanColor
	p.Add(meanLine)
	p.Legend.Add(fmt.Sprintf("Mean ROC (AUC = %.3f ± %.3f)", mean.AUC, src.StdAUC()), meanLine)
	p.Legend.Add("± 1 std. dev.", band)

	return save(p, 10*vg.Inch, 10*vg.Inch, path)
}

// stdBand is the polygon between the lower and upper mean TPR bounds.
func stdBand(mean metrics.MeanROC) (*plotter.Polygon, error) {
	n := len(mean.FPR)
	ring := make(plotter.XYs, 0, 2*n)
	for i := 0; i < n; i++ {
		ring = append(ring, plotter.XY{X: mean.FPR[i], Y: mean.Upper[i]})
	}
	for i := n - 1; i >= 0; i-- {
		ring = append(ring, plotter.XY{X: mean.FPR[i], Y: mean.Lower[i]})
	}
	poly, err := plotter.NewPolygon(ring)
	if err != nil {
		return nil, errors.Wrap(err, "std band")
	}
	poly.Color = bandColor
	poly.LineStyle.Width = 0
	return poly, nil
}

// PlotFeatureImportance draws a horizontal bar per feature, the most
// important at the top.
func PlotFeatureImportance(src ImportanceSource, path string) error {
	names, values := src.ImportanceTable()
	if len(names) == 0 || len(names) != len(values) {
		return errors.NewValueError("report.PlotFeatureImportance", "no feature importances")
	}

	// bars are laid out bottom-up
	n := len(values)
	bars := make(plotter.Values, n)
	labels := make([]string, n)
	for i := range values {
		bars[n-1-i] = values[i]
		labels[n-1-i] = names[i]
	}

	p := plot.New()
	p.Title.Text = "Random Forest Classifier Mean Feature Importance Between Folds"
	p.X.Label.Text = "Mean importance"
	p.X.Min = 0

	chart, err := plotter.NewBarChart(bars, vg.Points(14))
	if err != nil {
		return errors.Wrap(err, "importance bars")
	}
	chart.Horizontal = true
	chart.Color = barColor
	chart.LineStyle.Width = 0
	p.Add(chart, plotter.NewGrid())
	p.NominalY(labels...)

	height := vg.Length(n) * 0.4 * vg.Inch
	if height < 4*vg.Inch {
		height = 4 * vg.Inch
	}
	return save(p, 10*vg.Inch, height, path)
}

func xys(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	return pts
}

func fade(c color.Color, alpha uint8) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: alpha}
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if path == "" {
		return errors.NewValidationError("path", "output path is required", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save plot %s", path)
	}
	return nil
}
