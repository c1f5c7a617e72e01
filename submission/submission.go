// Package submission turns the averaged survival probabilities into the
// competition CSV.
package submission

import (
	"io"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// Column names of the submission file.
const (
	IDColumn       = "PassengerId"
	SurvivedColumn = "Survived"
)

// Row is one line of the submission.
type Row struct {
	PassengerID int
	Survived    int
}

// Predictions labels a passenger as survived when its probability is at
// least threshold.
func Predictions(ids []int, proba []float64, threshold float64) ([]Row, error) {
	if len(ids) != len(proba) {
		return nil, errors.NewDimensionError("submission.Predictions", len(ids), len(proba), 0)
	}
	rows := make([]Row, len(ids))
	for i, id := range ids {
		rows[i] = Row{PassengerID: id}
		if proba[i] >= threshold {
			rows[i].Survived = 1
		}
	}
	return rows, nil
}

// Frame returns rows as a two column dataframe.
func Frame(rows []Row) dataframe.DataFrame {
	ids := make([]int, len(rows))
	survived := make([]int, len(rows))
	for i, r := range rows {
		ids[i] = r.PassengerID
		survived[i] = r.Survived
	}
	return dataframe.New(
		series.New(ids, series.Int, IDColumn),
		series.New(survived, series.Int, SurvivedColumn),
	)
}

// Write writes the header and one line per row.
func Write(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "submission.Write")
	}
	if err := Frame(rows).WriteCSV(w); err != nil {
		return errors.Wrap(err, "write submission")
	}
	return nil
}

// WriteFile writes rows to path, creating its directory.
func WriteFile(path string, rows []Row) error {
	return writeFile(path, func(w io.Writer) error { return Write(w, rows) })
}

// WriteProbabilities writes one column per name of proba next to the ids,
// e.g. the per-fold class probabilities.
func WriteProbabilities(path string, ids []int, names []string, proba *mat.Dense) error {
	r, c := proba.Dims()
	if r != len(ids) {
		return errors.NewDimensionError("submission.WriteProbabilities", len(ids), r, 0)
	}
	if c != len(names) {
		return errors.NewDimensionError("submission.WriteProbabilities", len(names), c, 1)
	}
	cols := make([]series.Series, 0, c+1)
	cols = append(cols, series.New(ids, series.Int, IDColumn))
	for j, name := range names {
		cols = append(cols, series.New(mat.Col(nil, j, proba), series.Float, name))
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		return errors.Wrap(df.Err, "build probability table")
	}
	return writeFile(path, func(w io.Writer) error {
		if err := df.WriteCSV(w); err != nil {
			return errors.Wrap(err, "write probabilities")
		}
		return nil
	})
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	if path == "" {
		return errors.NewValidationError("path", "output path is required", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "close %s", path)
		}
	}()
	if err := write(f); err != nil {
		return errors.Wrap(err, path)
	}
	return nil
}
