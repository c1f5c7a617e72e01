// Package dataset loads the passenger feature table and shapes it into
// matrices. Tables are gota dataframes; every numeric column is handled as
// float64 so that missing values survive as NaN.
package dataset

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

// Cells equal to any of these strings are read as missing.
var nanValues = []string{"NA", "NaN", "<nil>", ""}

// LoadCSV reads a CSV with a header row, detecting column types.
func LoadCSV(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r, dataframe.NaNValues(nanValues))
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "read csv")
	}
	return df, nil
}

// LoadFile opens path and reads it with LoadCSV.
func LoadFile(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	df, err := LoadCSV(f)
	if err != nil {
		return df, errors.Wrapf(err, "load %s", path)
	}
	return df, nil
}

// LoadCombined reads the train and test files and stacks them. When testPath
// is empty, trainPath already holds the combined table.
func LoadCombined(trainPath, testPath string) (dataframe.DataFrame, error) {
	train, err := LoadFile(trainPath)
	if err != nil {
		return train, err
	}
	if testPath == "" {
		return floatColumns(train), nil
	}
	test, err := LoadFile(testPath)
	if err != nil {
		return test, err
	}
	return Combine(train, test)
}

// Combine stacks the rows of train and test. A column missing on one side,
// usually the label in test, is filled with NaN there. Numeric columns are
// converted to float on both sides first.
func Combine(train, test dataframe.DataFrame) (dataframe.DataFrame, error) {
	train = floatColumns(train)
	test = floatColumns(test)

	test = addMissing(test, train)
	train = addMissing(train, test)

	combined := train.RBind(test.Select(train.Names()))
	if combined.Err != nil {
		return combined, errors.Wrap(combined.Err, "combine train and test")
	}
	return combined, nil
}

// floatColumns converts every int and bool column to float.
func floatColumns(df dataframe.DataFrame) dataframe.DataFrame {
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() == series.Int || col.Type() == series.Bool {
			df = df.Mutate(series.New(col.Float(), series.Float, name))
		}
	}
	return df
}

// addMissing adds to df, as NaN columns, the columns of ref it lacks.
func addMissing(df, ref dataframe.DataFrame) dataframe.DataFrame {
	have := make(map[string]bool)
	for _, name := range df.Names() {
		have[name] = true
	}
	for _, name := range ref.Names() {
		if have[name] {
			continue
		}
		nan := make([]float64, df.Nrow())
		for i := range nan {
			nan[i] = math.NaN()
		}
		df = df.Mutate(series.New(nan, series.Float, name))
	}
	return df
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Split separates training rows, which carry a label, from test rows, which
// do not. Row order is kept on both sides.
func Split(df dataframe.DataFrame, label string) (train, test dataframe.DataFrame, err error) {
	if !hasColumn(df, label) {
		return train, test, errors.NewValueError("dataset.Split", fmt.Sprintf("label column %q not found", label))
	}
	var trainIdx, testIdx []int
	for i, missing := range df.Col(label).IsNaN() {
		if missing {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(trainIdx) == 0 {
		return train, test, errors.Wrapf(errors.ErrEmptyData, "dataset.Split: no row has a %q value", label)
	}

	train = df.Subset(trainIdx)
	test = df.Subset(testIdx)
	if train.Err != nil {
		return train, test, errors.Wrap(train.Err, "subset training rows")
	}
	if test.Err != nil {
		return train, test, errors.Wrap(test.Err, "subset test rows")
	}
	return train, test, nil
}

// Features selects the named columns. With no names, every column except
// those in exclude is selected.
func Features(df dataframe.DataFrame, names []string, exclude ...string) (dataframe.DataFrame, []string, error) {
	if len(names) == 0 {
		skip := make(map[string]bool, len(exclude))
		for _, e := range exclude {
			skip[e] = true
		}
		for _, n := range df.Names() {
			if !skip[n] {
				names = append(names, n)
			}
		}
	}
	for _, n := range names {
		if !hasColumn(df, n) {
			return df, nil, errors.NewValueError("dataset.Features", fmt.Sprintf("unknown feature column %q", n))
		}
	}
	sel := df.Select(names)
	if sel.Err != nil {
		return sel, nil, errors.Wrap(sel.Err, "select features")
	}
	return sel, names, nil
}

// ToMatrix returns the numeric contents of df as a dense matrix. String
// columns are an error.
func ToMatrix(df dataframe.DataFrame) (*mat.Dense, error) {
	r, c := df.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("dataset.ToMatrix", "empty table", errors.ErrEmptyData)
	}
	out := mat.NewDense(r, c, nil)
	for j, name := range df.Names() {
		col := df.Col(name)
		if col.Type() == series.String {
			return nil, errors.NewValueError("dataset.ToMatrix", fmt.Sprintf("column %q is not numeric", name))
		}
		out.SetCol(j, col.Float())
	}
	return out, nil
}

// Medians returns the median of the non-NaN values of every column. A column
// without any value gets 0.
func Medians(X mat.Matrix) []float64 {
	r, c := X.Dims()
	out := make([]float64, c)
	vals := make([]float64, 0, r)
	for j := 0; j < c; j++ {
		vals = vals[:0]
		for i := 0; i < r; i++ {
			if v := X.At(i, j); !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		m := len(vals) / 2
		if len(vals)%2 == 1 {
			out[j] = vals[m]
		} else {
			out[j] = (vals[m-1] + vals[m]) / 2
		}
	}
	return out
}

// ImputeWith replaces NaN cells of X in place with the value for their column
// and returns the number of cells replaced.
func ImputeWith(X *mat.Dense, fill []float64) (int, error) {
	r, c := X.Dims()
	if len(fill) != c {
		return 0, errors.NewDimensionError("dataset.ImputeWith", c, len(fill), 1)
	}
	replaced := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(X.At(i, j)) {
				X.Set(i, j, fill[j])
				replaced++
			}
		}
	}
	return replaced, nil
}

// Impute replaces NaN cells of X with the median of their column.
func Impute(X *mat.Dense) int {
	n, _ := ImputeWith(X, Medians(X))
	return n
}

// Labels returns the label column as an n x 1 matrix. Labels must be 0 or 1.
func Labels(df dataframe.DataFrame, label string) (*mat.Dense, error) {
	if !hasColumn(df, label) {
		return nil, errors.NewValueError("dataset.Labels", fmt.Sprintf("label column %q not found", label))
	}
	values := df.Col(label).Float()
	for i, v := range values {
		if v != 0 && v != 1 {
			return nil, errors.NewValueError("dataset.Labels", fmt.Sprintf("label at row %d is %v, want 0 or 1", i, v))
		}
	}
	if len(values) == 0 {
		return nil, errors.NewModelError("dataset.Labels", "empty table", errors.ErrEmptyData)
	}
	return mat.NewDense(len(values), 1, values), nil
}

// IDs returns the integer passenger ids of df.
func IDs(df dataframe.DataFrame, idColumn string) ([]int, error) {
	if !hasColumn(df, idColumn) {
		return nil, errors.NewValueError("dataset.IDs", fmt.Sprintf("id column %q not found", idColumn))
	}
	values := df.Col(idColumn).Float()
	ids := make([]int, len(values))
	for i, v := range values {
		if math.IsNaN(v) || v != math.Trunc(v) {
			return nil, errors.NewValueError("dataset.IDs", fmt.Sprintf("id at row %d is %v, want an integer", i, v))
		}
		ids[i] = int(v)
	}
	return ids, nil
}
