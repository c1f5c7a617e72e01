package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

const trainCSV = `PassengerId,Survived,Pclass,Sex,Age,Fare
1,0,3,1,22,7.25
2,1,1,0,38,71.2833
3,1,3,0,,7.925
4,1,1,0,35,53.1
5,0,3,1,35,8.05
`

const testCSV = `PassengerId,Pclass,Sex,Age,Fare
892,3,1,34.5,7.8292
893,3,0,47,
`

func TestLoadAndCombine(t *testing.T) {
	train, err := LoadCSV(strings.NewReader(trainCSV))
	require.NoError(t, err)
	test, err := LoadCSV(strings.NewReader(testCSV))
	require.NoError(t, err)

	df, err := Combine(train, test)
	require.NoError(t, err)
	assert.Equal(t, 7, df.Nrow())
	assert.Equal(t, train.Names(), df.Names())

	survived := df.Col("Survived").Float()
	assert.True(t, math.IsNaN(survived[5]))
	assert.True(t, math.IsNaN(survived[6]))

	tr, te, err := Split(df, "Survived")
	require.NoError(t, err)
	assert.Equal(t, 5, tr.Nrow())
	assert.Equal(t, 2, te.Nrow())
	assert.Equal(t, df.Nrow(), tr.Nrow()+te.Nrow())

	ids, err := IDs(te, "PassengerId")
	require.NoError(t, err)
	assert.Equal(t, []int{892, 893}, ids)
}

func TestLoadCombined_Files(t *testing.T) {
	dir := t.TempDir()
	trainPath := filepath.Join(dir, "train.csv")
	testPath := filepath.Join(dir, "test.csv")
	require.NoError(t, os.WriteFile(trainPath, []byte(trainCSV), 0o644))
	require.NoError(t, os.WriteFile(testPath, []byte(testCSV), 0o644))

	df, err := LoadCombined(trainPath, testPath)
	require.NoError(t, err)
	assert.Equal(t, 7, df.Nrow())

	single, err := LoadCombined(trainPath, "")
	require.NoError(t, err)
	assert.Equal(t, 5, single.Nrow())

	_, err = LoadCombined(filepath.Join(dir, "missing.csv"), "")
	assert.Error(t, err)
}

func TestSplit_Errors(t *testing.T) {
	df, err := LoadCSV(strings.NewReader(testCSV))
	require.NoError(t, err)

	_, _, err = Split(df, "Survived")
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))

	unlabelled := dataframe.New(series.New([]float64{math.NaN(), math.NaN()}, series.Float, "Survived"))
	_, _, err = Split(unlabelled, "Survived")
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestFeaturesAndMatrix(t *testing.T) {
	df, err := LoadCSV(strings.NewReader(trainCSV))
	require.NoError(t, err)

	sel, names, err := Features(df, nil, "PassengerId", "Survived")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pclass", "Sex", "Age", "Fare"}, names)

	X, err := ToMatrix(sel)
	require.NoError(t, err)
	r, c := X.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 4, c)
	assert.True(t, math.IsNaN(X.At(2, 2)))

	_, _, err = Features(df, []string{"Pclass", "Title"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Title")

	strDF, err := LoadCSV(strings.NewReader("Name,Age\nBraund,22\nCumings,38\n"))
	require.NoError(t, err)
	_, err = ToMatrix(strDF)
	assert.Error(t, err)
}

func TestImpute(t *testing.T) {
	nan := math.NaN()
	X := mat.NewDense(4, 2, []float64{
		1, nan,
		nan, 4,
		3, 2,
		10, nan,
	})

	med := Medians(X)
	assert.Equal(t, []float64{3, 3}, med)

	n := Impute(X)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3.0, X.At(1, 0))
	assert.Equal(t, 3.0, X.At(0, 1))

	_, err := ImputeWith(X, []float64{1})
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	df, err := LoadCSV(strings.NewReader(trainCSV))
	require.NoError(t, err)

	y, err := Labels(df, "Survived")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 1, 0}, mat.Col(nil, 0, y))

	bad, err := LoadCSV(strings.NewReader("Survived\n0\n2\n"))
	require.NoError(t, err)
	_, err = Labels(bad, "Survived")
	assert.Error(t, err)
}
