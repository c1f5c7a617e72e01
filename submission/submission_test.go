package submission

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/titanicrf/pkg/errors"
)

func TestPredictions(t *testing.T) {
	tests := []struct {
		name      string
		proba     []float64
		threshold float64
		want      []int
	}{
		{"threshold is inclusive", []float64{0.49, 0.5, 0.51}, 0.5, []int{0, 1, 1}},
		{"zero threshold", []float64{0, 0.2, 1}, 0, []int{1, 1, 1}},
		{"one threshold", []float64{0.99, 1, 0.3}, 1, []int{0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Predictions([]int{892, 893, 894}, tt.proba, tt.threshold)
			require.NoError(t, err)
			require.Len(t, rows, 3)
			for i, r := range rows {
				assert.Equal(t, 892+i, r.PassengerID)
				assert.Equal(t, tt.want[i], r.Survived)
			}
		})
	}
}

func TestPredictionsLengthMismatch(t *testing.T) {
	_, err := Predictions([]int{1, 2}, []float64{0.3}, 0.5)
	require.Error(t, err)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Row{{PassengerID: 892, Survived: 0}, {PassengerID: 893, Survived: 1}})
	require.NoError(t, err)
	assert.Equal(t, "PassengerId,Survived\n892,0\n893,1\n", buf.String())

	assert.ErrorIs(t, Write(&buf, nil), errors.ErrEmptyData)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "submissions.csv")
	require.NoError(t, WriteFile(path, []Row{{PassengerID: 1, Survived: 1}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PassengerId,Survived\n1,1\n", string(data))

	assert.Error(t, WriteFile("", nil))
}

func TestWriteProbabilities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proba.csv")
	proba := mat.NewDense(2, 2, []float64{0.25, 0.75, 0.5, 0.5})
	require.NoError(t, WriteProbabilities(path, []int{10, 11}, []string{"Fold_1_Prob_0", "Fold_1_Prob_1"}, proba))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PassengerId,Fold_1_Prob_0,Fold_1_Prob_1\n")
	assert.Contains(t, string(data), "10,0.25")

	err = WriteProbabilities(path, []int{10}, []string{"a", "b"}, proba)
	assert.Error(t, err)
	err = WriteProbabilities(path, []int{10, 11}, []string{"a"}, proba)
	assert.Error(t, err)
}
