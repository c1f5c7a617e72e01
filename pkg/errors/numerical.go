package errors

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
)

// NonFiniteError reports NaN or Inf values found where finite numbers are required,
// typically in a feature matrix handed to Fit or Predict.
type NonFiniteError struct {
	Operation string
	Row       int
	Col       int
	Value     float64
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("titanicrf: %s: non-finite value %v at row %d, column %d", e.Operation, e.Value, e.Row, e.Col)
}

// CheckMatrix returns a NonFiniteError for the first NaN or Inf cell of matrix.
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols int) error {
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := matrix.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.WithStack(&NonFiniteError{Operation: operation, Row: i, Col: j, Value: v})
			}
		}
	}
	return nil
}

// SafeDivide performs division with protection against division by zero.
// Returns 0 if denominator is zero or close to zero.
func SafeDivide(numerator, denominator float64) float64 {
	if math.Abs(denominator) < 1e-10 {
		return 0
	}
	return numerator / denominator
}

// ClipValue clips a value to the range [min, max].
func ClipValue(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
