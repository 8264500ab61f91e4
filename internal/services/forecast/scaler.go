package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"OilCast/internal/domain/models"
)

// StandardScaler centers each column on its training mean and divides by its
// training standard deviation (population, ddof=0). Zero-variance columns
// keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardScaler learns column means and scales from X.
func FitStandardScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit scaler: no rows")
	}
	p := len(X[0])
	for _, row := range X {
		if len(row) != p {
			return nil, &models.ShapeError{What: "columns", Want: p, Got: len(row)}
		}
	}
	s := &StandardScaler{Mean: make([]float64, p), Scale: make([]float64, p)}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		s.Mean[j], s.Scale[j] = mean, sd
	}
	return s, nil
}

// Transform returns a scaled copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Mean) {
			return nil, &models.ShapeError{What: "columns", Want: len(s.Mean), Got: len(row)}
		}
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out, nil
}
