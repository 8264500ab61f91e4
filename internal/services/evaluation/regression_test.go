package evaluation

import (
	"errors"
	"math"
	"testing"

	"OilCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegression(t *testing.T) {
	tests := []struct {
		name  string
		yTrue []float64
		yPred []float64
		want  models.RegressionMetrics
	}{
		{
			name:  "one miss",
			yTrue: []float64{1, 2, 3},
			yPred: []float64{1, 2, 4},
			want:  models.RegressionMetrics{MSE: 1.0 / 3, RMSE: math.Sqrt(1.0 / 3), MAE: 1.0 / 3, R2: 0.5},
		},
		{
			name:  "perfect",
			yTrue: []float64{10, 20, 30, 40},
			yPred: []float64{10, 20, 30, 40},
			want:  models.RegressionMetrics{MSE: 0, RMSE: 0, MAE: 0, R2: 1},
		},
		{
			name:  "mean predictor",
			yTrue: []float64{1, 3},
			yPred: []float64{2, 2},
			want:  models.RegressionMetrics{MSE: 1, RMSE: 1, MAE: 1, R2: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Regression(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.MSE, got.MSE, 1e-12)
			assert.InDelta(t, tt.want.RMSE, got.RMSE, 1e-12)
			assert.InDelta(t, tt.want.MAE, got.MAE, 1e-12)
			assert.InDelta(t, tt.want.R2, got.R2, 1e-12)
		})
	}
}

func TestRegressionShapeError(t *testing.T) {
	_, err := Regression([]float64{1, 2, 3}, []float64{1, 2})
	require.Error(t, err)

	var shapeErr *models.ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, 3, shapeErr.Want)
	assert.Equal(t, 2, shapeErr.Got)
}

func TestRegressionEmptyIsUndefined(t *testing.T) {
	got, err := Regression(nil, nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.MSE))
	assert.True(t, math.IsNaN(got.RMSE))
	assert.True(t, math.IsNaN(got.MAE))
	assert.True(t, math.IsNaN(got.R2))
}

func TestRegressionConstantTruth(t *testing.T) {
	got, err := Regression([]float64{5, 5, 5}, []float64{5, 5, 6})
	require.NoError(t, err)
	assert.True(t, math.IsInf(got.R2, -1))

	got, err = Regression([]float64{5, 5}, []float64{5, 5})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.R2))
}
