// Package evaluation computes regression error metrics.
package evaluation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"OilCast/internal/domain/models"
)

// Regression returns MSE, RMSE, MAE and R² for yTrue against yPred.
//
// Empty inputs produce NaN for every metric (the mean of nothing is
// undefined). R² follows 1 - SS_res/SS_tot literally, so a constant yTrue
// yields NaN (perfect fit) or -Inf. Callers show such values as "no data"
// rather than substituting a number.
func Regression(yTrue, yPred []float64) (models.RegressionMetrics, error) {
	if len(yTrue) != len(yPred) {
		return models.RegressionMetrics{}, &models.ShapeError{What: "y_pred", Want: len(yTrue), Got: len(yPred)}
	}
	if len(yTrue) == 0 {
		nan := math.NaN()
		return models.RegressionMetrics{MSE: nan, RMSE: nan, MAE: nan, R2: nan}, nil
	}
	n := float64(len(yTrue))

	resid := make([]float64, len(yTrue))
	floats.SubTo(resid, yTrue, yPred)
	ssRes := floats.Dot(resid, resid)

	dev := make([]float64, len(yTrue))
	copy(dev, yTrue)
	floats.AddConst(-stat.Mean(yTrue, nil), dev)
	ssTot := floats.Dot(dev, dev)

	mse := ssRes / n
	return models.RegressionMetrics{
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		MAE:  floats.Norm(resid, 1) / n,
		R2:   1 - ssRes/ssTot,
	}, nil
}
