package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"OilCast/internal/domain/models"
	domsvc "OilCast/internal/domain/service"
)

// Linear is an ordinary least squares model y = X·Coef + Intercept.
type Linear struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (m *Linear) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(m.Coef) {
			return nil, &models.ShapeError{What: "columns", Want: len(m.Coef), Got: len(row)}
		}
		y := m.Intercept
		for j, v := range row {
			y += m.Coef[j] * v
		}
		out[i] = y
	}
	return out, nil
}

// LinearLearner fits Linear by solving the centered normal equations.
// Ridge adds λ·trace/p to the diagonal; a tiny default keeps nearly
// collinear price columns solvable.
type LinearLearner struct {
	Ridge float64
}

func (l LinearLearner) Fit(X [][]float64, y []float64) (domsvc.Predictor, error) {
	return FitLinear(X, y, l.Ridge)
}

// FitLinear returns the least squares fit of y on X.
func FitLinear(X [][]float64, y []float64, ridge float64) (*Linear, error) {
	n := len(X)
	if n == 0 {
		return nil, fmt.Errorf("fit linear: no rows")
	}
	if len(y) != n {
		return nil, &models.ShapeError{What: "y", Want: n, Got: len(y)}
	}
	p := len(X[0])
	for _, row := range X {
		if len(row) != p {
			return nil, &models.ShapeError{What: "columns", Want: p, Got: len(row)}
		}
	}
	yMean := stat.Mean(y, nil)
	if p == 0 {
		return &Linear{Coef: []float64{}, Intercept: yMean}, nil
	}

	xMean := make([]float64, p)
	xc := mat.NewDense(n, p, nil)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		xMean[j] = stat.Mean(col, nil)
		floats.AddConst(-xMean[j], col)
		xc.SetCol(j, col)
	}
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	// A = XcᵀXc, b = Xcᵀyc
	var A mat.Dense
	A.Mul(xc.T(), xc)
	if ridge > 0 {
		lambda := ridge * mat.Trace(&A) / float64(p)
		for j := 0; j < p; j++ {
			A.Set(j, j, A.At(j, j)+lambda)
		}
	}
	var b mat.VecDense
	b.MulVec(xc.T(), yc)

	var sol mat.VecDense
	if err := sol.SolveVec(&A, &b); err != nil {
		return nil, fmt.Errorf("fit linear: %w", err)
	}
	coef := make([]float64, p)
	for j := range coef {
		coef[j] = sol.AtVec(j)
	}
	return &Linear{Coef: coef, Intercept: yMean - floats.Dot(coef, xMean)}, nil
}
