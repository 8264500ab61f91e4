package service

// Predictor maps feature rows to next-day close predictions. Rows must have
// the column order the predictor was trained with.
type Predictor interface {
	Predict(X [][]float64) ([]float64, error)
}

// Transformer rescales feature rows using parameters fixed at training time.
type Transformer interface {
	Transform(X [][]float64) ([][]float64, error)
}

// Learner fits a Predictor on training rows.
type Learner interface {
	Fit(X [][]float64, y []float64) (Predictor, error)
}
