package forecast

import (
	"fmt"

	"OilCast/internal/domain/models"
	domsvc "OilCast/internal/domain/service"
)

// Bundle binds a fitted predictor to the scaler and schema it was trained
// with. Scaler parameters are fixed; Predict never refits them.
type Bundle struct {
	Spec models.ModelSpec
	Meta *models.ModelMeta

	predictor domsvc.Predictor
	scaler    domsvc.Transformer
}

// NewBundle wraps p and an optional scaler (nil for unscaled models).
func NewBundle(spec models.ModelSpec, meta *models.ModelMeta, p domsvc.Predictor, scaler domsvc.Transformer) (*Bundle, error) {
	if p == nil {
		return nil, fmt.Errorf("bundle %s: nil predictor", spec.ID)
	}
	if spec.Scaled && scaler == nil {
		return nil, fmt.Errorf("bundle %s: model requires a scaler", spec.ID)
	}
	return &Bundle{Spec: spec, Meta: meta, predictor: p, scaler: scaler}, nil
}

// Scaled reports whether inputs are transformed before prediction.
func (b *Bundle) Scaled() bool { return b.scaler != nil }

// FeatureCols returns the training column order recorded in metadata, or nil.
func (b *Bundle) FeatureCols() []string {
	if b.Meta == nil {
		return nil
	}
	return b.Meta.FeatureCols
}

func (b *Bundle) Predict(X [][]float64) ([]float64, error) {
	if len(X) == 0 {
		return []float64{}, nil
	}
	in := X
	if b.scaler != nil {
		var err error
		if in, err = b.scaler.Transform(X); err != nil {
			return nil, fmt.Errorf("%s: scale: %w", b.Spec.ID, err)
		}
	}
	out, err := b.predictor.Predict(in)
	if err != nil {
		return nil, fmt.Errorf("%s: predict: %w", b.Spec.ID, err)
	}
	return out, nil
}
