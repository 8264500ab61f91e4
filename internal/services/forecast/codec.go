package forecast

import (
	"encoding/json"
	"fmt"

	domsvc "OilCast/internal/domain/service"
)

// Predictor kinds stored in model artifacts.
const (
	KindLinear = "linear_regression"
	KindForest = "random_forest"
	KindMLP    = "mlp"
)

type envelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// EncodePredictor serializes a fitted predictor into a self-describing document.
func EncodePredictor(p domsvc.Predictor) ([]byte, error) {
	var kind string
	switch p.(type) {
	case *Linear:
		kind = KindLinear
	case *Forest:
		kind = KindForest
	case *MLP:
		kind = KindMLP
	default:
		return nil, fmt.Errorf("encode predictor: unsupported type %T", p)
	}
	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode predictor: %w", err)
	}
	return json.Marshal(envelope{Kind: kind, Params: params})
}

// DecodePredictor restores a predictor written by EncodePredictor.
func DecodePredictor(data []byte) (domsvc.Predictor, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode predictor: %w", err)
	}
	var p domsvc.Predictor
	switch env.Kind {
	case KindLinear:
		p = &Linear{}
	case KindForest:
		p = &Forest{}
	case KindMLP:
		p = &MLP{}
	default:
		return nil, fmt.Errorf("decode predictor: unknown kind %q", env.Kind)
	}
	if err := json.Unmarshal(env.Params, p); err != nil {
		return nil, fmt.Errorf("decode predictor %s: %w", env.Kind, err)
	}
	return p, nil
}
