package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ModelID identifies one of the pre-trained forecasting models.
type ModelID string

const (
	ModelMLRJustBrent ModelID = "mlr_justbrent"
	ModelRandomForest ModelID = "rf"
	ModelNeuralNet    ModelID = "nn"
)

// SchemaID names a feature schema.
type SchemaID string

const (
	SchemaJustBrent        SchemaID = "just_brent"
	SchemaBrentWTI         SchemaID = "brent_wti"
	SchemaBrentWTIExtended SchemaID = "brent_wti_extended"
)

// SplitKind selects the chronological partitioning used for a model.
type SplitKind string

const (
	SplitThreeWay SplitKind = "train_val_test"
	SplitTwoWay   SplitKind = "train_test"
)

// ModelSpec describes how a model consumes data.
type ModelSpec struct {
	ID          ModelID   `json:"id"`
	DisplayName string    `json:"display_name"`
	Schema      SchemaID  `json:"schema"`
	Split       SplitKind `json:"split"`
	Scaled      bool      `json:"scaled"`
}

var registry = []ModelSpec{
	{ID: ModelMLRJustBrent, DisplayName: "MLR (JustBrent)", Schema: SchemaJustBrent, Split: SplitThreeWay, Scaled: true},
	{ID: ModelRandomForest, DisplayName: "Random Forest Regressor", Schema: SchemaBrentWTIExtended, Split: SplitTwoWay, Scaled: false},
	{ID: ModelNeuralNet, DisplayName: "Neural Network (MLPRegressor)", Schema: SchemaBrentWTI, Split: SplitThreeWay, Scaled: true},
}

// Registry returns every known model in display order.
func Registry() []ModelSpec {
	out := make([]ModelSpec, len(registry))
	copy(out, registry)
	return out
}

// LookupModel returns the spec for id.
func LookupModel(id ModelID) (ModelSpec, error) {
	for _, m := range registry {
		if m.ID == id {
			return m, nil
		}
	}
	return ModelSpec{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
}

// ParseModelID validates a raw model identifier.
func ParseModelID(s string) (ModelID, error) {
	m, err := LookupModel(ModelID(s))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// RegressionMetrics holds standard error metrics for one split. Values may be
// NaN for empty inputs; they serialize as JSON null.
type RegressionMetrics struct {
	MSE  float64
	RMSE float64
	MAE  float64
	R2   float64
}

type metricsJSON struct {
	MSE  *float64 `json:"MSE"`
	RMSE *float64 `json:"RMSE"`
	MAE  *float64 `json:"MAE"`
	R2   *float64 `json:"R2"`
}

func (m RegressionMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		MSE:  Finite(m.MSE),
		RMSE: Finite(m.RMSE),
		MAE:  Finite(m.MAE),
		R2:   Finite(m.R2),
	})
}

func (m *RegressionMetrics) UnmarshalJSON(b []byte) error {
	var raw metricsJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.MSE = orNaN(raw.MSE)
	m.RMSE = orNaN(raw.RMSE)
	m.MAE = orNaN(raw.MAE)
	m.R2 = orNaN(raw.R2)
	return nil
}

// Finite returns nil for NaN and ±Inf so the value encodes as JSON null.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// ModelMeta is the sidecar metadata written next to every exported model.
type ModelMeta struct {
	Model       ModelID                      `json:"model"`
	Schema      SchemaID                     `json:"schema"`
	FeatureCols []string                     `json:"feature_cols"`
	SplitSizes  map[string]int               `json:"split_sizes"`
	Metrics     map[string]RegressionMetrics `json:"metrics"`
	TrainedAt   time.Time                    `json:"trained_at"`
	RunID       string                       `json:"run_id,omitempty"`
}
