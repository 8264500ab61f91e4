package models

import "time"

// Signal actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Condition codes surfaced to the presentation layer alongside results.
const (
	ConditionOutOfRange = "out_of_range_selection"
	ConditionEmptySplit = "empty_split"
	ConditionEarlyCut   = "cutoff_before_first_row"
)

// Condition is a non-fatal, user-facing note attached to a result.
type Condition struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PredictionPoint pairs the realised next-day close with the model output.
type PredictionPoint struct {
	Date      time.Time `json:"date"`
	Actual    float64   `json:"actual_next_close"`
	Predicted float64   `json:"pred_next_close"`
}

// Signal is the daily BUY/SELL panel derived from a single feature row.
type Signal struct {
	Model     ModelID    `json:"model"`
	Date      time.Time  `json:"date"`
	Close     float64    `json:"close"`
	Predicted float64    `json:"predicted_next_close"`
	Delta     float64    `json:"delta"`
	Action    string     `json:"action"`
	Condition *Condition `json:"condition,omitempty"`
}

// SplitAccuracy holds metrics for one split. Metrics is nil and Condition
// is set when the split has no rows.
type SplitAccuracy struct {
	Split     string             `json:"split"`
	Rows      int                `json:"rows"`
	Metrics   *RegressionMetrics `json:"metrics"`
	NoData    bool               `json:"no_data,omitempty"`
	Condition *Condition         `json:"condition,omitempty"`
}
