package models

// Requests for dashboard HTTP endpoints.

type ModelRequest struct {
	Model string `param:"model" json:"model" validate:"required"`
}

type FeaturesRequest struct {
	Model string `param:"model" json:"model" validate:"required"`
	Mode  string `query:"mode" json:"mode" default:"full" validate:"oneof=full clean"`
	Limit int    `query:"limit" json:"limit" validate:"gte=0,lte=100000"`
}

type PredictionsRequest struct {
	Model string `param:"model" json:"model" validate:"required"`
	From  string `query:"from" json:"from" validate:"omitempty,datetime=2006-01-02"`
	To    string `query:"to" json:"to" validate:"omitempty,datetime=2006-01-02"`
}

type SignalRequest struct {
	Model  string `param:"model" json:"model" validate:"required"`
	Cutoff string `query:"cutoff" json:"cutoff" validate:"omitempty,datetime=2006-01-02"`
}
