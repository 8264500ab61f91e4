package repository

import (
	"context"
	"time"

	"OilCast/internal/domain/models"
	domsvc "OilCast/internal/domain/service"
)

// Artifacts is everything persisted for one trained model. Scaler is nil for
// models trained on raw features.
type Artifacts struct {
	Predictor domsvc.Predictor
	Scaler    domsvc.Transformer
	Meta      *models.ModelMeta
}

// ArtifactStore persists trained models by model identity.
type ArtifactStore interface {
	Save(ctx context.Context, id models.ModelID, a *Artifacts) error
	Load(ctx context.Context, id models.ModelID) (*Artifacts, error)
}

// SignalPublisher fans out computed trading signals.
type SignalPublisher interface {
	Publish(ctx context.Context, s *models.Signal) error
	Close() error
}

// ReportWriter renders an accuracy report for a training run.
type ReportWriter interface {
	WriteReport(ctx context.Context, metas []*models.ModelMeta) (string, error)
}

type Metrics interface {
	RecordPredictions(model string, n int)
	RecordError(kind string)
	RecordSignal(model string, delta float64)
	RecordFrame(schema, mode string, rows int)
	RecordLatency(op string, start time.Time)
}
