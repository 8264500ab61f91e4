package repository

import (
	"context"
	"time"

	"OilCast/internal/domain/models"
)

// PriceSource provides the merged Brent/WTI daily price table.
type PriceSource interface {
	LoadSeries(ctx context.Context) (*models.PriceSeries, error)
}

// FeatureTable is a read-only view over a built feature frame.
type FeatureTable interface {
	Schema() models.SchemaID
	Len() int
	Date(i int) time.Time
	FeatureNames() []string
	Column(name string) ([]float64, bool)
	Target() []float64
}

// FrameWriter exports a feature frame for offline analysis.
type FrameWriter interface {
	WriteFrame(ctx context.Context, model models.ModelID, frame FeatureTable) (string, error)
}
