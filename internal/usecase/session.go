package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	"OilCast/internal/services/features"
	"OilCast/internal/services/forecast"
	applogger "OilCast/pkg/logger"
)

// Session caches the price series and model bundles for the life of the
// process. Entries load lazily on first use (or eagerly through Init) and are
// never refreshed; a failed load is not cached and is retried on next access.
// Cached values are read-only and shared by all requests.
type Session struct {
	source domrepo.PriceSource
	store  domrepo.ArtifactStore
	l      *applogger.Logger

	mu      sync.Mutex
	series  *models.PriceSeries
	bundles map[models.ModelID]*forecast.Bundle
}

func NewSession(source domrepo.PriceSource, store domrepo.ArtifactStore, l *applogger.Logger) *Session {
	if l == nil {
		l = applogger.Nop()
	}
	return &Session{
		source:  source,
		store:   store,
		l:       l,
		bundles: make(map[models.ModelID]*forecast.Bundle),
	}
}

// Init loads the series and every registered model. A series failure is
// returned at once; model failures are joined so the caller can decide
// whether a partial set of models is acceptable.
func (s *Session) Init(ctx context.Context) error {
	if _, err := s.Series(ctx); err != nil {
		return err
	}
	var errs []error
	for _, spec := range models.Registry() {
		if _, err := s.Bundle(ctx, spec.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Series returns the cached price series, loading it on first call.
func (s *Session) Series(ctx context.Context) (*models.PriceSeries, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.series != nil {
		return s.series, nil
	}
	series, err := s.source.LoadSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load price series: %w", err)
	}
	s.series = series
	s.l.Info("session series loaded", applogger.Int("rows", series.Len()))
	return series, nil
}

// Bundle returns the cached model bundle for id, loading it on first call.
func (s *Session) Bundle(ctx context.Context, id models.ModelID) (*forecast.Bundle, error) {
	spec, err := models.LookupModel(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bundles[id]; ok {
		return b, nil
	}

	a, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", id, err)
	}
	if err := checkFeatureCols(spec, a.Meta); err != nil {
		return nil, err
	}
	b, err := forecast.NewBundle(spec, a.Meta, a.Predictor, a.Scaler)
	if err != nil {
		return nil, err
	}
	s.bundles[id] = b
	s.l.Info("session model loaded",
		applogger.String("model", string(id)),
		applogger.Bool("scaled", b.Scaled()),
	)
	return b, nil
}

// checkFeatureCols enforces that a model's recorded training columns are the
// schema's columns in the same order.
func checkFeatureCols(spec models.ModelSpec, meta *models.ModelMeta) error {
	if meta == nil || len(meta.FeatureCols) == 0 {
		return nil
	}
	schema, err := features.SchemaFor(spec.Schema)
	if err != nil {
		return err
	}
	if want := schema.FeatureNames(); !slices.Equal(want, meta.FeatureCols) {
		return fmt.Errorf("model %s: feature columns %v do not match schema %s %v",
			spec.ID, meta.FeatureCols, spec.Schema, want)
	}
	return nil
}
