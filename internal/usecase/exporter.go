package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	domsvc "OilCast/internal/domain/service"
	"OilCast/internal/services/evaluation"
	"OilCast/internal/services/features"
	"OilCast/internal/services/forecast"
	"OilCast/internal/services/split"
	applogger "OilCast/pkg/logger"
)

// Learners maps each model to the algorithm that trains it.
type Learners map[models.ModelID]domsvc.Learner

// DefaultLearners returns the learners used by the offline export.
func DefaultLearners(ridge float64, forest forecast.ForestParams, mlp forecast.MLPParams) Learners {
	return Learners{
		models.ModelMLRJustBrent: forecast.LinearLearner{Ridge: ridge},
		models.ModelRandomForest: forecast.ForestLearner{Params: forest},
		models.ModelNeuralNet:    forecast.MLPLearner{Params: mlp},
	}
}

// ExportResult summarizes one training run.
type ExportResult struct {
	RunID      string
	Metas      []*models.ModelMeta
	FramePaths map[models.ModelID]string
	ReportPath string
}

// ExporterOption configures Exporter.
type ExporterOption func(*Exporter)

// WithFrameWriter exports every clean training frame.
func WithFrameWriter(w domrepo.FrameWriter) ExporterOption {
	return func(e *Exporter) { e.frames = w }
}

// WithReportWriter writes an accuracy report after training.
func WithReportWriter(w domrepo.ReportWriter) ExporterOption {
	return func(e *Exporter) { e.report = w }
}

// WithClock overrides the training timestamp source.
func WithClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

// Exporter trains every model offline and persists its artifacts.
type Exporter struct {
	source   domrepo.PriceSource
	store    domrepo.ArtifactStore
	learners Learners
	ratios   split.Ratios
	frames   domrepo.FrameWriter
	report   domrepo.ReportWriter
	now      func() time.Time
	l        *applogger.Logger
}

func NewExporter(source domrepo.PriceSource, store domrepo.ArtifactStore, learners Learners, ratios split.Ratios, l *applogger.Logger, opts ...ExporterOption) *Exporter {
	if l == nil {
		l = applogger.Nop()
	}
	e := &Exporter{
		source:   source,
		store:    store,
		learners: learners,
		ratios:   ratios,
		now:      time.Now,
		l:        l,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run trains ids concurrently (all registered models when none are given)
// against one shared, read-only price series.
func (e *Exporter) Run(ctx context.Context, ids ...models.ModelID) (*ExportResult, error) {
	if len(ids) == 0 {
		for _, spec := range models.Registry() {
			ids = append(ids, spec.ID)
		}
	}
	series, err := e.source.LoadSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load price series: %w", err)
	}

	res := &ExportResult{
		RunID:      uuid.NewString(),
		Metas:      make([]*models.ModelMeta, len(ids)),
		FramePaths: make(map[models.ModelID]string),
	}
	paths := make([]string, len(ids))
	e.l.Info("export started", applogger.String("run_id", res.RunID), applogger.Int("models", len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			meta, path, err := e.train(gctx, series, id, res.RunID)
			if err != nil {
				return fmt.Errorf("train %s: %w", id, err)
			}
			res.Metas[i] = meta
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.l.Error("export failed", applogger.String("run_id", res.RunID), applogger.Error(err))
		return nil, err
	}
	for i, id := range ids {
		if paths[i] != "" {
			res.FramePaths[id] = paths[i]
		}
	}

	if e.report != nil {
		path, err := e.report.WriteReport(ctx, res.Metas)
		if err != nil {
			return nil, err
		}
		res.ReportPath = path
	}
	e.l.Info("export finished", applogger.String("run_id", res.RunID))
	return res, nil
}

func (e *Exporter) train(ctx context.Context, series *models.PriceSeries, id models.ModelID, runID string) (*models.ModelMeta, string, error) {
	start := time.Now()
	spec, err := models.LookupModel(id)
	if err != nil {
		return nil, "", err
	}
	learner, ok := e.learners[id]
	if !ok {
		return nil, "", fmt.Errorf("no learner configured")
	}
	schema, err := features.SchemaFor(spec.Schema)
	if err != nil {
		return nil, "", err
	}
	clean, err := features.BuildClean(series, schema)
	if err != nil {
		return nil, "", err
	}
	sp, err := split.For(spec.Split, clean.Len(), e.ratios)
	if err != nil {
		return nil, "", err
	}
	trainRange, _ := sp.Get(split.Train)
	if trainRange.Empty() {
		return nil, "", fmt.Errorf("train split is empty for %d clean rows", clean.Len())
	}
	for _, w := range sp.Warnings() {
		e.l.Warn("empty split", applogger.String("model", string(id)), applogger.String("warning", w.String()))
	}

	train := clean.Slice(trainRange.Start, trainRange.End)
	X := train.Matrix()
	var scaler domsvc.Transformer
	if spec.Scaled {
		sc, err := forecast.FitStandardScaler(X)
		if err != nil {
			return nil, "", err
		}
		if X, err = sc.Transform(X); err != nil {
			return nil, "", err
		}
		scaler = sc
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	predictor, err := learner.Fit(X, train.Target())
	if err != nil {
		return nil, "", err
	}
	bundle, err := forecast.NewBundle(spec, nil, predictor, scaler)
	if err != nil {
		return nil, "", err
	}

	meta := &models.ModelMeta{
		Model:       id,
		Schema:      spec.Schema,
		FeatureCols: schema.FeatureNames(),
		SplitSizes:  sp.Sizes(),
		Metrics:     make(map[string]models.RegressionMetrics),
		TrainedAt:   e.now().UTC().Truncate(time.Second),
		RunID:       runID,
	}
	for _, part := range sp.Parts() {
		seg := clean.Slice(part.Range.Start, part.Range.End)
		pred, err := bundle.Predict(seg.Matrix())
		if err != nil {
			return nil, "", err
		}
		m, err := evaluation.Regression(seg.Target(), pred)
		if err != nil {
			return nil, "", err
		}
		meta.Metrics[part.Name] = m
	}

	if err := e.store.Save(ctx, id, &domrepo.Artifacts{Predictor: predictor, Scaler: scaler, Meta: meta}); err != nil {
		return nil, "", err
	}

	var framePath string
	if e.frames != nil {
		if framePath, err = e.frames.WriteFrame(ctx, id, clean); err != nil {
			return nil, "", err
		}
	}

	fields := []applogger.Field{
		applogger.String("model", string(id)),
		applogger.Int("rows", clean.Len()),
		applogger.Any("split_sizes", meta.SplitSizes),
		applogger.Duration("duration_ms", time.Since(start)),
	}
	if test, ok := meta.Metrics[split.Test]; ok {
		fields = append(fields, applogger.Any("test_rmse", models.Finite(test.RMSE)))
	}
	e.l.Info("model trained", fields...)
	return meta, framePath, nil
}
