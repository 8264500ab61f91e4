package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	"OilCast/internal/services/features"
	"OilCast/internal/services/forecast"
	"OilCast/internal/services/split"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// oilSeries builds n consecutive days with every source column defined.
func oilSeries(t *testing.T, n int) *models.PriceSeries {
	t.Helper()
	dates := make([]time.Time, n)
	vals := make(map[string][]float64)
	for _, name := range features.SourceColumns() {
		vals[name] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		dates[i] = day0.AddDate(0, 0, i)
		brent := 80 + 3*math.Sin(float64(i)/5) + 0.05*float64(i)
		wti := brent - 4 + math.Cos(float64(i)/7)
		vals[features.OpenX][i] = brent - 0.3
		vals[features.HighX][i] = brent + 1
		vals[features.LowX][i] = brent - 1
		vals[features.CloseX][i] = brent
		vals[features.VolumeX][i] = 1000 + float64(i%13)*10
		vals[features.AverageX][i] = brent + 0.1
		vals[features.OpenY][i] = wti - 0.2
		vals[features.HighY][i] = wti + 0.8
		vals[features.LowY][i] = wti - 0.9
		vals[features.CloseY][i] = wti
		vals[features.VolumeY][i] = 2000 + float64(i%11)*20
		vals[features.AverageY][i] = wti + 0.05
	}
	var cols []models.Column
	for _, name := range features.SourceColumns() {
		cols = append(cols, models.Column{Name: name, Values: vals[name]})
	}
	s, err := models.NewPriceSeries(dates, cols...)
	require.NoError(t, err)
	return s
}

type staticSource struct {
	series *models.PriceSeries
	err    error
	calls  atomic.Int32
}

func (s *staticSource) LoadSeries(context.Context) (*models.PriceSeries, error) {
	s.calls.Add(1)
	return s.series, s.err
}

type memStore struct {
	mu    sync.Mutex
	items map[models.ModelID]*domrepo.Artifacts
	loads atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{items: make(map[models.ModelID]*domrepo.Artifacts)}
}

func (m *memStore) Save(_ context.Context, id models.ModelID, a *domrepo.Artifacts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = a
	return nil
}

func (m *memStore) Load(_ context.Context, id models.ModelID) (*domrepo.Artifacts, error) {
	m.loads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, models.ErrArtifactNotFound
	}
	return a, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	signals []*models.Signal
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, s *models.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signals = append(p.signals, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingFrames struct {
	mu   sync.Mutex
	rows map[models.ModelID]int
}

func (r *recordingFrames) WriteFrame(_ context.Context, id models.ModelID, f domrepo.FeatureTable) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id] = f.Len()
	return string(id) + ".parquet", nil
}

type recordingReport struct{ metas []*models.ModelMeta }

func (r *recordingReport) WriteReport(_ context.Context, metas []*models.ModelMeta) (string, error) {
	r.metas = metas
	return "report.xlsx", nil
}

func fastLearners() Learners {
	return DefaultLearners(1e-8,
		forecast.ForestParams{NEstimators: 5, MaxDepth: 4, Seed: 42},
		forecast.MLPParams{Hidden: []int{4}, LearningRate: 0.01, BatchSize: 16, MaxEpochs: 5, Seed: 42},
	)
}

// trained runs the exporter on n days into a fresh in-memory store.
func trained(t *testing.T, n int) (*staticSource, *memStore, *ExportResult) {
	t.Helper()
	src := &staticSource{series: oilSeries(t, n)}
	store := newMemStore()
	clock := func() time.Time { return time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC) }
	exp := NewExporter(src, store, fastLearners(), split.DefaultRatios(), nil, WithClock(clock))
	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	return src, store, res
}

func TestExporterRun(t *testing.T) {
	src := &staticSource{series: oilSeries(t, 80)}
	store := newMemStore()
	frames := &recordingFrames{rows: map[models.ModelID]int{}}
	report := &recordingReport{}
	exp := NewExporter(src, store, fastLearners(), split.DefaultRatios(), nil,
		WithFrameWriter(frames), WithReportWriter(report))

	res, err := exp.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "report.xlsx", res.ReportPath)
	require.Len(t, res.Metas, 3)
	assert.Len(t, report.metas, 3)
	assert.Equal(t, int32(1), src.calls.Load(), "series is loaded once per run")

	// the 10-row moving average drops 9 leading rows and the target drops the last
	const clean = 70
	for _, meta := range res.Metas {
		spec, err := models.LookupModel(meta.Model)
		require.NoError(t, err)
		schema, err := features.SchemaFor(spec.Schema)
		require.NoError(t, err)

		assert.Equal(t, res.RunID, meta.RunID)
		assert.Equal(t, schema.FeatureNames(), meta.FeatureCols)
		total := 0
		for _, n := range meta.SplitSizes {
			total += n
		}
		assert.Equal(t, clean, total)
		assert.Equal(t, clean, frames.rows[meta.Model])
		assert.Equal(t, string(meta.Model)+".parquet", res.FramePaths[meta.Model])

		a := store.items[meta.Model]
		require.NotNil(t, a)
		assert.Equal(t, spec.Scaled, a.Scaler != nil)
		for name := range meta.SplitSizes {
			assert.Contains(t, meta.Metrics, name)
		}
	}

	mlr := store.items[models.ModelMLRJustBrent].Meta
	assert.Equal(t, map[string]int{"train": 49, "val": 10, "test": 11}, mlr.SplitSizes)
	rf := store.items[models.ModelRandomForest].Meta
	assert.Equal(t, map[string]int{"train": 56, "test": 14}, rf.SplitSizes)
}

func TestExporterScalerFitOnTrainOnly(t *testing.T) {
	_, store, _ := trained(t, 80)
	a := store.items[models.ModelMLRJustBrent]
	sc, ok := a.Scaler.(*forecast.StandardScaler)
	require.True(t, ok)

	clean, err := features.BuildClean(oilSeries(t, 80), features.JustBrent)
	require.NoError(t, err)
	want, err := forecast.FitStandardScaler(clean.Slice(0, 49).Matrix())
	require.NoError(t, err)
	assert.Equal(t, want.Mean, sc.Mean)
	assert.Equal(t, want.Scale, sc.Scale)
}

func TestExporterErrors(t *testing.T) {
	t.Run("source", func(t *testing.T) {
		src := &staticSource{err: errors.New("disk gone")}
		_, err := NewExporter(src, newMemStore(), fastLearners(), split.DefaultRatios(), nil).Run(context.Background())
		assert.ErrorContains(t, err, "disk gone")
	})

	t.Run("missing learner", func(t *testing.T) {
		src := &staticSource{series: oilSeries(t, 40)}
		_, err := NewExporter(src, newMemStore(), Learners{}, split.DefaultRatios(), nil).Run(context.Background(), models.ModelRandomForest)
		assert.ErrorContains(t, err, "train rf")
	})

	t.Run("too few rows", func(t *testing.T) {
		src := &staticSource{series: oilSeries(t, 11)}
		_, err := NewExporter(src, newMemStore(), fastLearners(), split.DefaultRatios(), nil).Run(context.Background(), models.ModelMLRJustBrent)
		assert.ErrorContains(t, err, "train split is empty")
	})
}

func TestSessionLoadsOnce(t *testing.T) {
	src, store, _ := trained(t, 60)
	src.calls.Store(0)
	store.loads.Store(0)
	sess := NewSession(src, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sess.Series(context.Background())
			assert.NoError(t, err)
			_, err = sess.Bundle(context.Background(), models.ModelNeuralNet)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, int32(1), store.loads.Load())

	require.NoError(t, sess.Init(context.Background()))
	assert.Equal(t, int32(3), store.loads.Load())
}

func TestSessionErrors(t *testing.T) {
	src := &staticSource{series: oilSeries(t, 30)}
	sess := NewSession(src, newMemStore(), nil)

	err := sess.Init(context.Background())
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)

	_, err = sess.Bundle(context.Background(), "svm")
	assert.ErrorIs(t, err, models.ErrUnknownModel)

	store := newMemStore()
	store.items[models.ModelMLRJustBrent] = &domrepo.Artifacts{
		Predictor: &forecast.Linear{Coef: make([]float64, 11)},
		Scaler:    &forecast.StandardScaler{Mean: make([]float64, 11), Scale: ones(11)},
		Meta:      &models.ModelMeta{FeatureCols: []string{"close_x"}},
	}
	_, err = NewSession(src, store, nil).Bundle(context.Background(), models.ModelMLRJustBrent)
	assert.ErrorContains(t, err, "do not match schema")
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func newDashboard(t *testing.T, n int) (*Dashboard, *recordingPublisher) {
	t.Helper()
	src, store, _ := trained(t, n)
	pub := &recordingPublisher{}
	return NewDashboard(NewSession(src, store, nil), split.DefaultRatios(), pub, nil, nil), pub
}

func TestDashboardPrepare(t *testing.T) {
	d, _ := newDashboard(t, 80)
	p, err := d.Prepare(context.Background(), models.ModelNeuralNet)
	require.NoError(t, err)

	assert.Equal(t, 80, p.Full.Len())
	assert.Equal(t, 70, p.Clean.Len())
	assert.Len(t, p.Full.FeatureNames(), 22)
	assert.Equal(t, map[string]int{"train": 49, "val": 10, "test": 11}, p.Split.Sizes())

	pred, err := p.Predict(p.Clean.Slice(0, 3).Matrix())
	require.NoError(t, err)
	assert.Len(t, pred, 3)

	_, err = d.Prepare(context.Background(), "svm")
	assert.ErrorIs(t, err, models.ErrUnknownModel)
}

func TestDashboardPredictions(t *testing.T) {
	d, _ := newDashboard(t, 80)
	ctx := context.Background()

	t.Run("default range covers every clean row", func(t *testing.T) {
		res, err := d.Predictions(ctx, models.ModelMLRJustBrent, nil, nil)
		require.NoError(t, err)
		assert.Nil(t, res.Condition)
		assert.Len(t, res.Points, 70)
		assert.Equal(t, day0.AddDate(0, 0, 9), res.From)
		assert.Equal(t, day0.AddDate(0, 0, 78), res.To)
		assert.Equal(t, day0.AddDate(0, 0, 9), res.Points[0].Date)
	})

	t.Run("explicit inclusive range", func(t *testing.T) {
		from, to := day0.AddDate(0, 0, 20), day0.AddDate(0, 0, 24)
		res, err := d.Predictions(ctx, models.ModelRandomForest, &from, &to)
		require.NoError(t, err)
		require.Len(t, res.Points, 5)
		series := oilSeries(t, 80)
		closes, _ := series.Column(features.CloseX)
		assert.Equal(t, closes[21], res.Points[0].Actual, "actual is the next day's close")
	})

	t.Run("out of range is a condition", func(t *testing.T) {
		from, to := day0.AddDate(1, 0, 0), day0.AddDate(1, 1, 0)
		res, err := d.Predictions(ctx, models.ModelNeuralNet, &from, &to)
		require.NoError(t, err)
		require.NotNil(t, res.Condition)
		assert.Equal(t, models.ConditionOutOfRange, res.Condition.Code)
		assert.Empty(t, res.Points)
	})

	t.Run("inverted range", func(t *testing.T) {
		from, to := day0.AddDate(0, 0, 30), day0.AddDate(0, 0, 20)
		_, err := d.Predictions(ctx, models.ModelNeuralNet, &from, &to)
		assert.ErrorIs(t, err, models.ErrInvalidRange)
	})
}

func TestDefaultRange(t *testing.T) {
	d, _ := newDashboard(t, 500)
	from, to, err := d.DefaultRange(context.Background(), models.ModelMLRJustBrent)
	require.NoError(t, err)
	assert.Equal(t, day0.AddDate(0, 0, 498), to)
	assert.Equal(t, to.AddDate(-1, 0, 0), from)

	// data ending before the floor starts at the first clean row
	old := DefaultRangeFloor
	DefaultRangeFloor = day0.AddDate(5, 0, 0)
	defer func() { DefaultRangeFloor = old }()
	from, _, err = d.DefaultRange(context.Background(), models.ModelMLRJustBrent)
	require.NoError(t, err)
	assert.Equal(t, day0.AddDate(0, 0, 9), from)
}

func TestDashboardSignal(t *testing.T) {
	d, pub := newDashboard(t, 80)
	ctx := context.Background()

	t.Run("latest row may lack a target", func(t *testing.T) {
		sig, err := d.Signal(ctx, models.ModelMLRJustBrent, nil)
		require.NoError(t, err)
		assert.Equal(t, day0.AddDate(0, 0, 79), sig.Date)
		assert.Nil(t, sig.Condition)
		assert.InDelta(t, sig.Predicted-sig.Close, sig.Delta, 1e-12)
		if sig.Predicted > sig.Close {
			assert.Equal(t, models.ActionBuy, sig.Action)
		} else {
			assert.Equal(t, models.ActionSell, sig.Action)
		}
	})

	t.Run("cutoff picks last row on or before it", func(t *testing.T) {
		cutoff := day0.AddDate(0, 0, 30).Add(15 * time.Hour)
		sig, err := d.Signal(ctx, models.ModelRandomForest, &cutoff)
		require.NoError(t, err)
		assert.Equal(t, day0.AddDate(0, 0, 30), sig.Date)
		closes, _ := oilSeries(t, 80).Column(features.CloseX)
		assert.Equal(t, closes[30], sig.Close)
	})

	t.Run("early cutoff falls back to first valid row", func(t *testing.T) {
		cutoff := day0.AddDate(0, 0, 3)
		sig, err := d.Signal(ctx, models.ModelNeuralNet, &cutoff)
		require.NoError(t, err)
		assert.Equal(t, day0.AddDate(0, 0, 9), sig.Date)
		require.NotNil(t, sig.Condition)
		assert.Equal(t, models.ConditionEarlyCut, sig.Condition.Code)
	})

	assert.Len(t, pub.signals, 3)
}

func TestDashboardSignalPublishFailureIsNotFatal(t *testing.T) {
	d, pub := newDashboard(t, 40)
	pub.err = errors.New("broker down")
	_, err := d.Signal(context.Background(), models.ModelMLRJustBrent, nil)
	assert.NoError(t, err)
}

func TestDashboardAccuracy(t *testing.T) {
	d, _ := newDashboard(t, 80)
	rep, err := d.Accuracy(context.Background(), models.ModelRandomForest)
	require.NoError(t, err)
	assert.Equal(t, models.SplitTwoWay, rep.Split)
	require.Len(t, rep.Splits, 2)
	assert.Equal(t, "train", rep.Splits[0].Split)
	assert.Equal(t, 56, rep.Splits[0].Rows)
	require.NotNil(t, rep.Splits[1].Metrics)
	assert.InDelta(t, math.Sqrt(rep.Splits[1].Metrics.MSE), rep.Splits[1].Metrics.RMSE, 1e-9)
	assert.Empty(t, rep.Warnings)
}

func TestDashboardAccuracyEmptySplit(t *testing.T) {
	// 13 days leave 3 clean rows: train 2, val 0, test 1
	src := &staticSource{series: oilSeries(t, 13)}
	store := newMemStore()
	store.items[models.ModelMLRJustBrent] = &domrepo.Artifacts{
		Predictor: &forecast.Linear{Coef: make([]float64, 11), Intercept: 80},
		Scaler:    &forecast.StandardScaler{Mean: make([]float64, 11), Scale: ones(11)},
	}
	d := NewDashboard(NewSession(src, store, nil), split.DefaultRatios(), nil, nil, nil)

	rep, err := d.Accuracy(context.Background(), models.ModelMLRJustBrent)
	require.NoError(t, err)
	require.Len(t, rep.Splits, 3)
	assert.Equal(t, 2, rep.Splits[0].Rows)
	assert.True(t, rep.Splits[1].NoData)
	assert.Nil(t, rep.Splits[1].Metrics)
	require.NotNil(t, rep.Splits[1].Condition)
	assert.Equal(t, models.ConditionEmptySplit, rep.Splits[1].Condition.Code)
	assert.Equal(t, `split "val" is empty for 3 rows`, rep.Splits[1].Condition.Message)
	assert.Nil(t, rep.Splits[0].Condition)
	assert.Equal(t, 1, rep.Splits[2].Rows)
	assert.Len(t, rep.Warnings, 1)
}

func TestDashboardSchemaError(t *testing.T) {
	dates := []time.Time{day0, day0.AddDate(0, 0, 1)}
	series, err := models.NewPriceSeries(dates, models.Column{Name: features.CloseX, Values: []float64{1, 2}})
	require.NoError(t, err)
	d := NewDashboard(NewSession(&staticSource{series: series}, newMemStore(), nil), split.DefaultRatios(), nil, nil, nil)

	_, err = d.Frames(context.Background(), models.ModelNeuralNet)
	var se *models.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Missing, features.CloseY)
}

func TestDashboardModels(t *testing.T) {
	src := &staticSource{series: oilSeries(t, 60)}
	store := newMemStore()
	exp := NewExporter(src, store, fastLearners(), split.DefaultRatios(), nil)
	_, err := exp.Run(context.Background(), models.ModelMLRJustBrent)
	require.NoError(t, err)

	d := NewDashboard(NewSession(src, store, nil), split.DefaultRatios(), nil, nil, nil)
	infos := d.Models(context.Background())
	require.Len(t, infos, 3)
	assert.True(t, infos[0].Ready)
	require.NotNil(t, infos[0].Meta)
	assert.Equal(t, models.ModelMLRJustBrent, infos[0].Meta.Model)
	assert.False(t, infos[1].Ready)
	assert.NotEmpty(t, infos[1].Error)
}
