package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	icache "OilCast/internal/service/cache"
	"OilCast/internal/services/features"
	"OilCast/internal/services/forecast"
	"OilCast/internal/services/split"
	"OilCast/internal/usecase"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedSource struct{ series *models.PriceSeries }

func (s fixedSource) LoadSeries(context.Context) (*models.PriceSeries, error) { return s.series, nil }

type mapStore map[models.ModelID]*domrepo.Artifacts

func (m mapStore) Save(_ context.Context, id models.ModelID, a *domrepo.Artifacts) error {
	m[id] = a
	return nil
}

func (m mapStore) Load(_ context.Context, id models.ModelID) (*domrepo.Artifacts, error) {
	a, ok := m[id]
	if !ok {
		return nil, models.ErrArtifactNotFound
	}
	return a, nil
}

// risingSeries has close_x = 70 + i so every derived value is easy to check.
func risingSeries(t *testing.T, n int, cols []string) *models.PriceSeries {
	t.Helper()
	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = day0.AddDate(0, 0, i)
	}
	var out []models.Column
	for k, name := range cols {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = 70 + float64(i) + float64(k)/100
		}
		if name == features.CloseX {
			for i := range vals {
				vals[i] = 70 + float64(i)
			}
		}
		out = append(out, models.Column{Name: name, Values: vals})
	}
	s, err := models.NewPriceSeries(dates, out...)
	require.NoError(t, err)
	return s
}

func constantModel(width int, v float64) *domrepo.Artifacts {
	scale := make([]float64, width)
	for i := range scale {
		scale[i] = 1
	}
	return &domrepo.Artifacts{
		Predictor: &forecast.Linear{Coef: make([]float64, width), Intercept: v},
		Scaler:    &forecast.StandardScaler{Mean: make([]float64, width), Scale: scale},
	}
}

func newServer(t *testing.T, series *models.PriceSeries, opts ...DashboardOption) *echo.Echo {
	t.Helper()
	store := mapStore{models.ModelMLRJustBrent: constantModel(11, 100)}
	sess := usecase.NewSession(fixedSource{series: series}, store, nil)
	dash := usecase.NewDashboard(sess, split.DefaultRatios(), nil, nil, nil)
	e := echo.New()
	NewDashboardHandler(dash, nil, opts...).RegisterRoutes(e)
	return e
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func get(t *testing.T, e *echo.Echo, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.Status)
	return rec, env
}

func errorCode(t *testing.T, env envelope) string {
	t.Helper()
	var errs []struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &errs))
	require.NotEmpty(t, errs)
	return errs[0].Code
}

func TestModels(t *testing.T) {
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()))
	rec, env := get(t, e, "/api/models")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []usecase.ModelInfo
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	require.Len(t, infos, 3)
	assert.Equal(t, models.ModelMLRJustBrent, infos[0].Spec.ID)
	assert.True(t, infos[0].Ready)
	assert.False(t, infos[1].Ready)
}

func TestFeatures(t *testing.T) {
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()))

	t.Run("clean tail", func(t *testing.T) {
		rec, env := get(t, e, "/api/models/mlr_justbrent/features?mode=clean&limit=5")
		require.Equal(t, http.StatusOK, rec.Code)
		var tbl FeatureTable
		require.NoError(t, json.Unmarshal(env.Data, &tbl))
		assert.Equal(t, 30, tbl.Total)
		require.Len(t, tbl.Rows, 5)
		assert.Len(t, tbl.Columns, 11)
		last := tbl.Rows[4]
		assert.Equal(t, "2024-02-08", last.Date)
		require.NotNil(t, last.Target)
		assert.Equal(t, 109.0, *last.Target)
	})

	t.Run("full frame keeps undefined cells as null", func(t *testing.T) {
		rec, env := get(t, e, "/api/models/mlr_justbrent/features")
		require.Equal(t, http.StatusOK, rec.Code)
		var tbl FeatureTable
		require.NoError(t, json.Unmarshal(env.Data, &tbl))
		assert.Equal(t, "full", tbl.Mode)
		assert.Equal(t, 40, tbl.Total)
		first := tbl.Rows[0]
		require.NotNil(t, first.Values[0])
		assert.Equal(t, 70.0, *first.Values[0])
		assert.Nil(t, first.Values[5], "brent_lag_1 is undefined on the first row")
		assert.Nil(t, tbl.Rows[39].Target)
	})

	t.Run("bad mode", func(t *testing.T) {
		rec, _ := get(t, e, "/api/models/mlr_justbrent/features?mode=raw")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSplits(t *testing.T) {
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()))
	rec, env := get(t, e, "/api/models/mlr_justbrent/splits")
	require.Equal(t, http.StatusOK, rec.Code)

	var view SplitView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, models.SplitThreeWay, view.Kind)
	require.Len(t, view.Parts, 3)
	assert.Equal(t, SplitPart{Name: "train", Start: 0, End: 21, Rows: 21, From: "2024-01-10", To: "2024-01-30"}, view.Parts[0])
	assert.Equal(t, 4, view.Parts[1].Rows)
	assert.Equal(t, 5, view.Parts[2].Rows)
}

func TestPredictions(t *testing.T) {
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()))

	rec, env := get(t, e, "/api/models/mlr_justbrent/predictions?from=2024-01-15&to=2024-01-17")
	require.Equal(t, http.StatusOK, rec.Code)
	var res usecase.PredictionResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	require.Len(t, res.Points, 3)
	assert.Equal(t, 85.0, res.Points[0].Actual)
	assert.Equal(t, 100.0, res.Points[0].Predicted)

	rec, env = get(t, e, "/api/models/mlr_justbrent/predictions?from=2023-01-01&to=2023-02-01")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Empty(t, res.Points)
	require.NotNil(t, res.Condition)
	assert.Equal(t, models.ConditionOutOfRange, res.Condition.Code)

	rec, env = get(t, e, "/api/models/mlr_justbrent/predictions?from=2024-02-01&to=2024-01-20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_INVALID_RANGE", errorCode(t, env))

	rec, _ = get(t, e, "/api/models/mlr_justbrent/predictions?from=01-02-2024")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignal(t *testing.T) {
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()))

	rec, env := get(t, e, "/api/models/mlr_justbrent/signal?cutoff=2024-01-21")
	require.Equal(t, http.StatusOK, rec.Code)
	var sig models.Signal
	require.NoError(t, json.Unmarshal(env.Data, &sig))
	assert.Equal(t, day0.AddDate(0, 0, 20), sig.Date)
	assert.Equal(t, 90.0, sig.Close)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Nil(t, sig.Condition)

	rec, env = get(t, e, "/api/models/mlr_justbrent/signal?cutoff=2023-06-01")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &sig))
	require.NotNil(t, sig.Condition)
	assert.Equal(t, models.ConditionEarlyCut, sig.Condition.Code)

	rec, env = get(t, e, "/api/models/rf/signal")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ERR_MODEL_UNAVAILABLE", errorCode(t, env))
}

func TestAccuracyCached(t *testing.T) {
	cache := icache.NewTTLCache()
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()), WithCache(cache, time.Minute))

	rec1, env := get(t, e, "/api/models/mlr_justbrent/accuracy")
	require.Equal(t, http.StatusOK, rec1.Code)
	var rep usecase.AccuracyReport
	require.NoError(t, json.Unmarshal(env.Data, &rep))
	require.Len(t, rep.Splits, 3)
	assert.Equal(t, "train", rep.Splits[0].Split)
	require.NotNil(t, rep.Splits[0].Metrics)

	_, ok, err := cache.GetBytes(context.Background(), "accuracy:mlr_justbrent")
	require.NoError(t, err)
	assert.True(t, ok)

	rec2, _ := get(t, e, "/api/models/mlr_justbrent/accuracy")
	assert.Equal(t, rec1.Body.String(), rec2.Body.String())

	rec, _ := get(t, e, "/api/models/svm/accuracy")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSchemaErrorIs422(t *testing.T) {
	e := newServer(t, risingSeries(t, 20, []string{features.OpenX, features.CloseX}))
	rec, env := get(t, e, "/api/models/nn/features")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "ERR_SCHEMA", errorCode(t, env))
}

func TestUnknownModelIs404(t *testing.T) {
	e := newServer(t, risingSeries(t, 40, features.SourceColumns()))
	for _, route := range []string{"features", "splits", "predictions", "signal", "accuracy"} {
		t.Run(route, func(t *testing.T) {
			rec, env := get(t, e, "/api/models/bogus/"+route)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "ERR_UNKNOWN_MODEL", errorCode(t, env))
		})
	}
}

func TestHealth(t *testing.T) {
	series := risingSeries(t, 20, features.SourceColumns())
	e := newServer(t, series, WithHealthCheck("ok", func(context.Context) error { return nil }))
	rec, _ := get(t, e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	e = newServer(t, series, WithHealthCheck("redis", func(context.Context) error { return errors.New("down") }))
	rec, env := get(t, e, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"redis":"down"}`, string(env.Data))
}
