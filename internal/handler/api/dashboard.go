package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"OilCast/internal/domain/models"
	icache "OilCast/internal/service/cache"
	"OilCast/internal/service/metrics"
	"OilCast/internal/services/features"
	"OilCast/internal/usecase"
	xhttp "OilCast/pkg/http"
	applogger "OilCast/pkg/logger"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// DashboardOption configures DashboardHandler.
type DashboardOption func(*DashboardHandler)

// WithCache caches accuracy and prediction responses for ttl.
func WithCache(c icache.BytesCache, ttl time.Duration) DashboardOption {
	return func(h *DashboardHandler) {
		h.cache = c
		h.ttl = ttl
	}
}

// WithHealthCheck adds a named probe to /healthz.
func WithHealthCheck(name string, check HealthCheck) DashboardOption {
	return func(h *DashboardHandler) {
		h.checks[name] = check
	}
}

// DashboardHandler exposes usecase.Dashboard over HTTP.
type DashboardHandler struct {
	dash   *usecase.Dashboard
	cache  icache.BytesCache
	ttl    time.Duration
	checks map[string]HealthCheck
	l      *applogger.Logger
}

func NewDashboardHandler(dash *usecase.Dashboard, l *applogger.Logger, opts ...DashboardOption) *DashboardHandler {
	metrics.Register()
	if l == nil {
		l = applogger.Nop()
	}
	h := &DashboardHandler{dash: dash, checks: make(map[string]HealthCheck), l: l}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *DashboardHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/models", h.Models)
	m := g.Group("/models/:model")
	m.GET("/features", h.Features)
	m.GET("/splits", h.Splits)
	m.GET("/predictions", h.Predictions)
	m.GET("/signal", h.Signal)
	m.GET("/accuracy", h.Accuracy)
}

func (h *DashboardHandler) Health(c echo.Context) error {
	ctx := c.Request().Context()
	status := http.StatusOK
	res := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.l.Warn("health check failed", applogger.String("check", name), applogger.Error(err))
			res[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		res[name] = "ok"
	}
	return xhttp.DataResponse(c, status, res)
}

func (h *DashboardHandler) Models(c echo.Context) error {
	defer metrics.ObserveSince("models", time.Now())
	return xhttp.SuccessResponse(c, h.dash.Models(c.Request().Context()))
}

// FeatureRow is one frame row; undefined cells are null.
type FeatureRow struct {
	Date   string     `json:"date"`
	Values []*float64 `json:"values"`
	Target *float64   `json:"target"`
}

// FeatureTable is a frame rendered for display.
type FeatureTable struct {
	Model   models.ModelID  `json:"model"`
	Schema  models.SchemaID `json:"schema"`
	Mode    string          `json:"mode"`
	Columns []string        `json:"columns"`
	Total   int             `json:"total"`
	Rows    []FeatureRow    `json:"rows"`
}

// Features returns the full or clean frame. A positive limit keeps the most
// recent rows.
func (h *DashboardHandler) Features(c echo.Context) error {
	const endpoint = "features"
	defer metrics.ObserveSince(endpoint, time.Now())
	req := &models.FeaturesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	fr, err := h.dash.Frames(c.Request().Context(), models.ModelID(req.Model))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	frame := fr.Full
	if req.Mode == "clean" {
		frame = fr.Clean
	}
	return xhttp.SuccessResponse(c, renderFrame(fr.Spec.ID, req.Mode, frame, req.Limit))
}

func renderFrame(id models.ModelID, mode string, f *features.Frame, limit int) *FeatureTable {
	names := f.FeatureNames()
	out := &FeatureTable{
		Model:   id,
		Schema:  f.Schema(),
		Mode:    mode,
		Columns: names,
		Total:   f.Len(),
		Rows:    []FeatureRow{},
	}
	start := 0
	if limit > 0 && f.Len() > limit {
		start = f.Len() - limit
	}
	target := f.Target()
	for i := start; i < f.Len(); i++ {
		row := f.Row(i)
		vals := make([]*float64, len(row))
		for j, v := range row {
			vals[j] = models.Finite(v)
		}
		out.Rows = append(out.Rows, FeatureRow{
			Date:   f.Date(i).Format(time.DateOnly),
			Values: vals,
			Target: models.Finite(target[i]),
		})
	}
	return out
}

// SplitPart describes one chronological partition of the clean frame.
type SplitPart struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Rows  int    `json:"rows"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// SplitView is the split dictionary of a model.
type SplitView struct {
	Model    models.ModelID   `json:"model"`
	Kind     models.SplitKind `json:"kind"`
	Rows     int              `json:"rows"`
	Parts    []SplitPart      `json:"parts"`
	Warnings []string         `json:"warnings,omitempty"`
}

func (h *DashboardHandler) Splits(c echo.Context) error {
	const endpoint = "splits"
	defer metrics.ObserveSince(endpoint, time.Now())
	req := &models.ModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	fr, err := h.dash.Frames(c.Request().Context(), models.ModelID(req.Model))
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	view := &SplitView{Model: fr.Spec.ID, Kind: fr.Split.Kind, Rows: fr.Split.N}
	for _, p := range fr.Split.Parts() {
		sp := SplitPart{Name: p.Name, Start: p.Range.Start, End: p.Range.End, Rows: p.Range.Len()}
		if !p.Range.Empty() {
			sp.From = fr.Clean.Date(p.Range.Start).Format(time.DateOnly)
			sp.To = fr.Clean.Date(p.Range.End - 1).Format(time.DateOnly)
		}
		view.Parts = append(view.Parts, sp)
	}
	for _, w := range fr.Split.Warnings() {
		view.Warnings = append(view.Warnings, w.String())
	}
	return xhttp.SuccessResponse(c, view)
}

func (h *DashboardHandler) Predictions(c echo.Context) error {
	const endpoint = "predictions"
	defer metrics.ObserveSince(endpoint, time.Now())
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, err := xhttp.OptionalDate("from", req.From)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	to, err := xhttp.OptionalDate("to", req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	key := endpoint + ":" + req.Model + ":" + req.From + ":" + req.To
	return h.cached(c, endpoint, key, func(ctx context.Context) (interface{}, error) {
		return h.dash.Predictions(ctx, models.ModelID(req.Model), from, to)
	})
}

func (h *DashboardHandler) Signal(c echo.Context) error {
	const endpoint = "signal"
	defer metrics.ObserveSince(endpoint, time.Now())
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cutoff, err := xhttp.OptionalDate("cutoff", req.Cutoff)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	sig, err := h.dash.Signal(c.Request().Context(), models.ModelID(req.Model), cutoff)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	return xhttp.SuccessResponse(c, sig)
}

func (h *DashboardHandler) Accuracy(c echo.Context) error {
	const endpoint = "accuracy"
	defer metrics.ObserveSince(endpoint, time.Now())
	req := &models.ModelRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	return h.cached(c, endpoint, endpoint+":"+req.Model, func(ctx context.Context) (interface{}, error) {
		return h.dash.Accuracy(ctx, models.ModelID(req.Model))
	})
}

// cached serves key from the response cache, computing and storing the
// encoded envelope on a miss. Errors are never cached and cache failures
// only degrade to recomputation.
func (h *DashboardHandler) cached(c echo.Context, endpoint, key string, compute func(ctx context.Context) (interface{}, error)) error {
	ctx := c.Request().Context()
	if h.cache != nil {
		b, ok, err := h.cache.GetBytes(ctx, key)
		switch {
		case err != nil:
			metrics.CacheResults.WithLabelValues(endpoint, "error").Inc()
			h.l.Warn("cache get error", applogger.String("key", key), applogger.Error(err))
		case ok:
			metrics.CacheResults.WithLabelValues(endpoint, "hit").Inc()
			h.l.Debug("cache hit", applogger.String("key", key))
			return xhttp.CachedJSON(c, b)
		default:
			metrics.CacheResults.WithLabelValues(endpoint, "miss").Inc()
			h.l.Debug("cache miss", applogger.String("key", key))
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if h.cache == nil {
		return xhttp.SuccessResponse(c, v)
	}
	b, err := json.Marshal(xhttp.APIResponse{Status: http.StatusOK, Message: http.StatusText(http.StatusOK), Data: v})
	if err != nil {
		return h.fail(c, endpoint, err)
	}
	if err := h.cache.SetBytes(ctx, key, b, h.ttl); err != nil {
		h.l.Warn("cache set error", applogger.String("key", key), applogger.Error(err))
	}
	return xhttp.CachedJSON(c, b)
}

func (h *DashboardHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	metrics.EndpointErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	fields := []applogger.Field{
		applogger.String("endpoint", endpoint),
		applogger.String("code", appErr.Code),
		applogger.Error(err),
	}
	if appErr.Status >= http.StatusInternalServerError {
		h.l.Error("dashboard request failed", fields...)
	} else {
		h.l.Warn("dashboard request rejected", fields...)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var schemaErr *models.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return xhttp.UnprocessableError("ERR_SCHEMA", schemaErr.Error()).
			WithParam("missing", schemaErr.Missing).
			WithError(err)
	case errors.Is(err, models.ErrUnknownModel):
		return xhttp.NotFoundError(err.Error()).WithCode("ERR_UNKNOWN_MODEL").WithField("model").WithError(err)
	case errors.Is(err, models.ErrInvalidRange):
		return xhttp.BadRequestError(err.Error()).WithCode("ERR_INVALID_RANGE").WithField("from").WithError(err)
	case errors.Is(err, models.ErrOutOfRange):
		return xhttp.UnprocessableError("ERR_OUT_OF_RANGE", err.Error()).WithError(err)
	case errors.Is(err, models.ErrArtifactNotFound):
		return xhttp.UnavailableError("model has not been exported yet").WithCode("ERR_MODEL_UNAVAILABLE").WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}
