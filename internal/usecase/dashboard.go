package usecase

import (
	"context"
	"fmt"
	"time"

	"OilCast/internal/domain/models"
	domrepo "OilCast/internal/domain/repository"
	"OilCast/internal/services/evaluation"
	"OilCast/internal/services/features"
	"OilCast/internal/services/forecast"
	"OilCast/internal/services/split"
	applogger "OilCast/pkg/logger"
	"OilCast/pkg/util"
)

// DefaultRangeFloor is the earliest start the default chart range uses.
var DefaultRangeFloor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const earlyCutoffMessage = "cutoff too early; using first available date"

// Frames is the per-request feature view of one model: the full frame, the
// clean frame with its target, and the chronological split over clean rows.
// Everything is freshly built per call and never shared.
type Frames struct {
	Spec  models.ModelSpec
	Full  *features.Frame
	Clean *features.Frame
	Split split.Split
}

// Prepared adds the model bundle to Frames.
type Prepared struct {
	Frames
	Bundle *forecast.Bundle
}

// Predict runs the bundled model on feature rows in schema order.
func (p *Prepared) Predict(X [][]float64) ([]float64, error) {
	return p.Bundle.Predict(X)
}

// PredictionResult is the predicted vs actual series over a date range.
type PredictionResult struct {
	Model     models.ModelID           `json:"model"`
	From      time.Time                `json:"from"`
	To        time.Time                `json:"to"`
	Points    []models.PredictionPoint `json:"points"`
	Condition *models.Condition        `json:"condition,omitempty"`
}

// AccuracyReport lists metrics per split in chronological order.
type AccuracyReport struct {
	Model    models.ModelID         `json:"model"`
	Split    models.SplitKind       `json:"split"`
	Splits   []models.SplitAccuracy `json:"splits"`
	Warnings []string               `json:"warnings,omitempty"`
}

// ModelInfo is a registry entry plus whatever metadata could be loaded.
type ModelInfo struct {
	Spec  models.ModelSpec  `json:"spec"`
	Meta  *models.ModelMeta `json:"meta,omitempty"`
	Ready bool              `json:"ready"`
	Error string            `json:"error,omitempty"`
}

// Dashboard serves the presentation layer: frames, predictions, the signal
// panel and accuracy per model.
type Dashboard struct {
	session   *Session
	ratios    split.Ratios
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewDashboard(session *Session, ratios split.Ratios, publisher domrepo.SignalPublisher, metrics domrepo.Metrics, l *applogger.Logger) *Dashboard {
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dashboard{session: session, ratios: ratios, publisher: publisher, metrics: metrics, l: l}
}

// Models lists every registered model with its metadata when loadable.
func (d *Dashboard) Models(ctx context.Context) []ModelInfo {
	specs := models.Registry()
	out := make([]ModelInfo, 0, len(specs))
	for _, spec := range specs {
		info := ModelInfo{Spec: spec}
		b, err := d.session.Bundle(ctx, spec.ID)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Meta = b.Meta
			info.Ready = true
		}
		out = append(out, info)
	}
	return out
}

// Frames builds the full and clean frames and the split for id.
func (d *Dashboard) Frames(ctx context.Context, id models.ModelID) (*Frames, error) {
	start := time.Now()
	spec, err := models.LookupModel(id)
	if err != nil {
		return nil, err
	}
	schema, err := features.SchemaFor(spec.Schema)
	if err != nil {
		return nil, err
	}
	series, err := d.session.Series(ctx)
	if err != nil {
		return nil, err
	}
	full, err := features.Build(series, schema)
	if err != nil {
		d.metrics.RecordError("schema")
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	clean := full.Clean()
	sp, err := split.For(spec.Split, clean.Len(), d.ratios)
	if err != nil {
		return nil, err
	}
	for _, w := range sp.Warnings() {
		d.l.Warn("empty split", applogger.String("model", string(id)), applogger.String("warning", w.String()))
	}
	d.metrics.RecordFrame(string(spec.Schema), "full", full.Len())
	d.metrics.RecordFrame(string(spec.Schema), "clean", clean.Len())
	d.metrics.RecordLatency("frames", start)
	return &Frames{Spec: spec, Full: full, Clean: clean, Split: sp}, nil
}

// Prepare returns the frames for id together with its loaded model.
func (d *Dashboard) Prepare(ctx context.Context, id models.ModelID) (*Prepared, error) {
	fr, err := d.Frames(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := d.session.Bundle(ctx, id)
	if err != nil {
		d.metrics.RecordError("model_load")
		return nil, err
	}
	return &Prepared{Frames: *fr, Bundle: b}, nil
}

// DefaultRange returns the chart range shown before the user picks one: the
// last year of clean rows, starting no earlier than DefaultRangeFloor unless
// the data ends before it.
func (d *Dashboard) DefaultRange(ctx context.Context, id models.ModelID) (time.Time, time.Time, error) {
	fr, err := d.Frames(ctx, id)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to, ok := defaultRange(fr.Clean)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s has no complete rows", models.ErrOutOfRange, id)
	}
	return from, to, nil
}

func defaultRange(clean *features.Frame) (time.Time, time.Time, bool) {
	if clean.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last := clean.Date(0), clean.Date(clean.Len()-1)
	start := util.MaxTime(last.AddDate(-1, 0, 0), util.MaxTime(first, DefaultRangeFloor))
	if start.After(last) {
		start = first
	}
	return start, last, true
}

// Predictions returns actual and predicted next-day closes for clean rows in
// [from, to]. Nil bounds default to DefaultRange. A range matching no rows
// is not an error: the result is empty and carries an out-of-range condition.
func (d *Dashboard) Predictions(ctx context.Context, id models.ModelID, from, to *time.Time) (*PredictionResult, error) {
	p, err := d.Prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	defFrom, defTo, _ := defaultRange(p.Clean)
	res := &PredictionResult{Model: id, From: defFrom, To: defTo, Points: []models.PredictionPoint{}}
	if from != nil {
		res.From = util.Day(*from)
	}
	if to != nil {
		res.To = util.Day(*to)
	}
	if res.From.After(res.To) {
		return nil, fmt.Errorf("%w: %s > %s", models.ErrInvalidRange,
			res.From.Format(time.DateOnly), res.To.Format(time.DateOnly))
	}

	sel := p.Clean.Between(res.From, res.To)
	if sel.Len() == 0 {
		res.Condition = &models.Condition{Code: models.ConditionOutOfRange, Message: models.ErrOutOfRange.Error()}
		return res, nil
	}

	pred, err := p.Predict(sel.Matrix())
	if err != nil {
		d.metrics.RecordError("predict")
		return nil, err
	}
	actual := sel.Target()
	for i := range pred {
		res.Points = append(res.Points, models.PredictionPoint{Date: sel.Date(i), Actual: actual[i], Predicted: pred[i]})
	}
	d.metrics.RecordPredictions(string(id), len(pred))
	return res, nil
}

// Signal predicts the next close from the most recent full-frame row whose
// features are all defined and whose date is on or before cutoff (the last
// such row when cutoff is nil). The target may be undefined on that row.
// When cutoff precedes every such row the first one is used and the result
// carries an early-cutoff condition.
func (d *Dashboard) Signal(ctx context.Context, id models.ModelID, cutoff *time.Time) (*models.Signal, error) {
	p, err := d.Prepare(ctx, id)
	if err != nil {
		return nil, err
	}

	first, pick := -1, -1
	for i := 0; i < p.Full.Len(); i++ {
		if !p.Full.FeaturesDefined(i) {
			continue
		}
		if first < 0 {
			first = i
		}
		if cutoff == nil || !p.Full.Date(i).After(util.Day(*cutoff)) {
			pick = i
		}
	}
	if first < 0 {
		return nil, fmt.Errorf("%w: %s has no row with complete features", models.ErrOutOfRange, id)
	}

	var cond *models.Condition
	if pick < 0 {
		pick = first
		cond = &models.Condition{Code: models.ConditionEarlyCut, Message: earlyCutoffMessage}
		d.l.Warn(earlyCutoffMessage,
			applogger.String("model", string(id)),
			applogger.Date("cutoff", *cutoff),
			applogger.Date("using", p.Full.Date(pick)),
		)
	}

	pred, err := p.Predict([][]float64{p.Full.Row(pick)})
	if err != nil {
		d.metrics.RecordError("predict")
		return nil, err
	}
	closes, _ := p.Full.Column(features.PrimaryClose)
	sig := &models.Signal{
		Model:     id,
		Date:      p.Full.Date(pick),
		Close:     closes[pick],
		Predicted: pred[0],
		Delta:     pred[0] - closes[pick],
		Action:    models.ActionSell,
		Condition: cond,
	}
	if sig.Predicted > sig.Close {
		sig.Action = models.ActionBuy
	}
	d.metrics.RecordSignal(string(id), sig.Delta)

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, sig); err != nil {
			d.metrics.RecordError("publish")
			d.l.Warn("signal not published", applogger.String("model", string(id)), applogger.Error(err))
		}
	}
	return sig, nil
}

// Accuracy evaluates the model on each split of its clean frame. Empty
// splits are reported as no data.
func (d *Dashboard) Accuracy(ctx context.Context, id models.ModelID) (*AccuracyReport, error) {
	p, err := d.Prepare(ctx, id)
	if err != nil {
		return nil, err
	}
	rep := &AccuracyReport{Model: id, Split: p.Split.Kind}
	for _, w := range p.Split.Warnings() {
		rep.Warnings = append(rep.Warnings, w.String())
	}
	for _, part := range p.Split.Parts() {
		acc := models.SplitAccuracy{Split: part.Name, Rows: part.Range.Len()}
		if part.Range.Empty() {
			acc.NoData = true
			acc.Condition = &models.Condition{
				Code:    models.ConditionEmptySplit,
				Message: split.EmptySplitWarning{Split: part.Name, N: p.Split.N}.String(),
			}
			rep.Splits = append(rep.Splits, acc)
			continue
		}
		seg := p.Clean.Slice(part.Range.Start, part.Range.End)
		pred, err := p.Predict(seg.Matrix())
		if err != nil {
			d.metrics.RecordError("predict")
			return nil, err
		}
		m, err := evaluation.Regression(seg.Target(), pred)
		if err != nil {
			return nil, err
		}
		acc.Metrics = &m
		rep.Splits = append(rep.Splits, acc)
	}
	return rep, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordPredictions(string, int)   {}
func (nopMetrics) RecordError(string)              {}
func (nopMetrics) RecordSignal(string, float64)    {}
func (nopMetrics) RecordFrame(string, string, int) {}
func (nopMetrics) RecordLatency(string, time.Time) {}
