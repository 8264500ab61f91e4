package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	lastDelta   *prometheus.GaugeVec
	frameRows   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's collectors on reg. A nil reg uses the default
// registry, which is what /metrics serves.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oilcast_predictions_total",
				Help: "Total number of predicted rows served per model",
			},
			[]string{"model"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oilcast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastDelta: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oilcast_signal_delta",
				Help: "Predicted next close minus current close of the last computed signal",
			},
			[]string{"model"},
		),
		frameRows: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "oilcast_feature_rows",
				Help: "Rows in the last built feature frame",
			},
			[]string{"schema", "mode"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oilcast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPredictions adds n served predictions for model.
func (r *Recorder) RecordPredictions(model string, n int) {
	r.predictions.WithLabelValues(model).Add(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordSignal records the delta of the latest signal for model.
func (r *Recorder) RecordSignal(model string, delta float64) {
	r.lastDelta.WithLabelValues(model).Set(delta)
}

// RecordFrame records the row count of a feature frame.
func (r *Recorder) RecordFrame(schema, mode string, rows int) {
	r.frameRows.WithLabelValues(schema, mode).Set(float64(rows))
}

// RecordLatency records operation latency since start.
func (r *Recorder) RecordLatency(op string, start time.Time) {
	r.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
