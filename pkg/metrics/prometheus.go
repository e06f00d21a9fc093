package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	units         *prometheus.CounterVec
	observations  *prometheus.CounterVec
	predictions   *prometheus.CounterVec
	alertsFired   prometheus.Counter
	signals       *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		stageRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farenheit_stage_runs_total",
				Help: "Pipeline stage runs by final status",
			},
			[]string{"stage", "status"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farenheit_stage_duration_seconds",
				Help:    "Duration of pipeline stage runs in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"stage"},
		),
		units: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farenheit_stage_units_total",
				Help: "Per-unit outcomes of pipeline stages",
			},
			[]string{"stage", "outcome"},
		),
		observations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farenheit_observations_stored_total",
				Help: "Price observations stored by source",
			},
			[]string{"source"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farenheit_predictions_upserted_total",
				Help: "Predictions written by model version",
			},
			[]string{"model_version", "inserted"},
		),
		alertsFired: f.NewCounter(
			prometheus.CounterOpts{
				Name: "farenheit_alerts_triggered_total",
				Help: "Price alerts that transitioned to triggered",
			},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farenheit_signals_total",
				Help: "Recommendation signals derived",
			},
			[]string{"signal"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "farenheit_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "farenheit_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordStageRun records one finished stage run.
func (r *Recorder) RecordStageRun(stage, status string, seconds float64) {
	r.stageRuns.WithLabelValues(stage, status).Inc()
	r.stageDuration.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordUnit(stage, outcome string) {
	r.units.WithLabelValues(stage, outcome).Inc()
}

func (r *Recorder) RecordObservationsStored(source string, n int) {
	r.observations.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) RecordPredictionUpserted(modelVersion string, inserted bool) {
	r.predictions.WithLabelValues(modelVersion, strconv.FormatBool(inserted)).Inc()
}

func (r *Recorder) RecordAlertTriggered() { r.alertsFired.Inc() }

func (r *Recorder) RecordSignal(signal string) {
	r.signals.WithLabelValues(signal).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
