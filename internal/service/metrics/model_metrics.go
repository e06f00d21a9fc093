package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "farenheit",
			Subsystem: "models",
			Name:      "latency_seconds",
			Help:      "Latency of model service calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	ModelErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farenheit",
			Subsystem: "models",
			Name:      "errors_total",
			Help:      "Errors by model",
		},
		[]string{"model"},
	)

	ModelFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "farenheit",
			Subsystem: "models",
			Name:      "fallbacks_total",
			Help:      "Ensemble forecasts that fell back to the statistical model",
		},
		[]string{"reason"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ModelLatency, ModelErrors, ModelFallbacks)
	})
}

// ObserveModelCall records latency and, on error, an error count for model.
func ObserveModelCall(model string, start time.Time, err error) {
	ModelLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		ModelErrors.WithLabelValues(model).Inc()
	}
}
