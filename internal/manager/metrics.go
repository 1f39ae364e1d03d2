package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	inferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpuserve",
			Subsystem: "inference",
			Name:      "requests_total",
			Help:      "Total number of inference requests by outcome",
		},
		[]string{"service", "outcome"},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gpuserve",
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Duration of inference requests including queue wait",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"service", "outcome"},
	)

	coldStartSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gpuserve",
			Subsystem: "lifecycle",
			Name:      "cold_start_seconds",
			Help:      "Time spent in Initialize at process start",
		},
		[]string{"service"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpuserve",
			Subsystem: "inference",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(inferenceTotal, inferenceDuration, coldStartSeconds, backpressureTotal)
}

// IncrementBackpressure is called when a request is rejected with 429.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

type inferenceTimer struct {
	service string
	start   time.Time
}

func newInferenceTimer(service string) inferenceTimer {
	return inferenceTimer{service: service, start: time.Now()}
}

func (t inferenceTimer) observe(err error) {
	outcome := outcomeOf(err)
	inferenceTotal.WithLabelValues(t.service, outcome).Inc()
	inferenceDuration.WithLabelValues(t.service, outcome).Observe(time.Since(t.start).Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsInvalidInput(err):
		return "invalid"
	case IsTooBusy(err):
		return "busy"
	case IsNotReady(err):
		return "not_ready"
	default:
		return "error"
	}
}
