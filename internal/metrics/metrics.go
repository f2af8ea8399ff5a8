package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels windows analyzed without error.
	OutcomeSuccess = "success"
	// OutcomeError labels windows rejected or failed during analysis.
	OutcomeError = "error"
)

var (
	windowsAnalyzedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion_engine",
			Name:      "windows_analyzed_total",
			Help:      "Total number of sample windows analyzed, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fusion_engine",
			Name:      "analysis_seconds",
			Help:      "Per-window analysis latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion_engine",
			Name:      "detections_total",
			Help:      "Total number of detections emitted, partitioned by kind.",
		},
		[]string{"kind"},
	)

	correlationEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fusion_engine",
			Name:      "correlation_events_total",
			Help:      "Total number of cross-sensor correlation events.",
		},
	)
)

// Register attaches fusion-engine collectors to the supplied Prometheus
// registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		windowsAnalyzedTotal,
		analysisDurationSeconds,
		detectionsTotal,
		correlationEventsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveWindow records one window's analysis duration and outcome label.
func ObserveWindow(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	windowsAnalyzedTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveDetection counts an emitted detection by kind.
func ObserveDetection(kind string) {
	detectionsTotal.WithLabelValues(kind).Inc()
}

// ObserveCorrelationEvent counts one cross-sensor correlation event.
func ObserveCorrelationEvent() {
	correlationEventsTotal.Inc()
}
