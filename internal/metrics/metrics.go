package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	caseResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchcheck",
			Subsystem: "case",
			Name:      "results_total",
			Help:      "Number of finished test cases by final status.",
		}, []string{"status"},
	)
	caseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "launchcheck",
			Subsystem: "case",
			Name:      "duration_seconds",
			Help:      "Wall time spent on one test case, pauses included.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 120},
		},
	)
	detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchcheck",
			Name:      "detection_total",
			Help:      "Launch detections by the matcher that fired.",
		}, []string{"by"},
	)
	terminated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "launchcheck",
			Name:      "terminated_processes_total",
			Help:      "Processes signaled by the tree terminator.",
		},
	)
	residuals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchcheck",
			Name:      "residual_resources_total",
			Help:      "Leftover windows and processes removed by the cleanup sweep.",
		}, []string{"kind"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "launchcheck",
			Name:      "state_transitions_total",
			Help:      "Number of test state machine transitions.",
		}, []string{"from", "to"},
	)
	runProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchcheck",
			Name:      "run_progress",
			Help:      "Position of the current batch (field=index|total).",
		}, []string{"field"},
	)
	appRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchcheck",
			Subsystem: "app",
			Name:      "rss_bytes",
			Help:      "Resident memory of the detected application after settling.",
		}, []string{"app"},
	)
	appThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "launchcheck",
			Subsystem: "app",
			Name:      "threads",
			Help:      "Thread count of the detected application after settling.",
		}, []string{"app"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{caseResults, caseDuration, detections, terminated, residuals, stateTransitions, runProgress, appRSS, appThreads}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// The helpers below no-op until Register has succeeded.

func RecordResult(status string, seconds float64) {
	if regOK.Load() {
		caseResults.WithLabelValues(status).Inc()
		caseDuration.Observe(seconds)
	}
}

func IncDetection(by string) {
	if regOK.Load() {
		detections.WithLabelValues(by).Inc()
	}
}

func AddTerminated(n int) {
	if regOK.Load() && n > 0 {
		terminated.Add(float64(n))
	}
}

// AddResidual counts swept leftovers; kind is "window" or "process".
func AddResidual(kind string, n int) {
	if regOK.Load() && n > 0 {
		residuals.WithLabelValues(kind).Add(float64(n))
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetProgress(index, total int) {
	if regOK.Load() {
		runProgress.WithLabelValues("index").Set(float64(index))
		runProgress.WithLabelValues("total").Set(float64(total))
	}
}
