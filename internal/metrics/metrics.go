// Package metrics holds the prometheus collectors shared across packages.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Runs counts finished analysis runs by mode and final status.
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelfscan",
		Name:      "analysis_runs_total",
		Help:      "Finished analysis runs by mode and status.",
	}, []string{"mode", "status"})

	// RunDuration observes end-to-end run latency by mode.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "shelfscan",
		Name:      "analysis_run_duration_seconds",
		Help:      "End-to-end analysis run duration.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"mode"})

	// PagesAnalyzed counts per-page outcomes in the multi-page flow.
	PagesAnalyzed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelfscan",
		Name:      "pages_analyzed_total",
		Help:      "Per-page estimation outcomes.",
	}, []string{"status"})

	// ModelCalls counts generative-model invocations by kind and outcome.
	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shelfscan",
		Name:      "model_calls_total",
		Help:      "Generative model invocations by kind (page, screenshot) and outcome.",
	}, []string{"kind", "outcome"})
)
