// Package metrics exposes Prometheus instrumentation for scrape executions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts finished executions by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hnpulse",
		Name:      "runs_total",
		Help:      "Finished scrape executions by terminal status.",
	}, []string{"status"})

	// StepAttemptsTotal counts individual step attempts by step name and outcome.
	StepAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hnpulse",
		Name:      "step_attempts_total",
		Help:      "Step attempts by step name and outcome (ok, retryable, permanent).",
	}, []string{"step", "outcome"})

	// StepDuration observes per-attempt step latency.
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hnpulse",
		Name:      "step_duration_seconds",
		Help:      "Per-attempt step latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"step"})

	// StoriesScraped counts stories persisted across all executions.
	StoriesScraped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hnpulse",
		Name:      "stories_scraped_total",
		Help:      "Stories persisted across all executions.",
	})
)
