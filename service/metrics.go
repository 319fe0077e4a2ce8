package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	touchesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "touchr",
			Name:      "touches_recorded_total",
			Help:      "Touches persisted, by request form",
		},
		[]string{"form"},
	)

	pushesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "touchr",
			Name:      "pushes_total",
			Help:      "Push deliveries by transport and outcome",
		},
		[]string{"transport", "status"},
	)

	feedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "touchr",
			Name:      "feed_assembly_duration_seconds",
			Help:      "Time spent assembling a feed page",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"feed"},
	)

	teardownFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "touchr",
			Name:      "account_teardown_failures_total",
			Help:      "Sub-deletions that failed during account teardown",
		},
		[]string{"part"},
	)
)
