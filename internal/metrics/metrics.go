package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScenarioRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scencast_scenario_runs_total",
			Help: "Total scenario-generation calls",
		},
		[]string{"copula", "status"},
	)

	SampleDrawsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scencast_sample_draws_total",
			Help: "Total multivariate Gaussian draws",
		},
	)

	GenerateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scencast_generate_duration_seconds",
			Help:    "Scenario-generation call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"copula"},
	)

	TransformDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scencast_transform_duration_seconds",
			Help:    "Per-location marginal-transform duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
