package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataq_pipeline_runs_total",
			Help: "Total number of pipeline runs by final status.",
		},
		[]string{"status"},
	)
	pipelineStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataq_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataq_attempts_total",
			Help: "Total number of generate-execute attempts by outcome.",
		},
		[]string{"outcome"},
	)
	attemptDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dataq_attempt_duration_seconds",
			Help:    "Sandbox execution latency of a single attempt in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
	resultRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dataq_last_result_rows",
			Help: "Row count of the most recent successful result table.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRunsTotal,
		pipelineStageDurationSeconds,
		attemptsTotal,
		attemptDurationSeconds,
		resultRows,
	)
}

func ObservePipelineRun(status string) {
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	pipelineStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveAttempt records one retry-loop attempt. outcome is "success" or the
// failure kind.
func ObserveAttempt(outcome string, elapsed time.Duration) {
	attemptsTotal.WithLabelValues(outcome).Inc()
	attemptDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveModelRequest(provider, status string, elapsed time.Duration) {
	modelRequestsTotal.WithLabelValues(provider, status).Inc()
	modelRequestDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func SetResultRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	resultRows.Set(float64(rows))
}
