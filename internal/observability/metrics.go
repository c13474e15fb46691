package observability

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	modelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dataq_model_requests_total",
			Help: "Total number of generative model requests.",
		},
		[]string{"provider", "status"},
	)

	modelRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dataq_model_request_duration_seconds",
			Help:    "Generative model request latency by provider.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(modelRequestsTotal, modelRequestDurationSeconds)
}

// WriteTextfile dumps every registered metric to path in the node_exporter
// textfile format. An empty path is a no-op.
func WriteTextfile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
