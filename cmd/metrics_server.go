package cmd

import (
	"net/http"

	"github.com/example/webcrawler/internal/metrics"
)

// metricsListenAndServe mounts the Prometheus handler and blocks, matching
// the monitoring.prometheus_port configuration option.
func metricsListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return http.ListenAndServe(addr, mux) //nolint:gosec // operator-configured internal port, not public-facing
}
