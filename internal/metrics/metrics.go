// Package metrics exposes crawl progress as Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crawler"

// Metrics holds the counters, histogram, and gauges exposed on the
// Prometheus endpoint.
type Metrics struct {
	URLsCrawled       prometheus.Counter
	PagesStored       prometheus.Counter
	Errors            *prometheus.CounterVec
	DuplicatesSkipped prometheus.Counter
	BytesDownloaded   prometheus.Counter
	ResponseTime      prometheus.Histogram
	QueueSize         prometheus.Gauge
	ActiveWorkers     prometheus.Gauge
}

// New creates and registers crawl metrics against reg. Pass nil to use the
// default global registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		URLsCrawled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_crawled",
			Help:      "Total number of URLs fetched.",
		}),
		PagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_stored",
			Help:      "Total number of pages persisted to the content store.",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors",
			Help:      "Total number of crawl errors, by type.",
		}, []string{"type"}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped",
			Help:      "Total number of pages skipped as duplicates.",
		}),
		BytesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_downloaded",
			Help:      "Total bytes downloaded across all fetches.",
		}),
		ResponseTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_time_seconds",
			Help:      "Distribution of fetch response times in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_size",
			Help:      "Current number of tasks queued across all hosts.",
		}),
		ActiveWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workers",
			Help:      "Current number of running crawl workers.",
		}),
	}
}

// RecordError increments the errors counter for errType.
func (m *Metrics) RecordError(errType string) {
	m.Errors.WithLabelValues(errType).Inc()
}

// Handler returns the HTTP handler that serves metrics in Prometheus text
// format, for mounting on the monitoring port.
func Handler() http.Handler {
	return promhttp.Handler()
}
