// Package metrics holds the Prometheus instruments of the timeline service.
//
// Metrics are registered on the Registerer given to New so tests can use a
// private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chronozoom/internal/cache"
)

const namespace = "chronozoom"

type Metrics struct {
	// QueryDuration measures read operations.
	// Labels: op (timelines, search, tours), source (cache, store)
	QueryDuration *prometheus.HistogramVec

	// MutationsTotal counts mutating operations by outcome.
	// Labels: op (put_timeline, delete_exhibit, ...), result (ok or an error kind)
	MutationsTotal *prometheus.CounterVec

	// ThumbnailJobsTotal counts dispatched thumbnail jobs.
	// Labels: result (sent, no_worker, error)
	ThumbnailJobsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Latency of read operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op", "source"}),
		MutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Mutating operations by outcome.",
		}, []string{"op", "result"}),
		ThumbnailJobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "thumbnail",
			Name:      "jobs_total",
			Help:      "Thumbnail jobs handed to workers.",
		}, []string{"result"}),
	}
}

// RegisterCache exposes the cache counters.
func RegisterCache(reg prometheus.Registerer, c *cache.Cache) {
	f := promauto.With(reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache lookups that found a live entry.",
	}, func() float64 { return float64(c.Stats().Hits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache lookups that found nothing.",
	}, func() float64 { return float64(c.Stats().Misses) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Entries currently held, expired ones included until swept.",
	}, func() float64 { return float64(c.Stats().Entries) })
}
