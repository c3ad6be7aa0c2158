package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFetchCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rss_fetch_count_total",
		Help: "The total number of feed fetches",
	}, []string{"feed", "status"})

	metricNewItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rss_new_items_total",
		Help: "The total number of new matching items found",
	}, []string{"feed"})

	metricEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rss_seen_evicted_total",
		Help: "The total number of fingerprints evicted from the dedup state",
	})

	metricRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rss_run_duration_seconds",
		Help:    "Duration of a full run over every feed",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)

func observe(r *Report) {
	for _, o := range r.Outcomes {
		metricFetchCount.WithLabelValues(o.Endpoint, string(o.Kind)).Inc()
		if o.Matched > 0 {
			metricNewItems.WithLabelValues(o.Endpoint).Add(float64(o.Matched))
		}
	}
	metricEvicted.Add(float64(r.Evicted))
	metricRunDuration.Observe(r.Duration.Seconds())
}
