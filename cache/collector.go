package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports a cache's Stats as prometheus counters.
type Collector struct {
	cache *Cache

	hits, misses, computes, shared, stored, errs, entries *prometheus.Desc
}

// NewCollector returns a collector for c. Register it with a
// prometheus.Registerer to expose it.
func NewCollector(c *Cache, namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, nil, nil)
	}
	return &Collector{
		cache:    c,
		hits:     desc("hits_total", "Verdicts served from the cache."),
		misses:   desc("misses_total", "Lookups that found no usable verdict."),
		computes: desc("computes_total", "Solver runs made on behalf of the cache."),
		shared:   desc("shared_total", "Callers that waited on another caller's solver run."),
		stored:   desc("stored_total", "Verdicts written to the backing store."),
		errs:     desc("errors_total", "Failed lookups, stores and solver runs."),
		entries:  desc("entries", "Verdicts held in memory."),
	}
}

func (col *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{col.hits, col.misses, col.computes, col.shared, col.stored, col.errs, col.entries} {
		ch <- d
	}
}

func (col *Collector) Collect(ch chan<- prometheus.Metric) {
	st := col.cache.Stats()
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(col.hits, st.Hits)
	counter(col.misses, st.Misses)
	counter(col.computes, st.Computes)
	counter(col.shared, st.Shared)
	counter(col.stored, st.Stored)
	counter(col.errs, st.Errors)
	ch <- prometheus.MustNewConstMetric(col.entries, prometheus.GaugeValue, float64(col.cache.Len()))
}
