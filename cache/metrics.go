package cache

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	hitLabel = "hit"
)

var (
	cacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cache_size",
		Help: "The number of resident cache entries.",
	})

	cacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "The total number of evicted cache entries.",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "The total number of cache lookups.",
	}, []string{hitLabel})
)

func instrumentSize(size int) {
	cacheSize.Set(float64(size))
}

func instrumentEviction() {
	cacheEvictions.Inc()
}

func instrumentLookup(hit bool) {
	cacheLookups.
		With(prometheus.Labels{hitLabel: strconv.FormatBool(hit)}).
		Inc()
}
