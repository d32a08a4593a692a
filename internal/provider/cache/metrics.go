package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestia_response_cache_hits_total",
		Help: "Provider response cache hits",
	})

	missesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attestia_response_cache_misses_total",
		Help: "Provider response cache misses, including staleness evictions",
	})
)
