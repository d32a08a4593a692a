package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attestia_provider_call_duration_seconds",
		Help:    "Duration of provider calls including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	failoverTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestia_provider_failover_total",
		Help: "Failover attempts to backup providers for critical data types",
	}, []string{"data_type"})
)
