package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestia_ratelimit_admitted_total",
		Help: "Requests admitted by the provider token bucket",
	}, []string{"provider"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestia_ratelimit_rejected_total",
		Help: "Requests rejected because no token was available",
	}, []string{"provider"})
)
