package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resale_reconcile_orders_total",
		Help: "Cached orders examined by the matcher, by outcome.",
	}, []string{"outcome"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "resale_reconcile_run_duration_seconds",
		Help:    "Wall time of a full reconciliation pass.",
		Buckets: prometheus.DefBuckets,
	})
)
