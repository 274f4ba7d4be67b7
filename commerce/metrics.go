package commerce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resale_transactions_created_total",
		Help: "Transactions committed, by source (checkout, migration).",
	}, []string{"source"})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resale_transaction_status_transitions_total",
		Help: "Committed status updates, by prior and next status.",
	}, []string{"from", "to"})

	stockMovedUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resale_stock_moved_units_total",
		Help: "Units moved by lifecycle compensation, by movement (restock, recommit).",
	}, []string{"movement"})
)
