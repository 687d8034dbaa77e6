package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdditionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "milkpool_additions_total",
		Help: "Collections added to the active pool.",
	})
	WithdrawalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "milkpool_withdrawals_total",
		Help: "Milk withdrawals from the active pool.",
	})
	ArchivesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "milkpool_archives_total",
		Help: "Pool archive-and-reset operations.",
	})
	ConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "milkpool_tx_conflicts_total",
		Help: "Ledger operations rejected after a transaction conflict.",
	})
	RemainingLiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "milkpool_remaining_liters",
		Help: "Milk remaining in the active pool.",
	})
)
