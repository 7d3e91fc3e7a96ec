// Package telemetry declares the Prometheus collectors of the marketplace.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	// market_orders_listed_total
	//
	// counter of orders created
	//
	// Has the following labels:
	// * kind - fixed_price or auction
	OrdersListedMetricName = "market_orders_listed_total"

	// market_orders_closed_total
	//
	// counter of orders closed
	//
	// Has the following labels:
	// * outcome - sold, unsold, cancelled or reaped
	OrdersClosedMetricName = "market_orders_closed_total"

	// market_bids_total
	//
	// counter of accepted bids
	BidsMetricName = "market_bids_total"

	// market_refunds_queued_total
	//
	// counter of escrow refunds credited to the payable book
	RefundsQueuedMetricName = "market_refunds_queued_total"

	// market_transfer_failures_total
	//
	// counter of outbound payments that could not be delivered immediately
	//
	// Has the following labels:
	// * reason - refund, royalty, seller, return or withdraw
	TransferFailuresMetricName = "market_transfer_failures_total"

	// market_settlement_failures_total
	//
	// counter of sales aborted because the asset could not be moved
	SettlementFailuresMetricName = "market_settlement_failures_total"

	// market_lock_renewal_failures_total
	//
	// counter of distributed order locks whose lease could not be extended
	LockLossesMetricName = "market_lock_renewal_failures_total"

	OrdersListedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: OrdersListedMetricName,
			Help: "counter of orders created by kind",
		},
		[]string{"kind"},
	)

	OrdersClosedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: OrdersClosedMetricName,
			Help: "counter of orders closed by outcome",
		},
		[]string{"outcome"},
	)

	BidsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: BidsMetricName,
			Help: "counter of accepted bids",
		},
	)

	RefundsQueuedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: RefundsQueuedMetricName,
			Help: "counter of escrow refunds credited to the payable book",
		},
	)

	TransferFailuresCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: TransferFailuresMetricName,
			Help: "counter of outbound payments that could not be delivered immediately",
		},
		[]string{"reason"},
	)

	SettlementFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: SettlementFailuresMetricName,
			Help: "counter of sales aborted because the asset could not be moved",
		},
	)

	LockLossesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: LockLossesMetricName,
			Help: "counter of distributed order locks whose lease could not be extended",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersListedCounter)
	prometheus.MustRegister(OrdersClosedCounter)
	prometheus.MustRegister(BidsCounter)
	prometheus.MustRegister(RefundsQueuedCounter)
	prometheus.MustRegister(TransferFailuresCounter)
	prometheus.MustRegister(SettlementFailuresCounter)
	prometheus.MustRegister(LockLossesCounter)
}
