// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the daemon registers.
type Metrics struct {
	OrdersTotal        *prometheus.CounterVec
	DealsTotal         prometheus.Counter
	DealVolumeTotal    prometheus.Counter
	CancellationsTotal prometheus.Counter
	GlobalPhase        prometheus.Gauge
	MonitoredBooks     prometheus.GaugeFunc
}

// New registers every collector with reg. monitoredBooks reports how many
// books currently sit in an intraday auction.
func New(reg prometheus.Registerer, monitoredBooks func() float64) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Order entry operations by kind and resulting status.",
		}, []string{"operation", "status"}),
		DealsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "exchange_deals_total",
			Help: "Executions produced by matching and auction uncrossing.",
		}),
		DealVolumeTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "exchange_deal_volume_total",
			Help: "Total executed quantity.",
		}),
		CancellationsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "exchange_unsolicited_cancellations_total",
			Help: "Orders removed by the book itself, e.g. at session close.",
		}),
		GlobalPhase: f.NewGauge(prometheus.GaugeOpts{
			Name: "exchange_global_phase",
			Help: "Engine-wide trading phase as its enumeration value.",
		}),
		MonitoredBooks: f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "exchange_monitored_books",
			Help: "Books halted in an intraday auction.",
		}, monitoredBooks),
	}
}
