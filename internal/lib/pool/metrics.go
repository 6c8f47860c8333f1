package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promShareSupply = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "lstpool",
		Name:      "share_supply",
	})
	promManaged = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "lstpool",
		Name:      "managed_total",
	})
	promExchangeRate = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "lstpool",
		Name:      "exchange_rate",
	})
	promOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "lstpool",
		Name:      "operations_total",
		Help:      "Pool operations processed, by kind and result",
	}, []string{"kind", "result"})
)

func recordTotals(totals Totals) {
	promShareSupply.Set(float64(totals.Shares))
	promManaged.Set(float64(totals.Managed))
	promExchangeRate.Set(totals.Rate().Float())
}
