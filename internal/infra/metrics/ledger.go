package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { queue(ledgerWrites) }

// record: payment|refund ; status: the stored status after the write
var ledgerWrites = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_writes_total",
		Help:      "Ledger rows created or moved to a new status.",
	},
	[]string{"record", "status"},
)

func IncPayment(status string) { ledgerWrites.WithLabelValues("payment", label(status)).Inc() }

func IncRefund(status string) { ledgerWrites.WithLabelValues("refund", label(status)).Inc() }
