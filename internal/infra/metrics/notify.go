package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { queue(notifyAttemptsTotal, settlementsTotal) }

var (
	// target: subscription|rental ; result: ok|retry|permanent|exhausted
	notifyAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_attempts_total",
			Help:      "Cross-service notification attempts by target and result.",
		},
		[]string{"target", "result"},
	)

	// branch: refund|balance_due|covered
	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Rental return settlements by outcome branch.",
		},
		[]string{"branch", "damaged"},
	)
)

func IncNotify(target, result string) {
	notifyAttemptsTotal.WithLabelValues(label(target), label(result)).Inc()
}

func IncSettlement(branch string, damaged bool) {
	d := "false"
	if damaged {
		d = "true"
	}
	settlementsTotal.WithLabelValues(label(branch), d).Inc()
}
