package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	queue(
		webhookEventsTotal,
		webhookDuration,
		eventConsumerErrorsTotal,
	)
}

var (
	// result: processed|ignored|rejected|not_found
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by provider and result.",
		},
		[]string{"provider", "result"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_duration_seconds",
			Help:      "Time from receipt to acknowledgement of a webhook delivery.",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"provider"},
	)

	eventConsumerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_consumer_errors_total",
			Help:      "Errors returned by payment event consumers.",
		},
		[]string{"consumer"},
	)
)

func IncWebhook(provider, result string) {
	webhookEventsTotal.WithLabelValues(label(provider), label(result)).Inc()
}

func ObserveWebhook(provider string, d time.Duration) {
	webhookDuration.WithLabelValues(label(provider)).Observe(d.Seconds())
}

func IncConsumerError(consumer string) {
	eventConsumerErrorsTotal.WithLabelValues(label(consumer)).Inc()
}
