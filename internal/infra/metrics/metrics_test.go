//go:build !integration

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	t.Run("should normalize label values", func(t *testing.T) {
		before := testutil.ToFloat64(webhookEventsTotal.WithLabelValues("stripe", "processed"))
		IncWebhook(" Stripe ", "PROCESSED")
		assert.Equal(t, before+1, testutil.ToFloat64(webhookEventsTotal.WithLabelValues("stripe", "processed")))

		assert.Equal(t, "unknown", label("  "))
	})

	t.Run("should split ledger writes by record kind", func(t *testing.T) {
		p := testutil.ToFloat64(ledgerWrites.WithLabelValues("payment", "success"))
		r := testutil.ToFloat64(ledgerWrites.WithLabelValues("refund", "success"))
		IncPayment("success")
		assert.Equal(t, p+1, testutil.ToFloat64(ledgerWrites.WithLabelValues("payment", "success")))
		assert.Equal(t, r, testutil.ToFloat64(ledgerWrites.WithLabelValues("refund", "success")))
	})

	t.Run("should label settlements by damage", func(t *testing.T) {
		before := testutil.ToFloat64(settlementsTotal.WithLabelValues("refund", "true"))
		IncSettlement("refund", true)
		assert.Equal(t, before+1, testutil.ToFloat64(settlementsTotal.WithLabelValues("refund", "true")))
	})

	t.Run("should record webhook latency", func(t *testing.T) {
		ObserveWebhook("paypal", 120*time.Millisecond)
		assert.Equal(t, 1, testutil.CollectAndCount(webhookDuration))
	})

	t.Run("should keep a single build info series", func(t *testing.T) {
		SetBuildInfo("v1", "abc")
		SetBuildInfo("v2", "def")
		assert.Equal(t, 1, testutil.CollectAndCount(buildInfo))
	})

	t.Run("should register only once", func(t *testing.T) {
		assert.NotPanics(t, func() {
			MustRegister()
			MustRegister()
		})
	})
}
