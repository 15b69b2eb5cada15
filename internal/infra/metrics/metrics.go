// Package metrics holds the Prometheus collectors of the payment service. Each file
// declares its collectors and queues them from init; MustRegister publishes them.
package metrics

import (
	"runtime"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cycle_payments"

var (
	queued    []prometheus.Collector
	published sync.Once
)

func queue(cs ...prometheus.Collector) { queued = append(queued, cs...) }

// MustRegister publishes every queued collector on the default registerer.
// Only the first call has an effect.
func MustRegister() {
	published.Do(func() { prometheus.MustRegister(queued...) })
}

// label keeps label values low-cardinality and stable.
func label(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return s
}

func init() { queue(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Always 1; labelled with the running build.",
	},
	[]string{"version", "commit", "go_version"},
)

func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
