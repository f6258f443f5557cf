// Package daemonmetrics exposes the fleet manager's own running-node-count
// and last-maintain-duration gauges on a Prometheus /metrics endpoint,
// grounded on the ecosystem's promauto/promhttp idiom for registering and
// serving metrics.
package daemonmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the fleet manager's Prometheus collectors.
type Metrics struct {
	RunningNodes       prometheus.Gauge
	DefinedNodes       prometheus.Gauge
	LastMaintainSeconds prometheus.Gauge
	MaintainTotal      *prometheus.CounterVec
}

// New registers and returns a fresh set of collectors under the
// "antfleet" namespace.
func New() *Metrics {
	return &Metrics{
		RunningNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antfleet",
			Name:      "running_nodes",
			Help:      "Number of node services currently Running.",
		}),
		DefinedNodes: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antfleet",
			Name:      "defined_nodes",
			Help:      "Number of node services recorded in the registry, Removed excluded.",
		}),
		LastMaintainSeconds: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "antfleet",
			Name:      "last_maintain_duration_seconds",
			Help:      "Wall-clock duration of the most recently completed Maintain pass.",
		}),
		MaintainTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antfleet",
			Name:      "maintain_total",
			Help:      "Total Maintain passes, labeled by outcome.",
		}, []string{"outcome"}),
	}
}

// RecordMaintain updates the gauges after a Maintain pass completes.
func (m *Metrics) RecordMaintain(duration time.Duration, running, defined int, failed bool) {
	m.LastMaintainSeconds.Set(duration.Seconds())
	m.RunningNodes.Set(float64(running))
	m.DefinedNodes.Set(float64(defined))
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	m.MaintainTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the HTTP handler serving the registered collectors.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
