// Package metrics exposes a handful of debug counters/gauges over
// Prometheus's client library, served on the existing debug listener only
// when --debug is set. This is an ambient addition beyond spec.md's named
// components: the bridge's own correctness never depends on it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/gauge the bridge records.
type Metrics struct {
	MessagesDelivered      prometheus.Counter
	SlackReconnects        prometheus.Counter
	HistoryBackfillActive  prometheus.Gauge
	ControlSocketRequests  prometheus.Counter
	AnnoyFired             prometheus.Counter
	AutoreactFired         prometheus.Counter
}

// New registers every metric against a fresh registry, so tests (and
// repeated calls within one process) never collide with the default global
// registry.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		MessagesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "slackirc_messages_delivered_total",
			Help: "Total number of Slack messages delivered to the attached IRC client.",
		}),
		SlackReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "slackirc_reconnects_total",
			Help: "Total number of Slack RTM reconnects.",
		}),
		HistoryBackfillActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "slackirc_history_backfill_in_flight",
			Help: "Number of history-fetch tasks currently running, bounded at 4.",
		}),
		ControlSocketRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "slackirc_control_socket_requests_total",
			Help: "Total number of requests served on the control socket.",
		}),
		AnnoyFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "slackirc_annoy_fired_total",
			Help: "Total number of annoy-rule typing responses sent.",
		}),
		AutoreactFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "slackirc_autoreact_fired_total",
			Help: "Total number of autoreact reactions posted.",
		}),
	}, reg
}

// Handler returns an http.Handler exposing reg in the text exposition
// format, for mounting on the debug listener.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
