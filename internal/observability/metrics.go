// Package observability exposes prometheus metrics for the gateway.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OpenConnections   prometheus.Gauge
	EventsDispatched  *prometheus.CounterVec
	BroadcastsSent    *prometheus.CounterVec
	PushAttempts      prometheus.Counter
	PushFailures      prometheus.Counter
	DecryptFailures   prometheus.Counter
	PresenceDowngrade prometheus.Counter
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OpenConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_open_connections",
			Help: "Currently connected websocket clients on this node.",
		}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_events_dispatched_total",
			Help: "Inbound events routed, by event type.",
		}, []string{"type"}),
		BroadcastsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcasts_total",
			Help: "Events published to the cross-node bus, by event type.",
		}, []string{"type"}),
		PushAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_push_attempts_total",
			Help: "Push notification fan-out attempts.",
		}),
		PushFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_push_failures_total",
			Help: "Push notification attempts that failed and were swallowed.",
		}),
		DecryptFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_decrypt_failures_total",
			Help: "Messages substituted with the decrypt placeholder.",
		}),
		PresenceDowngrade: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_presence_downgrades_total",
			Help: "Presence set to offline after the disconnect grace window.",
		}),
	}
}

// Handler serves the registry for scraping.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
