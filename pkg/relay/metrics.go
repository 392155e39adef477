package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are registered on a private registry so several relays can run in
// one process.
type Metrics struct {
	Registry           *prometheus.Registry
	SessionsActive     *prometheus.GaugeVec
	Messages           *prometheus.CounterVec
	HandshakesRejected prometheus.Counter
	SecurityEvents     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SessionsActive: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "supportchat",
			Name:      "sessions_active",
			Help:      "Number of connected sessions.",
		}, []string{"role"}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportchat",
			Name:      "messages_total",
			Help:      "Chat messages accepted from clients.",
		}, []string{"role"}),
		HandshakesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "supportchat",
			Name:      "handshakes_rejected_total",
			Help:      "Connection attempts refused because the identity failed validation.",
		}),
		SecurityEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportchat",
			Name:      "security_events_total",
			Help:      "Stripped markup and rejected identities, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
