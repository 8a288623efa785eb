// Package metrics registers the Prometheus collectors this system
// exposes for the intent pipeline and sync orchestrator.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector this module owns. Constructed once
// per client instance and registered against a caller-supplied registerer
// so tests can use prometheus.NewRegistry() instead of the global default.
type Registry struct {
	IntentsStaged    prometheus.Counter
	IntentsPublished prometheus.Counter
	IntentsCommitted prometheus.Counter
	IntentsErrored   *prometheus.CounterVec
	CursorLag        *prometheus.GaugeVec
	MessagesExpired  prometheus.Counter
}

// New creates and registers the collectors against reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		IntentsStaged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmtp",
			Subsystem: "intent",
			Name:      "staged_total",
			Help:      "Intents staged onto a local MLS group.",
		}),
		IntentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmtp",
			Subsystem: "intent",
			Name:      "published_total",
			Help:      "Intents published to the backend.",
		}),
		IntentsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmtp",
			Subsystem: "intent",
			Name:      "committed_total",
			Help:      "Intents whose published commit was confirmed merged.",
		}),
		IntentsErrored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xmtp",
			Subsystem: "intent",
			Name:      "errored_total",
			Help:      "Intents that entered the Error state, by reason.",
		}, []string{"reason"}),
		CursorLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "xmtp",
			Subsystem: "sync",
			Name:      "cursor_lag",
			Help:      "Difference between the newest known sequence id and the local cursor, per topic.",
		}, []string{"topic"}),
		MessagesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xmtp",
			Subsystem: "storage",
			Name:      "messages_expired_total",
			Help:      "Disappearing messages removed by the expiration sweep.",
		}),
	}
	reg.MustRegister(r.IntentsStaged, r.IntentsPublished, r.IntentsCommitted, r.IntentsErrored, r.CursorLag, r.MessagesExpired)
	return r
}
