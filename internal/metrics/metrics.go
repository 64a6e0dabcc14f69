// Package metrics defines the Prometheus instruments exported by privmsg.
//
// A Metrics value owns its registry so that tests and multiple services in one
// process do not collide. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "privmsg"

// Send outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeNotOpted  = "peer_not_opted"
	OutcomeLookup    = "lookup_failed"
	OutcomeNoKeyPair = "no_key_pair"
	OutcomeEncrypt   = "encrypt_failed"
)

// Metrics groups every instrument.
type Metrics struct {
	registry *prometheus.Registry

	Sends           *prometheus.CounterVec
	MixnetRouted    prometheus.Counter
	DecryptFailures *prometheus.CounterVec
	PublishFailures prometheus.Counter
	MixnetState     prometheus.Gauge
	DirectoryHits   *prometheus.CounterVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Private message sends by outcome.",
		}, []string{"outcome"}),
		MixnetRouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mixnet_routed_total",
			Help:      "Sends relayed through the mix network.",
		}),
		DecryptFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decrypt_failures_total",
			Help:      "Payloads that could not be opened, by failure kind.",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_publish_failures_total",
			Help:      "Failed attempts to publish the local public key.",
		}),
		MixnetState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mixnet_state",
			Help:      "Mixnet client state: 0 uninitialized, 1 connecting, 2 connected, 3 error.",
		}),
		DirectoryHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keydir_requests_total",
			Help:      "Requests served by keydir, by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.Sends, m.MixnetRouted, m.DecryptFailures,
		m.PublishFailures, m.MixnetState, m.DirectoryHits,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Send(outcome string) {
	if m != nil {
		m.Sends.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Routed() {
	if m != nil {
		m.MixnetRouted.Inc()
	}
}

func (m *Metrics) DecryptFailed(kind string) {
	if m != nil {
		m.DecryptFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) SetMixnetState(state int) {
	if m != nil {
		m.MixnetState.Set(float64(state))
	}
}

func (m *Metrics) DirectoryRequest(route, code string) {
	if m != nil {
		m.DirectoryHits.WithLabelValues(route, code).Inc()
	}
}
