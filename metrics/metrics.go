// Package metrics exports session lifecycle counters for Prometheus.
package metrics

import (
	"net/http"

	"github.com/jrsteele09/go-auth-session/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts the events published on a session bus. Register it with
// Subscribe via Handle.
type Collector struct {
	registry      *prometheus.Registry
	events        *prometheus.CounterVec
	sessionsEnded *prometheus.CounterVec
	authenticated prometheus.Gauge
}

// NewCollector creates the session metrics on a registry of their own.
func NewCollector(appName string) *Collector {
	labels := prometheus.Labels{"app": appName}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_session_events_total",
				Help:        "Total number of session events published",
				ConstLabels: labels,
			},
			[]string{"event"},
		),
		sessionsEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_sessions_ended_total",
				Help:        "Total number of sessions ended, by reason",
				ConstLabels: labels,
			},
			[]string{"reason"},
		),
		authenticated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "auth_session_authenticated",
				Help:        "1 while a session is established",
				ConstLabels: labels,
			},
		),
	}
	c.registry.MustRegister(c.events, c.sessionsEnded, c.authenticated)
	return c
}

// Handle records one event. It has the events.Handler signature.
func (c *Collector) Handle(e events.Event) {
	c.events.WithLabelValues(e.Name()).Inc()
	switch e.(type) {
	case events.LoginSucceeded, events.TokenRefreshed:
		c.authenticated.Set(1)
	}
	if reason, ok := events.Ended(e); ok {
		c.sessionsEnded.WithLabelValues(reason.String()).Inc()
		c.authenticated.Set(0)
	}
}

// SetAuthenticated records a session established without an event, such as
// one rehydrated by the controller's Start.
func (c *Collector) SetAuthenticated(active bool) {
	if active {
		c.authenticated.Set(1)
		return
	}
	c.authenticated.Set(0)
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
