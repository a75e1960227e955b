// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the server reports.
type Metrics struct {
	registry *prometheus.Registry

	GamesActive    prometheus.Gauge
	QueueDepth     prometheus.Gauge
	Connections    prometheus.Gauge
	HandsPlayed    prometheus.Counter
	ActionsTotal   *prometheus.CounterVec
	EventsAppended prometheus.Counter
	PersistErrors  prometheus.Counter
	GameRestarts   prometheus.Counter
	ReplayDuration prometheus.Histogram
}

// New builds and registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto(registry)

	return &Metrics{
		registry: registry,
		GamesActive: factory.gauge(prometheus.GaugeOpts{
			Namespace: "shortdeck",
			Name:      "games_active",
			Help:      "Number of game actors currently running.",
		}),
		QueueDepth: factory.gauge(prometheus.GaugeOpts{
			Namespace: "shortdeck",
			Name:      "queue_depth",
			Help:      "Players waiting in the matchmaking queue.",
		}),
		Connections: factory.gauge(prometheus.GaugeOpts{
			Namespace: "shortdeck",
			Name:      "websocket_connections",
			Help:      "Open websocket connections.",
		}),
		HandsPlayed: factory.counter(prometheus.CounterOpts{
			Namespace: "shortdeck",
			Name:      "hands_played_total",
			Help:      "Hands completed across all games.",
		}),
		ActionsTotal: factory.counterVec(prometheus.CounterOpts{
			Namespace: "shortdeck",
			Name:      "player_actions_total",
			Help:      "Player actions applied, by action type.",
		}, []string{"action"}),
		EventsAppended: factory.counter(prometheus.CounterOpts{
			Namespace: "shortdeck",
			Name:      "events_appended_total",
			Help:      "Events appended to the event log.",
		}),
		PersistErrors: factory.counter(prometheus.CounterOpts{
			Namespace: "shortdeck",
			Name:      "persist_errors_total",
			Help:      "Event log writes that failed and were rolled back.",
		}),
		GameRestarts: factory.counter(prometheus.CounterOpts{
			Namespace: "shortdeck",
			Name:      "game_restarts_total",
			Help:      "Game actors restarted after a crash.",
		}),
		ReplayDuration: factory.histogram(prometheus.HistogramOpts{
			Namespace: "shortdeck",
			Name:      "replay_duration_seconds",
			Help:      "Time spent rebuilding game state from the event log.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type factory struct {
	registry *prometheus.Registry
}

func promauto(r *prometheus.Registry) factory {
	return factory{registry: r}
}

func (f factory) gauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	g := prometheus.NewGauge(opts)
	f.registry.MustRegister(g)
	return g
}

func (f factory) counter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.registry.MustRegister(c)
	return c
}

func (f factory) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.registry.MustRegister(c)
	return c
}

func (f factory) histogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	h := prometheus.NewHistogram(opts)
	f.registry.MustRegister(h)
	return h
}
