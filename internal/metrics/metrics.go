// Package metrics exposes Prometheus collectors for harvest runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "leads"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg prometheus.Registerer

	requests   *prometheus.CounterVec
	retries    *prometheus.CounterVec
	candidates *prometheus.CounterVec
	locations  *prometheus.CounterVec
	pages      prometheus.Counter
}

// New registers the harvest collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream API attempts, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_retries_total",
				Help:      "Retries scheduled, labeled by endpoint and cause.",
			},
			[]string{"endpoint", "cause"},
		),
		candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_total",
				Help:      "Classified candidates, labeled by outcome and rejection reason.",
			},
			[]string{"outcome", "reason"},
		),
		locations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "locations_total",
				Help:      "Completed location tasks, labeled by status.",
			},
			[]string{"status"},
		),
		pages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "search_pages_total",
				Help:      "Search result pages fetched.",
			},
		),
	}
	reg.MustRegister(m.requests, m.retries, m.candidates, m.locations, m.pages)
	return m
}

// TrackLimiterDelays exports delayed() as the rate limiter delay counter.
func (m *Metrics) TrackLimiterDelays(delayed func() int64) {
	if m == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_delays_total",
			Help:      "Requests that waited for the rate limiter.",
		},
		func() float64 { return float64(delayed()) },
	))
}

// ObserveRequest counts one upstream attempt.
func (m *Metrics) ObserveRequest(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveRetry counts one scheduled retry.
func (m *Metrics) ObserveRetry(endpoint, cause string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(endpoint, cause).Inc()
}

// ObserveCandidate counts one classified candidate. reason is empty for
// accepted candidates.
func (m *Metrics) ObserveCandidate(outcome, reason string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(outcome, reason).Inc()
}

// ObserveLocation counts one finished location task.
func (m *Metrics) ObserveLocation(status string) {
	if m == nil {
		return
	}
	m.locations.WithLabelValues(status).Inc()
}

// AddPages adds n fetched search pages.
func (m *Metrics) AddPages(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pages.Add(float64(n))
}

// Handler returns an http.Handler serving the collectors in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
