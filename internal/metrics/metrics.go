// Package metrics holds the Prometheus collectors for HTTP traffic and
// challenge activity. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Join results
const (
	JoinOK             = "ok"
	JoinAlreadyJoined  = "already_joined"
	JoinChallengeEnded = "challenge_ended"
	JoinInvalidStake   = "invalid_stake"
	JoinPartialFailure = "partial_failure"
	JoinError          = "error"
)

// Metrics holds all collectors registered on one registry
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authRejections      *prometheus.CounterVec

	challengesCreated    prometheus.Counter
	joinsTotal           *prometheus.CounterVec
	stakeUSD             prometheus.Counter
	awaitingFinalization prometheus.Gauge
	finalizedTotal       prometheus.Counter
	eventsDropped        prometheus.Counter
	providerRateLimited  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		authRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_rejections_total",
				Help: "Total number of rejected API requests",
			},
			[]string{"reason"},
		),
		challengesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motify_challenges_created_total",
			Help: "Total number of challenges created",
		}),
		joinsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motify_joins_total",
				Help: "Join attempts by result",
			},
			[]string{"result"},
		),
		stakeUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motify_stake_usd_total",
			Help: "Sum of recorded stakes in USD",
		}),
		awaitingFinalization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "motify_challenges_awaiting_finalization",
			Help: "Challenges past their end time that are not finalized yet",
		}),
		finalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motify_challenges_finalized_total",
			Help: "Total number of finalized challenges",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motify_events_dropped_total",
			Help: "Events dropped for slow stream subscribers",
		}),
		providerRateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "motify_provider_rate_limited_total",
				Help: "Activity provider requests rejected by upstream rate limits",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authRejections,
		m.challengesCreated,
		m.joinsTotal,
		m.stakeUSD,
		m.awaitingFinalization,
		m.finalizedTotal,
		m.eventsDropped,
		m.providerRateLimited,
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request. route is the matched route pattern.
func (m *Metrics) ObserveRequest(route, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(seconds)

	switch status {
	case http.StatusUnauthorized:
		m.authRejections.WithLabelValues("401_unauthorized").Inc()
	case http.StatusForbidden:
		m.authRejections.WithLabelValues("403_forbidden").Inc()
	case http.StatusTooManyRequests:
		m.authRejections.WithLabelValues("429_rate_limited").Inc()
	}
}

// ChallengeCreated counts a created challenge
func (m *Metrics) ChallengeCreated() {
	if m == nil {
		return
	}
	m.challengesCreated.Inc()
}

// Join counts a join attempt. stake is only added for successful joins.
func (m *Metrics) Join(result string, stake float64) {
	if m == nil {
		return
	}
	m.joinsTotal.WithLabelValues(result).Inc()
	if result == JoinOK && stake > 0 {
		m.stakeUSD.Add(stake)
	}
}

// SetAwaitingFinalization sets the number of challenges awaiting finalization
func (m *Metrics) SetAwaitingFinalization(n int) {
	if m == nil {
		return
	}
	m.awaitingFinalization.Set(float64(n))
}

// ChallengeFinalized counts a finalized challenge
func (m *Metrics) ChallengeFinalized() {
	if m == nil {
		return
	}
	m.finalizedTotal.Inc()
}

// EventDropped counts an event dropped for a slow subscriber
func (m *Metrics) EventDropped(string) {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// ProviderRateLimited counts an upstream rate-limit rejection
func (m *Metrics) ProviderRateLimited(provider string) {
	if m == nil {
		return
	}
	m.providerRateLimited.WithLabelValues(provider).Inc()
}

// AwaitingFinalizationGauge exposes the gauge for inspection
func (m *Metrics) AwaitingFinalizationGauge() prometheus.Gauge {
	return m.awaitingFinalization
}

// JoinsCounter exposes the join counter for result
func (m *Metrics) JoinsCounter(result string) prometheus.Counter {
	return m.joinsTotal.WithLabelValues(result)
}
