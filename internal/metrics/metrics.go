// Package metrics exposes the broker's Prometheus instrumentation (spec
// §4.10), registered against a private registry owned by the composition
// root rather than the global default registerer, so tests can construct
// independent, isolated instances.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric named in spec §4.10 behind a private
// prometheus.Registry, mirroring how the rest of this codebase avoids
// package-level global state in favor of explicit construction.
type Registry struct {
	reg *prometheus.Registry

	TokenAcquiredTotal       *prometheus.CounterVec
	TokenCacheOperationTotal *prometheus.CounterVec
	HTTPRequestTotal         *prometheus.CounterVec
	RateLimitRejectedTotal   *prometheus.CounterVec
	CircuitTransitionTotal   *prometheus.CounterVec

	TokenAcquireDuration    *prometheus.HistogramVec
	UpstreamRequestDuration *prometheus.HistogramVec

	TokenExpiresIn *prometheus.GaugeVec
	CircuitState   *prometheus.GaugeVec
}

// New builds and registers every metric. Registration failures here would
// indicate a programming error (duplicate or malformed metric
// descriptors), so New panics rather than threading an error return
// through every call site, matching how the teacher's promauto-style
// helpers behave.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		TokenAcquiredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_token_acquired_total",
			Help: "Count of token acquisition attempts by server, provider, and result.",
		}, []string{"server", "provider", "result"}),

		TokenCacheOperationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_token_cache_operation_total",
			Help: "Count of token cache operations by server and operation kind.",
		}, []string{"server", "op"}),

		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_http_request_total",
			Help: "Count of proxied DICOMweb requests by server, method, and status class.",
		}, []string{"server", "method", "status_class"}),

		RateLimitRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_rate_limit_rejected_total",
			Help: "Count of requests rejected by the rate limiter by key kind.",
		}, []string{"key_kind"}),

		CircuitTransitionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_circuit_transition_total",
			Help: "Count of circuit breaker state transitions by server, from-state, and to-state.",
		}, []string{"server", "from", "to"}),

		TokenAcquireDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauth_token_acquire_duration_seconds",
			Help:    "Duration of token acquisition calls by server, provider, and result.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "provider", "result"}),

		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauth_upstream_request_duration_seconds",
			Help:    "Duration of proxied upstream DICOMweb requests by server, method, and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"server", "method", "status_class"}),

		TokenExpiresIn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oauth_token_expires_in_seconds",
			Help: "Seconds until the cached token for a server expires.",
		}, []string{"server"}),

		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oauth_circuit_state",
			Help: "Current circuit breaker state per server: 0=Closed, 1=HalfOpen, 2=Open.",
		}, []string{"server"}),
	}

	reg.MustRegister(
		r.TokenAcquiredTotal,
		r.TokenCacheOperationTotal,
		r.HTTPRequestTotal,
		r.RateLimitRejectedTotal,
		r.CircuitTransitionTotal,
		r.TokenAcquireDuration,
		r.UpstreamRequestDuration,
		r.TokenExpiresIn,
		r.CircuitState,
	)

	return r
}

// Gatherer exposes the underlying registry for the /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Circuit state values used with CircuitState, matching spec §4.10's
// fixed encoding.
const (
	CircuitStateClosed   = 0
	CircuitStateHalfOpen = 1
	CircuitStateOpen     = 2
)
