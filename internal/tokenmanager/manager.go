// Package tokenmanager implements the keystone component of the broker
// (spec §4.7): one instance per configured upstream server, coordinating
// its Provider Adapter, Circuit Breaker, Retry policy, JWT Validator, and
// Secret Store to produce a cached, encrypted bearer token.
package tokenmanager

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/breaker"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/jwtvalidate"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/metrics"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/provider"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/retry"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/secretstore"
	"github.com/rhavekost/dicomweb-oauth-broker/pkg/logging"
)

// cachedToken holds an encrypted bearer token and its expiry, guarded by
// Manager.mu.
type cachedToken struct {
	ciphertext []byte
	expiresAt  time.Time
}

// Manager is the per-server token cache plus acquisition pipeline. A
// single instance owns one Provider Adapter, one Circuit Breaker, one
// Retry policy, and one Secret Store instance, per the isolation
// requirement in spec §4.7 (I6: no secret material is ever shared across
// servers).
type Manager struct {
	server    string
	cfg       config.ServerConfig
	adapter   provider.Adapter
	breaker   *breaker.Breaker
	policy    retry.Policy
	validator *jwtvalidate.Validator
	store     *secretstore.Store
	metrics   *metrics.Registry

	mu     sync.RWMutex
	cached *cachedToken

	group singleflight.Group

	now func() time.Time
}

// New wires one Manager for server, constructing its own Provider Adapter,
// Circuit Breaker, Retry policy, JWT Validator, and Secret Store.
func New(cfg config.ServerConfig, reg *metrics.Registry) (*Manager, error) {
	adapter, err := provider.NewAdapter(cfg)
	if err != nil {
		return nil, err
	}

	store, err := secretstore.New()
	if err != nil {
		return nil, err
	}

	validator, err := jwtvalidate.New(cfg.Name, cfg.JWTPublicKey, cfg.JWTAudience, cfg.JWTIssuer, cfg.JWTAlgorithms)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		server:    cfg.Name,
		cfg:       cfg,
		adapter:   adapter,
		validator: validator,
		store:     store,
		metrics:   reg,
		policy:    retry.NewPolicy(cfg.Retry.MaxAttempts, time.Duration(cfg.Retry.InitialDelayMs)*time.Millisecond, time.Duration(cfg.Retry.MaxDelayMs)*time.Millisecond, cfg.Retry.Multiplier, cfg.Retry.JitterRatio),
		now:       time.Now,
	}

	m.breaker = breaker.New(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.OpenDuration(), breaker.WithTransitionFunc(m.onBreakerTransition))

	return m, nil
}

func (m *Manager) onBreakerTransition(from, to breaker.State) {
	if m.metrics != nil {
		m.metrics.CircuitTransitionTotal.WithLabelValues(m.server, from.String(), to.String()).Inc()
		m.metrics.CircuitState.WithLabelValues(m.server).Set(circuitStateValue(to))
	}
	switch to {
	case breaker.Open:
		logging.Audit(logging.SecurityEvent{Kind: logging.EventCircuitOpened, Server: m.server})
	case breaker.Closed:
		if from == breaker.HalfOpen {
			logging.Audit(logging.SecurityEvent{Kind: logging.EventCircuitClosed, Server: m.server})
		}
	}
}

func circuitStateValue(s breaker.State) float64 {
	switch s {
	case breaker.Closed:
		return metrics.CircuitStateClosed
	case breaker.HalfOpen:
		return metrics.CircuitStateHalfOpen
	default:
		return metrics.CircuitStateOpen
	}
}

// GetToken implements the 7-step algorithm of spec §4.7: a cached,
// unexpired token is returned without contacting the provider; otherwise
// concurrent callers coalesce onto a single acquisition via singleflight
// (I1), and the result is validated and encrypted before caching.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	if token, ok := m.readCached(); ok {
		m.recordCacheOp("hit")
		return token, nil
	}

	result, err, _ := m.group.Do(m.server, func() (interface{}, error) {
		if token, ok := m.readCached(); ok {
			return token, nil
		}
		return m.acquire(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// readCached returns the decrypted token if a cached entry exists and has
// more than RefreshBuffer left before expiry.
func (m *Manager) readCached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cached == nil {
		return "", false
	}
	if m.now().Add(m.cfg.RefreshBuffer()).Before(m.cached.expiresAt) {
		plaintext, err := m.store.Decrypt(m.cached.ciphertext)
		if err != nil {
			return "", false
		}
		return plaintext, true
	}
	return "", false
}

// acquire runs the Circuit Breaker + Retry + Provider pipeline, validates
// the result, and caches it on success.
func (m *Manager) acquire(ctx context.Context) (string, error) {
	m.recordCacheOp("miss")

	var result provider.TokenAcquisitionResult
	start := m.now()

	callErr := m.breaker.Call(m.server, func() error {
		return retry.Run(ctx, m.policy, func() bool { return m.breaker.State() == breaker.Open }, func() error {
			r, err := m.adapter.AcquireToken(ctx)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})

	duration := m.now().Sub(start)
	providerName := string(m.adapter.Identify())

	if callErr != nil {
		m.recordAcquireOutcome(providerName, "failure", duration)
		logging.Audit(logging.SecurityEvent{
			Kind:   logging.EventAuthFailure,
			Server: m.server,
			Fields: map[string]string{"provider": providerName, "reason": callErr.Error()},
		})
		// CircuitOpen and RetriesExhausted are returned to the HTTP layer
		// unwrapped (spec §7 names them as distinct from
		// TokenAcquisitionFailed); only a bare provider error gets wrapped.
		var circuitOpen *errs.CircuitOpen
		var retriesExhausted *errs.RetriesExhausted
		if errors.As(callErr, &circuitOpen) || errors.As(callErr, &retriesExhausted) {
			return "", callErr
		}
		return "", &errs.TokenAcquisitionFailed{Server: m.server, Err: callErr}
	}

	validation := m.validator.Validate(result.AccessToken)
	if !validation.Valid {
		m.recordAcquireOutcome(providerName, "invalid", duration)
		logging.Audit(logging.SecurityEvent{
			Kind:   logging.EventTokenValidationFailure,
			Server: m.server,
			Fields: map[string]string{"reason": validation.Reason},
		})
		return "", &errs.TokenValidationFailed{Server: m.server, Reason: validation.Reason}
	}

	ciphertext, err := m.store.Encrypt(result.AccessToken)
	if err != nil {
		m.recordAcquireOutcome(providerName, "failure", duration)
		return "", &errs.TokenAcquisitionFailed{Server: m.server, Err: err}
	}

	expiresAt := m.now().Add(result.ExpiresIn)
	m.mu.Lock()
	m.cached = &cachedToken{ciphertext: ciphertext, expiresAt: expiresAt}
	m.mu.Unlock()

	m.recordAcquireOutcome(providerName, "success", duration)
	if m.metrics != nil {
		m.metrics.TokenExpiresIn.WithLabelValues(m.server).Set(result.ExpiresIn.Seconds())
	}
	logging.Audit(logging.SecurityEvent{
		Kind:   logging.EventAuthSuccess,
		Server: m.server,
		Fields: map[string]string{"provider": providerName},
	})

	return result.AccessToken, nil
}

func (m *Manager) recordCacheOp(op string) {
	if m.metrics != nil {
		m.metrics.TokenCacheOperationTotal.WithLabelValues(m.server, op).Inc()
	}
}

func (m *Manager) recordAcquireOutcome(providerName, result string, duration time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.TokenAcquiredTotal.WithLabelValues(m.server, providerName, result).Inc()
	m.metrics.TokenAcquireDuration.WithLabelValues(m.server, providerName, result).Observe(duration.Seconds())
}

// BreakerState exposes the underlying breaker's state for status reporting.
func (m *Manager) BreakerState() breaker.State {
	return m.breaker.State()
}

// CachedExpiresIn returns the time remaining until the currently cached
// token expires. The second return value is false if no token is cached
// (the cache was never populated, or has already expired past
// RefreshBuffer). Intended to be called immediately after a successful
// GetToken so the reported expiry reflects the token just returned.
func (m *Manager) CachedExpiresIn() (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cached == nil {
		return 0, false
	}
	remaining := m.cached.expiresAt.Sub(m.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}
