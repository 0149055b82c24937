// Package breaker implements the per-server circuit breaker state machine
// from spec §4.5: Closed -> Open on consecutive failures, Open -> HalfOpen
// after a cooldown, HalfOpen -> Closed|Open on a single probe's outcome.
package breaker

import (
	"sync"
	"time"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// TransitionFunc is invoked whenever the breaker changes state, primarily
// so callers can emit the circuit_opened/circuit_closed security events
// and the oauth_circuit_transition_total metric without the breaker
// itself depending on the logging or metrics packages (spec §4.9/§4.10).
type TransitionFunc func(from, to State)

// Breaker guards calls to a single upstream. It is constructed with
// functional options, matching how the rest of this codebase favors small
// constructors over large positional-argument calls.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	openDuration      time.Duration
	now               func() time.Time
	onTransition      TransitionFunc

	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenProbeInFlight bool
}

// Option configures a Breaker at construction time.
type Option func(*Breaker)

// WithClock overrides the time source; used by tests to avoid real sleeps.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionFunc registers a callback invoked on every state change.
func WithTransitionFunc(fn TransitionFunc) Option {
	return func(b *Breaker) { b.onTransition = fn }
}

// New constructs a Breaker with the given failure threshold and open
// duration (spec §4.5).
func New(failureThreshold int, openDuration time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		failureThreshold: failureThreshold,
		openDuration:     openDuration,
		now:              time.Now,
		state:            Closed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the breaker's current state, resolving an expired Open
// window to HalfOpen as a side-effect-free read (the actual HalfOpen
// transition and probe gating happens inside Allow/Call).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.effectiveState()
}

// effectiveState must be called with b.mu held.
func (b *Breaker) effectiveState() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.openDuration {
		return HalfOpen
	}
	return b.state
}

// Call runs fn if the breaker currently admits calls, updating state based
// on the outcome. Returns errs.CircuitOpen without invoking fn when the
// breaker is Open, or when HalfOpen already has a probe in flight.
func (b *Breaker) Call(server string, fn func() error) error {
	if !b.allow() {
		return &errs.CircuitOpen{Server: server}
	}

	err := fn()
	b.recordResult(err)
	return err
}

// allow reports whether a call may proceed, and claims the single HalfOpen
// probe slot if applicable.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.effectiveState()
	switch state {
	case Closed:
		return true
	case Open:
		return false
	case HalfOpen:
		if b.state == Open {
			b.transitionTo(HalfOpen)
		}
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true
	default:
		return false
	}
}

// recordResult applies a completed call's outcome to the state machine.
func (b *Breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasHalfOpenProbe := b.halfOpenProbeInFlight
	b.halfOpenProbeInFlight = false

	if err == nil || !errs.CountsAsBreakerFailure(err) {
		if wasHalfOpenProbe || b.state == Closed {
			b.consecutiveFailures = 0
			b.transitionTo(Closed)
		}
		return
	}

	if wasHalfOpenProbe {
		b.openedAt = b.now()
		b.transitionTo(Open)
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.failureThreshold {
		b.openedAt = b.now()
		b.transitionTo(Open)
	}
}

// transitionTo must be called with b.mu held.
func (b *Breaker) transitionTo(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
}
