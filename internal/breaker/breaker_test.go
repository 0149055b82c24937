package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

func TestCall_OpensAfterConsecutiveFailures(t *testing.T) {
	b := New(3, time.Minute)
	netErr := &errs.NetworkError{Err: errors.New("boom")}

	for i := 0; i < 3; i++ {
		err := b.Call("s", func() error { return netErr })
		assert.Error(t, err)
	}

	assert.Equal(t, Open, b.State())

	err := b.Call("s", func() error { return nil })
	var circuitOpen *errs.CircuitOpen
	require.ErrorAs(t, err, &circuitOpen)
}

func TestCall_NonCountingErrorsDoNotOpenCircuit(t *testing.T) {
	b := New(2, time.Minute)
	unauthorized := &errs.Unauthorized{StatusCode: 401}

	for i := 0; i < 5; i++ {
		b.Call("s", func() error { return unauthorized })
	}

	assert.Equal(t, Closed, b.State())
}

func TestCall_HalfOpenAfterOpenDurationAllowsOneProbe(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := New(1, 10*time.Millisecond, WithClock(clock))

	b.Call("s", func() error { return &errs.NetworkError{Err: errors.New("x")} })
	assert.Equal(t, Open, b.State())

	now = now.Add(20 * time.Millisecond)
	assert.Equal(t, HalfOpen, b.State())

	probed := false
	err := b.Call("s", func() error {
		probed = true
		return nil
	})
	assert.True(t, probed)
	assert.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestCall_FailedProbeReopensCircuit(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := New(1, 10*time.Millisecond, WithClock(clock))

	b.Call("s", func() error { return &errs.NetworkError{Err: errors.New("x")} })
	now = now.Add(20 * time.Millisecond)

	b.Call("s", func() error { return &errs.NetworkError{Err: errors.New("x")} })
	assert.Equal(t, Open, b.State())
}

func TestCall_TransitionCallbackFires(t *testing.T) {
	var transitions []string
	b := New(1, time.Minute, WithTransitionFunc(func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}))

	b.Call("s", func() error { return &errs.NetworkError{Err: errors.New("x")} })
	assert.Contains(t, transitions, "closed->open")
}
