package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
)

func zeroJitterPolicy(maxAttempts int, initial, max time.Duration) Policy {
	p := NewPolicy(maxAttempts, initial, max, 2, 0)
	p.rand = func() float64 { return 0.5 } // midpoint => zero net jitter
	return p
}

func TestRun_SucceedsOnFirstAttempt(t *testing.T) {
	p := zeroJitterPolicy(3, time.Millisecond, time.Second)
	calls := 0
	err := Run(context.Background(), p, nil, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRun_RetriesRetriableErrorsThenSucceeds(t *testing.T) {
	p := zeroJitterPolicy(3, time.Millisecond, time.Millisecond*5)
	calls := 0
	err := Run(context.Background(), p, nil, func() error {
		calls++
		if calls < 3 {
			return &errs.NetworkError{Err: errors.New("transient")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRun_StopsImmediatelyOnNonRetriableError(t *testing.T) {
	p := zeroJitterPolicy(5, time.Millisecond, time.Millisecond*5)
	calls := 0
	unauthorized := &errs.Unauthorized{StatusCode: 401}
	err := Run(context.Background(), p, nil, func() error {
		calls++
		return unauthorized
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Same(t, unauthorized, err)
}

func TestRun_ExhaustsAttemptsAndWrapsError(t *testing.T) {
	p := zeroJitterPolicy(3, time.Millisecond, time.Millisecond*5)
	calls := 0
	err := Run(context.Background(), p, nil, func() error {
		calls++
		return &errs.NetworkError{Err: errors.New("still down")}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var exhausted *errs.RetriesExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
}

func TestRun_AbortsWhenBreakerOpensMidRetry(t *testing.T) {
	p := zeroJitterPolicy(5, time.Millisecond, time.Millisecond*5)
	calls := 0
	err := Run(context.Background(), p, func() bool { return calls >= 1 }, func() error {
		calls++
		return &errs.NetworkError{Err: errors.New("down")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDelayForAttempt_RespectsMaxDelayCap(t *testing.T) {
	p := NewPolicy(10, 100*time.Millisecond, 200*time.Millisecond, 2, 0)
	p.rand = func() float64 { return 0.5 }
	d := p.delayForAttempt(10) // would be huge uncapped
	assert.LessOrEqual(t, d, 200*time.Millisecond)
}
