package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errThrottled = eris.New("copernicus: process returned 429: rate limit exceeded")

func testBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Threshold:     threshold,
		Cooldown:      cooldown,
		OnStateChange: func(from, to BreakerState) {},
	})
	now := time.Now()
	cb.now = func() time.Time { return now }
	return cb, &now
}

func failN(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return errThrottled
		})
		require.ErrorIs(t, err, errThrottled)
	}
}

func TestBreaker_OpensAfterConsecutiveThrottles(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)

	failN(t, cb, 3)
	assert.Equal(t, BreakerOpen, cb.State())

	var called bool
	_, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (string, error) {
		called = true
		return "scene", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not call through")
}

func TestBreaker_RequestDefectsDoNotTrip(t *testing.T) {
	cb, _ := testBreaker(2, time.Minute)

	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(ctx context.Context) error {
			return eris.New("copernicus: process returned 400: invalid evalscript")
		})
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrCircuitOpen)
	}
	assert.Equal(t, BreakerClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)

	failN(t, cb, 2)
	assert.Equal(t, 2, cb.Failures())

	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Zero(t, cb.Failures())
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)

	failN(t, cb, 1)
	assert.Equal(t, BreakerOpen, cb.State())

	*now = now.Add(61 * time.Second)
	scene, err := ExecuteVal(context.Background(), cb, func(ctx context.Context) (string, error) {
		return "scene", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "scene", scene)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)

	failN(t, cb, 1)
	*now = now.Add(61 * time.Second)
	failN(t, cb, 1) // the probe

	assert.Equal(t, BreakerOpen, cb.State())
	err := cb.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
}
