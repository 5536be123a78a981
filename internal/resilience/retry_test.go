package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{Attempts: 4, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestDoVal_RetriesThrottle(t *testing.T) {
	var calls int
	var retries []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, err error) { retries = append(retries, attempt) }

	scene, err := DoVal(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", eris.New("copernicus: process returned 429: rate limit exceeded")
		}
		return "scene", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "scene", scene)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoVal_RequestDefectFailsFast(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "", eris.New("copernicus: process returned 400: invalid evalscript")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	var calls int
	_, err := DoVal(context.Background(), fastRetry(), func(ctx context.Context) (string, error) {
		calls++
		return "", eris.New("overpass: unexpected status 504: gateway timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "504")
}

func TestDo_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{Attempts: 4, BaseDelay: time.Minute}

	var calls int
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		cancel()
		return eris.New("overpass: unexpected status 503: load too high")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no retry after cancellation")
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	assert.Equal(t, time.Second, backoff(cfg, 0))
	assert.Equal(t, 2*time.Second, backoff(cfg, 1))
	assert.Equal(t, 4*time.Second, backoff(cfg, 2))
	assert.Equal(t, 4*time.Second, backoff(cfg, 10))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: time.Second, Jitter: 0.2}
	for i := 0; i < 50; i++ {
		d := backoff(cfg, 0)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}
