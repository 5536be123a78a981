package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func testOptions(host string) Options {
	return Options{
		MaxRetries: 3,
		Limiters:   map[string]*rate.Limiter{host: rate.NewLimiter(1000, 1000)},
		Adaptive:   map[string]*AdaptiveLimiter{},
	}
}

func testHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, testOptions(testHost(t, srv)))}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransport_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions(testHost(t, srv))
	opts.MaxRetries = 2
	client := &http.Client{Transport: NewTransport(nil, opts)}

	_, err := client.Get(srv.URL) //nolint:bodyclose
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransport_AdaptiveHalvesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	adaptive := NewAdaptiveLimiter(1000, 1000)
	opts := testOptions(testHost(t, srv))
	opts.Adaptive = map[string]*AdaptiveLimiter{testHost(t, srv): adaptive}
	client := &http.Client{Transport: NewTransport(nil, opts)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	// Halved on the 429, then nudged up 20% by the success.
	assert.InDelta(t, 600, float64(adaptive.Limit()), 1)
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var agent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewTransport(nil, testOptions(testHost(t, srv)))}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "fieldscout/1.0", agent.Load())
}

func TestTransport_ContextCancelledDuringWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// Zero-burst limiter never admits a request.
	opts := testOptions(testHost(t, srv))
	opts.Limiters[testHost(t, srv)] = rate.NewLimiter(rate.Every(time.Hour), 1)
	client := &http.Client{Transport: NewTransport(nil, opts)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	_, _ = client.Do(req) //nolint:bodyclose

	// First token is admitted immediately; the second one blocks until the
	// context deadline.
	_, err = client.Do(req.Clone(ctx)) //nolint:bodyclose
	require.Error(t, err)
}

func TestNewHTTPClient_Defaults(t *testing.T) {
	client := NewHTTPClient(Options{})
	assert.Equal(t, 120*time.Second, client.Timeout)
	tr, ok := client.Transport.(*Transport)
	require.True(t, ok)
	assert.Equal(t, 3, tr.opts.MaxRetries)
	assert.Contains(t, tr.limiters, "overpass-api.de")
	assert.Contains(t, tr.adaptive, "sh.dataspace.copernicus.eu")
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(10, 10)
	for i := 0; i < 20; i++ {
		a.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), a.Limit())

	for i := 0; i < 20; i++ {
		a.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), a.Limit())
}
