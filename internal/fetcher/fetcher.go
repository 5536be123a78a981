// Package fetcher provides a rate-limited, retrying http.Client shared by the
// Copernicus and Overpass API clients. Each upstream host gets its own
// limiter so a burst of Sentinel tile downloads cannot starve OSM queries.
package fetcher

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures the rate-limited transport.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// Limiters maps host names to fixed-rate limiters. Hosts without an
	// entry get DefaultLimit.
	Limiters map[string]*rate.Limiter
	// Adaptive maps host names to self-tuning limiters, consulted before
	// Limiters.
	Adaptive map[string]*AdaptiveLimiter
}

// DefaultLimit is the fallback rate for hosts with no dedicated limiter.
const DefaultLimit rate.Limit = 20

// DefaultLimiters returns the per-host rate limiters for the upstream APIs.
// The Copernicus process endpoint tolerates parallel tile requests, the
// identity endpoint and Overpass do not.
func DefaultLimiters() map[string]*rate.Limiter {
	return map[string]*rate.Limiter{
		"sh.dataspace.copernicus.eu":       rate.NewLimiter(5, 5),
		"identity.dataspace.copernicus.eu": rate.NewLimiter(2, 2),
		"overpass-api.de":                  rate.NewLimiter(1, 1),
	}
}

// DefaultAdaptiveLimiters returns adaptive limiters for the hosts that are
// known to answer with 429 under load.
func DefaultAdaptiveLimiters() map[string]*AdaptiveLimiter {
	return map[string]*AdaptiveLimiter{
		"sh.dataspace.copernicus.eu": NewAdaptiveLimiter(5, 5),
		"overpass-api.de":            NewAdaptiveLimiter(1, 1),
	}
}

// Transport is an http.RoundTripper that rate limits per host and retries
// transient failures with exponential backoff.
type Transport struct {
	base     http.RoundTripper
	opts     Options
	limiters map[string]*rate.Limiter
	adaptive map[string]*AdaptiveLimiter
	fallback *rate.Limiter
	log      *zap.Logger
}

// NewTransport creates a Transport over the given base round tripper. A nil
// base uses a dedicated http.Transport tuned for tile downloads.
func NewTransport(base http.RoundTripper, opts Options) *Transport {
	if base == nil {
		base = &http.Transport{
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     90 * time.Second,
		}
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "fieldscout/1.0"
	}
	limiters := opts.Limiters
	if limiters == nil {
		limiters = DefaultLimiters()
	}
	adaptive := opts.Adaptive
	if adaptive == nil {
		adaptive = DefaultAdaptiveLimiters()
	}
	return &Transport{
		base:     base,
		opts:     opts,
		limiters: limiters,
		adaptive: adaptive,
		fallback: rate.NewLimiter(DefaultLimit, int(DefaultLimit)),
		log:      zap.L().With(zap.String("component", "fetcher")),
	}
}

// NewHTTPClient returns an http.Client backed by a rate-limited Transport.
func NewHTTPClient(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(nil, opts),
	}
}

// RoundTrip waits for the host's limiter, then performs the request,
// retrying 429 and 5xx responses. Requests with a body are only retried when
// GetBody is available.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Host
	adaptive := t.adaptive[host]

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(ctx)
		req.Header.Set("User-Agent", t.opts.UserAgent)
	}

	var lastErr error
	for attempt := 0; attempt < t.opts.MaxRetries; attempt++ {
		if err := t.wait(ctx, host, adaptive); err != nil {
			return nil, err
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			lastErr = err
			if !t.rewind(req) {
				return nil, eris.Wrapf(err, "fetcher: request to %s", host)
			}
			t.log.Warn("request failed, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			t.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetcher: http 429 from %s", host)
			if adaptive != nil {
				adaptive.OnRateLimit()
			}
			if !t.rewind(req) {
				return nil, lastErr
			}
			t.backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("fetcher: http %d from %s", resp.StatusCode, host)
			if !t.rewind(req) {
				return nil, lastErr
			}
			t.log.Warn("server error, retrying",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			t.backoff(ctx, attempt)
			continue
		}

		if adaptive != nil {
			adaptive.OnSuccess()
		}
		return resp, nil
	}

	return nil, eris.Wrap(lastErr, "fetcher: all retries exhausted")
}

func (t *Transport) wait(ctx context.Context, host string, adaptive *AdaptiveLimiter) error {
	if adaptive != nil {
		if err := adaptive.Wait(ctx); err != nil {
			return eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return nil
	}
	lim, ok := t.limiters[host]
	if !ok {
		lim = t.fallback
	}
	if err := lim.Wait(ctx); err != nil {
		return eris.Wrap(err, "fetcher: rate limiter wait")
	}
	return nil
}

// rewind resets the request body for another attempt. Requests without a
// body always rewind.
func (t *Transport) rewind(req *http.Request) bool {
	if req.Body == nil || req.Body == http.NoBody {
		return true
	}
	if req.GetBody == nil {
		return false
	}
	body, err := req.GetBody()
	if err != nil {
		return false
	}
	req.Body = body
	return true
}

func (t *Transport) backoff(ctx context.Context, attempt int) {
	base := time.Second
	maxBackoff := 30 * time.Second
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	d = d + jitter

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
