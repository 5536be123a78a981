package resilience

import (
	"context"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cdse throttle", eris.New("copernicus: process returned 429: rate limit exceeded"), true},
		{"overpass throttle", eris.New("overpass: unexpected status 429: please be patient"), true},
		{"upstream 503", eris.New("copernicus: catalog returned 503: maintenance"), true},
		{"wrapped upstream 502", eris.Wrap(eris.New("copernicus: process returned 502: bad gateway"), "tile (6.7,51.1,6.8,51.2)"), true},
		{"bad evalscript", eris.New("copernicus: process returned 400: invalid evalscript"), false},
		{"bad credentials", eris.New("copernicus: token endpoint returned 401: invalid_grant"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"network timeout", timeoutError{}, true},
		{"connection refused", fmt.Errorf("dial overpass-api.de: %w", syscall.ECONNREFUSED), true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"no status in message", eris.New("copernicus: token endpoint returned no access_token"), false},
		{"circuit open", ErrCircuitOpen, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, 429, StatusFromError(eris.New("overpass: unexpected status 429: slow down")))
	assert.Equal(t, 503, StatusFromError(eris.New("copernicus: process returned 503: try later")))
	assert.Zero(t, StatusFromError(eris.New("copernicus: unmarshal token response")))
}

func TestTransientStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, TransientStatus(code), "%d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, TransientStatus(code), "%d", code)
	}
}
