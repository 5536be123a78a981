package resilience

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"syscall"
)

// statusRe extracts the HTTP status that the copernicus and overpass clients
// fold into their error messages ("process returned 503: ...", "unexpected
// status 429: ...").
var statusRe = regexp.MustCompile(`(?:returned|status) ([0-9]{3})`)

// IsTransient reports whether an error is worth retrying. Throttles and
// upstream hiccups are; request defects and auth failures are not: a 400
// means a broken evalscript or query and a 401 means bad credentials (the
// copernicus client refreshes expired tokens itself), so repeating either
// only burns rate budget.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if code := StatusFromError(err); code != 0 {
		return TransientStatus(code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// TransientStatus reports whether an HTTP status signals a throttle or a
// server-side hiccup. 429 dominates in practice: both the CDSE processing
// API and the public Overpass instance meter their clients.
func TransientStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// StatusFromError recovers the HTTP status from an API client error message,
// or 0 when the error carries none.
func StatusFromError(err error) int {
	m := statusRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return code
}
