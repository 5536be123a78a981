package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	// BreakerClosed lets calls through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown passes.
	BreakerOpen
	// BreakerHalfOpen lets probe calls through to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned for calls rejected by an open breaker. It is
// not transient, so a retry wrapper around the breaker gives up instead of
// waiting out the cooldown.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// CircuitBreakerConfig tunes the breaker shared by a tile fan-out.
type CircuitBreakerConfig struct {
	// Threshold is the number of consecutive trip-worthy failures before the
	// breaker opens. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 1m, the Overpass and CDSE rate-limit window.
	Cooldown time.Duration

	// ShouldTrip decides which errors count toward Threshold. Defaults to
	// IsTransient: a single tile's malformed request must not take down the
	// whole run.
	ShouldTrip func(err error) bool

	// OnStateChange observes transitions. Defaults to a zap warning.
	OnStateChange func(from, to BreakerState)
}

// DefaultCircuitBreakerConfig returns the breaker settings used for the
// detection fan-out.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Threshold: 5,
		Cooldown:  time.Minute,
	}
}

// CircuitBreaker stops a fan-out from hammering an upstream that is failing
// consistently. One instance is shared by all workers of a run.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a breaker with the given config.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to BreakerState) {
			zap.L().Warn("circuit state changed",
				zap.String("component", "resilience"),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

// ExecuteVal is Execute for operations that return a value.
func ExecuteVal[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.allow() {
		return zero, ErrCircuitOpen
	}
	val, err := fn(ctx)
	cb.record(err)
	if err != nil {
		return zero, err
	}
	return val, nil
}

// State returns the breaker's position, moving an open breaker to half-open
// once the cooldown has passed.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
		cb.transition(BreakerHalfOpen)
	}
	return cb.state
}

// Failures returns the consecutive trip-worthy failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.Cooldown {
			return false
		}
		cb.transition(BreakerHalfOpen)
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if cb.state == BreakerHalfOpen {
			cb.transition(BreakerClosed)
		}
		return
	}

	cb.failures++
	cb.openedAt = cb.now()
	if cb.state == BreakerHalfOpen || cb.failures >= cb.cfg.Threshold {
		if cb.state != BreakerOpen {
			cb.transition(BreakerOpen)
		}
	}
}

func (cb *CircuitBreaker) transition(to BreakerState) {
	from := cb.state
	cb.state = to
	cb.cfg.OnStateChange(from, to)
}
