package commerce

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0)
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used against the proxy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (rc RetryConfig) backoff(attempt int) time.Duration {
	backoff := float64(rc.InitialBackoff) * math.Pow(rc.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(rc.MaxBackoff) {
		backoff = float64(rc.MaxBackoff)
	}
	if rc.Jitter > 0 {
		backoff += backoff * rc.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func (rc RetryConfig) retryableStatus(code int) bool {
	for _, c := range rc.RetryableStatusCodes {
		if code == c {
			return true
		}
	}
	return false
}

type idempotentKey struct{}

// withIdempotent marks a call whose method is not idempotent by definition
// as safe to send more than once.
func withIdempotent(ctx context.Context) context.Context {
	return context.WithValue(ctx, idempotentKey{}, true)
}

// retryAllowed reports whether req may be repeated. A POST that created an
// address or an order before the proxy failed must not be sent again.
func retryAllowed(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	ok, _ := req.Context().Value(idempotentKey{}).(bool)
	return ok
}

func retryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	Timeout       time.Duration
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// ErrCircuitOpen is returned without touching the network while the backend
// is considered down.
var ErrCircuitOpen = errors.New("commerce: circuit breaker is open")

// CircuitBreaker stops calling a failing backend for a while.
type CircuitBreaker struct {
	mu sync.Mutex

	config    CircuitBreakerConfig
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultCircuitBreakerConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	return &CircuitBreaker{config: config, state: CircuitClosed, now: time.Now}
}

// Allow reports whether a request may go out.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) > cb.config.Timeout {
			cb.transitionTo(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	}
	return nil
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transitionTo(next CircuitState) {
	prev := cb.state
	cb.state = next

	switch next {
	case CircuitClosed:
		cb.failures = 0
		cb.successes = 0
	case CircuitOpen:
		cb.openedAt = cb.now()
		cb.successes = 0
	case CircuitHalfOpen:
		cb.successes = 0
	}

	if cb.config.OnStateChange != nil && prev != next {
		go cb.config.OnStateChange(prev, next)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// retryTransport applies the circuit breaker to every round trip and the
// retry policy to idempotent ones. Request bodies are replayed through
// GetBody.
type retryTransport struct {
	base    http.RoundTripper
	retry   RetryConfig
	breaker *CircuitBreaker
	sleep   func(ctx context.Context, d time.Duration) error
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (rt *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := rt.breaker.Allow(); err != nil {
		return nil, err
	}

	maxRetries := rt.retry.MaxRetries
	if !retryAllowed(req) {
		maxRetries = 0
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := rt.sleep(req.Context(), rt.retry.backoff(attempt)); err != nil {
				return nil, err
			}
			if req.Body != nil && req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				req = req.Clone(req.Context())
				req.Body = body
			}
		}

		resp, lastErr = rt.base.RoundTrip(req)
		if lastErr != nil {
			if retryableError(lastErr) && attempt < maxRetries {
				continue
			}
			rt.breaker.RecordFailure()
			return nil, lastErr
		}

		if rt.retry.retryableStatus(resp.StatusCode) {
			if attempt < maxRetries {
				resp.Body.Close()
				continue
			}
			rt.breaker.RecordFailure()
			return resp, nil
		}

		rt.breaker.RecordSuccess()
		return resp, nil
	}

	rt.breaker.RecordFailure()
	return resp, lastErr
}
