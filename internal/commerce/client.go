// Package commerce is the client for the remote commerce API reached through
// the storefront's reverse proxy endpoint.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lumen-apothecary/storefront/internal/logging"
)

// DefaultSessionHeader carries the session key on every request.
const DefaultSessionHeader = "X-Session-Key"

// SessionKeySource supplies the current session key, or "" when logged out.
type SessionKeySource interface {
	SessionKey() string
}

// CallObserver is told about every finished call.
type CallObserver func(endpoint string, err error, elapsed time.Duration)

// Config holds client configuration.
type Config struct {
	BaseURL       string
	SessionHeader string
	Timeout       time.Duration
	Retry         RetryConfig
	Breaker       CircuitBreakerConfig
	// HTTPClient's transport is wrapped with the retry policy when set.
	HTTPClient *http.Client
	Session    SessionKeySource
	Logger     *logging.Logger
	Observe    CallObserver
}

// Client talks to the commerce backend.
type Client struct {
	baseURL       string
	sessionHeader string
	httpClient    *http.Client
	breaker       *CircuitBreaker
	session       SessionKeySource
	log           *logging.Logger
	observe       CallObserver
}

// New creates a commerce client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.SessionHeader == "" {
		cfg.SessionHeader = DefaultSessionHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		maxRetries := cfg.Retry.MaxRetries
		cfg.Retry = DefaultRetryConfig()
		cfg.Retry.MaxRetries = maxRetries
	}
	if cfg.Breaker.Timeout == 0 {
		onChange := cfg.Breaker.OnStateChange
		cfg.Breaker = DefaultCircuitBreakerConfig()
		cfg.Breaker.OnStateChange = onChange
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefault("commerce")
	}
	log, onChange := cfg.Logger, cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(from, to CircuitState) {
		entry := log.WithField("from", from.String()).WithField("to", to.String())
		if to == CircuitOpen {
			entry.Warn("commerce backend circuit opened")
		} else {
			entry.Info("commerce backend circuit changed state")
		}
		if onChange != nil {
			onChange(from, to)
		}
	}

	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	breaker := NewCircuitBreaker(cfg.Breaker)

	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		sessionHeader: cfg.SessionHeader,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &retryTransport{
				base:    base,
				retry:   cfg.Retry,
				breaker: breaker,
				sleep:   sleepContext,
			},
		},
		breaker: breaker,
		session: cfg.Session,
		log:     cfg.Logger,
		observe: cfg.Observe,
	}, nil
}

// CircuitState returns the state of the client's circuit breaker.
func (c *Client) CircuitState() CircuitState {
	return c.breaker.State()
}

// Response is a decoded backend response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	Success bool
	Code    int
	Message string
	Data    json.RawMessage
}

// DataJSON unmarshals the envelope's data member into v.
func (r *Response) DataJSON(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// APIError is a well-formed failure reported by the backend.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("commerce error: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("commerce error: status %d code %d", e.StatusCode, e.Code)
}

// IsUnauthorized reports whether the backend rejected the session.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == http.StatusUnauthorized
}

// IsRejection marks the error as a remote rejection rather than a transport
// failure.
func (e *APIError) IsRejection() bool { return true }

// decodeEnvelope reads the {success, data, code, message} envelope. A call
// failed when the HTTP status is >= 400, success is false, or code >= 400.
func decodeEnvelope(status int, headers http.Header, body []byte) (*Response, error) {
	resp := &Response{StatusCode: status, Headers: headers, Body: body}

	if !gjson.ValidBytes(body) {
		if status >= 400 {
			return nil, &APIError{StatusCode: status, Code: status, Message: http.StatusText(status)}
		}
		return nil, fmt.Errorf("decode envelope: invalid JSON (status %d)", status)
	}

	env := gjson.ParseBytes(body)
	success := env.Get("success")
	resp.Success = !success.Exists() || success.Bool()
	resp.Code = int(env.Get("code").Int())
	resp.Message = env.Get("message").String()
	if data := env.Get("data"); data.Exists() {
		resp.Data = json.RawMessage(data.Raw)
	}

	if status >= 400 || !resp.Success || resp.Code >= 400 {
		code := resp.Code
		if code == 0 {
			code = status
		}
		msg := resp.Message
		if msg == "" {
			msg = env.Get("error").String()
		}
		return nil, &APIError{StatusCode: status, Code: code, Message: msg}
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.session != nil {
		if key := c.session.SessionKey(); key != "" {
			req.Header.Set(c.sessionHeader, key)
		}
	}
	if traceID := logging.GetTraceID(req.Context()); traceID != "" {
		req.Header.Set("X-Trace-ID", traceID)
	}
}

// call performs one request against path (relative to the base URL) and
// decodes the envelope. endpoint names the call for logs and metrics.
func (c *Client) call(ctx context.Context, endpoint, method, path string, query url.Values, payload any) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(endpoint, err, time.Since(start))
		}
		if err != nil {
			c.log.WithContext(ctx).
				WithField("endpoint", endpoint).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				WithError(err).
				Warn("commerce call failed")
		}
	}()

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, mErr := json.Marshal(payload)
		if mErr != nil {
			return nil, fmt.Errorf("marshal %s request: %w", endpoint, mErr)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodeEnvelope(httpResp.StatusCode, httpResp.Header, raw)
}
