// Package apiclient is the shared JSON-over-HTTP transport for the card
// backend. It attaches the bearer token, decodes the backend's {"error": ...}
// envelope, and classifies failures with the services sentinel markers:
// transport failures are ErrUnavailable, auth failures ErrConfiguration,
// 4xx payload rejections ErrValidation, 404 ErrNotFound, and everything else
// ErrTransient.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"captionminer/internal/services"
)

const (
	defaultHTTPTimeout    = 10 * time.Second
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultRetryMaxDelay  = 5 * time.Second
	defaultRetryAttempts  = 3
	maxErrorBody          = 4 << 10
)

// TokenSource supplies the bearer token. An empty token sends no
// Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed TokenSource.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// Config captures backend connection settings.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Client issues JSON requests against the backend.
type Client struct {
	component  string
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(context.Context, time.Duration) error
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides how many times idempotent GETs are tried.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the GET retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// New constructs a client. component names the caller in wrapped errors.
func New(component string, cfg Config, tokens TokenSource, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		component:        component,
		baseURL:          strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tokens:           tokens,
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		sleeper:          sleepContext,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// Do sends body (when non-nil) as JSON and decodes the response into out
// (when non-nil). GET requests are retried on transient failures.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	operation := strings.ToLower(method) + " " + path
	if c.baseURL == "" {
		return services.Wrap(services.ErrConfiguration, c.component, operation, "api base url not configured", nil)
	}
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return services.Wrap(services.ErrValidation, c.component, operation, "encode body", err)
		}
	}

	attempts := 1
	if method == http.MethodGet && c.retryMaxAttempts > 1 {
		attempts = c.retryMaxAttempts
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.once(ctx, method, path, encoded, out)
		if lastErr == nil || !retryable(ctx, lastErr) || attempt == attempts {
			break
		}
		if err := c.sleeper(ctx, c.backoffDelay(attempt)); err != nil {
			break
		}
	}
	if lastErr == nil {
		return nil
	}
	return classify(c.component, operation, lastErr)
}

func (c *Client) once(ctx context.Context, method, path string, encoded []byte, out any) error {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(payload)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func errorMessage(payload []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && strings.TrimSpace(envelope.Error) != "" {
		return strings.TrimSpace(envelope.Error)
	}
	return strings.TrimSpace(string(payload))
}

func classify(component, operation string, err error) error {
	if errors.Is(err, services.ErrInvalidated) || errors.Is(err, services.ErrConfiguration) {
		return err
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized, statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, component, operation, "backend rejected credentials", err)
		case statusErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, component, operation, "", err)
		case statusErr.StatusCode == http.StatusRequestTimeout, statusErr.StatusCode == http.StatusTooManyRequests:
			return services.Wrap(services.ErrTransient, component, operation, "", err)
		case statusErr.StatusCode < http.StatusInternalServerError:
			return services.Wrap(services.ErrValidation, component, operation, "backend rejected request", err)
		default:
			return services.Wrap(services.ErrTransient, component, operation, "backend error", err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, component, operation, "", err)
	}
	var transport *transportError
	if errors.As(err, &transport) {
		return services.Wrap(services.ErrUnavailable, component, operation, "backend unreachable", err)
	}
	return services.Wrap(services.ErrTransient, component, operation, "", err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var transport *transportError
	return errors.As(err, &transport)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
		delay = c.retryMaxDelay
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
