// Package apiclient is the single HTTP gateway between the console and the
// platform backend. It attaches the bearer token from the session store,
// encodes JSON bodies, decodes responses and turns 401/403 into a session
// wipe followed by the configured auth-failure handler. It never retries.
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

	"github.com/rs/zerolog"

	"brdconsole.org/internal/ids"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/session"
)

const (
	authHeader      = "Authorization"
	bearer          = "Bearer "
	requestIDHeader = "X-Request-ID"
	maxResponseSize = 8 << 20
	defaultTimeout  = 30 * time.Second
)

// DefaultPublicPaths never carry a token and never trigger the auth-failure
// flow: a 401 from the login endpoint means bad credentials, not an expired
// session.
var DefaultPublicPaths = []string{
	"token/",
	"token/refresh/",
	"tenants/signup/",
	"users/signup/",
}

// AuthFailureHandler is invoked after the session has been cleared because
// the backend rejected the credentials. The console wires it to navigation
// to the login screen.
type AuthFailureHandler func(ctx context.Context, err *APIError)

// Config holds the transport settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client issues JSON requests against the backend.
type Client struct {
	base          *url.URL
	http          *http.Client
	sessions      session.Store
	onAuthFailure AuthFailureHandler
	publicPaths   []string
	userAgent     string
	logger        zerolog.Logger
	metrics       *obs.ClientMetrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport, e.g. httptest's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAuthFailureHandler sets the callback run after a 401/403.
func WithAuthFailureHandler(h AuthFailureHandler) Option {
	return func(c *Client) { c.onAuthFailure = h }
}

// WithLogger overrides the shared logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records every call in m.
func WithMetrics(m *obs.ClientMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPublicPaths replaces DefaultPublicPaths.
func WithPublicPaths(paths ...string) Option {
	return func(c *Client) {
		c.publicPaths = append([]string(nil), paths...)
	}
}

// New builds a Client. The session store is mandatory: it is the only place
// the client reads tokens from and the place it clears on auth failure.
func New(cfg Config, sessions session.Store, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("base url is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", cfg.BaseURL)
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		base:        base,
		http:        &http.Client{Timeout: timeout},
		sessions:    sessions,
		publicPaths: DefaultPublicPaths,
		userAgent:   cfg.UserAgent,
		logger:      *obs.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.base.String() }

// Sessions exposes the store the client authenticates with.
func (c *Client) Sessions() session.Store { return c.sessions }

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do performs exactly one HTTP exchange. path is relative to the base URL
// (a leading slash is ignored, the trailing slash is kept) or absolute.
// body is JSON encoded unless it is nil, []byte or json.RawMessage. out, when
// non-nil, receives the decoded response body.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := c.resolve(path, query)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := encodeBody(body)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	public := c.isPublic(u.Path)
	c.setHeaders(req, body != nil, public)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.Observe(method, u.Path, 0, elapsed)
		c.logger.Debug().Err(err).Str("method", method).Str("path", u.Path).Dur("duration", elapsed).Msg("api request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if len(data) > maxResponseSize {
		return fmt.Errorf("%s %s: response exceeds %d bytes", method, path, maxResponseSize)
	}

	c.metrics.Observe(method, u.Path, resp.StatusCode, elapsed)
	c.logger.Debug().
		Str("method", method).
		Str("path", u.Path).
		Int("status", resp.StatusCode).
		Dur("duration", elapsed).
		Str("request_id", req.Header.Get(requestIDHeader)).
		Msg("api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, method, path, data)
		if apiErr.AuthFailure() && !public {
			c.handleAuthFailure(ctx, apiErr)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

func (c *Client) handleAuthFailure(ctx context.Context, apiErr *APIError) {
	if err := c.sessions.Clear(); err != nil {
		c.logger.Error().Err(err).Msg("clear session after auth failure")
	}
	c.logger.Warn().
		Int("status", apiErr.StatusCode).
		Str("method", apiErr.Method).
		Str("path", apiErr.Path).
		Msg("session rejected by backend, signed out")
	if c.onAuthFailure != nil {
		c.onAuthFailure(ctx, apiErr)
	}
}

func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimPrefix(strings.TrimSpace(path), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	u := c.base.ResolveReference(ref)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}

func (c *Client) isPublic(urlPath string) bool {
	for _, p := range c.publicPaths {
		p = strings.TrimPrefix(p, "/")
		if urlPath == "/"+p || strings.HasSuffix(urlPath, "/"+p) {
			return true
		}
	}
	return false
}

func (c *Client) setHeaders(req *http.Request, hasBody, public bool) {
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set(requestIDHeader, ids.RequestID())
	if public {
		return
	}
	if token := session.AccessToken(c.sessions); token != "" {
		req.Header.Set(authHeader, bearer+token)
	}
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
