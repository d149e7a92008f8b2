// Package upstream implements the HTTP client for the remote auth backend.
// One Client serves one browser session: it carries that session's access
// token, holds the refresh cookie in its own jar, and transparently recovers
// from access-token expiry through a per-client refresh coordinator.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/portalkit/auth-portal/internal/api/metrics"
)

const (
	defaultTimeout = 10 * time.Second

	// refreshCookieName matches the cookie the backend sets on login.
	refreshCookieName = "refresh_token"
)

// Options configures a backend client.
type Options struct {
	// BaseURL is the backend API root, e.g. http://localhost:8000/api.
	BaseURL string
	Timeout time.Duration
	Log     zerolog.Logger
}

// Client issues authenticated requests against the auth backend.
type Client struct {
	http    *resty.Client
	jar     http.CookieJar
	baseURL *url.URL
	coord   *refreshCoordinator
	log     zerolog.Logger

	mu     sync.RWMutex
	access string
}

// New builds a Client with its own cookie jar and refresh coordinator.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("upstream: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL %q: %w", opts.BaseURL, err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("upstream: base URL must be absolute with a host, got %q", opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: cookie jar: %w", err)
	}

	hc := resty.NewWithClient(&http.Client{Jar: jar}).
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:    hc,
		jar:     jar,
		baseURL: base,
		coord:   newRefreshCoordinator(),
		log:     opts.Log,
	}, nil
}

// TokenSnapshot exports the session's credentials for persistence: the held
// access token and the opaque refresh cookie value.
func (c *Client) TokenSnapshot() (access, refresh string) {
	access = c.accessToken()
	for _, ck := range c.jar.Cookies(c.baseURL) {
		if ck.Name == refreshCookieName {
			refresh = ck.Value
		}
	}
	return access, refresh
}

// RestoreTokens loads previously snapshotted credentials into the client.
func (c *Client) RestoreTokens(access, refresh string) {
	c.setAccessToken(access)
	if refresh != "" {
		c.jar.SetCookies(c.baseURL, []*http.Cookie{{
			Name:  refreshCookieName,
			Value: refresh,
			Path:  "/",
		}})
	}
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	c.access = token
	c.mu.Unlock()
}

// UpstreamError is a non-2xx backend response passed through uninterpreted,
// carrying the backend's own message verbatim.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// errorBody covers the error envelopes the backend emits.
type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

func (c *Client) responseError(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var body errorBody
	_ = json.Unmarshal(resp.Body(), &body)
	msg := body.Error
	if msg == "" {
		msg = body.Detail
	}
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &UpstreamError{Status: resp.StatusCode(), Message: msg}
}

func (c *Client) execute(ctx context.Context, method, path string, body, out any, token string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err == nil {
		metrics.UpstreamResponsesTotal.WithLabelValues(statusClass(resp.StatusCode())).Inc()
	}
	return resp, err
}

// do issues an authenticated request and transparently recovers from a single
// access-token expiry: the first 401 routes through the refresh coordinator,
// the request is re-issued exactly once with the fresh token, and a second
// 401 passes through as a plain failure.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.execute(ctx, method, path, body, out, c.accessToken())
	if err != nil {
		return fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	if resp.StatusCode() != http.StatusUnauthorized {
		return c.responseError(resp)
	}

	token, err := c.coord.Await(ctx, c.refreshCall)
	if err != nil {
		return err
	}
	c.setAccessToken(token)

	resp, err = c.execute(ctx, method, path, body, out, token)
	if err != nil {
		return fmt.Errorf("upstream %s %s (retry): %w", method, path, err)
	}
	return c.responseError(resp)
}

// doPublic issues a request on the credential endpoints (login, register).
// A 401 here means the submitted credentials were rejected, not that the
// access token expired, so the refresh path is deliberately skipped.
func (c *Client) doPublic(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.execute(ctx, method, path, body, out, "")
	if err != nil {
		return fmt.Errorf("upstream %s %s: %w", method, path, err)
	}
	return c.responseError(resp)
}

func recordRefresh(ok bool) {
	result := metrics.ResultFailure
	if ok {
		result = metrics.ResultSuccess
	}
	metrics.TokenRefreshTotal.WithLabelValues(result).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
