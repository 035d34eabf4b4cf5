package jira

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
	"github.com/custodia-labs/jira-q-sync/internal/core/ports/driven"
	"github.com/custodia-labs/jira-q-sync/internal/logger"
)

// Ensure Client implements the driven ports.
var (
	_ driven.IssueSource         = (*Client)(nil)
	_ driven.PermissionDirectory = (*Client)(nil)
	_ driven.PrincipalDirectory  = (*Client)(nil)
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for transient errors.
	MaxRetries = 3

	// RetryDelay is the initial delay between retries.
	RetryDelay = time.Second

	// apiPath is the REST API root relative to the site URL.
	apiPath = "/rest/api/2/"

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client talks to the Jira REST API v2.
type Client struct {
	siteURL     string
	apiURL      *url.URL
	httpClient  *http.Client
	username    string
	password    string
	rateLimiter *RateLimiter
	maxRetries  int
	retryDelay  time.Duration
	inactive    bool
}

// NewClient creates a client from cfg.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiURL, err := url.Parse(cfg.SiteURL() + apiPath)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = MaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = RetryDelay
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		//nolint:gosec // Self-hosted servers with private CAs opt out explicitly
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	base := &http.Client{Transport: transport, Timeout: timeout}

	c := &Client{
		siteURL:     cfg.SiteURL(),
		apiURL:      apiURL,
		httpClient:  base,
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond),
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
		inactive:    cfg.IncludeInactiveUsers,
	}

	if cfg.Username != "" {
		c.username = cfg.Username
		c.password = cfg.Password
		if c.password == "" {
			c.password = cfg.Token
		}
	} else {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Token},
		)
		tc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), ts)
		tc.Timeout = timeout
		c.httpClient = tc
	}

	return c, nil
}

// SiteURL returns the site URL without a trailing slash.
func (c *Client) SiteURL() string { return c.siteURL }

// RateLimiter returns the rate limiter for external access.
func (c *Client) RateLimiter() *RateLimiter { return c.rateLimiter }

// get issues a GET against the API and decodes the JSON response into out.
// Retryable statuses and network errors are retried with exponential
// backoff, honouring Retry-After.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ref := &url.URL{Path: strings.TrimLeft(path, "/")}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	target := c.apiURL.ResolveReference(ref)

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.do(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("%w: GET %s: %w", domain.ErrTransport, target.Path, err)
		}

		c.rateLimiter.UpdateFromResponse(resp)

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			wait, ok := RetryAfter(resp)
			if !ok {
				wait = c.backoff(attempt)
			}
			drain(resp)
			logger.Debug("Jira %s returned %d, retrying in %s", target.Path, resp.StatusCode, wait)
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		return c.decode(resp, target, out)
	}
}

func (c *Client) do(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.httpClient.Do(req)
}

func (c *Client) decode(resp *http.Response, target *url.URL, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			wait, _ := RetryAfter(resp)
			return &RateLimitError{RetryAt: time.Now().Add(wait)}
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
			URL:        target.String(),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", target.Path, err)
	}
	return nil
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.retryDelay * time.Duration(1<<attempt)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

// errorMessage extracts Jira's errorMessages/errors payload.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
		Message       string            `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" && len(s) < 512 {
			return s
		}
		return fallback
	}

	parts := append([]string{}, payload.ErrorMessages...)
	for field, msg := range payload.Errors {
		parts = append(parts, field+": "+msg)
	}
	if payload.Message != "" {
		parts = append(parts, payload.Message)
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, "; ")
}

// ServerInfo describes the Jira deployment.
type ServerInfo struct {
	BaseURL        string `json:"baseUrl"`
	Version        string `json:"version"`
	DeploymentType string `json:"deploymentType"`
	ServerTitle    string `json:"serverTitle"`
}

// ServerInfo fetches deployment information. It does not require
// authentication on most deployments.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.get(ctx, "serverInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("get server info: %w", err)
	}
	return &info, nil
}

// Myself returns the authenticated user. Used to validate credentials.
func (c *Client) Myself(ctx context.Context) (domain.Principal, error) {
	var u userJSON
	if err := c.get(ctx, "myself", nil, &u); err != nil {
		return domain.Principal{}, fmt.Errorf("validate credentials: %w", err)
	}
	return u.principal(), nil
}
