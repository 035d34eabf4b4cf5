package jira

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config errors.
var (
	// ErrMissingBaseURL indicates no server URL was configured.
	ErrMissingBaseURL = errors.New("jira: server url is required")

	// ErrMissingCredentials indicates neither basic credentials nor a token were configured.
	ErrMissingCredentials = errors.New("jira: username and password, or a token, are required")
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the site URL, e.g. https://jira.example.com.
	BaseURL string

	// Username and Password authenticate with basic auth. On Cloud the
	// password is an API token.
	Username string
	Password string

	// Token is a personal access token sent as a bearer token when no
	// username is configured.
	Token string

	// VerifySSL enables TLS certificate verification.
	VerifySSL bool

	// Timeout bounds each HTTP request. Default: DefaultTimeout.
	Timeout time.Duration

	// RequestsPerSecond is the proactive throttle. Default: DefaultRate.
	RequestsPerSecond float64

	// MaxRetries bounds retries of retryable responses. Default: MaxRetries.
	MaxRetries int

	// RetryDelay is the initial delay between retries. Default: RetryDelay.
	RetryDelay time.Duration

	// IncludeInactiveUsers keeps deactivated users in group expansion.
	IncludeInactiveUsers bool
}

// Validate checks required fields.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Join(ErrMissingBaseURL, err)
	}
	if c.Token == "" && (c.Username == "" || c.Password == "") {
		return ErrMissingCredentials
	}
	return nil
}

// SiteURL returns the base URL without a trailing slash.
func (c Config) SiteURL() string {
	return strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
}

// BrowseURL returns the browse link for an issue key.
func BrowseURL(siteURL, issueKey string) string {
	return strings.TrimRight(siteURL, "/") + "/browse/" + issueKey
}
