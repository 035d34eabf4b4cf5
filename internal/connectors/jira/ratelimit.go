package jira

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRate is the proactive throttle rate in requests per second.
	DefaultRate = 10.0

	// HeaderRetryAfter is the retry-after header (seconds or HTTP date).
	HeaderRetryAfter = "Retry-After"

	// HeaderRateRemaining is the remaining requests header sent by Cloud.
	HeaderRateRemaining = "X-RateLimit-Remaining"

	// HeaderRateReset is the reset timestamp header sent by Cloud (ISO 8601).
	HeaderRateReset = "X-RateLimit-Reset"
)

// RateLimiter combines proactive token-bucket throttling with the
// server's Retry-After hints.
type RateLimiter struct {
	mu         sync.Mutex
	bucket     *rate.Limiter
	blockUntil time.Time
	remaining  int
}

// NewRateLimiter creates a limiter allowing rps requests per second.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRate
	}
	return &RateLimiter{
		bucket:    rate.NewLimiter(rate.Limit(rps), 1),
		remaining: -1,
	}
}

// Wait blocks until it's safe to make a request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	// 1. Honour a server-imposed pause
	r.mu.Lock()
	until := r.blockUntil
	r.mu.Unlock()
	if wait := time.Until(until); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	// 2. Proactive throttling
	return r.bucket.Wait(ctx)
}

// UpdateFromResponse records rate limit hints from response headers.
func (r *RateLimiter) UpdateFromResponse(resp *http.Response) {
	if resp == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if remaining := resp.Header.Get(HeaderRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			r.remaining = val
		}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if wait, ok := RetryAfter(resp); ok {
			r.blockUntil = time.Now().Add(wait)
		}
	}
}

// Remaining returns the last reported remaining quota, or -1 if unknown.
func (r *RateLimiter) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining
}

// RetryAfter parses the Retry-After header as seconds or an HTTP date.
func RetryAfter(resp *http.Response) (time.Duration, bool) {
	value := resp.Header.Get(HeaderRetryAfter)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait, true
		}
		return 0, true
	}
	return 0, false
}
