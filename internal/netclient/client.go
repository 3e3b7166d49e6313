// Package netclient provides the agent's shared outbound HTTP client with
// retry, rate limiting, and circuit breaker protection.
package netclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/relaykit/pageagent/internal/resilience"
)

// Client wraps resty with rate limiting and a circuit breaker.
type Client struct {
	Resty   *resty.Client
	Limiter *rate.Limiter
	Breaker *resilience.Breaker
}

// New creates the agent's outbound HTTP client. The transport retries
// transient failures; the breaker protects the relay from failure storms.
func New(userAgent string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 30 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(30 * time.Second).
		SetHeader("User-Agent", userAgent)
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	breaker := resilience.New("agent-outbound", resilience.Settings{
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 10 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
	})

	return &Client{
		Resty:   restyClient,
		Limiter: rate.NewLimiter(rate.Inf, 0),
		Breaker: breaker,
	}
}

// SetRateLimit configures rate limiting in requests per second. Zero or
// negative disables the limit.
func (c *Client) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.Limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	c.Limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
}

// Request creates a new request after passing the rate limiter and breaker
// admission check.
func (c *Client) Request(ctx context.Context) (*resty.Request, error) {
	if c.Breaker.State() == resilience.StateOpen {
		return nil, resilience.ErrCircuitOpen
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.Resty.R().SetContext(ctx), nil
}

// Do executes an HTTP operation under the circuit breaker.
func (c *Client) Do(fn func() (*resty.Response, error)) (*resty.Response, error) {
	var resp *resty.Response
	err := c.Breaker.Do(func() error {
		var callErr error
		resp, callErr = fn()
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
