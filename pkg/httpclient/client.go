// Package httpclient provides an outbound HTTP client for identity-provider
// calls. Provider calls are single-attempt on purpose: authorization codes
// are single-use, so a failed exchange must surface to the caller instead of
// being retried.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxConnsPerHost int
}

// DefaultConfig returns bounded-timeout defaults for provider calls.
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		MaxConnsPerHost: 50,
	}
}

// Client wraps http.Client with connection pooling and bounded timeouts.
type Client struct {
	httpClient *http.Client
}

// New creates a new HTTP client.
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Do executes the request exactly once with the client's timeout applied.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req.WithContext(ctx))
}

// HTTPClient exposes the underlying *http.Client for libraries (oauth2)
// that accept a client via context.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
