// Package coingecko is a small client for the CoinGecko market-data REST
// API. It produces the raw JSON documents that coinlake stores and later
// ingests.
//
// The client does not retry. A client-side rate limiter keeps request
// bursts below the public API's limits; APIError.Retriable tells callers
// which failures are worth repeating.
package coingecko

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xtxerr/coinlake/config"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
)

// Client provides access to the CoinGecko REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	userAgent  string
	maxBody    int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.NewMissingField("coingecko.api_url")
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: config.DefaultCoinGeckoTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(config.DefaultCoinGeckoRateLimit), 1),
		userAgent: "coinlake",
		maxBody:   maxResponseSize,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrComponent(c.logger, "coingecko")

	return c, nil
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit allows rps requests per second. Zero or less disables
// the limiter.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMaxResponseSize caps the accepted response body size. Larger
// responses fail instead of being cut short.
func WithMaxResponseSize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}
