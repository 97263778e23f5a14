package coingecko

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xtxerr/coinlake/internal/errors"
)

// maxResponseSize is the default cap on a response body.
const maxResponseSize = 64 << 20

// APIError is returned for any non-200 response.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       []byte
}

func (e *APIError) Error() string {
	msg := http.StatusText(e.StatusCode)
	if len(e.Body) > 0 && len(e.Body) <= 512 {
		msg += ": " + strings.TrimSpace(string(e.Body))
	}
	return fmt.Sprintf("coingecko api error %d on %s: %s", e.StatusCode, e.Endpoint, msg)
}

// Retriable reports whether repeating the request later may succeed.
func (e *APIError) Retriable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Get requests endpoint (relative to the base URL) with params and returns
// the raw JSON body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	endpoint = strings.TrimLeft(endpoint, "/")
	fullURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.logger.Debug("request", "endpoint", endpoint, "params", params.Encode())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			err = fmt.Errorf("%w after %s: %w", errors.ErrTimeout, c.httpClient.Timeout, err)
		}
		return nil, errors.NewTransport("GET "+endpoint, err)
	}
	defer resp.Body.Close()

	// One byte past the cap tells a full body from a truncated one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, errors.NewTransport("read "+endpoint, err)
	}
	tooLarge := int64(len(body)) > c.maxBody
	if tooLarge {
		body = body[:c.maxBody]
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("request failed", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: body}
	}
	if tooLarge {
		return nil, fmt.Errorf("%s: response too large (over %d bytes)", endpoint, c.maxBody)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s: response is not valid JSON", endpoint)
	}

	c.logger.Debug("response", "endpoint", endpoint, "bytes", len(body))
	return json.RawMessage(body), nil
}

// getJSON requests endpoint and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	body, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}
