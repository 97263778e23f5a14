package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
	"github.com/xtxerr/coinlake/internal/objectstore"
	tu "github.com/xtxerr/coinlake/internal/testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]ClientOption{WithRateLimit(0), WithLogger(logging.Discard())}, opts...)
	c, err := New(srv.URL+"/api/v3/", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c, err := New(" https://api.coingecko.com/api/v3/ ")
		require.NoError(t, err)
		assert.Equal(t, "https://api.coingecko.com/api/v3", c.BaseURL())
		assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
		assert.NotNil(t, c.limiter)
		assert.NotNil(t, c.logger)
	})

	t.Run("options", func(t *testing.T) {
		hc := &http.Client{}
		c, err := New("http://x", WithHTTPClient(hc), WithTimeout(5*time.Second), WithRateLimit(-1))
		require.NoError(t, err)
		assert.Same(t, hc, c.httpClient)
		assert.Equal(t, 5*time.Second, hc.Timeout)
		assert.Nil(t, c.limiter)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := New("  ")
		assert.True(t, errors.Is(err, errors.ErrMissingField))
	})
}

func TestGet(t *testing.T) {
	var gotPath, gotQuery, gotCT string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		gotCT = r.Header.Get("Content-Type")
		w.Write([]byte(tu.MarketsJSON))
	})

	body, err := c.Get(context.Background(), "/coins/markets", url.Values{"vs_currency": {"usd"}})
	require.NoError(t, err)
	assert.JSONEq(t, tu.MarketsJSON, string(body))
	assert.Equal(t, "/api/v3/coins/markets", gotPath)
	assert.Equal(t, "vs_currency=usd", gotQuery)
	assert.Equal(t, "application/json", gotCT)
}

func TestGetErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		tests := []struct {
			status    int
			retriable bool
		}{
			{http.StatusNotFound, false},
			{http.StatusTooManyRequests, true},
			{http.StatusBadGateway, true},
		}
		for _, tt := range tests {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := c.Get(context.Background(), "ping", nil)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "status %d", tt.status)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "ping", apiErr.Endpoint)
			assert.Contains(t, apiErr.Error(), "nope")
			assert.Equal(t, tt.retriable, errors.IsRetriable(err))
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		})
		_, err := c.Get(context.Background(), "ping", nil)
		assert.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"prices":[1,2,3]}`))
		}, WithMaxResponseSize(8))
		_, err := c.Get(context.Background(), "ping", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "response too large")
		assert.NotContains(t, err.Error(), "not valid JSON")
	})

	t.Run("at the cap", func(t *testing.T) {
		body := `{"a":1}`
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}, WithMaxResponseSize(int64(len(body))))
		got, err := c.Get(context.Background(), "ping", nil)
		require.NoError(t, err)
		assert.JSONEq(t, body, string(got))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}, WithTimeout(50*time.Millisecond))
		defer close(release)

		_, err := c.Get(context.Background(), "ping", nil)
		assert.True(t, errors.Is(err, errors.ErrTimeout))
		assert.True(t, errors.Is(err, errors.ErrTransport))
		assert.Equal(t, errors.ExitTransport, errors.ExitCode(err))
	})

	t.Run("transport", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		c, err := New(addr, WithRateLimit(0), WithLogger(logging.Discard()))
		require.NoError(t, err)
		_, err = c.Get(context.Background(), "ping", nil)
		assert.True(t, errors.Is(err, errors.ErrTransport))
		assert.True(t, errors.IsRetriable(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Get(ctx, "ping", nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"gecko_says":"(V3) To the Moon!"}`))
	}, WithRateLimit(20))

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Ping(context.Background()))
	}
	// Burst of one: the second and third calls each wait ~50ms.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCoinsMarkets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "3", r.URL.Query().Get("per_page"))
		w.Write([]byte(tu.MarketsJSON))
	})

	markets, err := c.CoinsMarkets(context.Background(), "usd", 3, 1)
	require.NoError(t, err)
	require.Len(t, markets, 3)
	assert.Equal(t, "bitcoin", markets[0].ID)
	assert.Equal(t, 67012.5, markets[0].CurrentPrice)
	assert.Equal(t, 3, markets[2].MarketCapRank)

	_, err = c.CoinsMarkets(context.Background(), "", 0, 0)
	assert.Error(t, err)
}

func TestMarketChart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/coins/bitcoin/market_chart", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		w.Write([]byte(`{"prices":[[1709251200000,61000.5],[1709254800000,61200]],
			"market_caps":[[1709251200000,1.2e12]],"total_volumes":[]}`))
	})

	chart, err := c.MarketChart(context.Background(), "bitcoin", "usd", 7)
	require.NoError(t, err)
	require.Len(t, chart.Prices, 2)
	assert.Equal(t, 61200.0, chart.Prices[1][1])
	assert.Len(t, chart.MarketCaps, 1)
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(tu.MarketsJSON))
	})

	store, err := objectstore.NewLocal(t.TempDir(), logging.Discard())
	require.NoError(t, err)

	// The bucket is never created implicitly.
	_, err = c.Snapshot(ctx, store, "crypto-raw", "markets.json", EndpointCoinsMarkets, MarketsParams("usd", 0, 0))
	assert.True(t, errors.Is(err, errors.ErrBucketNotFound))

	require.NoError(t, store.EnsureBucket(ctx, "crypto-raw"))
	n, err := c.Snapshot(ctx, store, "crypto-raw", "markets.json", EndpointCoinsMarkets, MarketsParams("usd", 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(len(tu.MarketsJSON)), n)

	info, err := store.Stat(ctx, "crypto-raw", "markets.json")
	require.NoError(t, err)
	assert.Equal(t, SnapshotContentType, info.ContentType)

	r, err := store.GetObject(ctx, "crypto-raw", "markets.json")
	require.NoError(t, err)
	assert.Equal(t, int64(len(tu.MarketsJSON)), r.Size())
}
