package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Endpoints used by the convenience methods.
const (
	EndpointPing         = "ping"
	EndpointCoinsMarkets = "coins/markets"
)

// MarketChartEndpoint returns the market chart endpoint of a coin.
func MarketChartEndpoint(coinID string) string {
	return "coins/" + url.PathEscape(coinID) + "/market_chart"
}

// Market is one row of /coins/markets.
type Market struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	CurrentPrice  float64   `json:"current_price"`
	MarketCap     float64   `json:"market_cap"`
	MarketCapRank int       `json:"market_cap_rank"`
	TotalVolume   float64   `json:"total_volume"`
	LastUpdated   time.Time `json:"last_updated"`
}

// MarketChart is the response of /coins/{id}/market_chart. Each point is
// [unix milliseconds, value].
type MarketChart struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// MarketsParams builds the query of /coins/markets.
func MarketsParams(vsCurrency string, perPage, page int) url.Values {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	return q
}

// MarketChartParams builds the query of /coins/{id}/market_chart.
func MarketChartParams(vsCurrency string, days int) url.Values {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("days", strconv.Itoa(days))
	return q
}

// Ping checks the API is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		GeckoSays string `json:"gecko_says"`
	}
	if err := c.getJSON(ctx, EndpointPing, nil, &out); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// CoinsMarkets lists coins with market data priced in vsCurrency.
func (c *Client) CoinsMarkets(ctx context.Context, vsCurrency string, perPage, page int) ([]Market, error) {
	if vsCurrency == "" {
		return nil, fmt.Errorf("coins markets: vs_currency is required")
	}
	var out []Market
	if err := c.getJSON(ctx, EndpointCoinsMarkets, MarketsParams(vsCurrency, perPage, page), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarketChart returns price, market cap and volume history of a coin.
func (c *Client) MarketChart(ctx context.Context, coinID, vsCurrency string, days int) (*MarketChart, error) {
	if coinID == "" || vsCurrency == "" {
		return nil, fmt.Errorf("market chart: coin id and vs_currency are required")
	}
	var out MarketChart
	if err := c.getJSON(ctx, MarketChartEndpoint(coinID), MarketChartParams(vsCurrency, days), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
