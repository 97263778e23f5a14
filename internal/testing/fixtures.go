package testing

import (
	"testing"
	"time"

	"github.com/xtxerr/coinlake/internal/dataset"
)

// MarketsCSV is a small /coins/markets export flattened to CSV.
const MarketsCSV = `id,symbol,current_price,market_cap_rank
bitcoin,btc,67012.5,1
ethereum,eth,3456.25,2
tether,usdt,1.0,3
`

// MarketsJSON is the same data as returned by /coins/markets.
const MarketsJSON = `[
  {"id":"bitcoin","symbol":"btc","current_price":67012.5,"market_cap_rank":1},
  {"id":"ethereum","symbol":"eth","current_price":3456.25,"market_cap_rank":2},
  {"id":"tether","symbol":"usdt","current_price":1.0,"market_cap_rank":3}
]`

// PricesSchema is the schema of the Prices fixtures.
func PricesSchema() dataset.Schema {
	return dataset.Schema{
		{Name: "coin", Type: dataset.TypeString, Nullable: true},
		{Name: "ts", Type: dataset.TypeTimestamp, Nullable: true},
		{Name: "price", Type: dataset.TypeDouble, Nullable: true},
	}
}

// Prices returns n hourly price rows for coin starting at start.
func Prices(t *testing.T, coin string, start time.Time, n int, base float64) *dataset.Dataset {
	t.Helper()
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{coin, start.Add(time.Duration(i) * time.Hour), base + float64(i)}
	}
	ds, err := dataset.New(PricesSchema(), rows)
	if err != nil {
		t.Fatalf("build prices fixture: %v", err)
	}
	return ds
}

// MustDataset builds a dataset or fails the test.
func MustDataset(t *testing.T, schema dataset.Schema, rows ...[]any) *dataset.Dataset {
	t.Helper()
	if rows == nil {
		rows = [][]any{}
	}
	ds, err := dataset.New(schema, rows)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return ds
}
