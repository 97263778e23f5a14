package profile

import (
	"math"
	"testing"

	"github.com/xtxerr/coinlake/internal/dataset"
)

func mustDataset(t *testing.T, schema dataset.Schema, rows [][]any) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(schema, rows)
	if err != nil {
		t.Fatalf("build dataset: %v", err)
	}
	return ds
}

func TestComputeBasic(t *testing.T) {
	schema := dataset.Schema{
		{Name: "coin", Type: dataset.TypeString, Nullable: true},
		{Name: "price", Type: dataset.TypeDouble, Nullable: true},
		{Name: "rank", Type: dataset.TypeLong, Nullable: true},
	}
	var rows [][]any
	for i := 1; i <= 100; i++ {
		rows = append(rows, []any{"c", float64(i), int64(i % 10)})
	}
	rows = append(rows, []any{"c", nil, nil})

	p, err := Compute(mustDataset(t, schema, rows), 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if p.Rows != 101 {
		t.Errorf("expected 101 rows, got %d", p.Rows)
	}
	if len(p.Columns) != 2 {
		t.Fatalf("expected 2 numeric columns, got %d", len(p.Columns))
	}
	if _, ok := p.Column("coin"); ok {
		t.Error("string column should not be profiled")
	}

	price, ok := p.Column("price")
	if !ok {
		t.Fatal("price column missing")
	}
	if price.Count != 100 || price.Nulls != 1 {
		t.Errorf("expected count=100 nulls=1, got %d/%d", price.Count, price.Nulls)
	}
	if price.Min != 1 || price.Max != 100 {
		t.Errorf("expected min=1 max=100, got %f/%f", price.Min, price.Max)
	}
	if price.Mean != 50.5 {
		t.Errorf("expected mean=50.5, got %f", price.Mean)
	}

	// Relative accuracy 1%, plus one rank of slack.
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"p50", price.P50, 50},
		{"p90", price.P90, 90},
		{"p99", price.P99, 99},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > c.want*0.01+1 {
			t.Errorf("%s: expected ~%f, got %f", c.name, c.want, c.got)
		}
	}

	rank, _ := p.Column("rank")
	if rank.Type != dataset.TypeLong || rank.Min != 0 || rank.Max != 9 {
		t.Errorf("unexpected rank profile %+v", rank)
	}
}

func TestComputeEmptyAndAllNull(t *testing.T) {
	schema := dataset.Schema{{Name: "x", Type: dataset.TypeDouble, Nullable: true}}

	p, err := Compute(dataset.Empty(schema), 0.02)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if p.Rows != 0 || len(p.Columns) != 1 || p.Columns[0].Count != 0 {
		t.Errorf("unexpected profile %+v", p)
	}

	p, err = Compute(mustDataset(t, schema, [][]any{{nil}, {nil}}), 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if c := p.Columns[0]; c.Nulls != 2 || c.Count != 0 || c.Min != 0 || c.Max != 0 {
		t.Errorf("unexpected all-null profile %+v", c)
	}
}

func TestComputeNegativeAndSpecialValues(t *testing.T) {
	schema := dataset.Schema{{Name: "delta", Type: dataset.TypeDouble, Nullable: true}}
	rows := [][]any{{-5.0}, {-1.0}, {0.0}, {2.0}, {math.NaN()}}

	p, err := Compute(mustDataset(t, schema, rows), 0)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	c := p.Columns[0]
	if c.Count != 4 {
		t.Errorf("NaN should be skipped, count=%d", c.Count)
	}
	if c.Min != -5 || c.Max != 2 {
		t.Errorf("expected min=-5 max=2, got %f/%f", c.Min, c.Max)
	}
	if c.P50 < -5 || c.P50 > 2 {
		t.Errorf("p50 out of range: %f", c.P50)
	}
}

func TestComputeRejectsBadAccuracy(t *testing.T) {
	schema := dataset.Schema{{Name: "x", Type: dataset.TypeLong, Nullable: true}}
	if _, err := Compute(dataset.Empty(schema), 1.5); err == nil {
		t.Error("expected error for accuracy >= 1")
	}
}
