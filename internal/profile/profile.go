// Package profile summarises the numeric columns of a dataset: count,
// nulls, min, max, mean and approximate quantiles from a DDSketch.
package profile

import (
	"fmt"
	"math"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/coinlake/internal/dataset"
)

// DefaultAccuracy is the relative accuracy of the quantile sketches.
const DefaultAccuracy = 0.01

// Quantiles reported for every column.
var Quantiles = []float64{0.50, 0.90, 0.99}

// Column is the profile of one numeric column.
type Column struct {
	Name  string       `json:"name"`
	Type  dataset.Type `json:"type"`
	Count int64        `json:"count"`
	Nulls int64        `json:"nulls"`
	Min   float64      `json:"min"`
	Max   float64      `json:"max"`
	Mean  float64      `json:"mean"`
	P50   float64      `json:"p50"`
	P90   float64      `json:"p90"`
	P99   float64      `json:"p99"`
}

// Profile covers every numeric column of a dataset, in schema order.
type Profile struct {
	Rows    int64    `json:"rows"`
	Columns []Column `json:"columns"`
}

// Column returns the profile of the named column.
func (p *Profile) Column(name string) (Column, bool) {
	for _, c := range p.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Compute profiles ds. accuracy <= 0 selects DefaultAccuracy.
func Compute(ds *dataset.Dataset, accuracy float64) (*Profile, error) {
	if accuracy <= 0 {
		accuracy = DefaultAccuracy
	}

	p := &Profile{Rows: int64(ds.Len())}
	for c, f := range ds.Schema {
		if !f.Type.Numeric() {
			continue
		}
		acc, err := newAccumulator(accuracy)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		for _, row := range ds.Rows {
			switch v := row[c].(type) {
			case nil:
				acc.nulls++
			case int64:
				acc.add(float64(v))
			case float64:
				acc.add(v)
			}
		}
		col := acc.result()
		col.Name, col.Type = f.Name, f.Type
		p.Columns = append(p.Columns, col)
	}
	return p, nil
}

// accumulator keeps running statistics for one column.
type accumulator struct {
	count int64
	nulls int64
	sum   float64
	min   float64
	max   float64

	sketch *ddsketch.DDSketch
}

func newAccumulator(accuracy float64) (*accumulator, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, fmt.Errorf("create sketch: %w", err)
	}
	return &accumulator{
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
		sketch: sketch,
	}, nil
}

func (a *accumulator) add(v float64) {
	// NaN has no place in an ordering; it is skipped, not counted as null.
	if math.IsNaN(v) {
		return
	}
	a.count++
	a.sum += v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	if !math.IsInf(v, 0) {
		a.sketch.Add(v)
	}
}

func (a *accumulator) result() Column {
	col := Column{Count: a.count, Nulls: a.nulls}
	if a.count == 0 {
		return col
	}

	col.Min, col.Max = a.min, a.max
	col.Mean = a.sum / float64(a.count)

	if a.sketch.IsEmpty() {
		return col
	}
	qs, err := a.sketch.GetValuesAtQuantiles(Quantiles)
	if err != nil {
		return col
	}
	// The sketch is only relatively accurate; keep quantiles inside the
	// observed range.
	for i := range qs {
		qs[i] = math.Max(a.min, math.Min(a.max, qs[i]))
	}
	col.P50, col.P90, col.P99 = qs[0], qs[1], qs[2]
	return col
}
