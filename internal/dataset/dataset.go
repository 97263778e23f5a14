package dataset

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/xtxerr/coinlake/internal/errors"
)

// Dataset is a schema plus rows. Every row has len(Schema) values.
type Dataset struct {
	Schema Schema
	Rows   [][]any
}

// New validates schema and rows and returns a dataset holding canonical
// values. Rows are normalised in place.
func New(schema Schema, rows [][]any) (*Dataset, error) {
	d := &Dataset{Schema: schema, Rows: rows}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the schema and that every row has one value per column,
// of the column's type, with nulls only in nullable columns. Values are
// normalised to their canonical Go type in place.
func (d *Dataset) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil dataset", errors.ErrInvalidDataset)
	}
	if err := d.Schema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidDataset, err)
	}
	for r, row := range d.Rows {
		if len(row) != len(d.Schema) {
			return fmt.Errorf("%w: row %d has %d values, schema has %d columns",
				errors.ErrInvalidDataset, r, len(row), len(d.Schema))
		}
		for c, v := range row {
			f := d.Schema[c]
			nv, err := Normalize(v, f.Type)
			if err != nil {
				return fmt.Errorf("%w: row %d column %q: %v", errors.ErrInvalidDataset, r, f.Name, err)
			}
			if nv == nil && !f.Nullable {
				return fmt.Errorf("%w: row %d column %q: null in non-nullable column",
					errors.ErrInvalidDataset, r, f.Name)
			}
			row[c] = nv
		}
	}
	return nil
}

// Empty returns a dataset with the schema and no rows.
func Empty(schema Schema) *Dataset {
	return &Dataset{Schema: schema, Rows: [][]any{}}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Column returns the values of the named column.
func (d *Dataset) Column(name string) ([]any, bool) {
	i := d.Schema.Index(name)
	if i < 0 {
		return nil, false
	}
	out := make([]any, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out, true
}

// Project returns the rows reshaped onto target. Columns missing from d
// become null; columns whose type differs are coerced when possible and
// null otherwise.
func (d *Dataset) Project(target Schema) *Dataset {
	type src struct {
		idx  int
		from Type
	}
	mapping := make([]src, len(target))
	for i, f := range target {
		j := d.Schema.Index(f.Name)
		if j < 0 {
			mapping[i] = src{idx: -1}
			continue
		}
		mapping[i] = src{idx: j, from: d.Schema[j].Type}
	}

	rows := make([][]any, len(d.Rows))
	for r, row := range d.Rows {
		out := make([]any, len(target))
		for i, m := range mapping {
			if m.idx < 0 {
				continue
			}
			v := row[m.idx]
			if m.from != target[i].Type {
				cv, ok := Coerce(v, m.from, target[i].Type)
				if !ok {
					continue
				}
				v = cv
			}
			out[i] = v
		}
		rows[r] = out
	}
	return &Dataset{Schema: target, Rows: rows}
}

// Append adds the rows of o, which must have an equal schema.
func (d *Dataset) Append(o *Dataset) error {
	if !d.Schema.Equal(o.Schema) {
		return fmt.Errorf("%w: append %s to %s", errors.ErrInvalidDataset, o.Schema, d.Schema)
	}
	d.Rows = append(d.Rows, o.Rows...)
	return nil
}

// =============================================================================
// Values
// =============================================================================

// Normalize converts v to the canonical Go value for t.
func Normalize(v any, t Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeLong:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint64:
			if x <= math.MaxInt64 {
				return int64(x), nil
			}
		}
	case TypeDouble:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case TypeTimestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC().Truncate(time.Microsecond), nil
		}
	case TypeDate:
		if ts, ok := v.(time.Time); ok {
			y, m, dd := ts.Date()
			return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC), nil
		}
	case TypeBinary:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, t)
}

// Coerce converts a canonical value of type from to type to. Supported:
// long to double, date to timestamp, timestamp to date and any type to
// string. It reports false when no conversion exists.
func Coerce(v any, from, to Type) (any, bool) {
	if v == nil || from == to {
		return v, true
	}
	switch to {
	case TypeDouble:
		if from == TypeLong {
			return float64(v.(int64)), true
		}
	case TypeTimestamp:
		if from == TypeDate {
			return v.(time.Time), true
		}
	case TypeDate:
		if from == TypeTimestamp {
			y, m, dd := v.(time.Time).Date()
			return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC), true
		}
	case TypeString:
		return Format(v), true
	}
	return nil, false
}

// Format renders a canonical value as text. Null renders as "NULL".
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format("2006-01-02 15:04:05.999999")
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return fmt.Sprint(x)
	}
}
