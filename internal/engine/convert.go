package engine

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/coinlake/internal/dataset"
)

// column describes how one result column is materialised.
type column struct {
	dbType string
	typ    dataset.Type
	nested bool
}

// columnFor maps a DuckDB type name onto a dataset type. Nested types
// (STRUCT, MAP, LIST, arrays) become JSON text.
func columnFor(dbType string) column {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	c := column{dbType: name}

	switch {
	case strings.HasSuffix(name, "]"),
		strings.HasPrefix(name, "STRUCT"),
		strings.HasPrefix(name, "MAP"),
		strings.HasPrefix(name, "LIST"),
		strings.HasPrefix(name, "UNION"):
		c.typ, c.nested = dataset.TypeString, true
	case name == "BOOLEAN":
		c.typ = dataset.TypeBoolean
	case name == "TINYINT", name == "SMALLINT", name == "INTEGER", name == "BIGINT",
		name == "UTINYINT", name == "USMALLINT", name == "UINTEGER":
		c.typ = dataset.TypeLong
	case name == "UBIGINT", name == "HUGEINT", name == "UHUGEINT",
		name == "FLOAT", name == "DOUBLE", strings.HasPrefix(name, "DECIMAL"):
		c.typ = dataset.TypeDouble
	case strings.HasPrefix(name, "TIMESTAMP"):
		c.typ = dataset.TypeTimestamp
	case name == "DATE":
		c.typ = dataset.TypeDate
	case name == "BLOB":
		c.typ = dataset.TypeBinary
	default:
		// VARCHAR, JSON, ENUM, UUID, TIME, INTERVAL, BIT and anything newer.
		c.typ = dataset.TypeString
	}
	return c
}

// sqlType is the DuckDB column type used to hold a dataset type.
func sqlType(t dataset.Type) (string, error) {
	switch t {
	case dataset.TypeBoolean:
		return "BOOLEAN", nil
	case dataset.TypeLong:
		return "BIGINT", nil
	case dataset.TypeDouble:
		return "DOUBLE", nil
	case dataset.TypeString:
		return "VARCHAR", nil
	case dataset.TypeTimestamp:
		return "TIMESTAMP", nil
	case dataset.TypeDate:
		return "DATE", nil
	case dataset.TypeBinary:
		return "BLOB", nil
	}
	return "", fmt.Errorf("no engine type for %q", t)
}

// fromEngine converts a scanned value into the canonical value for c.
func (c column) fromEngine(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if c.nested {
		b, err := json.Marshal(plain(v))
		if err != nil {
			return nil, fmt.Errorf("encode %s value: %w", c.dbType, err)
		}
		return string(b), nil
	}

	switch c.typ {
	case dataset.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case dataset.TypeLong:
		switch x := v.(type) {
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		}
	case dataset.TypeDouble:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		case uint64:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case *big.Int:
			f, _ := new(big.Float).SetInt(x).Float64()
			return f, nil
		case duckdb.Decimal:
			return x.Float64(), nil
		}
	case dataset.TypeTimestamp, dataset.TypeDate:
		if ts, ok := v.(time.Time); ok {
			return dataset.Normalize(ts, c.typ)
		}
	case dataset.TypeBinary:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	case dataset.TypeString:
		return c.text(v), nil
	}
	return nil, fmt.Errorf("unexpected %T for %s column", v, c.dbType)
}

// text renders scalar engine values that have no dedicated dataset type.
func (c column) text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		if c.dbType == "UUID" && len(x) == 16 {
			if u, err := uuid.FromBytes(x); err == nil {
				return u.String()
			}
		}
		return string(x)
	case time.Time:
		if strings.HasPrefix(c.dbType, "TIME") {
			return x.Format("15:04:05.999999")
		}
		return x.Format(time.RFC3339Nano)
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d us", x.Months, x.Days, x.Micros)
	}
	if b, ok := uuidBytes(v); ok {
		return uuid.UUID(b).String()
	}
	return fmt.Sprint(v)
}

func uuidBytes(v any) ([16]byte, bool) {
	var out [16]byte
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array || rv.Len() != 16 || rv.Type().Elem().Kind() != reflect.Uint8 {
		return out, false
	}
	reflect.Copy(reflect.ValueOf(&out).Elem(), rv)
	return out, true
}

// plain rewrites nested engine values into JSON-encodable Go values.
func plain(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int8, int16, int32, int64, uint8, uint16, uint32, uint64, float32:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(x)
	case *big.Int:
		return x.String()
	case duckdb.Decimal:
		return x.Float64()
	case duckdb.Interval:
		return map[string]any{"months": x.Months, "days": x.Days, "micros": x.Micros}
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case duckdb.Map:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(plain(k))] = plain(e)
		}
		return out
	}
	if b, ok := uuidBytes(v); ok {
		return uuid.UUID(b).String()
	}
	return fmt.Sprint(v)
}
