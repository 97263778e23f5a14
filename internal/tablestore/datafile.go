package tablestore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/coinlake/internal/dataset"
)

// schemaKey is the parquet key/value metadata entry holding the logical
// schema of a data file.
const schemaKey = "coinlake.schema"

const readBatchSize = 1024

// ParseCompression maps a compression name onto a parquet codec.
func ParseCompression(s string) (compress.Codec, error) {
	switch s {
	case "snappy":
		return &parquet.Snappy, nil
	case "zstd", "":
		return &parquet.Zstd, nil
	case "lz4":
		return &parquet.Lz4Raw, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none":
		return &parquet.Uncompressed, nil
	}
	return nil, fmt.Errorf("unknown compression %q", s)
}

// parquetSchema builds a flat parquet schema with one optional leaf per
// column.
func parquetSchema(s dataset.Schema) (*parquet.Schema, error) {
	group := make(parquet.Group, len(s))
	for _, f := range s {
		var node parquet.Node
		switch f.Type {
		case dataset.TypeBoolean:
			node = parquet.Leaf(parquet.BooleanType)
		case dataset.TypeLong:
			node = parquet.Leaf(parquet.Int64Type)
		case dataset.TypeDouble:
			node = parquet.Leaf(parquet.DoubleType)
		case dataset.TypeString:
			node = parquet.String()
		case dataset.TypeBinary:
			node = parquet.Leaf(parquet.ByteArrayType)
		case dataset.TypeTimestamp:
			node = parquet.Timestamp(parquet.Microsecond)
		case dataset.TypeDate:
			node = parquet.Date()
		default:
			return nil, fmt.Errorf("column %q: no parquet type for %q", f.Name, f.Type)
		}
		group[f.Name] = parquet.Optional(node)
	}
	return parquet.NewSchema("coinlake", group), nil
}

// columnOrder maps each parquet leaf column index to the dataset column
// it holds. Group fields are laid out by name, not by dataset order.
func columnOrder(ps *parquet.Schema, s dataset.Schema) ([]int, error) {
	cols := ps.Columns()
	order := make([]int, len(cols))
	for ci, path := range cols {
		if len(path) != 1 {
			return nil, fmt.Errorf("nested parquet column %v", path)
		}
		di := s.Index(path[0])
		if di < 0 {
			return nil, fmt.Errorf("parquet column %q not in schema", path[0])
		}
		order[ci] = di
	}
	return order, nil
}

// writeDataFile writes ds to a new parquet file at path and returns its
// size. The file is synced before returning.
func writeDataFile(path string, ds *dataset.Dataset, codec compress.Codec) (int64, error) {
	ps, err := parquetSchema(ds.Schema)
	if err != nil {
		return 0, err
	}
	order, err := columnOrder(ps, ds.Schema)
	if err != nil {
		return 0, err
	}
	meta, err := json.Marshal(ds.Schema)
	if err != nil {
		return 0, fmt.Errorf("encode file schema: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("create data file: %w", err)
	}

	writer := parquet.NewWriter(f, ps,
		parquet.Compression(codec),
		parquet.KeyValueMetadata(schemaKey, string(meta)),
	)

	rows := make([]parquet.Row, 0, min(len(ds.Rows), readBatchSize))
	for _, r := range ds.Rows {
		row := make(parquet.Row, len(order))
		for ci, di := range order {
			row[ci] = toParquet(r[di], ds.Schema[di].Type).Level(0, defLevel(r[di]), ci)
		}
		rows = append(rows, row)
		if len(rows) == cap(rows) {
			if _, err := writer.WriteRows(rows); err != nil {
				f.Close()
				os.Remove(path)
				return 0, fmt.Errorf("write rows: %w", err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := writer.WriteRows(rows); err != nil {
			f.Close()
			os.Remove(path)
			return 0, fmt.Errorf("write rows: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("close writer: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("sync data file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("stat data file: %w", err)
	}
	return info.Size(), f.Close()
}

func defLevel(v any) int {
	if v == nil {
		return 0
	}
	return 1
}

func toParquet(v any, t dataset.Type) parquet.Value {
	if v == nil {
		return parquet.NullValue()
	}
	switch t {
	case dataset.TypeBoolean:
		return parquet.BooleanValue(v.(bool))
	case dataset.TypeLong:
		return parquet.Int64Value(v.(int64))
	case dataset.TypeDouble:
		return parquet.DoubleValue(v.(float64))
	case dataset.TypeString:
		return parquet.ByteArrayValue([]byte(v.(string)))
	case dataset.TypeBinary:
		return parquet.ByteArrayValue(v.([]byte))
	case dataset.TypeTimestamp:
		return parquet.Int64Value(v.(time.Time).UnixMicro())
	case dataset.TypeDate:
		return parquet.Int32Value(int32(v.(time.Time).Unix() / secondsPerDay))
	}
	return parquet.NullValue()
}

const secondsPerDay = 24 * 60 * 60

// readDataFile reads a data file written by writeDataFile. fallback
// supplies column types when the file carries no schema metadata.
func readDataFile(path string, fallback dataset.Schema) (*dataset.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat data file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}

	schema, err := fileSchema(pf, fallback)
	if err != nil {
		return nil, fmt.Errorf("data file %s: %w", path, err)
	}
	order, err := columnOrder(pf.Schema(), schema)
	if err != nil {
		return nil, fmt.Errorf("data file %s: %w", path, err)
	}

	out := make([][]any, 0, pf.NumRows())
	buf := make([]parquet.Row, readBatchSize)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				values := make([]any, len(schema))
				for _, v := range row {
					ci := v.Column()
					if ci < 0 || ci >= len(order) || v.IsNull() {
						continue
					}
					di := order[ci]
					values[di] = fromParquet(v, schema[di].Type)
				}
				out = append(out, values)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("read rows of %s: %w", path, err)
			}
		}
		rows.Close()
	}

	return &dataset.Dataset{Schema: schema, Rows: out}, nil
}

func fileSchema(pf *parquet.File, fallback dataset.Schema) (dataset.Schema, error) {
	if raw, ok := pf.Lookup(schemaKey); ok {
		var s dataset.Schema
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode file schema: %w", err)
		}
		return s, nil
	}

	var s dataset.Schema
	for _, path := range pf.Schema().Columns() {
		f, ok := fallback.Field(path[len(path)-1])
		if !ok {
			return nil, fmt.Errorf("column %q has no known type", path[len(path)-1])
		}
		s = append(s, f)
	}
	return s, nil
}

func fromParquet(v parquet.Value, t dataset.Type) any {
	switch t {
	case dataset.TypeBoolean:
		return v.Boolean()
	case dataset.TypeLong:
		return v.Int64()
	case dataset.TypeDouble:
		return v.Double()
	case dataset.TypeString:
		return string(v.ByteArray())
	case dataset.TypeBinary:
		return bytes.Clone(v.ByteArray())
	case dataset.TypeTimestamp:
		return time.UnixMicro(v.Int64()).UTC()
	case dataset.TypeDate:
		return time.Unix(int64(v.Int32())*secondsPerDay, 0).UTC()
	}
	return nil
}
