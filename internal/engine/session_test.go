package engine

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
	"github.com/xtxerr/coinlake/internal/objectstore"
	tu "github.com/xtxerr/coinlake/internal/testing"
)

const bucket = "crypto-raw"

// spyStore counts calls and never succeeds.
type spyStore struct {
	calls int
}

func (s *spyStore) EnsureBucket(context.Context, string) error { s.calls++; return nil }
func (s *spyStore) BucketExists(context.Context, string) (bool, error) {
	s.calls++
	return false, nil
}
func (s *spyStore) PutObject(context.Context, string, string, io.Reader, int64, string) error {
	s.calls++
	return nil
}
func (s *spyStore) GetObject(_ context.Context, b, k string) (*bytes.Reader, error) {
	s.calls++
	return nil, errors.NewObjectNotFound(b, k)
}
func (s *spyStore) Stat(_ context.Context, b, k string) (objectstore.ObjectInfo, error) {
	s.calls++
	return objectstore.ObjectInfo{}, errors.NewObjectNotFound(b, k)
}
func (s *spyStore) ListObjects(context.Context, string, string) ([]objectstore.ObjectInfo, error) {
	s.calls++
	return nil, nil
}

func newStore(t *testing.T) *objectstore.LocalStore {
	t.Helper()
	store, err := objectstore.NewLocal(t.TempDir(), logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(context.Background(), bucket))
	return store
}

func newSession(t *testing.T, store objectstore.Store) *Session {
	t.Helper()
	s, err := New(store, Options{ScratchDir: t.TempDir(), Threads: 1, Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func put(t *testing.T, store objectstore.Store, key string, data []byte) {
	t.Helper()
	require.NoError(t, store.PutObject(context.Background(), bucket, key, bytes.NewReader(data), int64(len(data)), ""))
}

func TestLoadObjectCSV(t *testing.T) {
	store := newStore(t)
	put(t, store, "markets.csv", []byte(tu.MarketsCSV))
	s := newSession(t, store)

	ds, err := s.LoadObject(context.Background(), FormatCSV, bucket, "markets.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "symbol", "current_price", "market_cap_rank"}, ds.Schema.Names())
	assert.Equal(t, dataset.TypeDouble, ds.Schema[2].Type)
	assert.Equal(t, dataset.TypeLong, ds.Schema[3].Type)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, []any{"bitcoin", "btc", 67012.5, int64(1)}, ds.Rows[0])

	// The spill file is gone once the load returns.
	entries, err := os.ReadDir(s.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadObjectJSON(t *testing.T) {
	store := newStore(t)
	put(t, store, "markets.json", []byte(tu.MarketsJSON))
	s := newSession(t, store)

	ds, err := s.LoadObject(context.Background(), FormatJSON, bucket, "markets.json")
	require.NoError(t, err)

	require.Equal(t, 3, ds.Len())
	col, ok := ds.Column("current_price")
	require.True(t, ok)
	assert.Equal(t, []any{67012.5, 3456.25, 1.0}, col)
}

func TestLoadObjectParquet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	s := newSession(t, store)

	path := filepath.Join(t.TempDir(), "prices.parquet")
	_, err := s.Query(ctx, "COPY (SELECT 'btc' AS coin, TIMESTAMP '2024-01-01 00:00:00' AS ts, 42000.5 AS price) TO '"+path+"' (FORMAT PARQUET)")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	put(t, store, "prices.parquet", data)

	ds, err := s.LoadObject(ctx, FormatParquet, bucket, "prices.parquet")
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, dataset.TypeTimestamp, ds.Schema[1].Type)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ds.Rows[0][1])
	assert.Equal(t, 42000.5, ds.Rows[0][2])
}

func TestLoadObjectUnsupportedFormat(t *testing.T) {
	spy := &spyStore{}
	s := newSession(t, spy)

	for _, f := range []Format{"xlsx", "CSV", "", "avro"} {
		_, err := s.LoadObject(context.Background(), f, bucket, "markets.xlsx")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat), "format %q: %v", f, err)
	}
	assert.Equal(t, 0, spy.calls, "store must not be touched for an unsupported format")
}

func TestLoadObjectMissing(t *testing.T) {
	store := newStore(t)
	s := newSession(t, store)
	ctx := context.Background()

	_, err := s.LoadObject(ctx, FormatCSV, "other-bucket", "a.csv")
	assert.True(t, errors.Is(err, errors.ErrBucketNotFound), "got %v", err)

	_, err = s.LoadObject(ctx, FormatCSV, bucket, "a.csv")
	assert.True(t, errors.Is(err, errors.ErrObjectNotFound), "got %v", err)
}

func TestLoadObjectMalformed(t *testing.T) {
	store := newStore(t)
	put(t, store, "broken.parquet", []byte("definitely not parquet"))
	s := newSession(t, store)

	_, err := s.LoadObject(context.Background(), FormatParquet, bucket, "broken.parquet")
	require.Error(t, err)

	var qe *QueryError
	require.True(t, errors.As(err, &qe), "got %T", err)
	assert.True(t, errors.Is(err, errors.ErrQueryExecution))
	assert.NotEmpty(t, qe.Message)
}

func TestRegisterReplaces(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)

	a := tu.MustDataset(t, dataset.Schema{{Name: "x", Type: dataset.TypeLong, Nullable: true}},
		[]any{int64(1)}, []any{int64(2)})
	b := tu.MustDataset(t, dataset.Schema{{Name: "y", Type: dataset.TypeString, Nullable: true}},
		[]any{"only"})

	require.NoError(t, s.Register(ctx, a, "t"))
	require.NoError(t, s.Register(ctx, b, "t"))

	got, err := s.Query(ctx, "SELECT * FROM t")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, got.Schema.Names())
	assert.Equal(t, [][]any{{"only"}}, got.Rows)

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, tables)
}

func TestRegisterRejectsMalformedRows(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)
	schema := dataset.Schema{
		{Name: "a", Type: dataset.TypeLong, Nullable: true},
		{Name: "b", Type: dataset.TypeLong, Nullable: true},
	}

	tests := []struct {
		name string
		rows [][]any
	}{
		{"short row", [][]any{{int64(1), int64(2)}, {int64(3)}}},
		{"long row", [][]any{{int64(1), int64(2), int64(3)}}},
		{"wrong type", [][]any{{int64(1), "two"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Register(ctx, &dataset.Dataset{Schema: schema, Rows: tt.rows}, "bad")
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidDataset))

			has, err := s.Has(ctx, "bad")
			require.NoError(t, err)
			assert.False(t, has)
		})
	}

	// Plain Go ints are normalised rather than rejected.
	ds := &dataset.Dataset{Schema: schema, Rows: [][]any{{1, 2}, {3, nil}}}
	require.NoError(t, s.Register(ctx, ds, "ok"))
	got, err := s.Query(ctx, "SELECT * FROM ok ORDER BY a")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), int64(2)}, {int64(3), nil}}, got.Rows)
}

func TestRegisterRoundTripsTypes(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)

	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	schema := dataset.Schema{
		{Name: "b", Type: dataset.TypeBoolean, Nullable: true},
		{Name: "l", Type: dataset.TypeLong, Nullable: true},
		{Name: "d", Type: dataset.TypeDouble, Nullable: true},
		{Name: "s", Type: dataset.TypeString, Nullable: true},
		{Name: "ts", Type: dataset.TypeTimestamp, Nullable: true},
		{Name: "day", Type: dataset.TypeDate, Nullable: true},
		{Name: "bin", Type: dataset.TypeBinary, Nullable: true},
	}
	in := tu.MustDataset(t, schema,
		[]any{true, int64(-5), 2.25, "btc", ts, day, []byte{0, 1, 2}},
		[]any{nil, nil, nil, nil, nil, nil, nil},
	)

	require.NoError(t, s.Register(ctx, in, "all_types"))

	out, err := s.Query(ctx, "SELECT * FROM all_types")
	require.NoError(t, err)
	assert.True(t, schema.Equal(out.Schema), "schema %s", out.Schema)
	assert.Equal(t, in.Rows, out.Rows)
}

func TestRegisterEmptyDataset(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)

	require.NoError(t, s.Register(ctx, dataset.Empty(tu.PricesSchema()), "prices"))
	out, err := s.Query(ctx, "SELECT count(*) AS n FROM prices")
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.Rows[0][0])

	err = s.Register(ctx, dataset.Empty(nil), "nothing")
	assert.True(t, errors.Is(err, errors.ErrInvalidDataset))
}

func TestRegisterInvalidName(t *testing.T) {
	s := newSession(t, nil)
	ds := dataset.Empty(tu.PricesSchema())

	for _, name := range []string{"", "1abc", "drop table", `x"y`} {
		err := s.Register(context.Background(), ds, name)
		assert.True(t, errors.Is(err, errors.ErrInvalidName), "name %q: %v", name, err)
	}
}

func TestQueryError(t *testing.T) {
	s := newSession(t, nil)
	const q = "SELECT * FROM no_such_table"

	_, err := s.Query(context.Background(), q)
	require.Error(t, err)

	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, q, qe.SQL)
	assert.Contains(t, qe.Message, "no_such_table")
	assert.True(t, strings.HasPrefix(err.Error(), "query execution failed: "))
	assert.Equal(t, int64(1), s.Stats().Errors)
}

func TestQueryTypeMapping(t *testing.T) {
	s := newSession(t, nil)

	out, err := s.Query(context.Background(), `SELECT
		1::INTEGER AS i,
		12.50::DECIMAL(10,2) AS dec,
		18446744073709551616::HUGEINT AS huge,
		{'coin': 'btc', 'rank': 1} AS st,
		[1, 2, 3] AS lst,
		DATE '2024-02-29' AS day,
		'x' AS i`)
	require.NoError(t, err)

	assert.Equal(t, []string{"i", "dec", "huge", "st", "lst", "day", "i_2"}, out.Schema.Names())
	row := out.Rows[0]
	assert.Equal(t, int64(1), row[0])
	assert.Equal(t, 12.5, row[1])
	assert.Equal(t, 18446744073709551616.0, row[2])
	assert.JSONEq(t, `{"coin":"btc","rank":1}`, row[3].(string))
	assert.JSONEq(t, `[1,2,3]`, row[4].(string))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), row[5])
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	s := newSession(t, nil)

	require.NoError(t, s.Register(ctx, dataset.Empty(tu.PricesSchema()), "prices"))
	ok, err := s.Has(ctx, "prices")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Unregister(ctx, "prices"))
	require.NoError(t, s.Unregister(ctx, "prices"))

	ok, err = s.Has(ctx, "prices")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	s, err := New(nil, Options{ScratchDir: t.TempDir(), Logger: logging.Discard()})
	require.NoError(t, err)

	scratch := s.scratch
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = os.Stat(scratch)
	assert.True(t, os.IsNotExist(err))

	_, err = s.Query(context.Background(), "SELECT 1")
	assert.True(t, errors.Is(err, errors.ErrSessionClosed))
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("Parquet")
	assert.True(t, errors.Is(err, errors.ErrUnsupportedFormat))

	assert.Equal(t, "application/json", ContentTypeForKey("2024/markets.JSON"))
	assert.Equal(t, "text/csv", ContentTypeForKey("markets.csv"))
	assert.Equal(t, objectstore.DefaultContentType, ContentTypeForKey("markets.txt"))
}

func TestDedupe(t *testing.T) {
	schema := dataset.Schema{{Name: "a"}, {Name: "b"}, {Name: "a"}, {Name: "a"}}
	dedupe(schema)
	assert.Equal(t, []string{"a", "b", "a_2", "a_3"}, schema.Names())
}
