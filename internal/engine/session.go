// Package engine wraps an embedded DuckDB database used as a per-run
// transformation scratchpad.
//
// A Session owns one in-memory database. Raw objects are loaded with
// LoadObject, bound to names with Register and transformed with Query.
// A Session is not safe for concurrent use; create one per run.
package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
	"github.com/xtxerr/coinlake/internal/objectstore"
	"github.com/xtxerr/coinlake/internal/validation"
)

// Options configures a Session.
type Options struct {
	// MemoryLimit is passed to DuckDB verbatim, e.g. "2GB". Empty keeps
	// the engine default.
	MemoryLimit string

	// Threads limits DuckDB worker threads. 0 keeps the engine default.
	Threads int

	// ScratchDir is the parent of the session's spill directory.
	// Empty means os.TempDir().
	ScratchDir string

	Logger *slog.Logger
}

// Stats holds session statistics.
type Stats struct {
	ObjectsLoaded    int64
	TablesRegistered int64
	QueriesExecuted  int64
	RowsReturned     int64
	Errors           int64
}

// Session is an in-memory analytical database bound to an object store.
type Session struct {
	db      *sql.DB
	store   objectstore.Store
	scratch string
	logger  *slog.Logger

	stats  Stats
	closed bool
}

// New opens an in-memory database. store may be nil if LoadObject is
// never called.
func New(store objectstore.Store, opts Options) (*Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// One connection keeps every statement on the same catalog.
	db.SetMaxOpenConns(1)

	if opts.MemoryLimit != "" {
		if _, err := db.Exec("SET memory_limit=" + validation.QuoteLiteral(opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", newQueryError("SET memory_limit", err))
		}
	}
	if opts.Threads > 0 {
		if _, err := db.Exec("SET threads=" + strconv.Itoa(opts.Threads)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set threads: %w", newQueryError("SET threads", err))
		}
	}

	scratch, err := os.MkdirTemp(opts.ScratchDir, "coinlake-session-*")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	return &Session{
		db:      db,
		store:   store,
		scratch: scratch,
		logger:  logging.OrComponent(opts.Logger, "engine"),
	}, nil
}

// Close closes the database and removes the scratch directory.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	if rmErr := os.RemoveAll(s.scratch); rmErr != nil && err == nil {
		err = fmt.Errorf("remove scratch dir: %w", rmErr)
	}
	return err
}

// Stats returns session statistics.
func (s *Session) Stats() Stats {
	return s.stats
}

func (s *Session) checkOpen() error {
	if s.closed {
		return errors.ErrSessionClosed
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// LoadObject fetches bucket/key and parses it with the reader for format.
// The format is checked before any I/O.
func (s *Session) LoadObject(ctx context.Context, format Format, bucket, key string) (*dataset.Dataset, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("load %s/%s as %q: %w", bucket, key, format, errors.ErrUnsupportedFormat)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("load %s/%s: session has no object store: %w", bucket, key, errors.ErrInternal)
	}

	log := s.logger.With("bucket", bucket, "key", key, "format", string(format))
	log.Debug("loading object")

	r, err := s.store.GetObject(ctx, bucket, key)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}

	path, err := s.spill(r, format)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer os.Remove(path)

	ds, err := s.query(ctx, format.readQuery(path))
	if err != nil {
		s.stats.Errors++
		log.Error("parse object failed", "error", err)
		return nil, err
	}

	s.stats.ObjectsLoaded++
	log.Info("object loaded", "rows", ds.Len(), "columns", len(ds.Schema))
	return ds, nil
}

// spill writes the object to the scratch directory so DuckDB's file
// readers can open it.
func (s *Session) spill(r io.Reader, format Format) (string, error) {
	f, err := os.CreateTemp(s.scratch, "load-*."+string(format))
	if err != nil {
		return "", fmt.Errorf("create spill file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write spill file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close spill file: %w", err)
	}
	return f.Name(), nil
}

// =============================================================================
// Registration
// =============================================================================

// Register binds ds to name, replacing any existing binding. The rows are
// appended into a staging table which then replaces name in one
// transaction, so a failed registration leaves the old binding intact.
func (s *Session) Register(ctx context.Context, ds *dataset.Dataset, name string) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return err
	}
	if ds == nil || len(ds.Schema) == 0 {
		return fmt.Errorf("register %s: dataset has no columns: %w", name, errors.ErrInvalidDataset)
	}
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	log := s.logger.With("table", name)
	log.Debug("registering table", "rows", ds.Len())

	if err := s.register(ctx, ds, name); err != nil {
		s.stats.Errors++
		log.Error("register table failed", "error", err)
		return err
	}

	s.stats.TablesRegistered++
	log.Info("table registered", "rows", ds.Len(), "columns", len(ds.Schema))
	return nil
}

const stagingPrefix = "__stage_"

func (s *Session) register(ctx context.Context, ds *dataset.Dataset, name string) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	staging := stagingPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")

	cols := make([]string, len(ds.Schema))
	for i, f := range ds.Schema {
		t, err := sqlType(f.Type)
		if err != nil {
			return fmt.Errorf("register %s: %w: %v", name, errors.ErrInvalidDataset, err)
		}
		cols[i] = validation.QuoteIdent(f.Name) + " " + t
	}
	create := "CREATE TABLE " + validation.QuoteIdent(staging) + " (" + strings.Join(cols, ", ") + ")"
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return newQueryError(create, err)
	}
	dropStaging := func() {
		conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+validation.QuoteIdent(staging))
	}

	err = conn.Raw(func(dc any) error {
		a, err := duckdb.NewAppenderFromConn(dc.(driver.Conn), "", staging)
		if err != nil {
			return err
		}
		row := make([]driver.Value, len(ds.Schema))
		for _, r := range ds.Rows {
			for i := 0; i < len(row) && i < len(r); i++ {
				row[i] = r[i]
			}
			if err := a.AppendRow(row...); err != nil {
				a.Close()
				return err
			}
		}
		return a.Close()
	})
	if err != nil {
		dropStaging()
		return fmt.Errorf("append rows: %w", newQueryError("APPEND INTO "+staging, err))
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		dropStaging()
		return fmt.Errorf("begin: %w", err)
	}
	swap := "CREATE OR REPLACE TABLE " + validation.QuoteIdent(name) +
		" AS SELECT * FROM " + validation.QuoteIdent(staging)
	if _, err := tx.ExecContext(ctx, swap); err != nil {
		tx.Rollback()
		dropStaging()
		return newQueryError(swap, err)
	}
	if err := tx.Commit(); err != nil {
		dropStaging()
		return newQueryError("COMMIT", err)
	}
	dropStaging()
	return nil
}

// Unregister drops a binding. Dropping a missing name is not an error.
func (s *Session) Unregister(ctx context.Context, name string) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	stmt := "DROP TABLE IF EXISTS " + validation.QuoteIdent(name)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return newQueryError(stmt, err)
	}
	s.logger.Info("table unregistered", "table", name)
	return nil
}

// Tables lists the registered names in order.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	const q = `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'main' ORDER BY table_name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, newQueryError(q, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, newQueryError(q, err)
		}
		if strings.HasPrefix(n, stagingPrefix) {
			continue
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, newQueryError(q, err)
	}
	return names, nil
}

// Has reports whether name is registered.
func (s *Session) Has(ctx context.Context, name string) (bool, error) {
	names, err := s.Tables(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// Queries
// =============================================================================

// Query runs a statement and materialises its result. Engine failures are
// returned as *QueryError.
func (s *Session) Query(ctx context.Context, query string) (*dataset.Dataset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	ds, err := s.query(ctx, query)
	if err != nil {
		s.stats.Errors++
		s.logger.Error("query failed", "error", err)
		return nil, err
	}
	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(ds.Len())
	s.logger.Debug("query executed", "rows", ds.Len(), "duration", time.Since(start))
	return ds, nil
}

func (s *Session) query(ctx context.Context, query string) (*dataset.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, newQueryError(query, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, newQueryError(query, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, newQueryError(query, err)
	}

	cols := make([]column, len(types))
	schema := make(dataset.Schema, len(types))
	for i, ct := range types {
		cols[i] = columnFor(ct.DatabaseTypeName())
		schema[i] = dataset.Field{Name: names[i], Type: cols[i].typ, Nullable: true}
	}
	dedupe(schema)

	out := &dataset.Dataset{Schema: schema, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, newQueryError(query, err)
		}
		for i, c := range cols {
			v, err := c.fromEngine(vals[i])
			if err != nil {
				return nil, newQueryError(query, fmt.Errorf("column %q: %w", schema[i].Name, err))
			}
			vals[i] = v
		}
		out.Rows = append(out.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, newQueryError(query, err)
	}
	return out, nil
}

// dedupe renames repeated column names (a, a, a) to (a, a_2, a_3).
func dedupe(schema dataset.Schema) {
	seen := make(map[string]bool, len(schema))
	for i := range schema {
		name := schema[i].Name
		for n := 2; seen[name]; n++ {
			name = schema[i].Name + "_" + strconv.Itoa(n)
		}
		seen[name] = true
		schema[i].Name = name
	}
}
