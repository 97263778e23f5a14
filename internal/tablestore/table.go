package tablestore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/coinlake/config"
	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
	"github.com/xtxerr/coinlake/internal/tablestore/txlog"
)

// Options configures table access.
type Options struct {
	// Compression codec for new data files: none, snappy, gzip, zstd, lz4.
	// Default: zstd
	Compression string

	Logger *slog.Logger
}

// DefaultOptions returns default table options.
func DefaultOptions() Options {
	return Options{Compression: config.DefaultTableCompression}
}

// CommitResult describes a successful write.
type CommitResult struct {
	Version      int64
	RowsWritten  int64
	FilesAdded   int
	FilesRemoved int
	Schema       dataset.Schema
}

// Table is a versioned table stored in a directory: parquet data files
// plus a commit log under _txlog. A table exists once its first version is
// committed.
//
// Table assumes a single writer per path.
type Table struct {
	path   string
	log    *txlog.Log
	codec  compress.Codec
	logger *slog.Logger
}

// Open returns the table at path. The directory does not need to exist.
func Open(path string, opts Options) (*Table, error) {
	if path == "" {
		return nil, errors.NewMissingField("table path")
	}
	if opts.Compression == "" {
		opts.Compression = config.DefaultTableCompression
	}
	codec, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}

	logger := logging.OrComponent(opts.Logger, "tablestore")
	return &Table{
		path:   path,
		log:    txlog.Open(filepath.Join(path, txlog.DirName), logger),
		codec:  codec,
		logger: logger.With("path", path),
	}, nil
}

// Path returns the table directory.
func (t *Table) Path() string {
	return t.path
}

// Version returns the latest committed version, or -1 if the table has
// no commits.
func (t *Table) Version(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	return t.log.Latest()
}

// Exists reports whether at least one version has been committed.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	v, err := t.Version(ctx)
	return v >= 0, err
}

// Read returns the current contents of the table.
func (t *Table) Read(ctx context.Context) (*dataset.Dataset, error) {
	latest, err := t.Version(ctx)
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		return nil, t.notFound()
	}
	return t.readSnapshot(ctx, latest)
}

// ReadVersion returns the contents of the table as of version v.
func (t *Table) ReadVersion(ctx context.Context, v int64) (*dataset.Dataset, error) {
	latest, err := t.Version(ctx)
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		return nil, t.notFound()
	}
	return t.readSnapshot(ctx, v)
}

// Schema returns the current table schema.
func (t *Table) Schema(ctx context.Context) (dataset.Schema, error) {
	snap, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Metadata.Schema, nil
}

// History lists the commits of the table, newest first.
func (t *Table) History(ctx context.Context) ([]txlog.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := t.log.History()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, t.notFound()
	}
	return entries, nil
}

func (t *Table) notFound() error {
	return fmt.Errorf("%w: %s", errors.ErrTableNotFound, t.path)
}

func (t *Table) snapshot(ctx context.Context) (*txlog.Snapshot, error) {
	latest, err := t.Version(ctx)
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		return nil, t.notFound()
	}
	return t.log.Snapshot(latest)
}

func (t *Table) readSnapshot(ctx context.Context, version int64) (*dataset.Dataset, error) {
	snap, err := t.log.Snapshot(version)
	if err != nil {
		return nil, err
	}

	schema := snap.Metadata.Schema
	out := dataset.Empty(schema)
	for _, f := range snap.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part, err := readDataFile(filepath.Join(t.path, f.Path), schema)
		if err != nil {
			return nil, err
		}
		out.Rows = append(out.Rows, part.Project(schema).Rows...)
	}

	t.logger.Debug("table read", "version", version, "files", len(snap.Files), "rows", len(out.Rows))
	return out, nil
}

// Write commits ds as the next version.
//
// The schema is resolved first, so an incompatible merge leaves no trace.
// The rows are then staged as a new data file and the commit is published
// atomically; if publishing fails the staged file is removed and the table
// is unchanged. Empty modes select the defaults.
func (t *Table) Write(ctx context.Context, ds *dataset.Dataset, wm WriteMode, sm SchemaMode) (*CommitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wm, sm, err := normalizeModes(wm, sm)
	if err != nil {
		return nil, err
	}
	if ds == nil || len(ds.Schema) == 0 {
		return nil, fmt.Errorf("%w: dataset has no columns", errors.ErrInvalidDataset)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	latest, err := t.log.Latest()
	if err != nil {
		return nil, err
	}

	var current *txlog.Snapshot
	if latest >= 0 {
		if current, err = t.log.Snapshot(latest); err != nil {
			return nil, err
		}
	}

	var currentSchema dataset.Schema
	if current != nil {
		currentSchema = current.Metadata.Schema
	}
	schema, err := resolveSchema(currentSchema, ds.Schema, sm)
	if err != nil {
		t.logger.Warn("write rejected", "error", err, "write_mode", wm, "schema_mode", sm)
		return nil, err
	}

	now := time.Now().UTC()
	var actions []txlog.Action
	if current == nil || !schema.Equal(currentSchema) {
		id := uuid.NewString()
		created := now
		if current != nil {
			id, created = current.Metadata.ID, current.Metadata.CreatedAt
		}
		actions = append(actions, txlog.Action{Metadata: &txlog.Metadata{
			ID:        id,
			Schema:    schema,
			CreatedAt: created,
		}})
	}

	removed := 0
	if wm == WriteOverwrite && current != nil {
		for _, f := range current.Files {
			actions = append(actions, txlog.Action{Remove: &txlog.RemoveFile{
				Path:              f.Path,
				DeletionTimestamp: now,
				DataChange:        true,
			}})
			removed++
		}
	}

	// Stage.
	var staged string
	added := 0
	if ds.Len() > 0 {
		add, path, err := t.stage(ds, now, true)
		if err != nil {
			return nil, err
		}
		staged = path
		actions = append(actions, txlog.Action{Add: add})
		added = 1
	}

	version := latest + 1
	actions = append(actions, txlog.Action{CommitInfo: &txlog.CommitInfo{
		Timestamp:    now,
		Operation:    "WRITE",
		WriteMode:    string(wm),
		SchemaMode:   string(sm),
		TxnID:        uuid.NewString(),
		RowsAdded:    int64(ds.Len()),
		FilesAdded:   added,
		FilesRemoved: removed,
	}})

	// Commit.
	if err := t.commit(version, actions, staged); err != nil {
		return nil, err
	}

	t.logger.Info("table committed",
		"version", version,
		"rows", ds.Len(),
		"write_mode", wm,
		"schema_mode", sm,
		"files_added", added,
		"files_removed", removed)

	return &CommitResult{
		Version:      version,
		RowsWritten:  int64(ds.Len()),
		FilesAdded:   added,
		FilesRemoved: removed,
		Schema:       schema,
	}, nil
}

// stage writes ds as a new data file and returns its add action and path.
func (t *Table) stage(ds *dataset.Dataset, now time.Time, dataChange bool) (*txlog.AddFile, string, error) {
	if err := os.MkdirAll(t.path, 0755); err != nil {
		return nil, "", fmt.Errorf("create table dir: %w", err)
	}
	name := "part-" + uuid.NewString() + ".parquet"
	path := filepath.Join(t.path, name)

	file := &dataset.Dataset{Schema: nullable(ds.Schema), Rows: ds.Rows}
	size, err := writeDataFile(path, file, t.codec)
	if err != nil {
		return nil, "", fmt.Errorf("stage data file: %w", err)
	}
	return &txlog.AddFile{
		Path:             name,
		Size:             size,
		ModificationTime: now,
		DataChange:       dataChange,
		Stats:            computeStats(ds),
	}, path, nil
}

// commit publishes version. On failure the staged file, if any, is removed
// so the table directory is left as it was.
func (t *Table) commit(version int64, actions []txlog.Action, staged string) error {
	if err := t.log.Commit(version, actions); err != nil {
		if staged != "" {
			if rmErr := os.Remove(staged); rmErr != nil {
				t.logger.Warn("remove staged file failed", "file", staged, "error", rmErr)
			}
		}
		return fmt.Errorf("commit version %d: %w", version, err)
	}
	return nil
}

func normalizeModes(wm WriteMode, sm SchemaMode) (WriteMode, SchemaMode, error) {
	w, err := ParseWriteMode(string(wm))
	if err != nil {
		return "", "", err
	}
	s, err := ParseSchemaMode(string(sm))
	if err != nil {
		return "", "", err
	}
	return w, s, nil
}
