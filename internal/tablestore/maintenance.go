package tablestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/xtxerr/coinlake/internal/tablestore/txlog"
)

// =============================================================================
// Compaction
// =============================================================================

// CompactResult describes a compaction.
type CompactResult struct {
	// Version is the committed version, or the unchanged latest version
	// when there was nothing to compact.
	Version      int64
	FilesRemoved int
	FilesAdded   int
	Rows         int64
}

// Compacted reports whether a new version was committed.
func (r *CompactResult) Compacted() bool {
	return r.FilesAdded > 0
}

// Compact rewrites the live data files of the latest version into a single
// file and commits the swap as an OPTIMIZE version. The table contents do
// not change; every add and remove is marked as not changing data.
// Tables with fewer than two live files are left alone.
func (t *Table) Compact(ctx context.Context) (*CompactResult, error) {
	snap, err := t.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.Files) < 2 {
		return &CompactResult{Version: snap.Version}, nil
	}

	ds, err := t.readSnapshot(ctx, snap.Version)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	actions := make([]txlog.Action, 0, len(snap.Files)+2)
	for _, f := range snap.Files {
		actions = append(actions, txlog.Action{Remove: &txlog.RemoveFile{
			Path:              f.Path,
			DeletionTimestamp: now,
		}})
	}

	var staged string
	added := 0
	if ds.Len() > 0 {
		add, path, err := t.stage(ds, now, false)
		if err != nil {
			return nil, err
		}
		staged = path
		actions = append(actions, txlog.Action{Add: add})
		added = 1
	}

	version := snap.Version + 1
	actions = append(actions, txlog.Action{CommitInfo: &txlog.CommitInfo{
		Timestamp:    now,
		Operation:    "OPTIMIZE",
		TxnID:        uuid.NewString(),
		FilesAdded:   added,
		FilesRemoved: len(snap.Files),
	}})

	if err := t.commit(version, actions, staged); err != nil {
		return nil, err
	}

	t.logger.Info("table compacted",
		"version", version,
		"files_removed", len(snap.Files),
		"rows", ds.Len())

	return &CompactResult{
		Version:      version,
		FilesRemoved: len(snap.Files),
		FilesAdded:   added,
		Rows:         int64(ds.Len()),
	}, nil
}

// =============================================================================
// Vacuum
// =============================================================================

// VacuumResult holds the result of a vacuum.
type VacuumResult struct {
	FilesDeleted int
	BytesFreed   int64
	FilesKept    int
	DryRun       bool
	Errors       []error
}

func (r *VacuumResult) String() string {
	verb := "deleted"
	if r.DryRun {
		verb = "would delete"
	}
	return fmt.Sprintf("%s %d files (%s), kept %d", verb, r.FilesDeleted, formatBytes(r.BytesFreed), r.FilesKept)
}

// Vacuum deletes data files no retained version needs. A version is
// retained when its commit is younger than retain; the latest version is
// always retained. Files referenced by a retained version, and files
// modified within the retention window, are kept. Reading a version that
// was not retained fails after a vacuum.
//
// With dryRun set nothing is deleted and the result lists what would be.
func (t *Table) Vacuum(ctx context.Context, retain time.Duration, dryRun bool) (*VacuumResult, error) {
	if retain < 0 {
		return nil, fmt.Errorf("retention must be non-negative, got %s", retain)
	}
	latest, err := t.Version(ctx)
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		return nil, t.notFound()
	}

	cutoff := time.Now().Add(-retain)
	keep, err := t.retainedFiles(ctx, latest, cutoff)
	if err != nil {
		return nil, err
	}

	files, err := listDataFiles(t.path)
	if err != nil {
		return nil, fmt.Errorf("list data files: %w", err)
	}

	result := &VacuumResult{DryRun: dryRun}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if keep[f.name] || f.modTime.After(cutoff) {
			result.FilesKept++
			continue
		}
		if !dryRun {
			if err := os.Remove(f.path); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("delete %s: %w", f.name, err))
				continue
			}
		}
		result.FilesDeleted++
		result.BytesFreed += f.size
	}

	t.logger.Info("table vacuumed",
		"retain", retain,
		"dry_run", dryRun,
		"files_deleted", result.FilesDeleted,
		"bytes_freed", result.BytesFreed,
		"files_kept", result.FilesKept,
		"errors", len(result.Errors))
	return result, nil
}

// retainedFiles returns the data files live in any retained version.
func (t *Table) retainedFiles(ctx context.Context, latest int64, cutoff time.Time) (map[string]bool, error) {
	keep := make(map[string]bool)
	for v := latest; v >= 0; v-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := t.log.Snapshot(v)
		if err != nil {
			return nil, err
		}
		if v != latest && snap.Timestamp.Before(cutoff) {
			break
		}
		for _, f := range snap.Files {
			keep[f.Path] = true
		}
	}
	return keep, nil
}

type dataFile struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

// listDataFiles lists the parquet files directly under dir.
func listDataFiles(dir string) ([]dataFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []dataFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".parquet" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, dataFile{
			name:    entry.Name(),
			path:    filepath.Join(dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return files, nil
}

// formatBytes formats bytes as human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
