package txlog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xtxerr/coinlake/internal/errors"
	"github.com/xtxerr/coinlake/internal/logging"
)

// DirName is the log directory inside a table directory.
const DirName = "_txlog"

// Log is the ordered sequence of commit files of one table. Version n lives
// in <dir>/<n:020d>.log and is never rewritten once published.
//
// The log assumes a single writer. Two writers racing for the same version
// are detected (one of them gets ErrConcurrentModification) but not
// resolved.
type Log struct {
	dir    string
	logger *slog.Logger
}

// Open returns the log stored in dir. The directory is created on the first
// commit.
func Open(dir string, logger *slog.Logger) *Log {
	return &Log{
		dir:    dir,
		logger: logging.OrComponent(logger, "txlog"),
	}
}

// Dir returns the log directory.
func (l *Log) Dir() string {
	return l.dir
}

func (l *Log) path(version int64) string {
	return filepath.Join(l.dir, fmt.Sprintf("%020d.log", version))
}

// Commit publishes actions as the given version. The commit file is fully
// written and synced under a temporary name, then hard-linked into place;
// the link fails if the version already exists, so a version is either
// absent or complete.
func (l *Log) Commit(version int64, actions []Action) error {
	if version < 0 {
		return fmt.Errorf("commit version %d: negative version", version)
	}
	if len(actions) == 0 {
		return fmt.Errorf("commit version %d: no actions", version)
	}

	data, err := encodeCommit(actions)
	if err != nil {
		return fmt.Errorf("commit version %d: %w", version, err)
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	tmp, err := os.CreateTemp(l.dir, ".commit-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp commit: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp commit: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp commit: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp commit: %w", err)
	}

	target := l.path(version)
	if err := os.Link(tmpPath, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			l.logger.Warn("commit rejected, version exists", "dir", l.dir, "version", version)
			return fmt.Errorf("%w: version %d already committed", errors.ErrConcurrentModification, version)
		}
		return fmt.Errorf("publish commit %d: %w", version, err)
	}

	if err := syncDir(l.dir); err != nil {
		l.logger.Warn("sync log dir failed", "dir", l.dir, "error", err)
	}

	l.logger.Debug("commit published", "dir", l.dir, "version", version, "actions", len(actions))
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
