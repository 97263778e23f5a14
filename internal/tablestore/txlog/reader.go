package txlog

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/xtxerr/coinlake/internal/errors"
)

// Snapshot is the state of a table at one version.
type Snapshot struct {
	Version  int64
	Metadata *Metadata
	// Files are the live data files in the order they were added.
	Files []AddFile
	// Timestamp of the commit that produced this version.
	Timestamp time.Time
}

// Entry is one commit as shown by History.
type Entry struct {
	Version int64
	Info    CommitInfo
	// SchemaChanged is set when the commit carried new metadata.
	SchemaChanged bool
}

// Versions returns the committed versions in ascending order. A missing
// log directory means no versions.
func (l *Log) Versions() ([]int64, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list commits: %w", err)
	}

	var versions []int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if len(name) != 24 || name[20:] != ".log" {
			continue
		}
		var v int64
		if _, err := fmt.Sscanf(name, "%020d.log", &v); err != nil {
			continue
		}
		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	return versions, nil
}

// Latest returns the newest committed version, or -1 when nothing has been
// committed.
func (l *Log) Latest() (int64, error) {
	versions, err := l.Versions()
	if err != nil {
		return -1, err
	}
	if len(versions) == 0 {
		return -1, nil
	}
	return versions[len(versions)-1], nil
}

// ReadCommit returns the actions of one version.
func (l *Log) ReadCommit(version int64) ([]Action, error) {
	data, err := os.ReadFile(l.path(version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: version %d", errors.ErrVersionMissing, version)
		}
		return nil, fmt.Errorf("read commit %d: %w", version, err)
	}
	actions, err := decodeCommit(data)
	if err != nil {
		return nil, fmt.Errorf("commit %d: %w", version, err)
	}
	return actions, nil
}

// Snapshot replays versions 0..version and returns the resulting state.
// Every version in between must be present and intact.
func (l *Log) Snapshot(version int64) (*Snapshot, error) {
	if version < 0 {
		return nil, fmt.Errorf("%w: version %d", errors.ErrVersionMissing, version)
	}
	latest, err := l.Latest()
	if err != nil {
		return nil, err
	}
	if version > latest {
		return nil, fmt.Errorf("%w: version %d (latest is %d)", errors.ErrVersionMissing, version, latest)
	}

	snap := &Snapshot{Version: version}
	live := make(map[string]int)

	for v := int64(0); v <= version; v++ {
		actions, err := l.ReadCommit(v)
		if err != nil {
			if v < version && errors.Is(err, errors.ErrVersionMissing) {
				return nil, fmt.Errorf("%w: gap at version %d", errors.ErrCorruptLog, v)
			}
			return nil, err
		}

		for _, a := range actions {
			switch {
			case a.Metadata != nil:
				snap.Metadata = a.Metadata
			case a.Add != nil:
				if _, ok := live[a.Add.Path]; ok {
					continue
				}
				live[a.Add.Path] = len(snap.Files)
				snap.Files = append(snap.Files, *a.Add)
			case a.Remove != nil:
				if _, ok := live[a.Remove.Path]; !ok {
					continue
				}
				snap.Files = removeFile(snap.Files, a.Remove.Path)
				live = index(snap.Files)
			case a.CommitInfo != nil:
				snap.Timestamp = a.CommitInfo.Timestamp
			}
		}
	}

	if snap.Metadata == nil {
		return nil, fmt.Errorf("%w: no metadata up to version %d", errors.ErrCorruptLog, version)
	}
	return snap, nil
}

// History returns one entry per commit, newest first.
func (l *Log) History() ([]Entry, error) {
	versions, err := l.Versions()
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		actions, err := l.ReadCommit(versions[i])
		if err != nil {
			return nil, err
		}
		e := Entry{Version: versions[i]}
		for _, a := range actions {
			if a.CommitInfo != nil {
				e.Info = *a.CommitInfo
			}
			if a.Metadata != nil {
				e.SchemaChanged = true
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func removeFile(files []AddFile, path string) []AddFile {
	out := files[:0]
	for _, f := range files {
		if f.Path != path {
			out = append(out, f)
		}
	}
	return out
}

func index(files []AddFile) map[string]int {
	m := make(map[string]int, len(files))
	for i, f := range files {
		m[f.Path] = i
	}
	return m
}
