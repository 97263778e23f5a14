package txlog

import (
	"fmt"
	"time"

	"github.com/xtxerr/coinlake/internal/dataset"
)

// Action is one entry of a commit. Exactly one field is set.
type Action struct {
	Metadata   *Metadata   `json:"metaData,omitempty"`
	Add        *AddFile    `json:"add,omitempty"`
	Remove     *RemoveFile `json:"remove,omitempty"`
	CommitInfo *CommitInfo `json:"commitInfo,omitempty"`
}

func (a Action) validate() error {
	n := 0
	for _, set := range []bool{a.Metadata != nil, a.Add != nil, a.Remove != nil, a.CommitInfo != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("action must set exactly one field, has %d", n)
	}
	if a.Add != nil && a.Add.Path == "" {
		return fmt.Errorf("add action without path")
	}
	if a.Remove != nil && a.Remove.Path == "" {
		return fmt.Errorf("remove action without path")
	}
	return nil
}

// Metadata carries the table schema. It appears in the first commit and in
// every commit that changes the schema.
type Metadata struct {
	ID        string         `json:"id"`
	Schema    dataset.Schema `json:"schema"`
	CreatedAt time.Time      `json:"createdTime"`
}

// AddFile makes a data file part of the table.
type AddFile struct {
	Path             string     `json:"path"`
	Size             int64      `json:"size"`
	ModificationTime time.Time  `json:"modificationTime"`
	DataChange       bool       `json:"dataChange"`
	Stats            *FileStats `json:"stats,omitempty"`
}

// RemoveFile drops a data file from the table. The file itself stays on
// disk so older versions remain readable.
type RemoveFile struct {
	Path              string    `json:"path"`
	DeletionTimestamp time.Time `json:"deletionTimestamp"`
	DataChange        bool      `json:"dataChange"`
}

// FileStats are per-column statistics of one data file. Min and max are
// only kept for numeric and string columns.
type FileStats struct {
	NumRecords int64            `json:"numRecords"`
	NullCount  map[string]int64 `json:"nullCount,omitempty"`
	MinValues  map[string]any   `json:"minValues,omitempty"`
	MaxValues  map[string]any   `json:"maxValues,omitempty"`
}

// CommitInfo describes the write that produced a commit.
type CommitInfo struct {
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"`
	WriteMode    string    `json:"writeMode"`
	SchemaMode   string    `json:"schemaMode"`
	TxnID        string    `json:"txnId"`
	RowsAdded    int64     `json:"rowsAdded"`
	FilesAdded   int       `json:"filesAdded"`
	FilesRemoved int       `json:"filesRemoved"`
}
