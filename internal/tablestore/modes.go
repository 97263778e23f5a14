package tablestore

import (
	"fmt"

	"github.com/xtxerr/coinlake/config"
	"github.com/xtxerr/coinlake/internal/errors"
)

// WriteMode decides what happens to the rows already in the table.
type WriteMode string

const (
	// WriteAppend adds the new rows to the existing ones.
	WriteAppend WriteMode = "append"
	// WriteOverwrite replaces the table contents.
	WriteOverwrite WriteMode = "overwrite"
)

// SchemaMode decides how the incoming schema combines with the table's.
type SchemaMode string

const (
	// SchemaMerge unions the schemas by column name. Same-name columns
	// must have the same type.
	SchemaMerge SchemaMode = "merge"
	// SchemaOverwrite takes the incoming schema wholesale.
	SchemaOverwrite SchemaMode = "overwrite"
)

// ParseWriteMode parses a write mode. The empty string selects the default.
func ParseWriteMode(s string) (WriteMode, error) {
	if s == "" {
		s = config.DefaultWriteMode
	}
	switch m := WriteMode(s); m {
	case WriteAppend, WriteOverwrite:
		return m, nil
	}
	return "", fmt.Errorf("%w: write mode %q (want append or overwrite)", errors.ErrInvalidMode, s)
}

// ParseSchemaMode parses a schema mode. The empty string selects the default.
func ParseSchemaMode(s string) (SchemaMode, error) {
	if s == "" {
		s = config.DefaultSchemaMode
	}
	switch m := SchemaMode(s); m {
	case SchemaMerge, SchemaOverwrite:
		return m, nil
	}
	return "", fmt.Errorf("%w: schema mode %q (want merge or overwrite)", errors.ErrInvalidMode, s)
}
