package tablestore

import (
	"fmt"

	"github.com/xtxerr/coinlake/internal/dataset"
	"github.com/xtxerr/coinlake/internal/errors"
)

// SchemaError reports a column whose type in the incoming data differs
// from its type in the table.
type SchemaError struct {
	Column   string
	Existing dataset.Type
	Incoming dataset.Type
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: column %q is %s in the table but %s in the data",
		errors.ErrSchemaIncompatible, e.Column, e.Existing, e.Incoming)
}

// Unwrap lets callers match errors.ErrSchemaIncompatible.
func (e *SchemaError) Unwrap() error {
	return errors.ErrSchemaIncompatible
}

// resolveSchema returns the schema the table has after writing data with
// schema incoming. current is nil for a table with no commits. Every
// stored column is nullable.
func resolveSchema(current, incoming dataset.Schema, mode SchemaMode) (dataset.Schema, error) {
	if current == nil || mode == SchemaOverwrite {
		return nullable(incoming), nil
	}

	merged := nullable(current)
	for _, f := range incoming {
		existing, ok := current.Field(f.Name)
		if !ok {
			merged = append(merged, dataset.Field{Name: f.Name, Type: f.Type, Nullable: true})
			continue
		}
		if existing.Type != f.Type {
			return nil, &SchemaError{Column: f.Name, Existing: existing.Type, Incoming: f.Type}
		}
	}
	return merged, nil
}

func nullable(s dataset.Schema) dataset.Schema {
	out := make(dataset.Schema, len(s))
	for i, f := range s {
		f.Nullable = true
		out[i] = f
	}
	return out
}
