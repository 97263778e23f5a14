package dataset

import (
	"fmt"
	"strings"
)

// Type is the logical type of a column.
type Type string

const (
	TypeBoolean   Type = "boolean"
	TypeLong      Type = "long"
	TypeDouble    Type = "double"
	TypeString    Type = "string"
	TypeTimestamp Type = "timestamp"
	TypeDate      Type = "date"
	TypeBinary    Type = "binary"
)

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case TypeBoolean, TypeLong, TypeDouble, TypeString, TypeTimestamp, TypeDate, TypeBinary:
		return true
	}
	return false
}

// Numeric reports whether t is long or double.
func (t Type) Numeric() bool {
	return t == TypeLong || t == TypeDouble
}

// Field is a named, typed column.
type Field struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Nullable bool   `json:"nullable"`
}

func (f Field) String() string {
	s := f.Name + " " + string(f.Type)
	if !f.Nullable {
		s += " NOT NULL"
	}
	return s
}

// Schema is an ordered list of fields with unique names.
type Schema []Field

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Field returns the named column.
func (s Schema) Field(name string) (Field, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i], true
	}
	return Field{}, false
}

// Equal reports whether both schemas have the same columns in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Validate checks names are non-empty and unique and types are known.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, f := range s {
		if f.Name == "" {
			return fmt.Errorf("column %d has no name", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate column %q", f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			return fmt.Errorf("column %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, f := range s {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
